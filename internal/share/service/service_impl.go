package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/franchisefund/internal/apperror"
	"github.com/smallbiznis/franchisefund/internal/clock"
	"github.com/smallbiznis/franchisefund/internal/config"
	franchisedomain "github.com/smallbiznis/franchisefund/internal/franchise/domain"
	investmentdomain "github.com/smallbiznis/franchisefund/internal/investment/domain"
	lifecycledomain "github.com/smallbiznis/franchisefund/internal/lifecycle/domain"
	"github.com/smallbiznis/franchisefund/internal/lock"
	obsmetrics "github.com/smallbiznis/franchisefund/internal/observability/metrics"
	"github.com/smallbiznis/franchisefund/internal/share/domain"
	tokendomain "github.com/smallbiznis/franchisefund/internal/token/domain"
	"github.com/smallbiznis/franchisefund/pkg/db"
	"github.com/smallbiznis/franchisefund/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const expiryBatchSize = 100

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Repo          domain.Repository
	FranchiseRepo franchisedomain.Repository
	InvestmentSvc investmentdomain.Service
	LifecycleSvc  lifecycledomain.Service
	TokenSvc      tokendomain.Service
	Locker        lock.Locker
	Clock         clock.Clock
	Policy        *config.FundingPolicyHolder `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics         `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	repo          domain.Repository
	franchiseRepo franchisedomain.Repository
	investmentSvc investmentdomain.Service
	lifecycleSvc  lifecycledomain.Service
	tokenSvc      tokendomain.Service
	locker        lock.Locker
	clock         clock.Clock
	policy        *config.FundingPolicyHolder
	obsMetrics    *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("share.service"),
		genID:         p.GenID,
		repo:          p.Repo,
		franchiseRepo: p.FranchiseRepo,
		investmentSvc: p.InvestmentSvc,
		lifecycleSvc:  p.LifecycleSvc,
		tokenSvc:      p.TokenSvc,
		locker:        p.Locker,
		clock:         p.Clock,
		policy:        p.Policy,
		obsMetrics:    p.ObsMetrics,
	}
}

func (s *Service) PurchaseBySlug(ctx context.Context, slug string, req domain.PurchaseRequest) (domain.PurchaseResult, error) {
	franchise, err := s.franchiseRepo.FindBySlug(ctx, s.db, strings.TrimSpace(slug))
	if err != nil {
		return domain.PurchaseResult{}, err
	}
	if franchise == nil {
		return domain.PurchaseResult{}, franchisedomain.ErrFranchiseNotFound
	}
	req.FranchiseID = franchise.ID
	return s.Purchase(ctx, req)
}

func (s *Service) Purchase(ctx context.Context, req domain.PurchaseRequest) (domain.PurchaseResult, error) {
	if err := validatePurchase(req); err != nil {
		s.obsMetrics.RecordSharePurchase(ctx, "rejected")
		return domain.PurchaseResult{}, err
	}
	req.InvestorID = strings.TrimSpace(req.InvestorID)
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	log := s.log.With(
		zap.String("franchise_id", req.FranchiseID.String()),
		zap.String("investor_id", req.InvestorID),
	)

	if _, err := s.loadFranchise(ctx, s.db, req.FranchiseID); err != nil {
		return domain.PurchaseResult{}, err
	}

	if req.IdempotencyKey != "" {
		result, ok, err := s.replayPurchase(ctx, s.db, req)
		if err != nil || ok {
			return result, err
		}
	}

	result, opID, err := s.purchaseLocked(ctx, req)
	if err != nil {
		outcome := "failed"
		switch {
		case errors.Is(err, domain.ErrOversell):
			outcome = "oversell"
		case apperror.IsValidation(err), apperror.IsInvalidState(err):
			outcome = "rejected"
		case apperror.IsConcurrencyConflict(err):
			s.obsMetrics.RecordConflict(ctx, "share_purchase")
		}
		s.obsMetrics.RecordSharePurchase(ctx, outcome)
		return domain.PurchaseResult{}, err
	}
	if result.Replayed {
		s.obsMetrics.RecordSharePurchase(ctx, "replayed")
		return result, nil
	}

	s.obsMetrics.RecordSharePurchase(ctx, "confirmed")
	log.Info("share purchase confirmed",
		zap.String("share_id", result.Share.ID.String()),
		zap.Int64("shares", result.Share.Shares),
		zap.String("amount", result.Share.TotalAmount.StringFixed(2)),
		zap.String("progress", result.Investment.Progress().StringFixed(2)),
	)

	s.tokenSvc.Emit(opID)

	result.StageAfter = franchisedomain.StageFunding
	if result.Investment.IsFullyFunded() {
		if _, err := s.lifecycleSvc.EvaluateFunding(ctx, req.FranchiseID); err != nil {
			log.Error("funding transition after purchase failed, left for sweep", zap.Error(err))
		}
		if franchise, err := s.franchiseRepo.FindByID(ctx, s.db, req.FranchiseID); err == nil && franchise != nil {
			result.StageAfter = franchise.Stage
		}
	}
	return result, nil
}

// purchaseLocked holds the franchise lock only for the ledger transaction;
// the funding transition takes the lock itself afterwards.
func (s *Service) purchaseLocked(ctx context.Context, req domain.PurchaseRequest) (domain.PurchaseResult, snowflake.ID, error) {
	unlock, err := s.locker.Lock(ctx, lock.FranchiseKey(req.FranchiseID))
	if err != nil {
		return domain.PurchaseResult{}, 0, err
	}
	defer unlock()

	var (
		result domain.PurchaseResult
		opID   snowflake.ID
	)
	err = apperror.RetryOnConflict(ctx, s.policy.Get().ConflictRetries, func(ctx context.Context) error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if req.IdempotencyKey != "" {
				replay, ok, err := s.replayPurchase(ctx, tx, req)
				if err != nil {
					return err
				}
				if ok {
					result = replay
					return nil
				}
			}

			franchise, err := s.loadFranchise(ctx, tx, req.FranchiseID)
			if err != nil {
				return err
			}
			if franchise.Stage != franchisedomain.StageFunding {
				return domain.ErrFundingClosed.WithMessage("franchise is %s and no longer accepts purchases", franchise.Stage)
			}

			inv, err := s.investmentSvc.Load(ctx, tx, req.FranchiseID)
			if err != nil {
				return err
			}
			if err := s.checkOversell(inv, req); err != nil {
				return err
			}

			price := req.PricePerShare
			if price.IsZero() {
				price = inv.SharePrice
			}
			now := s.clock.Now()
			share := domain.FranchiseShare{
				ID:             s.genID.Generate(),
				FranchiseID:    franchise.ID,
				InvestmentID:   inv.ID,
				InvestorID:     req.InvestorID,
				Shares:         req.Shares,
				PricePerShare:  price,
				TotalAmount:    req.TotalAmount,
				Status:         domain.StatusConfirmed,
				ExternalRef:    strings.TrimSpace(req.ExternalRef),
				IdempotencyKey: optionalKey(req.IdempotencyKey),
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if err := s.repo.Insert(ctx, tx, &share); err != nil {
				if db.IsDuplicateKeyErr(err) {
					return domain.ErrIdempotencyReplay
				}
				return err
			}

			inv, err = s.investmentSvc.RecordPurchase(ctx, tx, inv, req.TotalAmount, req.Shares)
			if err != nil {
				return err
			}

			op, err := s.tokenSvc.Enqueue(ctx, tx, tokendomain.EnqueueRequest{
				FranchiseID:    franchise.ID,
				ShareID:        share.ID,
				InvestorID:     share.InvestorID,
				Kind:           tokendomain.KindMint,
				Amount:         share.Shares,
				TotalValue:     share.TotalAmount,
				Reference:      share.ExternalRef,
				IdempotencyKey: "mint:" + share.ID.String(),
			})
			if err != nil {
				return err
			}

			if err := s.lifecycleSvc.RecordFundingProgress(ctx, tx, franchise.ID, inv.Progress()); err != nil {
				return err
			}

			result = domain.PurchaseResult{Share: share, Investment: inv}
			opID = op.ID
			return nil
		})
	})
	return result, opID, err
}

func (s *Service) checkOversell(inv investmentdomain.Investment, req domain.PurchaseRequest) error {
	if s.policy.Get().AllowOvershoot {
		return nil
	}
	if inv.TotalInvested.Add(req.TotalAmount).GreaterThan(inv.TotalInvestment) {
		return domain.ErrOversell.WithMessage("purchase of %s exceeds remaining %s",
			req.TotalAmount.StringFixed(2), inv.Remaining().StringFixed(2))
	}
	if inv.SharesIssued > 0 && inv.SharesPurchased+req.Shares > inv.SharesIssued {
		return domain.ErrOversell.WithMessage("purchase of %d shares exceeds the %d remaining",
			req.Shares, inv.SharesIssued-inv.SharesPurchased)
	}
	return nil
}

func (s *Service) replayPurchase(ctx context.Context, db *gorm.DB, req domain.PurchaseRequest) (domain.PurchaseResult, bool, error) {
	existing, err := s.repo.FindByKey(ctx, db, req.IdempotencyKey)
	if err != nil {
		return domain.PurchaseResult{}, false, err
	}
	if existing == nil {
		return domain.PurchaseResult{}, false, nil
	}
	if existing.FranchiseID != req.FranchiseID {
		return domain.PurchaseResult{}, false, domain.ErrIdempotencyMisused
	}

	inv, err := s.investmentSvc.Load(ctx, db, existing.FranchiseID)
	if err != nil {
		return domain.PurchaseResult{}, false, err
	}
	franchise, err := s.loadFranchise(ctx, db, existing.FranchiseID)
	if err != nil {
		return domain.PurchaseResult{}, false, err
	}
	return domain.PurchaseResult{
		Share:      *existing,
		Investment: inv,
		Replayed:   true,
		StageAfter: franchise.Stage,
	}, true, nil
}

func (s *Service) Refund(ctx context.Context, req domain.RefundRequest) (domain.RefundResult, error) {
	if req.Reason == "" {
		req.Reason = domain.RefundReasonRequested
	}
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)

	share, err := s.loadShare(ctx, s.db, req.ShareID)
	if err != nil {
		return domain.RefundResult{}, err
	}
	if share.Status == domain.StatusRefunded {
		return s.replayRefund(ctx, s.db, share, req)
	}

	unlock, err := s.locker.Lock(ctx, lock.FranchiseKey(share.FranchiseID))
	if err != nil {
		return domain.RefundResult{}, err
	}

	var (
		result domain.RefundResult
		opID   snowflake.ID
	)
	err = apperror.RetryOnConflict(ctx, s.policy.Get().ConflictRetries, func(ctx context.Context) error {
		opID = 0
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			current, err := s.loadShare(ctx, tx, req.ShareID)
			if err != nil {
				return err
			}
			if current.Status == domain.StatusRefunded {
				result, err = s.replayRefund(ctx, tx, current, req)
				return err
			}

			franchise, err := s.loadFranchise(ctx, tx, current.FranchiseID)
			if err != nil {
				return err
			}
			if franchise.Stage != franchisedomain.StageFunding {
				return domain.ErrRefundNotAllowed.WithMessage("franchise is %s; funds have left escrow", franchise.Stage)
			}

			reference := req.IdempotencyKey
			if reference == "" {
				reference = "refund:" + current.ID.String()
			}
			now := s.clock.Now()
			rows, err := s.repo.MarkRefunded(ctx, tx, current.ID, reference, strings.TrimSpace(req.ExternalRef), now)
			if err != nil {
				if db.IsDuplicateKeyErr(err) {
					return domain.ErrIdempotencyMisused.WithMessage("refund reference %q already used", reference)
				}
				return err
			}
			if rows == 0 {
				return domain.ErrAlreadyRefunded
			}

			inv, err := s.investmentSvc.Load(ctx, tx, current.FranchiseID)
			if err != nil {
				return err
			}
			inv, err = s.investmentSvc.RecordRefund(ctx, tx, inv, current.TotalAmount, current.Shares)
			if err != nil {
				return err
			}

			op, err := s.tokenSvc.Enqueue(ctx, tx, tokendomain.EnqueueRequest{
				FranchiseID:    current.FranchiseID,
				ShareID:        current.ID,
				InvestorID:     current.InvestorID,
				Kind:           tokendomain.KindBurn,
				Amount:         current.Shares,
				TotalValue:     current.TotalAmount,
				Reference:      reference,
				IdempotencyKey: "burn:" + current.ID.String(),
			})
			if err != nil {
				return err
			}

			if err := s.lifecycleSvc.RecordFundingProgress(ctx, tx, current.FranchiseID, inv.Progress()); err != nil {
				return err
			}

			refunded := *current
			refunded.Status = domain.StatusRefunded
			refunded.RefundReference = &reference
			refunded.RefundedAt = &now
			refunded.UpdatedAt = now
			if ext := strings.TrimSpace(req.ExternalRef); ext != "" {
				refunded.ExternalRef = ext
			}
			result = domain.RefundResult{Share: refunded, Investment: inv}
			opID = op.ID
			return nil
		})
	})
	unlock()
	if err != nil {
		return domain.RefundResult{}, err
	}
	if result.Replayed {
		return result, nil
	}

	s.obsMetrics.RecordShareRefund(ctx, string(req.Reason))
	s.log.Info("share refunded",
		zap.String("share_id", result.Share.ID.String()),
		zap.String("franchise_id", result.Share.FranchiseID.String()),
		zap.String("amount", result.Share.TotalAmount.StringFixed(2)),
		zap.String("reason", string(req.Reason)),
	)
	if opID != 0 {
		s.tokenSvc.Emit(opID)
	}
	return result, nil
}

func (s *Service) replayRefund(ctx context.Context, db *gorm.DB, share *domain.FranchiseShare, req domain.RefundRequest) (domain.RefundResult, error) {
	if req.IdempotencyKey == "" || share.RefundReference == nil || *share.RefundReference != req.IdempotencyKey {
		return domain.RefundResult{}, domain.ErrAlreadyRefunded
	}
	inv, err := s.investmentSvc.Load(ctx, db, share.FranchiseID)
	if err != nil {
		return domain.RefundResult{}, err
	}
	return domain.RefundResult{Share: *share, Investment: inv, Replayed: true}, nil
}

func (s *Service) ExpireFunding(ctx context.Context, franchiseID snowflake.ID) (domain.ExpireResult, error) {
	franchise, err := s.loadFranchise(ctx, s.db, franchiseID)
	if err != nil {
		return domain.ExpireResult{}, err
	}
	if franchise.Stage != franchisedomain.StageFunding {
		return domain.ExpireResult{}, nil
	}
	inv, err := s.investmentSvc.Load(ctx, s.db, franchiseID)
	if err != nil {
		return domain.ExpireResult{}, err
	}
	days := s.policy.Get().RefundExpiryDays
	if days <= 0 || inv.IsFullyFunded() {
		return domain.ExpireResult{}, nil
	}
	if !s.clock.Now().After(franchise.FundingStartedAt.AddDate(0, 0, days)) {
		return domain.ExpireResult{}, nil
	}

	var (
		result  domain.ExpireResult
		errs    []error
		afterID snowflake.ID
	)
	for {
		shares, err := s.repo.ListConfirmed(ctx, s.db, franchiseID, afterID, expiryBatchSize)
		if err != nil {
			return result, err
		}
		if len(shares) == 0 {
			break
		}
		for _, share := range shares {
			afterID = share.ID
			_, err := s.Refund(ctx, domain.RefundRequest{
				ShareID:        share.ID,
				IdempotencyKey: "expiry:" + share.ID.String(),
				Reason:         domain.RefundReasonExpired,
			})
			if err != nil {
				result.Failed++
				errs = append(errs, err)
				s.log.Warn("expired share refund failed",
					zap.String("share_id", share.ID.String()),
					zap.String("franchise_id", franchiseID.String()),
					zap.Error(err),
				)
				continue
			}
			result.Refunded++
		}
		if len(shares) < expiryBatchSize {
			break
		}
	}

	if result.Refunded > 0 {
		s.log.Info("expired funding round refunded",
			zap.String("franchise_id", franchiseID.String()),
			zap.Int("refunded", result.Refunded),
			zap.Int("failed", result.Failed),
		)
	}
	return result, errors.Join(errs...)
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.ShareView, error) {
	share, err := s.loadShare(ctx, s.db, id)
	if err != nil {
		return domain.ShareView{}, err
	}
	views, err := s.views(ctx, []*domain.FranchiseShare{share})
	if err != nil {
		return domain.ShareView{}, err
	}
	return views[0], nil
}

func (s *Service) ListByFranchise(ctx context.Context, franchiseID snowflake.ID, req domain.ListSharesRequest) (domain.ListSharesResponse, error) {
	if _, err := s.loadFranchise(ctx, s.db, franchiseID); err != nil {
		return domain.ListSharesResponse{}, err
	}
	page := pagination.Pagination{PageToken: req.PageToken, PageSize: int(req.PageSize)}
	items, err := s.repo.ListByFranchise(ctx, s.db, franchiseID, page)
	if err != nil {
		return domain.ListSharesResponse{}, err
	}
	return s.listResponse(ctx, items, page.PageSize)
}

func (s *Service) ListByInvestor(ctx context.Context, investorID string, req domain.ListSharesRequest) (domain.ListSharesResponse, error) {
	investorID = strings.TrimSpace(investorID)
	if investorID == "" {
		return domain.ListSharesResponse{}, domain.ErrInvalidInvestor
	}
	page := pagination.Pagination{PageToken: req.PageToken, PageSize: int(req.PageSize)}
	items, err := s.repo.ListByInvestor(ctx, s.db, investorID, page)
	if err != nil {
		return domain.ListSharesResponse{}, err
	}
	return s.listResponse(ctx, items, page.PageSize)
}

func (s *Service) listResponse(ctx context.Context, items []*domain.FranchiseShare, limit int) (domain.ListSharesResponse, error) {
	items, pageInfo := pagination.Paginate(items, limit, func(sh *domain.FranchiseShare) (string, time.Time) {
		return sh.ID.String(), sh.CreatedAt
	})
	views, err := s.views(ctx, items)
	if err != nil {
		return domain.ListSharesResponse{}, err
	}
	return domain.ListSharesResponse{PageInfo: pageInfo, Shares: views}, nil
}

// views attaches the effective status, loading each franchise once.
func (s *Service) views(ctx context.Context, items []*domain.FranchiseShare) ([]domain.ShareView, error) {
	type funding struct {
		franchise franchisedomain.Franchise
		inv       investmentdomain.Investment
	}
	byFranchise := make(map[snowflake.ID]funding)
	now := s.clock.Now()
	days := s.policy.Get().RefundExpiryDays

	out := make([]domain.ShareView, 0, len(items))
	for _, item := range items {
		f, ok := byFranchise[item.FranchiseID]
		if !ok {
			franchise, err := s.loadFranchise(ctx, s.db, item.FranchiseID)
			if err != nil {
				return nil, err
			}
			inv, err := s.investmentSvc.Load(ctx, s.db, item.FranchiseID)
			if err != nil {
				return nil, err
			}
			f = funding{franchise: franchise, inv: inv}
			byFranchise[item.FranchiseID] = f
		}
		out = append(out, domain.ShareView{
			FranchiseShare:  *item,
			EffectiveStatus: domain.EffectiveStatus(*item, f.franchise, f.inv, now, days),
		})
	}
	return out, nil
}

func (s *Service) loadFranchise(ctx context.Context, db *gorm.DB, id snowflake.ID) (franchisedomain.Franchise, error) {
	franchise, err := s.franchiseRepo.FindByID(ctx, db, id)
	if err != nil {
		return franchisedomain.Franchise{}, err
	}
	if franchise == nil {
		return franchisedomain.Franchise{}, franchisedomain.ErrFranchiseNotFound
	}
	return *franchise, nil
}

func (s *Service) loadShare(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.FranchiseShare, error) {
	share, err := s.repo.FindByID(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if share == nil {
		return nil, domain.ErrShareNotFound
	}
	return share, nil
}

func validatePurchase(req domain.PurchaseRequest) error {
	if strings.TrimSpace(req.InvestorID) == "" {
		return domain.ErrInvalidInvestor
	}
	if req.Shares <= 0 {
		return domain.ErrInvalidShares
	}
	if !req.TotalAmount.IsPositive() {
		return domain.ErrInvalidAmount
	}
	if req.PricePerShare.IsNegative() {
		return domain.ErrInvalidPrice
	}
	return nil
}

func optionalKey(key string) *string {
	if key == "" {
		return nil
	}
	return &key
}

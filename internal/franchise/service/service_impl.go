package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/franchisefund/internal/clock"
	"github.com/smallbiznis/franchisefund/internal/config"
	"github.com/smallbiznis/franchisefund/internal/franchise/domain"
	investmentdomain "github.com/smallbiznis/franchisefund/internal/investment/domain"
	lifecycledomain "github.com/smallbiznis/franchisefund/internal/lifecycle/domain"
	walletdomain "github.com/smallbiznis/franchisefund/internal/wallet/domain"
	"github.com/smallbiznis/franchisefund/pkg/db"
	"github.com/smallbiznis/franchisefund/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const slugAttempts = 3

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Repo           domain.Repository
	InvestmentRepo investmentdomain.Repository
	WalletSvc      walletdomain.Service
	LifecycleSvc   lifecycledomain.Service
	Clock          clock.Clock
	Policy         *config.FundingPolicyHolder `optional:"true"`
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	repo           domain.Repository
	investmentRepo investmentdomain.Repository
	walletSvc      walletdomain.Service
	lifecycleSvc   lifecycledomain.Service
	clock          clock.Clock
	policy         *config.FundingPolicyHolder
}

func New(p Params) domain.Service {
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("franchise.service"),
		genID:          p.GenID,
		repo:           p.Repo,
		investmentRepo: p.InvestmentRepo,
		walletSvc:      p.WalletSvc,
		lifecycleSvc:   p.LifecycleSvc,
		clock:          p.Clock,
		policy:         p.Policy,
	}
}

func (s *Service) CreateFranchiser(ctx context.Context, req domain.CreateFranchiserRequest) (domain.Franchiser, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Franchiser{}, domain.ErrInvalidName
	}
	franchiserSlug := slug.Make(name)
	if franchiserSlug == "" {
		return domain.Franchiser{}, domain.ErrInvalidSlug
	}

	now := s.clock.Now()
	franchiser := domain.Franchiser{
		ID:        s.genID.Generate(),
		Name:      name,
		Slug:      franchiserSlug,
		Metadata:  datatypes.JSONMap(nonNilMap(req.Metadata)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.InsertFranchiser(ctx, s.db, &franchiser); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Franchiser{}, domain.ErrSlugTaken.WithMessage("franchiser slug %q is already taken", franchiserSlug)
		}
		return domain.Franchiser{}, err
	}
	return franchiser, nil
}

func (s *Service) GetFranchiser(ctx context.Context, id snowflake.ID) (domain.Franchiser, error) {
	franchiser, err := s.repo.FindFranchiserByID(ctx, s.db, id)
	if err != nil {
		return domain.Franchiser{}, err
	}
	if franchiser == nil {
		return domain.Franchiser{}, domain.ErrFranchiserNotFound
	}
	return *franchiser, nil
}

// CreateFranchise writes the investment, the franchise, the escrow wallet and
// the opening funding stage in one transaction.
func (s *Service) CreateFranchise(ctx context.Context, req domain.CreateFranchiseRequest) (domain.CreateFranchiseResponse, error) {
	if req.FranchiserID == 0 {
		return domain.CreateFranchiseResponse{}, domain.ErrInvalidFranchiser
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.CreateFranchiseResponse{}, domain.ErrInvalidName
	}
	if err := s.validateInvestment(req); err != nil {
		return domain.CreateFranchiseResponse{}, err
	}

	franchiser, err := s.GetFranchiser(ctx, req.FranchiserID)
	if err != nil {
		return domain.CreateFranchiseResponse{}, err
	}

	var resp domain.CreateFranchiseResponse
	for attempt := 1; attempt <= slugAttempts; attempt++ {
		resp, err = s.createFranchise(ctx, franchiser, name, req)
		if err == nil || !db.IsDuplicateKeyErr(err) {
			break
		}
		s.log.Debug("franchise slug collision, retrying", zap.Int("attempt", attempt), zap.Error(err))
	}
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.CreateFranchiseResponse{}, domain.ErrSlugTaken
		}
		return domain.CreateFranchiseResponse{}, err
	}

	s.log.Info("franchise created",
		zap.String("franchise_id", resp.Franchise.ID.String()),
		zap.String("slug", resp.Franchise.Slug),
		zap.String("total_investment", resp.Investment.TotalInvestment.StringFixed(2)),
	)
	return resp, nil
}

func (s *Service) createFranchise(ctx context.Context, franchiser domain.Franchiser, name string, req domain.CreateFranchiseRequest) (domain.CreateFranchiseResponse, error) {
	var resp domain.CreateFranchiseResponse
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		franchiseSlug, err := s.nextSlug(ctx, tx, franchiser.Slug)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		inv := investmentdomain.Investment{
			ID:              s.genID.Generate(),
			TotalInvestment: req.TotalInvestment,
			TotalInvested:   decimal.Zero,
			SharesIssued:    req.SharesIssued,
			SharePrice:      req.SharePrice,
			FranchiseFee:    req.FranchiseFee,
			SetupCost:       req.SetupCost,
			WorkingCapital:  req.WorkingCapital,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.investmentRepo.Insert(ctx, tx, &inv); err != nil {
			return err
		}

		franchise := domain.Franchise{
			ID:               s.genID.Generate(),
			FranchiserID:     franchiser.ID,
			LocationID:       strings.TrimSpace(req.LocationID),
			Name:             name,
			Slug:             franchiseSlug,
			Status:           domain.StatusPending,
			Stage:            domain.StageFunding,
			InvestmentID:     inv.ID,
			FundingStartedAt: now,
			Metadata:         datatypes.JSONMap(nonNilMap(req.Metadata)),
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := s.repo.Insert(ctx, tx, &franchise); err != nil {
			return err
		}

		if err := s.investmentRepo.AttachFranchise(ctx, tx, inv.ID, franchise.ID); err != nil {
			return err
		}
		inv.FranchiseID = franchise.ID

		if _, err := s.walletSvc.OpenEscrow(ctx, tx, franchise.ID, req.EscrowAddress); err != nil {
			return err
		}
		if _, err := s.lifecycleSvc.OpenFunding(ctx, tx, franchise.ID, now); err != nil {
			return err
		}

		resp = domain.CreateFranchiseResponse{Franchise: franchise, Investment: inv}
		return nil
	})
	return resp, err
}

func (s *Service) validateInvestment(req domain.CreateFranchiseRequest) error {
	if !req.TotalInvestment.IsPositive() {
		return domain.ErrInvalidTotal
	}
	if req.FranchiseFee.IsNegative() || req.SetupCost.IsNegative() || req.WorkingCapital.IsNegative() {
		return domain.ErrNegativeComponent
	}
	sum := req.FranchiseFee.Add(req.SetupCost).Add(req.WorkingCapital)
	if sum.Sub(req.TotalInvestment).Abs().GreaterThan(s.policy.Get().Tolerance()) {
		return domain.ErrInvalidComponents.WithMessage(
			"components sum to %s but total investment is %s", sum.StringFixed(2), req.TotalInvestment.StringFixed(2))
	}
	if req.SharesIssued < 0 {
		return domain.ErrInvalidShares
	}
	if !req.SharePrice.IsPositive() {
		return domain.ErrInvalidSharePrice
	}
	return nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (domain.Franchise, error) {
	franchise, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Franchise{}, err
	}
	if franchise == nil {
		return domain.Franchise{}, domain.ErrFranchiseNotFound
	}
	return *franchise, nil
}

func (s *Service) GetBySlug(ctx context.Context, franchiseSlug string) (domain.Franchise, error) {
	franchiseSlug = strings.TrimSpace(franchiseSlug)
	if franchiseSlug == "" {
		return domain.Franchise{}, domain.ErrInvalidSlug
	}
	franchise, err := s.repo.FindBySlug(ctx, s.db, franchiseSlug)
	if err != nil {
		return domain.Franchise{}, err
	}
	if franchise == nil {
		return domain.Franchise{}, domain.ErrFranchiseNotFound
	}
	return *franchise, nil
}

func (s *Service) List(ctx context.Context, req domain.ListFranchiseRequest) (domain.ListFranchiseResponse, error) {
	if req.Stage != "" && !req.Stage.Valid() {
		return domain.ListFranchiseResponse{}, domain.ErrInvalidStage
	}
	if req.Status != "" && !req.Status.Valid() {
		return domain.ListFranchiseResponse{}, domain.ErrInvalidStatus
	}

	filter := domain.ListFranchiseFilter{
		FranchiserID: req.FranchiserID,
		Stage:        req.Stage,
		Status:       req.Status,
	}
	page := pagination.Pagination{PageToken: req.PageToken, PageSize: int(req.PageSize)}
	items, err := s.repo.List(ctx, s.db, filter, page)
	if err != nil {
		return domain.ListFranchiseResponse{}, err
	}

	items, pageInfo := pagination.Paginate(items, page.PageSize, func(f *domain.Franchise) (string, time.Time) {
		return f.ID.String(), f.CreatedAt
	})
	franchises := make([]domain.Franchise, 0, len(items))
	for _, f := range items {
		franchises = append(franchises, *f)
	}
	return domain.ListFranchiseResponse{PageInfo: pageInfo, Franchises: franchises}, nil
}

// UpdateStatus changes the administrative status only; the stage is owned by
// the lifecycle.
func (s *Service) UpdateStatus(ctx context.Context, id snowflake.ID, status domain.Status) (domain.Franchise, error) {
	if !status.Valid() {
		return domain.Franchise{}, domain.ErrInvalidStatus
	}
	rows, err := s.repo.UpdateStatus(ctx, s.db, id, status, s.clock.Now())
	if err != nil {
		return domain.Franchise{}, err
	}
	if rows == 0 {
		return domain.Franchise{}, domain.ErrFranchiseNotFound
	}
	return s.GetByID(ctx, id)
}

func (s *Service) NextSlug(ctx context.Context, franchiserSlug string) (string, error) {
	return s.nextSlug(ctx, s.db, franchiserSlug)
}

// nextSlug numbers franchises of a brand as <brand>-01, <brand>-02 and so on.
func (s *Service) nextSlug(ctx context.Context, db *gorm.DB, franchiserSlug string) (string, error) {
	base := slug.Make(strings.TrimSpace(franchiserSlug))
	if base == "" {
		return "", domain.ErrInvalidSlug
	}

	prefix := base + "-"
	existing, err := s.repo.ListSlugsWithPrefix(ctx, db, prefix)
	if err != nil {
		return "", err
	}

	highest := 0
	for _, candidate := range existing {
		suffix := strings.TrimPrefix(candidate, prefix)
		n, err := strconv.Atoi(suffix)
		if err != nil || n <= 0 || strings.HasPrefix(suffix, "+") {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	return fmt.Sprintf("%s%02d", prefix, highest+1), nil
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

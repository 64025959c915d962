package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/franchisefund/internal/apperror"
	"github.com/smallbiznis/franchisefund/internal/clock"
	"github.com/smallbiznis/franchisefund/internal/config"
	distributiondomain "github.com/smallbiznis/franchisefund/internal/distribution/domain"
	franchisedomain "github.com/smallbiznis/franchisefund/internal/franchise/domain"
	investmentdomain "github.com/smallbiznis/franchisefund/internal/investment/domain"
	"github.com/smallbiznis/franchisefund/internal/lifecycle/domain"
	"github.com/smallbiznis/franchisefund/internal/lifecycle/guard"
	"github.com/smallbiznis/franchisefund/internal/lock"
	obsmetrics "github.com/smallbiznis/franchisefund/internal/observability/metrics"
	walletdomain "github.com/smallbiznis/franchisefund/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	GenID           *snowflake.Node
	Repo            domain.Repository
	FranchiseRepo   franchisedomain.Repository
	InvestmentSvc   investmentdomain.Service
	WalletSvc       walletdomain.Service
	DistributionSvc distributiondomain.Service
	Locker          lock.Locker
	Clock           clock.Clock
	Policy          *config.FundingPolicyHolder `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics         `optional:"true"`
}

type Service struct {
	db              *gorm.DB
	log             *zap.Logger
	genID           *snowflake.Node
	repo            domain.Repository
	franchiseRepo   franchisedomain.Repository
	investmentSvc   investmentdomain.Service
	walletSvc       walletdomain.Service
	distributionSvc distributiondomain.Service
	locker          lock.Locker
	clock           clock.Clock
	policy          *config.FundingPolicyHolder
	obsMetrics      *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:              p.DB,
		log:             p.Log.Named("lifecycle.service"),
		genID:           p.GenID,
		repo:            p.Repo,
		franchiseRepo:   p.FranchiseRepo,
		investmentSvc:   p.InvestmentSvc,
		walletSvc:       p.WalletSvc,
		distributionSvc: p.DistributionSvc,
		locker:          p.Locker,
		clock:           p.Clock,
		policy:          p.Policy,
		obsMetrics:      p.ObsMetrics,
	}
}

func (s *Service) OpenFunding(ctx context.Context, tx *gorm.DB, franchiseID snowflake.ID, at time.Time) (domain.StageRecord, error) {
	record := s.newRecord(franchiseID, franchisedomain.StageFunding, domain.SubStageRaising, domain.ProgressFundingStart, "", at)
	if err := s.repo.InsertStage(ctx, tx, &record); err != nil {
		return domain.StageRecord{}, err
	}
	return record, nil
}

func (s *Service) EvaluateFunding(ctx context.Context, franchiseID snowflake.ID) (bool, error) {
	unlock, err := s.locker.Lock(ctx, lock.FranchiseKey(franchiseID))
	if err != nil {
		return false, err
	}
	defer unlock()

	var (
		transitioned bool
		result       distributiondomain.Result
	)
	err = apperror.RetryOnConflict(ctx, s.policy.Get().ConflictRetries, func(ctx context.Context) error {
		transitioned = false
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			franchise, err := s.loadFranchise(ctx, tx, franchiseID)
			if err != nil {
				return err
			}
			if franchise.Stage != franchisedomain.StageFunding {
				return nil
			}

			inv, err := s.investmentSvc.Load(ctx, tx, franchiseID)
			if err != nil {
				return err
			}
			if !inv.IsFullyFunded() {
				return nil
			}

			now := s.clock.Now()
			rows, err := s.franchiseRepo.AdvanceStage(ctx, tx, franchiseID, franchisedomain.StageFunding, franchisedomain.StageLaunching, now)
			if err != nil {
				return err
			}
			if rows == 0 {
				return nil
			}

			result, err = s.distributionSvc.Distribute(ctx, tx, franchise, inv)
			if err != nil {
				return err
			}

			if _, err := s.enterStage(ctx, tx, franchiseID, franchisedomain.StageLaunching, domain.SubStageCreatingPDA, domain.ProgressLaunching, "Funding target reached", now); err != nil {
				return err
			}

			days := s.policy.Get().LaunchTimelineDays
			timeline := domain.LaunchTimeline{
				ID:               s.genID.Generate(),
				FranchiseID:      franchiseID,
				StartedAt:        now,
				TargetLaunchDate: now.AddDate(0, 0, days),
				CreatedAt:        now,
				UpdatedAt:        now,
			}
			if _, err := s.repo.InsertTimeline(ctx, tx, &timeline); err != nil {
				return err
			}

			transitioned = true
			return nil
		})
	})
	if err != nil {
		s.obsMetrics.RecordDistribution(ctx, "failed")
		if apperror.IsConcurrencyConflict(err) {
			s.obsMetrics.RecordConflict(ctx, "evaluate_funding")
		}
		s.log.Error("funding transition failed",
			zap.String("franchise_id", franchiseID.String()),
			zap.Error(err),
		)
		return false, err
	}
	if !transitioned {
		return false, nil
	}

	s.obsMetrics.RecordDistribution(ctx, "succeeded")
	s.obsMetrics.RecordStageTransition(ctx, string(franchisedomain.StageFunding), string(franchisedomain.StageLaunching))
	s.log.Info("franchise moved to launching",
		zap.String("franchise_id", franchiseID.String()),
		zap.String("operating_wallet_id", result.OperatingWallet.ID.String()),
		zap.String("exchange_rate", result.ExchangeRate.String()),
	)
	return true, nil
}

func (s *Service) MarkOngoing(ctx context.Context, franchiseID snowflake.ID, notes string) (domain.StageRecord, error) {
	unlock, err := s.locker.Lock(ctx, lock.FranchiseKey(franchiseID))
	if err != nil {
		return domain.StageRecord{}, err
	}
	defer unlock()

	var record domain.StageRecord
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		franchise, err := s.loadFranchise(ctx, tx, franchiseID)
		if err != nil {
			return err
		}
		if err := guard.EnsureStage(franchise.Stage, franchisedomain.StageLaunching); err != nil {
			return err
		}
		if err := guard.EnsureCanTransition(franchise.Stage, franchisedomain.StageOngoing); err != nil {
			return err
		}

		now := s.clock.Now()
		rows, err := s.franchiseRepo.AdvanceStage(ctx, tx, franchiseID, franchisedomain.StageLaunching, franchisedomain.StageOngoing, now)
		if err != nil {
			return err
		}
		if rows == 0 {
			return apperror.ErrConcurrencyConflict.WithMessage("franchise %s changed stage concurrently", franchiseID)
		}

		record, err = s.enterStage(ctx, tx, franchiseID, franchisedomain.StageOngoing, domain.SubStageOperational, domain.ProgressOngoing, notes, now)
		if err != nil {
			return err
		}
		_, err = s.repo.MarkLaunched(ctx, tx, franchiseID, now)
		return err
	})
	if err != nil {
		return domain.StageRecord{}, err
	}

	s.obsMetrics.RecordStageTransition(ctx, string(franchisedomain.StageLaunching), string(franchisedomain.StageOngoing))
	s.log.Info("franchise moved to ongoing", zap.String("franchise_id", franchiseID.String()))
	return record, nil
}

func (s *Service) CheckClosure(ctx context.Context, franchiseID snowflake.ID) (bool, error) {
	unlock, err := s.locker.Lock(ctx, lock.FranchiseKey(franchiseID))
	if err != nil {
		return false, err
	}
	defer unlock()

	var (
		closed bool
		from   franchisedomain.Stage
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		franchise, err := s.loadFranchise(ctx, tx, franchiseID)
		if err != nil {
			return err
		}
		if franchise.Stage == franchisedomain.StageClosed {
			return nil
		}
		from = franchise.Stage

		operating, err := s.walletSvc.FindOperating(ctx, tx, franchiseID)
		if err != nil {
			return err
		}
		if operating == nil || !operating.IsActive() || operating.USDBalance.IsPositive() {
			return nil
		}
		if err := guard.EnsureCanTransition(franchise.Stage, franchisedomain.StageClosed); err != nil {
			return err
		}

		now := s.clock.Now()
		rows, err := s.franchiseRepo.Close(ctx, tx, franchiseID, now)
		if err != nil {
			return err
		}
		if rows == 0 {
			return nil
		}
		if _, err := s.enterStage(ctx, tx, franchiseID, franchisedomain.StageClosed, domain.SubStageCompleted, domain.ProgressClosed, "Operating wallet depleted", now); err != nil {
			return err
		}
		closed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if closed {
		s.obsMetrics.RecordStageTransition(ctx, string(from), string(franchisedomain.StageClosed))
		s.log.Info("franchise closed", zap.String("franchise_id", franchiseID.String()), zap.String("from", string(from)))
	}
	return closed, nil
}

func (s *Service) UpdateSubStage(ctx context.Context, req domain.UpdateSubStageRequest) (domain.StageRecord, error) {
	if req.Progress != nil && (*req.Progress < 0 || *req.Progress > 100) {
		return domain.StageRecord{}, domain.ErrInvalidProgress
	}

	unlock, err := s.locker.Lock(ctx, lock.FranchiseKey(req.FranchiseID))
	if err != nil {
		return domain.StageRecord{}, err
	}
	defer unlock()

	var record domain.StageRecord
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindCurrent(ctx, tx, req.FranchiseID)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrStageNotFound
		}
		if !req.SubStage.BelongsTo(current.Stage) {
			return domain.ErrInvalidSubStage.WithMessage("sub-stage %s does not belong to stage %s", req.SubStage, current.Stage)
		}

		next := *current
		next.SubStage = req.SubStage
		if req.Progress != nil {
			next.Progress = *req.Progress
		}
		if req.Notes != "" {
			next.Notes = req.Notes
		}
		next.UpdatedAt = s.clock.Now()
		if _, err := s.repo.UpdateCurrent(ctx, tx, next); err != nil {
			return err
		}
		record = next
		return nil
	})
	if err != nil {
		return domain.StageRecord{}, err
	}
	return record, nil
}

// RecordFundingProgress patches the current funding row. Rows of later
// stages are left alone.
func (s *Service) RecordFundingProgress(ctx context.Context, tx *gorm.DB, franchiseID snowflake.ID, progress decimal.Decimal) error {
	current, err := s.repo.FindCurrent(ctx, tx, franchiseID)
	if err != nil {
		return err
	}
	if current == nil || current.Stage != franchisedomain.StageFunding {
		return nil
	}

	value := progress.InexactFloat64()
	if value > 100 {
		value = 100
	}
	if value < 0 {
		value = 0
	}
	next := *current
	next.Progress = value
	next.UpdatedAt = s.clock.Now()
	_, err = s.repo.UpdateCurrent(ctx, tx, next)
	return err
}

func (s *Service) History(ctx context.Context, franchiseID snowflake.ID) ([]domain.StageRecord, error) {
	if _, err := s.loadFranchise(ctx, s.db, franchiseID); err != nil {
		return nil, err
	}
	records, err := s.repo.ListHistory(ctx, s.db, franchiseID)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []domain.StageRecord{}
	}
	return records, nil
}

func (s *Service) Current(ctx context.Context, franchiseID snowflake.ID) (domain.StageRecord, error) {
	current, err := s.repo.FindCurrent(ctx, s.db, franchiseID)
	if err != nil {
		return domain.StageRecord{}, err
	}
	if current == nil {
		return domain.StageRecord{}, domain.ErrStageNotFound
	}
	return *current, nil
}

func (s *Service) Timeline(ctx context.Context, franchiseID snowflake.ID) (domain.LaunchTimeline, error) {
	timeline, err := s.repo.FindTimeline(ctx, s.db, franchiseID)
	if err != nil {
		return domain.LaunchTimeline{}, err
	}
	if timeline == nil {
		return domain.LaunchTimeline{}, domain.ErrTimelineNotFound
	}
	return *timeline, nil
}

func (s *Service) loadFranchise(ctx context.Context, db *gorm.DB, franchiseID snowflake.ID) (franchisedomain.Franchise, error) {
	franchise, err := s.franchiseRepo.FindByID(ctx, db, franchiseID)
	if err != nil {
		return franchisedomain.Franchise{}, err
	}
	if franchise == nil {
		return franchisedomain.Franchise{}, franchisedomain.ErrFranchiseNotFound
	}
	return *franchise, nil
}

// enterStage closes the current row and appends the row for stage.
func (s *Service) enterStage(ctx context.Context, tx *gorm.DB, franchiseID snowflake.ID, stage franchisedomain.Stage, subStage domain.SubStage, progress float64, notes string, at time.Time) (domain.StageRecord, error) {
	if _, err := s.repo.CloseCurrent(ctx, tx, franchiseID, at); err != nil {
		return domain.StageRecord{}, err
	}
	record := s.newRecord(franchiseID, stage, subStage, progress, notes, at)
	if err := s.repo.InsertStage(ctx, tx, &record); err != nil {
		return domain.StageRecord{}, err
	}
	return record, nil
}

func (s *Service) newRecord(franchiseID snowflake.ID, stage franchisedomain.Stage, subStage domain.SubStage, progress float64, notes string, at time.Time) domain.StageRecord {
	return domain.StageRecord{
		ID:          s.genID.Generate(),
		FranchiseID: franchiseID,
		Stage:       stage,
		SubStage:    subStage,
		Progress:    progress,
		Notes:       notes,
		IsCurrent:   true,
		StartedAt:   at,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
}

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/franchisefund/internal/clock"
	"github.com/smallbiznis/franchisefund/internal/config"
	franchisedomain "github.com/smallbiznis/franchisefund/internal/franchise/domain"
	investmentdomain "github.com/smallbiznis/franchisefund/internal/investment/domain"
	lifecycledomain "github.com/smallbiznis/franchisefund/internal/lifecycle/domain"
	obsmetrics "github.com/smallbiznis/franchisefund/internal/observability/metrics"
	sharedomain "github.com/smallbiznis/franchisefund/internal/share/domain"
	tokendomain "github.com/smallbiznis/franchisefund/internal/token/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("scheduler: missing dependency")

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	FranchiseRepo franchisedomain.Repository
	InvestmentSvc investmentdomain.Service
	LifecycleSvc  lifecycledomain.Service
	ShareSvc      sharedomain.Service
	TokenSvc      tokendomain.Service
	Policy        *config.FundingPolicyHolder `optional:"true"`
	Config        Config                      `optional:"true"`
}

// Scheduler drives the time-based parts of the funding lifecycle: funding
// transitions missed after a purchase, refunds of lapsed rounds, closure of
// depleted franchises and redelivery of token operations.
type Scheduler struct {
	db            *gorm.DB
	log           *zap.Logger
	cfg           Config
	genID         *snowflake.Node
	clock         clock.Clock
	franchiseRepo franchisedomain.Repository
	investmentSvc investmentdomain.Service
	lifecycleSvc  lifecycledomain.Service
	shareSvc      sharedomain.Service
	tokenSvc      tokendomain.Service
	policy        *config.FundingPolicyHolder
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil || p.FranchiseRepo == nil ||
		p.InvestmentSvc == nil || p.LifecycleSvc == nil || p.ShareSvc == nil || p.TokenSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:            p.DB,
		log:           p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:           p.Config.withDefaults(),
		genID:         p.GenID,
		clock:         p.Clock,
		franchiseRepo: p.FranchiseRepo,
		investmentSvc: p.InvestmentSvc,
		lifecycleSvc:  p.LifecycleSvc,
		shareSvc:      p.ShareSvc,
		tokenSvc:      p.TokenSvc,
		policy:        p.Policy,
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
		s.logger(ctx).Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	jobs := []struct {
		name string
		run  func(context.Context) error
	}{
		{JobFundingSweep, s.FundingSweepJob},
		{JobRefundExpiry, s.RefundExpiryJob},
		{JobWalletClosure, s.WalletClosureJob},
		{JobTokenDispatch, s.TokenDispatchJob},
	}

	var err error
	for _, job := range jobs {
		if !s.cfg.jobEnabled(job.name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.name, s.cfg.JobTimeout, job.run))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := time.Now()
	schedMetrics := obsmetrics.Scheduler()

	for {
		if lag := time.Since(nextRun); lag > 0 {
			schedMetrics.ObserveRunLoopLag(lag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// FundingSweepJob completes funding -> launching for rounds whose purchase
// path did not finish the transition.
func (s *Scheduler) FundingSweepJob(ctx context.Context) error {
	return s.eachFranchise(ctx, JobFundingSweep, []franchisedomain.Stage{franchisedomain.StageFunding}, func(ctx context.Context, f franchisedomain.Franchise) (bool, error) {
		progress, err := s.investmentSvc.FundingProgress(ctx, f.ID)
		if err != nil {
			return false, err
		}
		if !progress.FullyFunded {
			return false, nil
		}
		return s.lifecycleSvc.EvaluateFunding(ctx, f.ID)
	})
}

// RefundExpiryJob refunds every confirmed share of rounds that stayed below
// target past the expiry window.
func (s *Scheduler) RefundExpiryJob(ctx context.Context) error {
	days := s.policy.Get().RefundExpiryDays
	if days <= 0 {
		return nil
	}
	now := s.clock.Now()
	return s.eachFranchise(ctx, JobRefundExpiry, []franchisedomain.Stage{franchisedomain.StageFunding}, func(ctx context.Context, f franchisedomain.Franchise) (bool, error) {
		if !now.After(f.FundingStartedAt.AddDate(0, 0, days)) {
			return false, nil
		}
		result, err := s.shareSvc.ExpireFunding(ctx, f.ID)
		obsmetrics.Scheduler().AddBatchProcessed(JobRefundExpiry, "share", result.Refunded)
		return result.Refunded > 0, err
	})
}

// WalletClosureJob closes franchises whose operating wallet is empty.
func (s *Scheduler) WalletClosureJob(ctx context.Context) error {
	stages := []franchisedomain.Stage{franchisedomain.StageLaunching, franchisedomain.StageOngoing}
	return s.eachFranchise(ctx, JobWalletClosure, stages, func(ctx context.Context, f franchisedomain.Franchise) (bool, error) {
		return s.lifecycleSvc.CheckClosure(ctx, f.ID)
	})
}

func (s *Scheduler) TokenDispatchJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobTokenDispatch, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	result, err := s.tokenSvc.DispatchPending(ctx, s.cfg.BatchSize)
	run.AddProcessed(result.Succeeded)
	for i := 0; i < result.Failed+result.Dead; i++ {
		run.IncError()
	}
	obsmetrics.Scheduler().AddBatchProcessed(JobTokenDispatch, "token_operation", result.Processed)
	return err
}

// eachFranchise walks franchises in stages by id and applies fn to each. A
// failing franchise is logged and does not stop the walk.
func (s *Scheduler) eachFranchise(
	ctx context.Context,
	job string,
	stages []franchisedomain.Stage,
	fn func(ctx context.Context, f franchisedomain.Franchise) (bool, error),
) error {
	ctx, run, owner := s.ensureJobRun(ctx, job, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	var (
		jobErr  error
		afterID snowflake.ID
	)
	for {
		if err := ctx.Err(); err != nil {
			return errors.Join(jobErr, err)
		}
		batch, err := s.franchiseRepo.ListByStage(ctx, s.db, stages, afterID, s.cfg.BatchSize)
		if err != nil {
			return errors.Join(jobErr, err)
		}
		for _, f := range batch {
			afterID = f.ID
			acted, err := fn(ctx, f)
			if err != nil {
				jobErr = errors.Join(jobErr, err)
				s.logFranchiseError(ctx, run, job, f.ID, err)
				continue
			}
			if acted {
				run.AddProcessed(1)
			}
		}
		obsmetrics.Scheduler().AddBatchProcessed(job, "franchise", len(batch))
		if len(batch) < s.cfg.BatchSize {
			return jobErr
		}
	}
}

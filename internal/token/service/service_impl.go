package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/franchisefund/internal/apperror"
	"github.com/smallbiznis/franchisefund/internal/clock"
	"github.com/smallbiznis/franchisefund/internal/config"
	obsmetrics "github.com/smallbiznis/franchisefund/internal/observability/metrics"
	"github.com/smallbiznis/franchisefund/internal/token/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	baseBackoff  = 5 * time.Second
	maxBackoff   = 10 * time.Minute
	emitTimeout  = 30 * time.Second
	maxLastError = 512
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	Client     domain.Client
	Clock      clock.Clock
	Policy     *config.FundingPolicyHolder `optional:"true"`
	ObsMetrics *obsmetrics.Metrics         `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	client     domain.Client
	clock      clock.Clock
	policy     *config.FundingPolicyHolder
	obsMetrics *obsmetrics.Metrics

	inflight sync.WaitGroup
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("token.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		client:     p.Client,
		clock:      p.Clock,
		policy:     p.Policy,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Enqueue(ctx context.Context, tx *gorm.DB, req domain.EnqueueRequest) (domain.Operation, error) {
	if req.Kind != domain.KindMint && req.Kind != domain.KindBurn {
		return domain.Operation{}, domain.ErrInvalidKind
	}
	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		return domain.Operation{}, domain.ErrInvalidKey
	}

	now := s.clock.Now()
	op := domain.Operation{
		ID:             s.genID.Generate(),
		FranchiseID:    req.FranchiseID,
		ShareID:        req.ShareID,
		InvestorID:     req.InvestorID,
		Kind:           req.Kind,
		Amount:         req.Amount,
		TotalValue:     req.TotalValue,
		Reference:      req.Reference,
		IdempotencyKey: key,
		Status:         domain.StatusPending,
		NextAttemptAt:  now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	inserted, err := s.repo.Insert(ctx, tx, &op)
	if err != nil {
		return domain.Operation{}, err
	}
	if inserted {
		return op, nil
	}

	existing, err := s.repo.FindByKey(ctx, tx, key)
	if err != nil {
		return domain.Operation{}, err
	}
	if existing == nil {
		return domain.Operation{}, domain.ErrOperationNotFound
	}
	return *existing, nil
}

func (s *Service) Emit(id snowflake.ID) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := s.Dispatch(ctx, id); err != nil {
			s.log.Warn("token operation emit failed, left for retry",
				zap.String("operation_id", id.String()),
				zap.Error(err),
			)
		}
	}()
}

// Wait blocks until every emitted operation has finished its attempt.
func (s *Service) Wait() {
	s.inflight.Wait()
}

func (s *Service) Dispatch(ctx context.Context, id snowflake.ID) error {
	op, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return err
	}
	if op == nil {
		return domain.ErrOperationNotFound
	}
	if op.Status != domain.StatusPending {
		return nil
	}
	_, err = s.attempt(ctx, *op)
	return err
}

func (s *Service) DispatchPending(ctx context.Context, limit int) (domain.DispatchResult, error) {
	ops, err := s.repo.ListDue(ctx, s.db, s.clock.Now(), limit)
	if err != nil {
		return domain.DispatchResult{}, err
	}

	var result domain.DispatchResult
	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		status, err := s.attempt(ctx, op)
		if status == "" && err == nil {
			continue
		}
		result.Processed++
		switch status {
		case domain.StatusSucceeded:
			result.Succeeded++
		case domain.StatusDead:
			result.Dead++
		default:
			result.Failed++
		}
	}
	return result, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.Operation, error) {
	op, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Operation{}, err
	}
	if op == nil {
		return domain.Operation{}, domain.ErrOperationNotFound
	}
	return *op, nil
}

// attempt claims op and calls the token service once. An empty status with a
// nil error means another dispatcher holds the claim.
func (s *Service) attempt(ctx context.Context, op domain.Operation) (domain.Status, error) {
	now := s.clock.Now()
	attempts := op.Attempts + 1
	claimed, err := s.repo.Claim(ctx, s.db, op, now.Add(backoff(attempts)), now)
	if err != nil {
		return "", err
	}
	if !claimed {
		return "", nil
	}

	callErr := s.call(ctx, op)
	now = s.clock.Now()
	if callErr == nil {
		if _, err := s.repo.MarkSucceeded(ctx, s.db, op.ID, now); err != nil {
			return "", err
		}
		return domain.StatusSucceeded, nil
	}

	reason := string(apperror.KindOf(callErr))
	if errors.Is(callErr, context.DeadlineExceeded) {
		reason = "timeout"
	}
	s.obsMetrics.RecordTokenFailure(ctx, string(op.Kind), reason)

	status := domain.StatusPending
	maxAttempts := s.policy.Get().TokenMaxAttempts
	if maxAttempts > 0 && attempts >= maxAttempts {
		status = domain.StatusDead
	}
	if _, err := s.repo.MarkFailed(ctx, s.db, op.ID, truncate(callErr.Error(), maxLastError), status, now); err != nil {
		return "", err
	}

	fields := []zap.Field{
		zap.String("operation_id", op.ID.String()),
		zap.String("franchise_id", op.FranchiseID.String()),
		zap.String("kind", string(op.Kind)),
		zap.Int("attempts", attempts),
		zap.Error(callErr),
	}
	if status == domain.StatusDead {
		s.log.Error("token operation moved to dead letter", fields...)
		s.obsMetrics.RecordTokenFailure(ctx, string(op.Kind), "dead_letter")
	} else {
		s.log.Warn("token operation failed", fields...)
	}
	return status, callErr
}

func (s *Service) call(ctx context.Context, op domain.Operation) error {
	switch op.Kind {
	case domain.KindMint:
		return s.client.Mint(ctx, domain.MintRequest{
			FranchiseID:    op.FranchiseID.String(),
			InvestorID:     op.InvestorID,
			Amount:         op.Amount,
			TotalValue:     op.TotalValue,
			Reference:      op.Reference,
			IdempotencyKey: op.IdempotencyKey,
		})
	case domain.KindBurn:
		return s.client.Burn(ctx, domain.BurnRequest{
			FranchiseID:    op.FranchiseID.String(),
			InvestorID:     op.InvestorID,
			Amount:         op.Amount,
			TotalValue:     op.TotalValue,
			Reference:      op.Reference,
			IdempotencyKey: op.IdempotencyKey,
		})
	default:
		return domain.ErrInvalidKind
	}
}

func backoff(attempt int) time.Duration {
	if attempt <= 1 {
		return baseBackoff
	}
	d := baseBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/franchisefund/internal/clock"
	"github.com/smallbiznis/franchisefund/internal/investment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Repo  domain.Repository
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	clock clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("investment.service"),
		repo:  p.Repo,
		clock: p.Clock,
	}
}

func (s *Service) GetByFranchiseID(ctx context.Context, franchiseID snowflake.ID) (domain.Investment, error) {
	return s.Load(ctx, s.db, franchiseID)
}

func (s *Service) FundingProgress(ctx context.Context, franchiseID snowflake.ID) (domain.FundingProgress, error) {
	inv, err := s.Load(ctx, s.db, franchiseID)
	if err != nil {
		return domain.FundingProgress{}, err
	}
	return inv.FundingProgress(), nil
}

func (s *Service) Load(ctx context.Context, tx *gorm.DB, franchiseID snowflake.ID) (domain.Investment, error) {
	inv, err := s.repo.FindByFranchiseID(ctx, tx, franchiseID)
	if err != nil {
		return domain.Investment{}, err
	}
	if inv == nil {
		return domain.Investment{}, domain.ErrInvestmentNotFound
	}
	return *inv, nil
}

func (s *Service) RecordPurchase(ctx context.Context, tx *gorm.DB, inv domain.Investment, amount decimal.Decimal, shares int64) (domain.Investment, error) {
	if !amount.IsPositive() {
		return domain.Investment{}, domain.ErrInvalidAmount
	}
	if shares <= 0 {
		return domain.Investment{}, domain.ErrInvalidShares
	}

	next := inv
	next.TotalInvested = inv.TotalInvested.Add(amount)
	next.SharesPurchased = inv.SharesPurchased + shares
	return s.write(ctx, tx, next)
}

// RecordRefund subtracts with a zero floor on both totals.
func (s *Service) RecordRefund(ctx context.Context, tx *gorm.DB, inv domain.Investment, amount decimal.Decimal, shares int64) (domain.Investment, error) {
	if amount.IsNegative() {
		return domain.Investment{}, domain.ErrInvalidAmount
	}
	if shares < 0 {
		return domain.Investment{}, domain.ErrInvalidShares
	}

	next := inv
	next.TotalInvested = decimal.Max(decimal.Zero, inv.TotalInvested.Sub(amount))
	next.SharesPurchased = max(0, inv.SharesPurchased-shares)
	if amount.GreaterThan(inv.TotalInvested) {
		s.log.Warn("refund exceeds invested total, clamped to zero",
			zap.String("investment_id", inv.ID.String()),
			zap.String("total_invested", inv.TotalInvested.String()),
			zap.String("refund_amount", amount.String()),
		)
	}
	return s.write(ctx, tx, next)
}

func (s *Service) write(ctx context.Context, tx *gorm.DB, next domain.Investment) (domain.Investment, error) {
	next.UpdatedAt = s.clock.Now()
	ok, err := s.repo.UpdateTotals(ctx, tx, next)
	if err != nil {
		return domain.Investment{}, err
	}
	if !ok {
		return domain.Investment{}, domain.ErrVersionConflict
	}
	next.Version++
	return next, nil
}

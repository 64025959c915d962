package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/franchisefund/internal/apperror"
	"gorm.io/gorm"
)

// Service is the investment ledger. Mutations take the transaction they run
// in; none of them starts a stage transition.
type Service interface {
	GetByFranchiseID(ctx context.Context, franchiseID snowflake.ID) (Investment, error)
	FundingProgress(ctx context.Context, franchiseID snowflake.ID) (FundingProgress, error)
	Load(ctx context.Context, tx *gorm.DB, franchiseID snowflake.ID) (Investment, error)
	RecordPurchase(ctx context.Context, tx *gorm.DB, inv Investment, amount decimal.Decimal, shares int64) (Investment, error)
	RecordRefund(ctx context.Context, tx *gorm.DB, inv Investment, amount decimal.Decimal, shares int64) (Investment, error)
}

var (
	ErrInvestmentNotFound = apperror.NotFound("investment_not_found", "investment not found")
	ErrVersionConflict    = apperror.ConcurrencyConflict("investment_version_conflict", "investment was modified concurrently")
	ErrInvalidAmount      = apperror.Validation("invalid_amount", "amount must be positive")
	ErrInvalidShares      = apperror.Validation("invalid_shares", "shares must be positive")
)

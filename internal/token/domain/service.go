package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/franchisefund/internal/apperror"
	"gorm.io/gorm"
)

type MintRequest struct {
	FranchiseID    string          `json:"franchise_id"`
	InvestorID     string          `json:"investor_id"`
	Amount         int64           `json:"amount"`
	TotalValue     decimal.Decimal `json:"total_value"`
	Reference      string          `json:"reference,omitempty"`
	IdempotencyKey string          `json:"-"`
}

type BurnRequest struct {
	FranchiseID    string          `json:"franchise_id"`
	InvestorID     string          `json:"investor_id"`
	Amount         int64           `json:"amount"`
	TotalValue     decimal.Decimal `json:"total_value"`
	Reference      string          `json:"reference,omitempty"`
	IdempotencyKey string          `json:"-"`
}

// Client is the external share token service.
type Client interface {
	Mint(ctx context.Context, req MintRequest) error
	Burn(ctx context.Context, req BurnRequest) error
}

type EnqueueRequest struct {
	FranchiseID    snowflake.ID
	ShareID        snowflake.ID
	InvestorID     string
	Kind           Kind
	Amount         int64
	TotalValue     decimal.Decimal
	Reference      string
	IdempotencyKey string
}

type DispatchResult struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Dead      int `json:"dead"`
}

type Service interface {
	// Enqueue writes the operation inside the caller's transaction. A repeated
	// idempotency key returns the stored operation.
	Enqueue(ctx context.Context, tx *gorm.DB, req EnqueueRequest) (Operation, error)
	// Emit delivers the operation in the background. Failures are logged and
	// left for DispatchPending.
	Emit(id snowflake.ID)
	Dispatch(ctx context.Context, id snowflake.ID) error
	DispatchPending(ctx context.Context, limit int) (DispatchResult, error)
	Get(ctx context.Context, id snowflake.ID) (Operation, error)
}

var (
	ErrOperationNotFound = apperror.NotFound("token_operation_not_found", "token operation not found")
	ErrInvalidKind       = apperror.Validation("invalid_token_kind", "token operation kind must be mint or burn")
	ErrInvalidKey        = apperror.Validation("invalid_idempotency_key", "token operation requires an idempotency key")
)

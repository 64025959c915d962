package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/franchisefund/internal/apperror"
	franchisedomain "github.com/smallbiznis/franchisefund/internal/franchise/domain"
	investmentdomain "github.com/smallbiznis/franchisefund/internal/investment/domain"
	"github.com/smallbiznis/franchisefund/pkg/db/pagination"
)

type PurchaseRequest struct {
	FranchiseID    snowflake.ID
	InvestorID     string
	Shares         int64
	PricePerShare  decimal.Decimal
	TotalAmount    decimal.Decimal
	ExternalRef    string
	IdempotencyKey string
}

type PurchaseResult struct {
	Share      FranchiseShare              `json:"share"`
	Investment investmentdomain.Investment `json:"investment"`
	Replayed   bool                        `json:"replayed"`
	StageAfter franchisedomain.Stage       `json:"stage_after"`
}

type RefundReason string

const (
	RefundReasonRequested RefundReason = "requested"
	RefundReasonExpired   RefundReason = "expired"
)

type RefundRequest struct {
	ShareID        snowflake.ID
	ExternalRef    string
	IdempotencyKey string
	Reason         RefundReason
}

type RefundResult struct {
	Share      FranchiseShare              `json:"share"`
	Investment investmentdomain.Investment `json:"investment"`
	Replayed   bool                        `json:"replayed"`
}

type ExpireResult struct {
	Refunded int `json:"refunded"`
	Failed   int `json:"failed"`
}

type ListSharesRequest struct {
	PageToken string
	PageSize  int32
}

type ListSharesResponse struct {
	pagination.PageInfo
	Shares []ShareView `json:"shares"`
}

type Service interface {
	Purchase(ctx context.Context, req PurchaseRequest) (PurchaseResult, error)
	PurchaseBySlug(ctx context.Context, slug string, req PurchaseRequest) (PurchaseResult, error)
	Refund(ctx context.Context, req RefundRequest) (RefundResult, error)
	// ExpireFunding refunds every confirmed share of a franchise whose funding
	// window has lapsed below target.
	ExpireFunding(ctx context.Context, franchiseID snowflake.ID) (ExpireResult, error)

	Get(ctx context.Context, id snowflake.ID) (ShareView, error)
	ListByFranchise(ctx context.Context, franchiseID snowflake.ID, req ListSharesRequest) (ListSharesResponse, error)
	ListByInvestor(ctx context.Context, investorID string, req ListSharesRequest) (ListSharesResponse, error)
}

var (
	ErrShareNotFound      = apperror.NotFound("share_not_found", "share not found")
	ErrInvalidShares      = apperror.Validation("invalid_shares", "shares must be positive")
	ErrInvalidAmount      = apperror.Validation("invalid_amount", "total amount must be positive")
	ErrInvalidPrice       = apperror.Validation("invalid_price_per_share", "price per share cannot be negative")
	ErrInvalidInvestor    = apperror.Validation("invalid_investor", "investor is required")
	ErrOversell           = apperror.Validation("oversell", "purchase exceeds the remaining investment")
	ErrFundingClosed      = apperror.InvalidState("funding_closed", "franchise is no longer raising funds")
	ErrAlreadyRefunded    = apperror.InvalidState("share_already_refunded", "share is already refunded")
	ErrRefundNotAllowed   = apperror.InvalidState("refund_not_allowed", "funds have been distributed and can no longer be refunded")
	ErrIdempotencyReplay  = apperror.ConcurrencyConflict("idempotency_key_in_flight", "a request with this idempotency key is being processed")
	ErrIdempotencyMisused = apperror.Validation("idempotency_key_reused", "idempotency key was used for a different franchise")
)

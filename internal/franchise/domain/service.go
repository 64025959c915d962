package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/franchisefund/internal/apperror"
	investmentdomain "github.com/smallbiznis/franchisefund/internal/investment/domain"
	"github.com/smallbiznis/franchisefund/pkg/db/pagination"
)

type CreateFranchiserRequest struct {
	Name     string
	Metadata map[string]any
}

type CreateFranchiseRequest struct {
	FranchiserID    snowflake.ID
	LocationID      string
	Name            string
	EscrowAddress   string
	TotalInvestment decimal.Decimal
	FranchiseFee    decimal.Decimal
	SetupCost       decimal.Decimal
	WorkingCapital  decimal.Decimal
	SharesIssued    int64
	SharePrice      decimal.Decimal
	Metadata        map[string]any
}

type CreateFranchiseResponse struct {
	Franchise  Franchise                   `json:"franchise"`
	Investment investmentdomain.Investment `json:"investment"`
}

type ListFranchiseRequest struct {
	PageToken    string
	PageSize     int32
	FranchiserID *snowflake.ID
	Stage        Stage
	Status       Status
}

type ListFranchiseFilter struct {
	FranchiserID *snowflake.ID
	Stage        Stage
	Status       Status
}

type ListFranchiseResponse struct {
	pagination.PageInfo
	Franchises []Franchise `json:"franchises"`
}

type Service interface {
	CreateFranchiser(ctx context.Context, req CreateFranchiserRequest) (Franchiser, error)
	GetFranchiser(ctx context.Context, id snowflake.ID) (Franchiser, error)
	CreateFranchise(ctx context.Context, req CreateFranchiseRequest) (CreateFranchiseResponse, error)
	GetByID(ctx context.Context, id snowflake.ID) (Franchise, error)
	GetBySlug(ctx context.Context, slug string) (Franchise, error)
	List(ctx context.Context, req ListFranchiseRequest) (ListFranchiseResponse, error)
	UpdateStatus(ctx context.Context, id snowflake.ID, status Status) (Franchise, error)
	NextSlug(ctx context.Context, franchiserSlug string) (string, error)
}

var (
	ErrFranchiseNotFound  = apperror.NotFound("franchise_not_found", "franchise not found")
	ErrFranchiserNotFound = apperror.NotFound("franchiser_not_found", "franchiser not found")
	ErrInvalidName        = apperror.Validation("invalid_name", "name is required")
	ErrInvalidFranchiser  = apperror.Validation("invalid_franchiser", "franchiser is required")
	ErrInvalidTotal       = apperror.Validation("invalid_total_investment", "total investment must be positive")
	ErrInvalidComponents  = apperror.Validation("invalid_investment_components", "franchise fee, setup cost and working capital must sum to the total investment")
	ErrNegativeComponent  = apperror.Validation("invalid_investment_component", "investment components cannot be negative")
	ErrInvalidShares      = apperror.Validation("invalid_shares_issued", "shares issued cannot be negative")
	ErrInvalidSharePrice  = apperror.Validation("invalid_share_price", "share price must be positive")
	ErrInvalidStatus      = apperror.Validation("invalid_status", "unknown franchise status")
	ErrInvalidSlug        = apperror.Validation("invalid_slug", "slug is required")
	ErrInvalidStage       = apperror.Validation("invalid_stage", "unknown franchise stage")
	ErrSlugTaken          = apperror.InvalidState("slug_taken", "slug is already taken")
)

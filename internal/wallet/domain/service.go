package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/franchisefund/internal/apperror"
	"github.com/smallbiznis/franchisefund/pkg/db/pagination"
	"gorm.io/gorm"
)

type CreateOperatingRequest struct {
	FranchiseID  snowflake.ID
	Address      string
	USDAmount    decimal.Decimal
	ExchangeRate decimal.Decimal
}

// MovementRequest credits or debits an operating wallet in USD.
type MovementRequest struct {
	WalletID       snowflake.ID
	Amount         decimal.Decimal
	Description    string
	Reference      string
	IdempotencyKey string
}

type AppendTransactionRequest struct {
	Wallet         FranchiseWallet
	Direction      Direction
	Amount         decimal.Decimal
	Description    string
	Reference      string
	IdempotencyKey string
}

type BrandCreditRequest struct {
	FranchiserID   snowflake.ID
	FranchiseID    snowflake.ID
	Category       BrandCategory
	Amount         decimal.Decimal
	Description    string
	Reference      string
	IdempotencyKey string
}

type ListTransactionsRequest struct {
	PageToken string
	PageSize  int32
}

type ListWalletTransactionsResponse struct {
	pagination.PageInfo
	Transactions []WalletTransaction `json:"transactions"`
}

type ListBrandTransactionsResponse struct {
	pagination.PageInfo
	Transactions []BrandTransaction `json:"transactions"`
}

type BrandTreasury struct {
	FranchiserID snowflake.ID    `json:"franchiser_id"`
	Balance      decimal.Decimal `json:"balance"`
}

// Service is the wallet ledger. Methods taking a tx compose into a caller's
// transaction; Credit and Debit run their own.
type Service interface {
	OpenEscrow(ctx context.Context, tx *gorm.DB, franchiseID snowflake.ID, address string) (FranchiseWallet, error)
	FindActiveEscrow(ctx context.Context, tx *gorm.DB, franchiseID snowflake.ID) (FranchiseWallet, error)
	FindOperating(ctx context.Context, tx *gorm.DB, franchiseID snowflake.ID) (*FranchiseWallet, error)
	CreateOperating(ctx context.Context, tx *gorm.DB, req CreateOperatingRequest) (FranchiseWallet, bool, error)
	Deactivate(ctx context.Context, tx *gorm.DB, walletID snowflake.ID) error
	AppendTransaction(ctx context.Context, tx *gorm.DB, req AppendTransactionRequest) (WalletTransaction, bool, error)
	CreditBrand(ctx context.Context, tx *gorm.DB, req BrandCreditRequest) (BrandTransaction, bool, error)

	Credit(ctx context.Context, req MovementRequest) (WalletTransaction, error)
	Debit(ctx context.Context, req MovementRequest) (WalletTransaction, error)

	Balance(ctx context.Context, walletID snowflake.ID) (FranchiseWallet, error)
	ListWallets(ctx context.Context, franchiseID snowflake.ID) ([]FranchiseWallet, error)
	ListTransactions(ctx context.Context, walletID snowflake.ID, req ListTransactionsRequest) (ListWalletTransactionsResponse, error)
	BrandBalance(ctx context.Context, franchiserID snowflake.ID) (BrandTreasury, error)
	ListBrandTransactions(ctx context.Context, franchiserID snowflake.ID, req ListTransactionsRequest) (ListBrandTransactionsResponse, error)
}

var (
	ErrWalletNotFound       = apperror.NotFound("wallet_not_found", "wallet not found")
	ErrEscrowNotFound       = apperror.NotFound("escrow_wallet_not_found", "no active escrow wallet for franchise")
	ErrWalletInactive       = apperror.InvalidState("wallet_inactive", "wallet is inactive")
	ErrNotOperatingWallet   = apperror.InvalidState("wallet_not_operating", "only operating wallets accept manual movements")
	ErrInsufficientFunds    = apperror.Validation("insufficient_funds", "debit exceeds wallet balance")
	ErrInvalidAmount        = apperror.Validation("invalid_amount", "amount must be positive")
	ErrInvalidExchangeRate  = apperror.Validation("invalid_exchange_rate", "exchange rate must be positive")
	ErrWalletVersionChanged = apperror.ConcurrencyConflict("wallet_version_conflict", "wallet was modified concurrently")
)

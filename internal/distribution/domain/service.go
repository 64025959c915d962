package domain

import (
	"context"

	"github.com/shopspring/decimal"
	franchisedomain "github.com/smallbiznis/franchisefund/internal/franchise/domain"
	investmentdomain "github.com/smallbiznis/franchisefund/internal/investment/domain"
	walletdomain "github.com/smallbiznis/franchisefund/internal/wallet/domain"
	"gorm.io/gorm"
)

// Result describes the ledger writes of one distribution.
type Result struct {
	OperatingWallet   walletdomain.FranchiseWallet   `json:"operating_wallet"`
	WorkingCapitalTxn walletdomain.WalletTransaction `json:"working_capital_transaction"`
	FranchiseFeeTxn   walletdomain.BrandTransaction  `json:"franchise_fee_transaction"`
	SetupCostTxn      walletdomain.BrandTransaction  `json:"setup_cost_transaction"`
	EscrowWalletID    string                         `json:"escrow_wallet_id"`
	ExchangeRate      decimal.Decimal                `json:"exchange_rate"`
	RateSource        string                         `json:"rate_source"`
	Balanced          bool                           `json:"balanced"`
	// Replayed is set when every ledger write already existed.
	Replayed bool `json:"replayed"`
}

// Service splits a fully funded investment into the brand treasury and the
// franchise operating wallet. It runs inside the caller's transaction.
type Service interface {
	Distribute(ctx context.Context, tx *gorm.DB, franchise franchisedomain.Franchise, inv investmentdomain.Investment) (Result, error)
}

// Keys return the idempotency keys used for each distribution write.
func WorkingCapitalKey(franchiseID string) string {
	return "distribution:" + franchiseID + ":working_capital"
}

func FranchiseFeeKey(franchiseID string) string {
	return "distribution:" + franchiseID + ":franchise_fee"
}

func SetupCostKey(franchiseID string) string {
	return "distribution:" + franchiseID + ":setup_cost"
}

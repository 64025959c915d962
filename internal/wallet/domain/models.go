package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type WalletKind string

const (
	WalletKindEscrow    WalletKind = "escrow"
	WalletKindOperating WalletKind = "operating"
)

type WalletStatus string

const (
	WalletStatusActive   WalletStatus = "active"
	WalletStatusInactive WalletStatus = "inactive"
)

type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

type BrandCategory string

const (
	BrandCategoryFranchiseFee BrandCategory = "franchise_fee"
	BrandCategorySetupCost    BrandCategory = "setup_cost"
	BrandCategoryAdjustment   BrandCategory = "adjustment"
)

// FranchiseWallet holds a franchise's funds. Balance is in native units,
// USDBalance in dollars; ExchangeRate is the USD per native unit used when
// the wallet was funded.
type FranchiseWallet struct {
	ID            snowflake.ID    `gorm:"primaryKey" json:"id"`
	FranchiseID   snowflake.ID    `gorm:"not null;uniqueIndex:ux_franchise_wallets_kind,priority:1" json:"franchise_id"`
	Kind          WalletKind      `gorm:"type:varchar(16);not null;uniqueIndex:ux_franchise_wallets_kind,priority:2" json:"kind"`
	Address       string          `json:"address,omitempty"`
	Balance       decimal.Decimal `gorm:"type:numeric(30,9);not null" json:"balance"`
	USDBalance    decimal.Decimal `gorm:"column:usd_balance;type:numeric(20,2);not null" json:"usd_balance"`
	ExchangeRate  decimal.Decimal `gorm:"type:numeric(30,9);not null" json:"exchange_rate"`
	TotalIncome   decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"total_income"`
	TotalExpense  decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"total_expense"`
	Status        WalletStatus    `gorm:"type:varchar(16);not null" json:"status"`
	Version       int64           `gorm:"not null;default:0" json:"version"`
	DeactivatedAt *time.Time      `json:"deactivated_at,omitempty"`
	CreatedAt     time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"not null" json:"updated_at"`
}

func (w FranchiseWallet) IsActive() bool {
	return w.Status == WalletStatusActive
}

// WalletTransaction is an immutable movement on a franchise wallet.
type WalletTransaction struct {
	ID             snowflake.ID    `gorm:"primaryKey" json:"id"`
	WalletID       snowflake.ID    `gorm:"not null;index" json:"wallet_id"`
	FranchiseID    snowflake.ID    `gorm:"not null;index" json:"franchise_id"`
	Direction      Direction       `gorm:"type:varchar(8);not null" json:"direction"`
	Amount         decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"amount"`
	NativeAmount   decimal.Decimal `gorm:"type:numeric(30,9);not null" json:"native_amount"`
	Description    string          `json:"description"`
	Reference      string          `json:"reference,omitempty"`
	IdempotencyKey *string         `gorm:"uniqueIndex" json:"idempotency_key,omitempty"`
	CreatedAt      time.Time       `gorm:"not null" json:"created_at"`
}

// BrandTransaction is an immutable movement on a franchiser's treasury.
type BrandTransaction struct {
	ID             snowflake.ID    `gorm:"primaryKey" json:"id"`
	FranchiserID   snowflake.ID    `gorm:"not null;index" json:"franchiser_id"`
	FranchiseID    snowflake.ID    `gorm:"not null;index" json:"franchise_id"`
	Category       BrandCategory   `gorm:"type:varchar(32);not null" json:"category"`
	Direction      Direction       `gorm:"type:varchar(8);not null" json:"direction"`
	Amount         decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"amount"`
	Description    string          `json:"description"`
	Reference      string          `json:"reference,omitempty"`
	IdempotencyKey *string         `gorm:"uniqueIndex" json:"idempotency_key,omitempty"`
	CreatedAt      time.Time       `gorm:"not null" json:"created_at"`
}

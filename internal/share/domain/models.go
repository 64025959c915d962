package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	franchisedomain "github.com/smallbiznis/franchisefund/internal/franchise/domain"
	investmentdomain "github.com/smallbiznis/franchisefund/internal/investment/domain"
)

type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusRefunded  Status = "refunded"
)

// FranchiseShare is one investor purchase. Only the refund transition ever
// changes a stored row.
type FranchiseShare struct {
	ID              snowflake.ID    `gorm:"primaryKey" json:"id"`
	FranchiseID     snowflake.ID    `gorm:"not null;index" json:"franchise_id"`
	InvestmentID    snowflake.ID    `gorm:"not null" json:"investment_id"`
	InvestorID      string          `gorm:"not null;index" json:"investor_id"`
	Shares          int64           `gorm:"not null" json:"shares"`
	PricePerShare   decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"price_per_share"`
	TotalAmount     decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"total_amount"`
	Status          Status          `gorm:"type:varchar(16);not null;index" json:"status"`
	ExternalRef     string          `json:"external_ref,omitempty"`
	IdempotencyKey  *string         `gorm:"uniqueIndex" json:"idempotency_key,omitempty"`
	RefundReference *string         `gorm:"uniqueIndex" json:"refund_reference,omitempty"`
	RefundedAt      *time.Time      `json:"refunded_at,omitempty"`
	CreatedAt       time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"not null" json:"updated_at"`
}

// ShareView is a share with the status investors are shown.
type ShareView struct {
	FranchiseShare
	EffectiveStatus Status `json:"effective_status"`
}

// EffectiveStatus shows a confirmed share as refunded once its franchise has
// stayed in funding past the expiry window without reaching its target. It
// never changes stored state.
func EffectiveStatus(share FranchiseShare, franchise franchisedomain.Franchise, inv investmentdomain.Investment, now time.Time, expiryDays int) Status {
	if share.Status != StatusConfirmed {
		return share.Status
	}
	if franchise.Stage != franchisedomain.StageFunding || expiryDays <= 0 {
		return share.Status
	}
	if inv.IsFullyFunded() {
		return share.Status
	}
	if now.After(franchise.FundingStartedAt.AddDate(0, 0, expiryDays)) {
		return StatusRefunded
	}
	return share.Status
}

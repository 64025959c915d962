package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Investment is the fundraising target of one franchise and the running
// totals collected against it.
type Investment struct {
	ID              snowflake.ID    `gorm:"primaryKey" json:"id"`
	FranchiseID     snowflake.ID    `gorm:"index" json:"franchise_id"`
	TotalInvestment decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"total_investment"`
	TotalInvested   decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"total_invested"`
	SharesIssued    int64           `gorm:"not null" json:"shares_issued"`
	SharesPurchased int64           `gorm:"not null" json:"shares_purchased"`
	SharePrice      decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"share_price"`
	FranchiseFee    decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"franchise_fee"`
	SetupCost       decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"setup_cost"`
	WorkingCapital  decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"working_capital"`
	Version         int64           `gorm:"not null;default:0" json:"version"`
	CreatedAt       time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"not null" json:"updated_at"`
}

// Progress returns total invested as a percentage of the target, rounded to
// two decimals. A zero target reports zero.
func (i Investment) Progress() decimal.Decimal {
	if !i.TotalInvestment.IsPositive() {
		return decimal.Zero
	}
	return i.TotalInvested.Div(i.TotalInvestment).Mul(hundred).Round(2)
}

// IsFullyFunded reports totalInvested / totalInvestment >= 1.
func (i Investment) IsFullyFunded() bool {
	return i.TotalInvestment.IsPositive() && i.TotalInvested.GreaterThanOrEqual(i.TotalInvestment)
}

// Remaining is the amount still needed, never negative.
func (i Investment) Remaining() decimal.Decimal {
	remaining := i.TotalInvestment.Sub(i.TotalInvested)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// ComponentsTotal is franchise fee + setup cost + working capital.
func (i Investment) ComponentsTotal() decimal.Decimal {
	return i.FranchiseFee.Add(i.SetupCost).Add(i.WorkingCapital)
}

// ComponentsBalanced checks the three components against the target.
func (i Investment) ComponentsBalanced(tolerance decimal.Decimal) bool {
	return i.ComponentsTotal().Sub(i.TotalInvestment).Abs().LessThanOrEqual(tolerance)
}

// FundingProgress is the read projection of an investment.
type FundingProgress struct {
	FranchiseID     snowflake.ID    `json:"franchise_id"`
	InvestmentID    snowflake.ID    `json:"investment_id"`
	TotalInvestment decimal.Decimal `json:"total_investment"`
	TotalInvested   decimal.Decimal `json:"total_invested"`
	Remaining       decimal.Decimal `json:"remaining"`
	SharesIssued    int64           `json:"shares_issued"`
	SharesPurchased int64           `json:"shares_purchased"`
	Percent         decimal.Decimal `json:"percent"`
	FullyFunded     bool            `json:"fully_funded"`
}

func (i Investment) FundingProgress() FundingProgress {
	return FundingProgress{
		FranchiseID:     i.FranchiseID,
		InvestmentID:    i.ID,
		TotalInvestment: i.TotalInvestment,
		TotalInvested:   i.TotalInvested,
		Remaining:       i.Remaining(),
		SharesIssued:    i.SharesIssued,
		SharesPurchased: i.SharesPurchased,
		Percent:         i.Progress(),
		FullyFunded:     i.IsFullyFunded(),
	}
}

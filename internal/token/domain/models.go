package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindMint Kind = "mint"
	KindBurn Kind = "burn"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusDead      Status = "dead"
)

// Operation is an outbox row for a share token mint or burn. It is written
// in the same transaction as the ledger change and delivered afterwards.
type Operation struct {
	ID             snowflake.ID    `gorm:"primaryKey" json:"id"`
	FranchiseID    snowflake.ID    `gorm:"not null;index" json:"franchise_id"`
	ShareID        snowflake.ID    `gorm:"not null;index" json:"share_id"`
	InvestorID     string          `gorm:"not null" json:"investor_id"`
	Kind           Kind            `gorm:"type:varchar(8);not null" json:"kind"`
	Amount         int64           `gorm:"not null" json:"amount"`
	TotalValue     decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"total_value"`
	Reference      string          `json:"reference,omitempty"`
	IdempotencyKey string          `gorm:"not null;uniqueIndex" json:"idempotency_key"`
	Status         Status          `gorm:"type:varchar(16);not null;index:ix_token_operations_due,priority:1" json:"status"`
	Attempts       int             `gorm:"not null;default:0" json:"attempts"`
	LastError      string          `json:"last_error,omitempty"`
	NextAttemptAt  time.Time       `gorm:"not null;index:ix_token_operations_due,priority:2" json:"next_attempt_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	CreatedAt      time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"not null" json:"updated_at"`
}

func (Operation) TableName() string { return "token_operations" }

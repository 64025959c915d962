package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Stage is the funding lifecycle position of a franchise. Stages only move
// forward: funding, launching, ongoing, closed.
type Stage string

const (
	StageFunding   Stage = "funding"
	StageLaunching Stage = "launching"
	StageOngoing   Stage = "ongoing"
	StageClosed    Stage = "closed"
)

// Rank orders stages; unknown stages rank below funding.
func (s Stage) Rank() int {
	switch s {
	case StageFunding:
		return 1
	case StageLaunching:
		return 2
	case StageOngoing:
		return 3
	case StageClosed:
		return 4
	default:
		return 0
	}
}

func (s Stage) Valid() bool {
	return s.Rank() > 0
}

// Status is the administrative axis, independent of Stage.
type Status string

const (
	StatusPending    Status = "pending"
	StatusApproved   Status = "approved"
	StatusActive     Status = "active"
	StatusSuspended  Status = "suspended"
	StatusTerminated Status = "terminated"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusActive, StatusSuspended, StatusTerminated:
		return true
	default:
		return false
	}
}

type Franchiser struct {
	ID        snowflake.ID      `gorm:"primaryKey" json:"id"`
	Name      string            `gorm:"not null" json:"name"`
	Slug      string            `gorm:"not null;uniqueIndex" json:"slug"`
	Metadata  datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	CreatedAt time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time         `gorm:"not null" json:"updated_at"`
}

type Franchise struct {
	ID               snowflake.ID      `gorm:"primaryKey" json:"id"`
	FranchiserID     snowflake.ID      `gorm:"not null;index" json:"franchiser_id"`
	LocationID       string            `gorm:"column:location_id" json:"location_id,omitempty"`
	Name             string            `gorm:"not null" json:"name"`
	Slug             string            `gorm:"not null;uniqueIndex" json:"slug"`
	Status           Status            `gorm:"type:varchar(32);not null" json:"status"`
	Stage            Stage             `gorm:"type:varchar(32);not null;index" json:"stage"`
	InvestmentID     snowflake.ID      `gorm:"not null" json:"investment_id"`
	FundingStartedAt time.Time         `gorm:"not null" json:"funding_started_at"`
	CompletedAt      *time.Time        `json:"completed_at,omitempty"`
	Metadata         datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	CreatedAt        time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time         `gorm:"not null" json:"updated_at"`
}

package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	franchisedomain "github.com/smallbiznis/franchisefund/internal/franchise/domain"
)

// SubStage is advisory detail inside a stage.
type SubStage string

const (
	SubStageRaising          SubStage = "raising"
	SubStageCreatingPDA      SubStage = "creating_pda"
	SubStageTransferringFees SubStage = "transferring_fees"
	SubStageSettingUp        SubStage = "setting_up"
	SubStageOperational      SubStage = "operational"
	SubStageCompleted        SubStage = "completed"
)

var subStages = map[franchisedomain.Stage][]SubStage{
	franchisedomain.StageFunding:   {SubStageRaising},
	franchisedomain.StageLaunching: {SubStageCreatingPDA, SubStageTransferringFees, SubStageSettingUp},
	franchisedomain.StageOngoing:   {SubStageOperational},
	franchisedomain.StageClosed:    {SubStageCompleted},
}

// BelongsTo reports whether s is a sub-stage of stage.
func (s SubStage) BelongsTo(stage franchisedomain.Stage) bool {
	for _, candidate := range subStages[stage] {
		if candidate == s {
			return true
		}
	}
	return false
}

// Progress milestones written when a stage is entered.
const (
	ProgressFundingStart = 0
	ProgressLaunching    = 25
	ProgressOngoing      = 50
	ProgressClosed       = 100
)

// StageRecord is one row of a franchise's stage history. Exactly one row per
// franchise has IsCurrent set; rows are closed out, never deleted.
type StageRecord struct {
	ID          snowflake.ID          `gorm:"primaryKey" json:"id"`
	FranchiseID snowflake.ID          `gorm:"not null;index" json:"franchise_id"`
	Stage       franchisedomain.Stage `gorm:"type:varchar(32);not null" json:"stage"`
	SubStage    SubStage              `gorm:"type:varchar(32)" json:"sub_stage,omitempty"`
	Progress    float64               `gorm:"not null" json:"progress"`
	Notes       string                `json:"notes,omitempty"`
	IsCurrent   bool                  `gorm:"not null;index" json:"is_current"`
	StartedAt   time.Time             `gorm:"not null" json:"started_at"`
	CompletedAt *time.Time            `json:"completed_at,omitempty"`
	CreatedAt   time.Time             `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time             `gorm:"not null" json:"updated_at"`
}

func (StageRecord) TableName() string { return "franchise_stages" }

type LaunchTimeline struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	FranchiseID      snowflake.ID `gorm:"not null;uniqueIndex" json:"franchise_id"`
	StartedAt        time.Time    `gorm:"not null" json:"started_at"`
	TargetLaunchDate time.Time    `gorm:"not null" json:"target_launch_date"`
	LaunchedAt       *time.Time   `json:"launched_at,omitempty"`
	CreatedAt        time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time    `gorm:"not null" json:"updated_at"`
}

func (LaunchTimeline) TableName() string { return "launch_timelines" }

package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/franchisefund/internal/apperror"
	"gorm.io/gorm"
)

type UpdateSubStageRequest struct {
	FranchiseID snowflake.ID
	SubStage    SubStage
	Progress    *float64
	Notes       string
}

// Service drives a franchise through funding, launching, ongoing and closed.
type Service interface {
	// OpenFunding writes the first stage row of a new franchise.
	OpenFunding(ctx context.Context, tx *gorm.DB, franchiseID snowflake.ID, at time.Time) (StageRecord, error)
	// EvaluateFunding performs funding -> launching with distribution when
	// the investment is fully funded. It reports whether this call made the
	// transition.
	EvaluateFunding(ctx context.Context, franchiseID snowflake.ID) (bool, error)
	MarkOngoing(ctx context.Context, franchiseID snowflake.ID, notes string) (StageRecord, error)
	// CheckClosure closes the franchise once its operating wallet is empty.
	CheckClosure(ctx context.Context, franchiseID snowflake.ID) (bool, error)
	UpdateSubStage(ctx context.Context, req UpdateSubStageRequest) (StageRecord, error)
	RecordFundingProgress(ctx context.Context, tx *gorm.DB, franchiseID snowflake.ID, progress decimal.Decimal) error

	History(ctx context.Context, franchiseID snowflake.ID) ([]StageRecord, error)
	Current(ctx context.Context, franchiseID snowflake.ID) (StageRecord, error)
	Timeline(ctx context.Context, franchiseID snowflake.ID) (LaunchTimeline, error)
}

var (
	ErrStageNotFound    = apperror.NotFound("stage_not_found", "franchise has no current stage")
	ErrTimelineNotFound = apperror.NotFound("timeline_not_found", "franchise has no launch timeline")
	ErrInvalidSubStage  = apperror.Validation("invalid_sub_stage", "sub-stage does not belong to the current stage")
	ErrInvalidProgress  = apperror.Validation("invalid_progress", "progress must be between 0 and 100")
)

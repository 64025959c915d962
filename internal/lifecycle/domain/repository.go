package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertStage(ctx context.Context, db *gorm.DB, record *StageRecord) error
	FindCurrent(ctx context.Context, db *gorm.DB, franchiseID snowflake.ID) (*StageRecord, error)
	CloseCurrent(ctx context.Context, db *gorm.DB, franchiseID snowflake.ID, at time.Time) (int64, error)
	UpdateCurrent(ctx context.Context, db *gorm.DB, record StageRecord) (int64, error)
	ListHistory(ctx context.Context, db *gorm.DB, franchiseID snowflake.ID) ([]StageRecord, error)

	InsertTimeline(ctx context.Context, db *gorm.DB, timeline *LaunchTimeline) (bool, error)
	FindTimeline(ctx context.Context, db *gorm.DB, franchiseID snowflake.ID) (*LaunchTimeline, error)
	MarkLaunched(ctx context.Context, db *gorm.DB, franchiseID snowflake.ID, at time.Time) (int64, error)
}

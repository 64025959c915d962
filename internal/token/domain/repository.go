package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, op *Operation) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Operation, error)
	FindByKey(ctx context.Context, db *gorm.DB, key string) (*Operation, error)
	// Claim bumps attempts and leases the operation until nextAttemptAt. It
	// fails when another dispatcher claimed it first.
	Claim(ctx context.Context, db *gorm.DB, op Operation, nextAttemptAt, at time.Time) (bool, error)
	MarkSucceeded(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (int64, error)
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, lastError string, status Status, at time.Time) (int64, error)
	ListDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]Operation, error)
}

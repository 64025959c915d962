package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, inv *Investment) error
	AttachFranchise(ctx context.Context, db *gorm.DB, id, franchiseID snowflake.ID) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Investment, error)
	FindByFranchiseID(ctx context.Context, db *gorm.DB, franchiseID snowflake.ID) (*Investment, error)
	// UpdateTotals writes new totals only when the stored version still
	// equals inv.Version, and reports whether it did.
	UpdateTotals(ctx context.Context, db *gorm.DB, inv Investment) (bool, error)
}

package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/franchisefund/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, share *FranchiseShare) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*FranchiseShare, error)
	FindByKey(ctx context.Context, db *gorm.DB, key string) (*FranchiseShare, error)
	// MarkRefunded flips confirmed -> refunded; zero rows means the share was
	// not confirmed.
	MarkRefunded(ctx context.Context, db *gorm.DB, id snowflake.ID, reference, externalRef string, at time.Time) (int64, error)
	ListByFranchise(ctx context.Context, db *gorm.DB, franchiseID snowflake.ID, page pagination.Pagination) ([]*FranchiseShare, error)
	ListByInvestor(ctx context.Context, db *gorm.DB, investorID string, page pagination.Pagination) ([]*FranchiseShare, error)
	ListConfirmed(ctx context.Context, db *gorm.DB, franchiseID, afterID snowflake.ID, limit int) ([]FranchiseShare, error)
}

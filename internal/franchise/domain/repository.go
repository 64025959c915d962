package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/franchisefund/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	InsertFranchiser(ctx context.Context, db *gorm.DB, franchiser *Franchiser) error
	FindFranchiserByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Franchiser, error)
	Insert(ctx context.Context, db *gorm.DB, franchise *Franchise) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Franchise, error)
	FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*Franchise, error)
	List(ctx context.Context, db *gorm.DB, filter ListFranchiseFilter, page pagination.Pagination) ([]*Franchise, error)
	ListSlugsWithPrefix(ctx context.Context, db *gorm.DB, prefix string) ([]string, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status, at time.Time) (int64, error)
	// AdvanceStage moves the franchise from -> to only when it is still in
	// from. Zero rows means another writer got there first.
	AdvanceStage(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to Stage, at time.Time) (int64, error)
	Close(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (int64, error)
	ListByStage(ctx context.Context, db *gorm.DB, stages []Stage, afterID snowflake.ID, limit int) ([]Franchise, error)
}

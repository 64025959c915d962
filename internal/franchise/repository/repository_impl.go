package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/franchisefund/internal/franchise/domain"
	"github.com/smallbiznis/franchisefund/pkg/db/option"
	"github.com/smallbiznis/franchisefund/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertFranchiser(ctx context.Context, db *gorm.DB, franchiser *domain.Franchiser) error {
	return db.WithContext(ctx).Create(franchiser).Error
}

func (r *repo) FindFranchiserByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Franchiser, error) {
	var franchiser domain.Franchiser
	err := db.WithContext(ctx).
		Model(&domain.Franchiser{}).
		Where("id = ?", id).
		Limit(1).
		Find(&franchiser).Error
	if err != nil {
		return nil, err
	}
	if franchiser.ID == 0 {
		return nil, nil
	}
	return &franchiser, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, franchise *domain.Franchise) error {
	return db.WithContext(ctx).Create(franchise).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Franchise, error) {
	var franchise domain.Franchise
	err := db.WithContext(ctx).
		Model(&domain.Franchise{}).
		Where("id = ?", id).
		Limit(1).
		Find(&franchise).Error
	if err != nil {
		return nil, err
	}
	if franchise.ID == 0 {
		return nil, nil
	}
	return &franchise, nil
}

func (r *repo) FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Franchise, error) {
	var franchise domain.Franchise
	err := db.WithContext(ctx).
		Model(&domain.Franchise{}).
		Where("slug = ?", slug).
		Limit(1).
		Find(&franchise).Error
	if err != nil {
		return nil, err
	}
	if franchise.ID == 0 {
		return nil, nil
	}
	return &franchise, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFranchiseFilter, page pagination.Pagination) ([]*domain.Franchise, error) {
	var items []*domain.Franchise
	stmt := db.WithContext(ctx).Model(&domain.Franchise{})
	if filter.FranchiserID != nil {
		stmt = stmt.Where("franchiser_id = ?", *filter.FranchiserID)
	}
	if filter.Stage != "" {
		stmt = stmt.Where("stage = ?", filter.Stage)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	stmt = stmt.Order("created_at DESC, id DESC")
	stmt = option.ApplyPagination(page).Apply(stmt)
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListSlugsWithPrefix(ctx context.Context, db *gorm.DB, prefix string) ([]string, error) {
	var slugs []string
	err := db.WithContext(ctx).
		Model(&domain.Franchise{}).
		Where("slug LIKE ?", prefix+"%").
		Pluck("slug", &slugs).Error
	if err != nil {
		return nil, err
	}
	return slugs, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.Status, at time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE franchises SET status = ?, updated_at = ? WHERE id = ?`,
		status,
		at,
		id,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) AdvanceStage(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.Stage, at time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE franchises SET stage = ?, updated_at = ? WHERE id = ? AND stage = ?`,
		to,
		at,
		id,
		from,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) Close(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE franchises SET stage = ?, completed_at = ?, updated_at = ? WHERE id = ? AND stage <> ?`,
		domain.StageClosed,
		at,
		at,
		id,
		domain.StageClosed,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) ListByStage(ctx context.Context, db *gorm.DB, stages []domain.Stage, afterID snowflake.ID, limit int) ([]domain.Franchise, error) {
	if limit <= 0 {
		limit = 100
	}
	var items []domain.Franchise
	err := db.WithContext(ctx).
		Model(&domain.Franchise{}).
		Where("stage IN ?", stages).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

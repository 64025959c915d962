package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/franchisefund/internal/share/domain"
	"github.com/smallbiznis/franchisefund/pkg/db/option"
	"github.com/smallbiznis/franchisefund/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, share *domain.FranchiseShare) error {
	return db.WithContext(ctx).Create(share).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.FranchiseShare, error) {
	var share domain.FranchiseShare
	err := db.WithContext(ctx).
		Model(&domain.FranchiseShare{}).
		Where("id = ?", id).
		Limit(1).
		Find(&share).Error
	if err != nil {
		return nil, err
	}
	if share.ID == 0 {
		return nil, nil
	}
	return &share, nil
}

func (r *repo) FindByKey(ctx context.Context, db *gorm.DB, key string) (*domain.FranchiseShare, error) {
	var share domain.FranchiseShare
	err := db.WithContext(ctx).
		Model(&domain.FranchiseShare{}).
		Where("idempotency_key = ?", key).
		Limit(1).
		Find(&share).Error
	if err != nil {
		return nil, err
	}
	if share.ID == 0 {
		return nil, nil
	}
	return &share, nil
}

func (r *repo) MarkRefunded(ctx context.Context, db *gorm.DB, id snowflake.ID, reference, externalRef string, at time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE franchise_shares
		 SET status = ?, refund_reference = ?, refunded_at = ?, updated_at = ?,
		     external_ref = CASE WHEN ? <> '' THEN ? ELSE external_ref END
		 WHERE id = ? AND status = ?`,
		domain.StatusRefunded,
		reference,
		at,
		at,
		externalRef,
		externalRef,
		id,
		domain.StatusConfirmed,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) ListByFranchise(ctx context.Context, db *gorm.DB, franchiseID snowflake.ID, page pagination.Pagination) ([]*domain.FranchiseShare, error) {
	var items []*domain.FranchiseShare
	stmt := db.WithContext(ctx).
		Model(&domain.FranchiseShare{}).
		Where("franchise_id = ?", franchiseID).
		Order("created_at DESC, id DESC")
	stmt = option.ApplyPagination(page).Apply(stmt)
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListByInvestor(ctx context.Context, db *gorm.DB, investorID string, page pagination.Pagination) ([]*domain.FranchiseShare, error) {
	var items []*domain.FranchiseShare
	stmt := db.WithContext(ctx).
		Model(&domain.FranchiseShare{}).
		Where("investor_id = ?", investorID).
		Order("created_at DESC, id DESC")
	stmt = option.ApplyPagination(page).Apply(stmt)
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListConfirmed(ctx context.Context, db *gorm.DB, franchiseID, afterID snowflake.ID, limit int) ([]domain.FranchiseShare, error) {
	if limit <= 0 {
		limit = 100
	}
	var items []domain.FranchiseShare
	err := db.WithContext(ctx).
		Model(&domain.FranchiseShare{}).
		Where("franchise_id = ? AND status = ? AND id > ?", franchiseID, domain.StatusConfirmed, afterID).
		Order("id ASC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

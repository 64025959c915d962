package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/franchisefund/internal/token/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, op *domain.Operation) (bool, error) {
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(op)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Operation, error) {
	var op domain.Operation
	err := db.WithContext(ctx).
		Model(&domain.Operation{}).
		Where("id = ?", id).
		Limit(1).
		Find(&op).Error
	if err != nil {
		return nil, err
	}
	if op.ID == 0 {
		return nil, nil
	}
	return &op, nil
}

func (r *repo) FindByKey(ctx context.Context, db *gorm.DB, key string) (*domain.Operation, error) {
	var op domain.Operation
	err := db.WithContext(ctx).
		Model(&domain.Operation{}).
		Where("idempotency_key = ?", key).
		Limit(1).
		Find(&op).Error
	if err != nil {
		return nil, err
	}
	if op.ID == 0 {
		return nil, nil
	}
	return &op, nil
}

func (r *repo) Claim(ctx context.Context, db *gorm.DB, op domain.Operation, nextAttemptAt, at time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE token_operations
		 SET attempts = attempts + 1, next_attempt_at = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND attempts = ?`,
		nextAttemptAt,
		at,
		op.ID,
		domain.StatusPending,
		op.Attempts,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) MarkSucceeded(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE token_operations
		 SET status = ?, last_error = ?, completed_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusSucceeded,
		"",
		at,
		at,
		id,
		domain.StatusPending,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, lastError string, status domain.Status, at time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE token_operations
		 SET status = ?, last_error = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		status,
		lastError,
		at,
		id,
		domain.StatusPending,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) ListDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.Operation, error) {
	if limit <= 0 {
		limit = 100
	}
	var ops []domain.Operation
	err := db.WithContext(ctx).
		Model(&domain.Operation{}).
		Where("status = ? AND next_attempt_at <= ?", domain.StatusPending, now).
		Order("next_attempt_at ASC, id ASC").
		Limit(limit).
		Find(&ops).Error
	if err != nil {
		return nil, err
	}
	return ops, nil
}

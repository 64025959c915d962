package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/franchisefund/internal/lifecycle/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertStage(ctx context.Context, db *gorm.DB, record *domain.StageRecord) error {
	return db.WithContext(ctx).Create(record).Error
}

func (r *repo) FindCurrent(ctx context.Context, db *gorm.DB, franchiseID snowflake.ID) (*domain.StageRecord, error) {
	var record domain.StageRecord
	err := db.WithContext(ctx).
		Model(&domain.StageRecord{}).
		Where("franchise_id = ? AND is_current = ?", franchiseID, true).
		Order("started_at DESC, id DESC").
		Limit(1).
		Find(&record).Error
	if err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, nil
	}
	return &record, nil
}

func (r *repo) CloseCurrent(ctx context.Context, db *gorm.DB, franchiseID snowflake.ID, at time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE franchise_stages SET is_current = ?, completed_at = ?, updated_at = ?
		 WHERE franchise_id = ? AND is_current = ?`,
		false,
		at,
		at,
		franchiseID,
		true,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) UpdateCurrent(ctx context.Context, db *gorm.DB, record domain.StageRecord) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE franchise_stages SET sub_stage = ?, progress = ?, notes = ?, updated_at = ?
		 WHERE id = ? AND is_current = ?`,
		record.SubStage,
		record.Progress,
		record.Notes,
		record.UpdatedAt,
		record.ID,
		true,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) ListHistory(ctx context.Context, db *gorm.DB, franchiseID snowflake.ID) ([]domain.StageRecord, error) {
	var records []domain.StageRecord
	err := db.WithContext(ctx).
		Model(&domain.StageRecord{}).
		Where("franchise_id = ?", franchiseID).
		Order("started_at ASC, id ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repo) InsertTimeline(ctx context.Context, db *gorm.DB, timeline *domain.LaunchTimeline) (bool, error) {
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(timeline)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) FindTimeline(ctx context.Context, db *gorm.DB, franchiseID snowflake.ID) (*domain.LaunchTimeline, error) {
	var timeline domain.LaunchTimeline
	err := db.WithContext(ctx).
		Model(&domain.LaunchTimeline{}).
		Where("franchise_id = ?", franchiseID).
		Limit(1).
		Find(&timeline).Error
	if err != nil {
		return nil, err
	}
	if timeline.ID == 0 {
		return nil, nil
	}
	return &timeline, nil
}

func (r *repo) MarkLaunched(ctx context.Context, db *gorm.DB, franchiseID snowflake.ID, at time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE launch_timelines SET launched_at = ?, updated_at = ?
		 WHERE franchise_id = ? AND launched_at IS NULL`,
		at,
		at,
		franchiseID,
	)
	return result.RowsAffected, result.Error
}

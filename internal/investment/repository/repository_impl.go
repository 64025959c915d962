package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/franchisefund/internal/investment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, inv *domain.Investment) error {
	return db.WithContext(ctx).Create(inv).Error
}

func (r *repo) AttachFranchise(ctx context.Context, db *gorm.DB, id, franchiseID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE investments SET franchise_id = ? WHERE id = ?`,
		franchiseID,
		id,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Investment, error) {
	var inv domain.Investment
	err := db.WithContext(ctx).
		Model(&domain.Investment{}).
		Where("id = ?", id).
		Limit(1).
		Find(&inv).Error
	if err != nil {
		return nil, err
	}
	if inv.ID == 0 {
		return nil, nil
	}
	return &inv, nil
}

func (r *repo) FindByFranchiseID(ctx context.Context, db *gorm.DB, franchiseID snowflake.ID) (*domain.Investment, error) {
	var inv domain.Investment
	err := db.WithContext(ctx).
		Model(&domain.Investment{}).
		Where("franchise_id = ?", franchiseID).
		Limit(1).
		Find(&inv).Error
	if err != nil {
		return nil, err
	}
	if inv.ID == 0 {
		return nil, nil
	}
	return &inv, nil
}

func (r *repo) UpdateTotals(ctx context.Context, db *gorm.DB, inv domain.Investment) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE investments
		 SET total_invested = ?, shares_purchased = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		inv.TotalInvested,
		inv.SharesPurchased,
		inv.UpdatedAt,
		inv.ID,
		inv.Version,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

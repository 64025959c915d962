package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/franchisefund/internal/wallet/domain"
	"github.com/smallbiznis/franchisefund/pkg/db/option"
	"github.com/smallbiznis/franchisefund/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertWallet(ctx context.Context, db *gorm.DB, wallet *domain.FranchiseWallet) (bool, error) {
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(wallet)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) FindWalletByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.FranchiseWallet, error) {
	var wallet domain.FranchiseWallet
	err := db.WithContext(ctx).
		Model(&domain.FranchiseWallet{}).
		Where("id = ?", id).
		Limit(1).
		Find(&wallet).Error
	if err != nil {
		return nil, err
	}
	if wallet.ID == 0 {
		return nil, nil
	}
	return &wallet, nil
}

func (r *repo) FindWallet(ctx context.Context, db *gorm.DB, franchiseID snowflake.ID, kind domain.WalletKind) (*domain.FranchiseWallet, error) {
	var wallet domain.FranchiseWallet
	err := db.WithContext(ctx).
		Model(&domain.FranchiseWallet{}).
		Where("franchise_id = ? AND kind = ?", franchiseID, kind).
		Limit(1).
		Find(&wallet).Error
	if err != nil {
		return nil, err
	}
	if wallet.ID == 0 {
		return nil, nil
	}
	return &wallet, nil
}

func (r *repo) ListWallets(ctx context.Context, db *gorm.DB, franchiseID snowflake.ID) ([]domain.FranchiseWallet, error) {
	var wallets []domain.FranchiseWallet
	err := db.WithContext(ctx).
		Model(&domain.FranchiseWallet{}).
		Where("franchise_id = ?", franchiseID).
		Order("created_at ASC, id ASC").
		Find(&wallets).Error
	if err != nil {
		return nil, err
	}
	return wallets, nil
}

func (r *repo) Deactivate(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE franchise_wallets
		 SET status = ?, deactivated_at = ?, updated_at = ?, version = version + 1
		 WHERE id = ? AND status = ?`,
		domain.WalletStatusInactive,
		at,
		at,
		id,
		domain.WalletStatusActive,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) UpdateBalances(ctx context.Context, db *gorm.DB, wallet domain.FranchiseWallet) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE franchise_wallets
		 SET balance = ?, usd_balance = ?, total_income = ?, total_expense = ?,
		     version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		wallet.Balance,
		wallet.USDBalance,
		wallet.TotalIncome,
		wallet.TotalExpense,
		wallet.UpdatedAt,
		wallet.ID,
		wallet.Version,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) InsertTransaction(ctx context.Context, db *gorm.DB, txn *domain.WalletTransaction) (bool, error) {
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(txn)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) FindTransactionByKey(ctx context.Context, db *gorm.DB, key string) (*domain.WalletTransaction, error) {
	var txn domain.WalletTransaction
	err := db.WithContext(ctx).
		Model(&domain.WalletTransaction{}).
		Where("idempotency_key = ?", key).
		Limit(1).
		Find(&txn).Error
	if err != nil {
		return nil, err
	}
	if txn.ID == 0 {
		return nil, nil
	}
	return &txn, nil
}

func (r *repo) ListTransactions(ctx context.Context, db *gorm.DB, walletID snowflake.ID, page pagination.Pagination) ([]*domain.WalletTransaction, error) {
	var items []*domain.WalletTransaction
	stmt := db.WithContext(ctx).
		Model(&domain.WalletTransaction{}).
		Where("wallet_id = ?", walletID).
		Order("created_at DESC, id DESC")
	stmt = option.ApplyPagination(page).Apply(stmt)
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) InsertBrandTransaction(ctx context.Context, db *gorm.DB, txn *domain.BrandTransaction) (bool, error) {
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(txn)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) FindBrandTransactionByKey(ctx context.Context, db *gorm.DB, key string) (*domain.BrandTransaction, error) {
	var txn domain.BrandTransaction
	err := db.WithContext(ctx).
		Model(&domain.BrandTransaction{}).
		Where("idempotency_key = ?", key).
		Limit(1).
		Find(&txn).Error
	if err != nil {
		return nil, err
	}
	if txn.ID == 0 {
		return nil, nil
	}
	return &txn, nil
}

func (r *repo) ListBrandTransactions(ctx context.Context, db *gorm.DB, franchiserID snowflake.ID, page pagination.Pagination) ([]*domain.BrandTransaction, error) {
	var items []*domain.BrandTransaction
	stmt := db.WithContext(ctx).
		Model(&domain.BrandTransaction{}).
		Where("franchiser_id = ?", franchiserID).
		Order("created_at DESC, id DESC")
	stmt = option.ApplyPagination(page).Apply(stmt)
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) BrandBalance(ctx context.Context, db *gorm.DB, franchiserID snowflake.ID) (decimal.Decimal, error) {
	var rows []domain.BrandTransaction
	err := db.WithContext(ctx).
		Model(&domain.BrandTransaction{}).
		Select("direction", "amount").
		Where("franchiser_id = ?", franchiserID).
		Find(&rows).Error
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, row := range rows {
		switch row.Direction {
		case domain.DirectionCredit:
			total = total.Add(row.Amount)
		case domain.DirectionDebit:
			total = total.Sub(row.Amount)
		}
	}
	return total, nil
}

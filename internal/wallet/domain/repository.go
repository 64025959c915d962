package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/franchisefund/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	InsertWallet(ctx context.Context, db *gorm.DB, wallet *FranchiseWallet) (bool, error)
	FindWalletByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*FranchiseWallet, error)
	FindWallet(ctx context.Context, db *gorm.DB, franchiseID snowflake.ID, kind WalletKind) (*FranchiseWallet, error)
	ListWallets(ctx context.Context, db *gorm.DB, franchiseID snowflake.ID) ([]FranchiseWallet, error)
	Deactivate(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (int64, error)
	// UpdateBalances writes balances when the stored version still equals
	// wallet.Version.
	UpdateBalances(ctx context.Context, db *gorm.DB, wallet FranchiseWallet) (bool, error)

	InsertTransaction(ctx context.Context, db *gorm.DB, txn *WalletTransaction) (bool, error)
	FindTransactionByKey(ctx context.Context, db *gorm.DB, key string) (*WalletTransaction, error)
	ListTransactions(ctx context.Context, db *gorm.DB, walletID snowflake.ID, page pagination.Pagination) ([]*WalletTransaction, error)

	InsertBrandTransaction(ctx context.Context, db *gorm.DB, txn *BrandTransaction) (bool, error)
	FindBrandTransactionByKey(ctx context.Context, db *gorm.DB, key string) (*BrandTransaction, error)
	ListBrandTransactions(ctx context.Context, db *gorm.DB, franchiserID snowflake.ID, page pagination.Pagination) ([]*BrandTransaction, error)
	BrandBalance(ctx context.Context, db *gorm.DB, franchiserID snowflake.ID) (decimal.Decimal, error)
}

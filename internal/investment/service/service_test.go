package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/franchisefund/internal/apperror"
	"github.com/smallbiznis/franchisefund/internal/clock"
	"github.com/smallbiznis/franchisefund/internal/investment/domain"
	"github.com/smallbiznis/franchisefund/internal/investment/repository"
	"github.com/smallbiznis/franchisefund/internal/investment/service"
	"github.com/smallbiznis/franchisefund/internal/testing/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	db   *gorm.DB
	svc  domain.Service
	repo domain.Repository
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	db := dbtest.Open(t)
	repo := repository.Provide()
	svc := service.New(service.Params{
		DB:    db,
		Log:   zap.NewNop(),
		Repo:  repo,
		Clock: clock.NewFakeClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)),
	})
	return testEnv{db: db, svc: svc, repo: repo}
}

func seedInvestment(t *testing.T, env testEnv, invested string, shares int64) domain.Investment {
	t.Helper()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	node := dbtest.Node(t)
	inv := domain.Investment{
		ID:              node.Generate(),
		FranchiseID:     node.Generate(),
		TotalInvestment: decimal.NewFromInt(100000),
		TotalInvested:   decimal.RequireFromString(invested),
		SharesIssued:    1000,
		SharesPurchased: shares,
		SharePrice:      decimal.NewFromInt(100),
		FranchiseFee:    decimal.NewFromInt(20000),
		SetupCost:       decimal.NewFromInt(50000),
		WorkingCapital:  decimal.NewFromInt(30000),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, env.repo.Insert(context.Background(), env.db, &inv))
	return inv
}

func TestRecordRefundClampsTotalsAtZero(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	inv := seedInvestment(t, env, "1000", 10)

	updated, err := env.svc.RecordRefund(ctx, env.db, inv, decimal.NewFromInt(5000), 500)
	require.NoError(t, err)
	assert.True(t, updated.TotalInvested.IsZero())
	assert.Equal(t, int64(0), updated.SharesPurchased)
	assert.Equal(t, inv.Version+1, updated.Version)

	stored, err := env.svc.GetByFranchiseID(ctx, inv.FranchiseID)
	require.NoError(t, err)
	assert.True(t, stored.TotalInvested.IsZero())
	assert.Equal(t, int64(0), stored.SharesPurchased)
	assert.Equal(t, inv.Version+1, stored.Version)
}

func TestRecordRefundSubtractsWithinTotals(t *testing.T) {
	env := newTestEnv(t)
	inv := seedInvestment(t, env, "25000", 250)

	updated, err := env.svc.RecordRefund(context.Background(), env.db, inv, decimal.NewFromInt(5000), 50)
	require.NoError(t, err)
	assert.True(t, updated.TotalInvested.Equal(decimal.NewFromInt(20000)))
	assert.Equal(t, int64(200), updated.SharesPurchased)
}

func TestRecordRefundRejectsNegativeInputs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	inv := seedInvestment(t, env, "1000", 10)

	_, err := env.svc.RecordRefund(ctx, env.db, inv, decimal.NewFromInt(-1), 1)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = env.svc.RecordRefund(ctx, env.db, inv, decimal.NewFromInt(100), -1)
	require.ErrorIs(t, err, domain.ErrInvalidShares)

	stored, err := env.svc.GetByFranchiseID(ctx, inv.FranchiseID)
	require.NoError(t, err)
	assert.True(t, stored.TotalInvested.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, inv.Version, stored.Version)
}

func TestRecordPurchaseRejectsNonPositiveInputs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	inv := seedInvestment(t, env, "0", 0)

	_, err := env.svc.RecordPurchase(ctx, env.db, inv, decimal.Zero, 1)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = env.svc.RecordPurchase(ctx, env.db, inv, decimal.NewFromInt(100), 0)
	require.ErrorIs(t, err, domain.ErrInvalidShares)
}

func TestStaleVersionIsConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	inv := seedInvestment(t, env, "0", 0)

	_, err := env.svc.RecordPurchase(ctx, env.db, inv, decimal.NewFromInt(1000), 10)
	require.NoError(t, err)

	_, err = env.svc.RecordRefund(ctx, env.db, inv, decimal.NewFromInt(1000), 10)
	require.Error(t, err)
	assert.True(t, apperror.IsConcurrencyConflict(err))
}

func TestFundingProgressUnknownFranchise(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.FundingProgress(context.Background(), dbtest.Node(t).Generate())
	require.ErrorIs(t, err, domain.ErrInvestmentNotFound)
}

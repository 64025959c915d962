package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/franchisefund/internal/distribution/domain"
	"github.com/smallbiznis/franchisefund/internal/testing/fixture"
	walletdomain "github.com/smallbiznis/franchisefund/internal/wallet/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func launched(t *testing.T) (*fixture.Env, walletdomain.FranchiseWallet, walletdomain.FranchiseWallet) {
	t.Helper()
	env := fixture.New(t)
	ctx := context.Background()
	created := env.Franchise(t, env.Franchiser(t, "Acme"), "1000", "200", "500", "300")
	_, err := env.Buy(ctx, created.Franchise.ID, "inv-1", "1000", "")
	require.NoError(t, err)

	operating, err := env.Wallets.FindOperating(ctx, env.DB, created.Franchise.ID)
	require.NoError(t, err)
	require.NotNil(t, operating)

	wallets, err := env.Wallets.ListWallets(ctx, created.Franchise.ID)
	require.NoError(t, err)
	var escrow walletdomain.FranchiseWallet
	for _, w := range wallets {
		if w.Kind == walletdomain.WalletKindEscrow {
			escrow = w
		}
	}
	require.NotZero(t, escrow.ID)
	return env, *operating, escrow
}

func TestOperatingWalletFundedWithWorkingCapital(t *testing.T) {
	env, operating, escrow := launched(t)
	ctx := context.Background()

	assert.True(t, operating.USDBalance.Equal(decimal.NewFromInt(300)))
	assert.True(t, operating.TotalIncome.Equal(decimal.NewFromInt(300)))
	assert.True(t, operating.ExchangeRate.Equal(decimal.NewFromInt(150)))
	assert.True(t, operating.Balance.Equal(decimal.NewFromInt(2)), operating.Balance.String())
	assert.False(t, escrow.IsActive())
	assert.NotNil(t, escrow.DeactivatedAt)

	txns, err := env.Wallets.ListTransactions(ctx, operating.ID, walletdomain.ListTransactionsRequest{PageSize: 10})
	require.NoError(t, err)
	require.Len(t, txns.Transactions, 1)
	assert.Equal(t, walletdomain.DirectionCredit, txns.Transactions[0].Direction)
	require.NotNil(t, txns.Transactions[0].IdempotencyKey)
	assert.Equal(t, domain.WorkingCapitalKey(operating.FranchiseID.String()), *txns.Transactions[0].IdempotencyKey)

	brand, err := env.Wallets.ListBrandTransactions(ctx, mustFranchiser(t, env, operating), walletdomain.ListTransactionsRequest{PageSize: 10})
	require.NoError(t, err)
	categories := map[walletdomain.BrandCategory]decimal.Decimal{}
	for _, entry := range brand.Transactions {
		categories[entry.Category] = entry.Amount
	}
	assert.True(t, categories[walletdomain.BrandCategoryFranchiseFee].Equal(decimal.NewFromInt(200)))
	assert.True(t, categories[walletdomain.BrandCategorySetupCost].Equal(decimal.NewFromInt(500)))
}

func mustFranchiser(t *testing.T, env *fixture.Env, wallet walletdomain.FranchiseWallet) snowflake.ID {
	t.Helper()
	franchise, err := env.Franchises.GetByID(context.Background(), wallet.FranchiseID)
	require.NoError(t, err)
	return franchise.FranchiserID
}

func TestCreditAndDebit(t *testing.T) {
	env, operating, _ := launched(t)
	ctx := context.Background()

	_, err := env.Wallets.Credit(ctx, walletdomain.MovementRequest{WalletID: operating.ID, Amount: decimal.NewFromInt(150), Description: "sales"})
	require.NoError(t, err)

	debit, err := env.Wallets.Debit(ctx, walletdomain.MovementRequest{WalletID: operating.ID, Amount: decimal.NewFromInt(75), Description: "supplies"})
	require.NoError(t, err)
	assert.Equal(t, walletdomain.DirectionDebit, debit.Direction)
	assert.True(t, debit.NativeAmount.Equal(decimal.NewFromFloat(0.5)), debit.NativeAmount.String())

	wallet, err := env.Wallets.Balance(ctx, operating.ID)
	require.NoError(t, err)
	assert.True(t, wallet.USDBalance.Equal(decimal.NewFromInt(375)), wallet.USDBalance.String())
	assert.True(t, wallet.TotalIncome.Equal(decimal.NewFromInt(450)))
	assert.True(t, wallet.TotalExpense.Equal(decimal.NewFromInt(75)))
	assert.Greater(t, wallet.Version, operating.Version)

	_, err = env.Wallets.Debit(ctx, walletdomain.MovementRequest{WalletID: operating.ID, Amount: decimal.NewFromInt(1000)})
	require.ErrorIs(t, err, walletdomain.ErrInsufficientFunds)

	_, err = env.Wallets.Credit(ctx, walletdomain.MovementRequest{WalletID: operating.ID, Amount: decimal.Zero})
	require.ErrorIs(t, err, walletdomain.ErrInvalidAmount)
}

func TestMovementRejectsEscrowWallet(t *testing.T) {
	env, _, escrow := launched(t)

	_, err := env.Wallets.Credit(context.Background(), walletdomain.MovementRequest{WalletID: escrow.ID, Amount: decimal.NewFromInt(1)})
	require.ErrorIs(t, err, walletdomain.ErrWalletInactive)

	_, err = env.Wallets.Credit(context.Background(), walletdomain.MovementRequest{WalletID: 777, Amount: decimal.NewFromInt(1)})
	require.ErrorIs(t, err, walletdomain.ErrWalletNotFound)
}

func TestMovementIdempotencyKey(t *testing.T) {
	env, operating, _ := launched(t)
	ctx := context.Background()

	req := walletdomain.MovementRequest{WalletID: operating.ID, Amount: decimal.NewFromInt(100), IdempotencyKey: "payroll-2025-03"}
	first, err := env.Wallets.Debit(ctx, req)
	require.NoError(t, err)
	second, err := env.Wallets.Debit(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	wallet, err := env.Wallets.Balance(ctx, operating.ID)
	require.NoError(t, err)
	assert.True(t, wallet.USDBalance.Equal(decimal.NewFromInt(200)), wallet.USDBalance.String())
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	env, operating, _ := launched(t)
	ctx := context.Background()

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.Wallets.Debit(ctx, walletdomain.MovementRequest{WalletID: operating.ID, Amount: decimal.NewFromInt(50)})
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, walletdomain.ErrInsufficientFunds)
		}()
	}
	wg.Wait()

	assert.Equal(t, 6, ok)
	wallet, err := env.Wallets.Balance(ctx, operating.ID)
	require.NoError(t, err)
	assert.True(t, wallet.USDBalance.IsZero(), wallet.USDBalance.String())
}

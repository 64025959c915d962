package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	franchisedomain "github.com/smallbiznis/franchisefund/internal/franchise/domain"
	"github.com/smallbiznis/franchisefund/internal/lifecycle/domain"
	"github.com/smallbiznis/franchisefund/internal/lifecycle/guard"
	"github.com/smallbiznis/franchisefund/internal/testing/fixture"
	walletdomain "github.com/smallbiznis/franchisefund/internal/wallet/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stages(records []domain.StageRecord) []franchisedomain.Stage {
	out := make([]franchisedomain.Stage, 0, len(records))
	for _, r := range records {
		out = append(out, r.Stage)
	}
	return out
}

func TestFullyFundedFranchiseLaunches(t *testing.T) {
	env := fixture.New(t)
	ctx := context.Background()
	created := env.Franchise(t, env.Franchiser(t, "Acme"), "100000", "20000", "50000", "30000")

	result, err := env.Buy(ctx, created.Franchise.ID, "inv-1", "100000", "")
	require.NoError(t, err)
	assert.Equal(t, franchisedomain.StageLaunching, result.StageAfter)

	current, err := env.Lifecycle.Current(ctx, created.Franchise.ID)
	require.NoError(t, err)
	assert.Equal(t, franchisedomain.StageLaunching, current.Stage)
	assert.Equal(t, domain.SubStageCreatingPDA, current.SubStage)
	assert.InDelta(t, 25.0, current.Progress, 0.001)

	history, err := env.Lifecycle.History(ctx, created.Franchise.ID)
	require.NoError(t, err)
	require.Equal(t, []franchisedomain.Stage{franchisedomain.StageFunding, franchisedomain.StageLaunching}, stages(history))
	assert.False(t, history[0].IsCurrent)
	assert.NotNil(t, history[0].CompletedAt)
	assert.InDelta(t, 100.0, history[0].Progress, 0.001)

	timeline, err := env.Lifecycle.Timeline(ctx, created.Franchise.ID)
	require.NoError(t, err)
	assert.Equal(t, timeline.StartedAt.AddDate(0, 0, 45).Unix(), timeline.TargetLaunchDate.Unix())
	assert.Nil(t, timeline.LaunchedAt)

	treasury, err := env.Wallets.BrandBalance(ctx, created.Franchise.FranchiserID)
	require.NoError(t, err)
	assert.True(t, treasury.Balance.Equal(decimal.NewFromInt(70000)), treasury.Balance.String())

	wallets, err := env.Wallets.ListWallets(ctx, created.Franchise.ID)
	require.NoError(t, err)
	byKind := map[walletdomain.WalletKind]walletdomain.FranchiseWallet{}
	for _, w := range wallets {
		byKind[w.Kind] = w
	}
	require.Contains(t, byKind, walletdomain.WalletKindOperating)
	require.Contains(t, byKind, walletdomain.WalletKindEscrow)
	assert.True(t, byKind[walletdomain.WalletKindOperating].USDBalance.Equal(decimal.NewFromInt(30000)))
	assert.True(t, byKind[walletdomain.WalletKindOperating].IsActive())
	assert.False(t, byKind[walletdomain.WalletKindEscrow].IsActive())
}

func TestEvaluateFundingIsNoopBelowTarget(t *testing.T) {
	env := fixture.New(t)
	ctx := context.Background()
	created := env.Franchise(t, env.Franchiser(t, "Acme"), "100000", "20000", "50000", "30000")

	_, err := env.Buy(ctx, created.Franchise.ID, "inv-1", "99999", "")
	require.NoError(t, err)

	moved, err := env.Lifecycle.EvaluateFunding(ctx, created.Franchise.ID)
	require.NoError(t, err)
	assert.False(t, moved)

	_, err = env.Lifecycle.Timeline(ctx, created.Franchise.ID)
	require.ErrorIs(t, err, domain.ErrTimelineNotFound)
}

func TestEvaluateFundingRunsAtMostOnce(t *testing.T) {
	env := fixture.New(t)
	ctx := context.Background()
	created := env.Franchise(t, env.Franchiser(t, "Acme"), "1000", "200", "500", "300")

	// Fund through the ledger directly so every evaluation races on the
	// same transition.
	inv, err := env.Investments.Load(ctx, env.DB, created.Franchise.ID)
	require.NoError(t, err)
	_, err = env.Investments.RecordPurchase(ctx, env.DB, inv, decimal.NewFromInt(1000), 10)
	require.NoError(t, err)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		moved int
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := env.Lifecycle.EvaluateFunding(ctx, created.Franchise.ID)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				moved++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, moved)

	treasury, err := env.Wallets.BrandBalance(ctx, created.Franchise.FranchiserID)
	require.NoError(t, err)
	assert.True(t, treasury.Balance.Equal(decimal.NewFromInt(700)), treasury.Balance.String())
}

func TestMarkOngoingAndClosure(t *testing.T) {
	env := fixture.New(t)
	ctx := context.Background()
	created := env.Franchise(t, env.Franchiser(t, "Acme"), "100000", "20000", "50000", "30000")

	_, err := env.Lifecycle.MarkOngoing(ctx, created.Franchise.ID, "")
	require.ErrorIs(t, err, guard.ErrStageNotExpected)

	_, err = env.Buy(ctx, created.Franchise.ID, "inv-1", "100000", "")
	require.NoError(t, err)

	env.Clock.Advance(30 * 24 * time.Hour)
	record, err := env.Lifecycle.MarkOngoing(ctx, created.Franchise.ID, "Doors open")
	require.NoError(t, err)
	assert.Equal(t, franchisedomain.StageOngoing, record.Stage)
	assert.Equal(t, domain.SubStageOperational, record.SubStage)
	assert.InDelta(t, 50.0, record.Progress, 0.001)

	timeline, err := env.Lifecycle.Timeline(ctx, created.Franchise.ID)
	require.NoError(t, err)
	require.NotNil(t, timeline.LaunchedAt)

	closed, err := env.Lifecycle.CheckClosure(ctx, created.Franchise.ID)
	require.NoError(t, err)
	assert.False(t, closed)

	operating, err := env.Wallets.FindOperating(ctx, env.DB, created.Franchise.ID)
	require.NoError(t, err)
	require.NotNil(t, operating)
	_, err = env.Wallets.Debit(ctx, walletdomain.MovementRequest{
		WalletID:    operating.ID,
		Amount:      decimal.NewFromInt(30000),
		Description: "rent",
	})
	require.NoError(t, err)

	closed, err = env.Lifecycle.CheckClosure(ctx, created.Franchise.ID)
	require.NoError(t, err)
	assert.True(t, closed)

	current, err := env.Lifecycle.Current(ctx, created.Franchise.ID)
	require.NoError(t, err)
	assert.Equal(t, franchisedomain.StageClosed, current.Stage)
	assert.Equal(t, domain.SubStageCompleted, current.SubStage)
	assert.InDelta(t, 100.0, current.Progress, 0.001)

	franchise, err := env.Franchises.GetByID(ctx, created.Franchise.ID)
	require.NoError(t, err)
	assert.Equal(t, franchisedomain.StageClosed, franchise.Stage)
	assert.NotNil(t, franchise.CompletedAt)

	closed, err = env.Lifecycle.CheckClosure(ctx, created.Franchise.ID)
	require.NoError(t, err)
	assert.False(t, closed)

	history, err := env.Lifecycle.History(ctx, created.Franchise.ID)
	require.NoError(t, err)
	assert.Equal(t, []franchisedomain.Stage{
		franchisedomain.StageFunding,
		franchisedomain.StageLaunching,
		franchisedomain.StageOngoing,
		franchisedomain.StageClosed,
	}, stages(history))
}

func TestUpdateSubStage(t *testing.T) {
	env := fixture.New(t)
	ctx := context.Background()
	created := env.Franchise(t, env.Franchiser(t, "Acme"), "1000", "200", "500", "300")

	_, err := env.Lifecycle.UpdateSubStage(ctx, domain.UpdateSubStageRequest{
		FranchiseID: created.Franchise.ID,
		SubStage:    domain.SubStageSettingUp,
	})
	require.ErrorIs(t, err, domain.ErrInvalidSubStage)

	_, err = env.Buy(ctx, created.Franchise.ID, "inv-1", "1000", "")
	require.NoError(t, err)

	bad := 120.0
	_, err = env.Lifecycle.UpdateSubStage(ctx, domain.UpdateSubStageRequest{
		FranchiseID: created.Franchise.ID,
		SubStage:    domain.SubStageSettingUp,
		Progress:    &bad,
	})
	require.ErrorIs(t, err, domain.ErrInvalidProgress)

	progress := 40.0
	record, err := env.Lifecycle.UpdateSubStage(ctx, domain.UpdateSubStageRequest{
		FranchiseID: created.Franchise.ID,
		SubStage:    domain.SubStageSettingUp,
		Progress:    &progress,
		Notes:       "Fit-out underway",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SubStageSettingUp, record.SubStage)

	current, err := env.Lifecycle.Current(ctx, created.Franchise.ID)
	require.NoError(t, err)
	assert.Equal(t, franchisedomain.StageLaunching, current.Stage)
	assert.Equal(t, domain.SubStageSettingUp, current.SubStage)
	assert.InDelta(t, 40.0, current.Progress, 0.001)
	assert.Equal(t, "Fit-out underway", current.Notes)
}

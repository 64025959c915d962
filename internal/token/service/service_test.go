package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/franchisefund/internal/clock"
	"github.com/smallbiznis/franchisefund/internal/config"
	"github.com/smallbiznis/franchisefund/internal/testing/dbtest"
	"github.com/smallbiznis/franchisefund/internal/token/domain"
	"github.com/smallbiznis/franchisefund/internal/token/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) Mint(ctx context.Context, req domain.MintRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *mockClient) Burn(ctx context.Context, req domain.BurnRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

type harness struct {
	db     *gorm.DB
	clock  *clock.FakeClock
	client *mockClient
	svc    *Service
}

func newHarness(t *testing.T, maxAttempts int) *harness {
	t.Helper()
	policy := config.DefaultFundingPolicy()
	policy.TokenMaxAttempts = maxAttempts

	h := &harness{
		db:     dbtest.Open(t),
		clock:  clock.NewFakeClock(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)),
		client: &mockClient{},
	}
	h.svc = New(Params{
		DB:     h.db,
		Log:    zap.NewNop(),
		GenID:  dbtest.Node(t),
		Repo:   repository.Provide(),
		Client: h.client,
		Clock:  h.clock,
		Policy: config.NewFundingPolicyHolderFrom(policy),
	}).(*Service)
	return h
}

func (h *harness) enqueue(t *testing.T, kind domain.Kind, key string) domain.Operation {
	t.Helper()
	op, err := h.svc.Enqueue(context.Background(), h.db, domain.EnqueueRequest{
		FranchiseID:    snowflake.ID(10),
		ShareID:        snowflake.ID(20),
		InvestorID:     "inv-1",
		Kind:           kind,
		Amount:         5,
		TotalValue:     decimal.NewFromInt(500),
		IdempotencyKey: key,
	})
	require.NoError(t, err)
	return op
}

func TestEnqueueIsIdempotent(t *testing.T) {
	h := newHarness(t, 3)

	first := h.enqueue(t, domain.KindMint, "mint:20")
	second := h.enqueue(t, domain.KindMint, "mint:20")
	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, h.db.Model(&domain.Operation{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestEnqueueValidation(t *testing.T) {
	h := newHarness(t, 3)
	ctx := context.Background()

	_, err := h.svc.Enqueue(ctx, h.db, domain.EnqueueRequest{Kind: "transfer", IdempotencyKey: "k"})
	require.ErrorIs(t, err, domain.ErrInvalidKind)

	_, err = h.svc.Enqueue(ctx, h.db, domain.EnqueueRequest{Kind: domain.KindBurn, IdempotencyKey: " "})
	require.ErrorIs(t, err, domain.ErrInvalidKey)
}

func TestDispatchSucceeds(t *testing.T) {
	h := newHarness(t, 3)
	op := h.enqueue(t, domain.KindMint, "mint:20")

	h.client.On("Mint", mock.Anything, mock.MatchedBy(func(req domain.MintRequest) bool {
		return req.IdempotencyKey == "mint:20" && req.Amount == 5 && req.FranchiseID == "10"
	})).Return(nil).Once()

	require.NoError(t, h.svc.Dispatch(context.Background(), op.ID))
	require.NoError(t, h.svc.Dispatch(context.Background(), op.ID))

	stored, err := h.svc.Get(context.Background(), op.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSucceeded, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
	assert.NotNil(t, stored.CompletedAt)
	h.client.AssertExpectations(t)
}

func TestDispatchPendingRetriesUntilDeadLetter(t *testing.T) {
	h := newHarness(t, 3)
	ctx := context.Background()
	op := h.enqueue(t, domain.KindBurn, "burn:20")

	h.client.On("Burn", mock.Anything, mock.Anything).Return(errors.New("unavailable"))

	result, err := h.svc.DispatchPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, domain.DispatchResult{Processed: 1, Failed: 1}, result)

	result, err = h.svc.DispatchPending(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, result.Processed, "backoff keeps the operation out of the due set")

	h.clock.Advance(5 * time.Second)
	result, err = h.svc.DispatchPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, domain.DispatchResult{Processed: 1, Failed: 1}, result)

	h.clock.Advance(10 * time.Second)
	result, err = h.svc.DispatchPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, domain.DispatchResult{Processed: 1, Dead: 1}, result)

	stored, err := h.svc.Get(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDead, stored.Status)
	assert.Equal(t, 3, stored.Attempts)
	assert.Equal(t, "unavailable", stored.LastError)

	h.clock.Advance(time.Hour)
	result, err = h.svc.DispatchPending(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, result.Processed)
	h.client.AssertNumberOfCalls(t, "Burn", 3)
}

func TestEmitDeliversInBackground(t *testing.T) {
	h := newHarness(t, 3)
	op := h.enqueue(t, domain.KindMint, "mint:20")
	h.client.On("Mint", mock.Anything, mock.Anything).Return(nil).Once()

	h.svc.Emit(op.ID)
	h.svc.Wait()

	stored, err := h.svc.Get(context.Background(), op.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSucceeded, stored.Status)
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	assert.Equal(t, 5*time.Second, backoff(1))
	assert.Equal(t, 10*time.Second, backoff(2))
	assert.Equal(t, 20*time.Second, backoff(3))
	assert.Equal(t, maxBackoff, backoff(20))
}

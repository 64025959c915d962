package ratelimit

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/franchisefund/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestPurchaseLimiterExhaustsBurstPerInvestor(t *testing.T) {
	limiter := newPurchaseLimiter(newRedis(t), 0.01, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := limiter.AllowInvestor(ctx, "inv-1")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "attempt %d", i)
	}

	res, err := limiter.AllowInvestor(ctx, "inv-1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 2, res.Limit)
	assert.Positive(t, res.RetryAfter)

	other, err := limiter.AllowInvestor(ctx, "inv-2")
	require.NoError(t, err)
	assert.True(t, other.Allowed)
}

func TestNilPurchaseLimiterAllows(t *testing.T) {
	var limiter *PurchaseLimiter
	res, err := limiter.AllowInvestor(context.Background(), "inv-1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestNewPurchaseLimiterNeedsRedisAndPositiveLimits(t *testing.T) {
	client := newRedis(t)
	enabled := config.Config{RateLimit: config.RateLimitConfig{Enabled: true, PurchaseRate: 1, PurchaseBurst: 5}}

	assert.Nil(t, NewPurchaseLimiter(Params{Cfg: config.Config{}, Log: zap.NewNop(), Redis: client}))
	assert.Nil(t, NewPurchaseLimiter(Params{Cfg: enabled, Log: zap.NewNop()}))

	zeroBurst := enabled
	zeroBurst.RateLimit.PurchaseBurst = 0
	assert.Nil(t, NewPurchaseLimiter(Params{Cfg: zeroBurst, Log: zap.NewNop(), Redis: client}))

	limiter := NewPurchaseLimiter(Params{Cfg: enabled, Log: zap.NewNop(), Redis: client})
	require.NotNil(t, limiter)
	assert.True(t, limiter.Enabled())
}

func TestTokenBucketRejectsBadArguments(t *testing.T) {
	bucket := NewTokenBucket(newRedis(t))
	ctx := context.Background()

	_, err := bucket.Allow(ctx, "", 1, 1)
	require.Error(t, err)
	_, err = bucket.Allow(ctx, "k", 0, 1)
	require.Error(t, err)
	_, err = bucket.Allow(ctx, "k", 1, 0)
	require.Error(t, err)
}

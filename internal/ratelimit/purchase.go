package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/franchisefund/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyPurchaseInvestor = "purchase:investor:%s"

// PurchaseLimiter throttles share purchases per investor. A nil limiter
// allows everything.
type PurchaseLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

type Params struct {
	fx.In

	Cfg   config.Config
	Log   *zap.Logger
	Redis *redis.Client `optional:"true"`
}

// NewPurchaseLimiter returns nil when rate limiting is off or redis is not
// configured.
func NewPurchaseLimiter(p Params) *PurchaseLimiter {
	limitCfg := p.Cfg.RateLimit
	if !limitCfg.Enabled {
		return nil
	}
	if p.Redis == nil {
		p.Log.Warn("purchase rate limit enabled without redis, limiter disabled")
		return nil
	}
	if limitCfg.PurchaseRate <= 0 || limitCfg.PurchaseBurst <= 0 {
		p.Log.Warn("purchase rate limit must be positive, limiter disabled",
			zap.Float64("rate", limitCfg.PurchaseRate),
			zap.Int("burst", limitCfg.PurchaseBurst),
		)
		return nil
	}
	return newPurchaseLimiter(p.Redis, limitCfg.PurchaseRate, limitCfg.PurchaseBurst)
}

func newPurchaseLimiter(client *redis.Client, rate float64, burst int) *PurchaseLimiter {
	return &PurchaseLimiter{
		bucket: NewTokenBucket(client),
		rate:   rate,
		burst:  burst,
	}
}

func (l *PurchaseLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *PurchaseLimiter) AllowInvestor(ctx context.Context, investorID string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyPurchaseInvestor, strings.TrimSpace(investorID)), l.rate, l.burst)
}

package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/franchisefund/internal/apperror"
	"github.com/smallbiznis/franchisefund/internal/cache"
	"go.uber.org/zap"
)

const (
	cacheKey        = "franchisefund:pricefeed:usd"
	defaultCacheTTL = time.Minute
	maxBodyBytes    = 1 << 16
)

type feedResponse struct {
	USD decimal.Decimal `json:"usd"`
}

// HTTPProvider reads the rate from a JSON feed, caches it and falls back to
// another provider when the feed is unavailable.
type HTTPProvider struct {
	url      string
	client   *http.Client
	redis    *redis.Client
	local    cache.Cache[string, Quote]
	ttl      time.Duration
	fallback Provider
	log      *zap.Logger
	now      func() time.Time
}

type HTTPProviderConfig struct {
	URL      string
	Timeout  time.Duration
	CacheTTL time.Duration
}

func NewHTTPProvider(cfg HTTPProviderConfig, redisClient *redis.Client, fallback Provider, log *zap.Logger) *HTTPProvider {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPProvider{
		url:      cfg.URL,
		client:   &http.Client{Timeout: timeout},
		redis:    redisClient,
		local:    cache.NewTTLCache[string, Quote](),
		ttl:      ttl,
		fallback: fallback,
		log:      log,
		now:      time.Now,
	}
}

func (p *HTTPProvider) Rate(ctx context.Context) (Quote, error) {
	if quote, ok := p.cached(ctx); ok {
		return quote, nil
	}

	quote, err := p.fetch(ctx)
	if err == nil {
		p.store(ctx, quote)
		return quote, nil
	}

	if p.fallback == nil {
		return Quote{}, err
	}
	p.log.Warn("price feed unavailable, using fallback rate", zap.String("url", p.url), zap.Error(err))
	return p.fallback.Rate(ctx)
}

func (p *HTTPProvider) cached(ctx context.Context) (Quote, bool) {
	if p.redis != nil {
		raw, err := p.redis.Get(ctx, cacheKey).Result()
		if err == nil {
			rate, parseErr := decimal.NewFromString(raw)
			if parseErr == nil && rate.IsPositive() {
				return Quote{Rate: rate, Source: SourceCache, FetchedAt: p.now().UTC()}, true
			}
		} else if err != redis.Nil {
			p.log.Debug("price cache read failed", zap.Error(err))
		}
	}

	if quote, ok := p.local.Get(cacheKey); ok {
		quote.Source = SourceCache
		return quote, true
	}
	return Quote{}, false
}

func (p *HTTPProvider) store(ctx context.Context, quote Quote) {
	p.local.Set(cacheKey, quote, p.ttl)
	if p.redis == nil {
		return
	}
	if err := p.redis.Set(ctx, cacheKey, quote.Rate.String(), p.ttl).Err(); err != nil {
		p.log.Debug("price cache write failed", zap.Error(err))
	}
}

func (p *HTTPProvider) fetch(ctx context.Context) (Quote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return Quote{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Quote{}, apperror.ErrExternalServiceFailure.Wrap(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Quote{}, apperror.ExternalServiceFailure("price_feed_status",
			fmt.Sprintf("price feed returned status %d", resp.StatusCode))
	}

	var body feedResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&body); err != nil {
		return Quote{}, apperror.ErrExternalServiceFailure.Wrap(err)
	}
	if !body.USD.IsPositive() {
		return Quote{}, ErrInvalidRate
	}
	return Quote{Rate: body.USD, Source: SourceFeed, FetchedAt: p.now().UTC()}, nil
}

package pricefeed

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/franchisefund/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Cfg    config.Config
	Log    *zap.Logger
	Policy *config.FundingPolicyHolder
	Redis  *redis.Client `optional:"true"`
}

func New(p Params) Provider {
	static := NewStaticProvider(p.Policy)
	if p.Cfg.PriceFeed.URL == "" {
		return static
	}
	return NewHTTPProvider(HTTPProviderConfig{
		URL:      p.Cfg.PriceFeed.URL,
		Timeout:  p.Cfg.PriceFeed.Timeout,
		CacheTTL: p.Cfg.PriceFeed.CacheTTL,
	}, p.Redis, static, p.Log.Named("pricefeed"))
}

var Module = fx.Module("pricefeed",
	fx.Provide(New),
)

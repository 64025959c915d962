package pricefeed

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/franchisefund/internal/apperror"
	"github.com/smallbiznis/franchisefund/internal/config"
)

const (
	SourceStatic = "static"
	SourceFeed   = "feed"
	SourceCache  = "cache"
)

// Quote is a USD price for one native unit.
type Quote struct {
	Rate      decimal.Decimal `json:"rate"`
	Source    string          `json:"source"`
	FetchedAt time.Time       `json:"fetched_at"`
}

type Provider interface {
	Rate(ctx context.Context) (Quote, error)
}

var ErrInvalidRate = apperror.ExternalServiceFailure("invalid_exchange_rate", "price feed returned a non-positive rate")

// StaticProvider serves the configured rate, following policy reloads.
type StaticProvider struct {
	policy *config.FundingPolicyHolder
	now    func() time.Time
}

func NewStaticProvider(policy *config.FundingPolicyHolder) *StaticProvider {
	return &StaticProvider{policy: policy, now: time.Now}
}

func (p *StaticProvider) Rate(ctx context.Context) (Quote, error) {
	rate := p.policy.Get().StaticRate()
	if !rate.IsPositive() {
		return Quote{}, ErrInvalidRate
	}
	return Quote{Rate: rate, Source: SourceStatic, FetchedAt: p.now().UTC()}, nil
}

package token

import (
	"context"

	"github.com/smallbiznis/franchisefund/internal/config"
	"github.com/smallbiznis/franchisefund/internal/token/client"
	"github.com/smallbiznis/franchisefund/internal/token/domain"
	"github.com/smallbiznis/franchisefund/internal/token/repository"
	"github.com/smallbiznis/franchisefund/internal/token/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewClient picks the HTTP client when a token service URL is configured.
func NewClient(cfg config.Config, log *zap.Logger) domain.Client {
	if cfg.TokenService.BaseURL == "" {
		return client.NewNoopClient(log.Named("token.client"))
	}
	return client.NewHTTPClient(client.HTTPConfig{
		BaseURL: cfg.TokenService.BaseURL,
		APIKey:  cfg.TokenService.APIKey,
		Timeout: cfg.TokenService.Timeout,
	}, log.Named("token.client"))
}

// drainOnStop waits for in-flight background deliveries before shutdown.
func drainOnStop(lc fx.Lifecycle, svc domain.Service) {
	waiter, ok := svc.(interface{ Wait() })
	if !ok {
		return
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			done := make(chan struct{})
			go func() {
				waiter.Wait()
				close(done)
			}()
			select {
			case <-done:
			case <-ctx.Done():
			}
			return nil
		},
	})
}

var Module = fx.Module("token.service",
	fx.Provide(NewClient),
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Invoke(drainOnStop),
)

package distribution

import (
	"github.com/smallbiznis/franchisefund/internal/distribution/service"
	"go.uber.org/fx"
)

var Module = fx.Module("distribution.service",
	fx.Provide(service.New),
)

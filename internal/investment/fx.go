package investment

import (
	"github.com/smallbiznis/franchisefund/internal/investment/repository"
	"github.com/smallbiznis/franchisefund/internal/investment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("investment.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)

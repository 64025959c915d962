package franchise

import (
	"github.com/smallbiznis/franchisefund/internal/franchise/repository"
	"github.com/smallbiznis/franchisefund/internal/franchise/service"
	"go.uber.org/fx"
)

var Module = fx.Module("franchise.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)

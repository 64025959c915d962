package share

import (
	"github.com/smallbiznis/franchisefund/internal/share/repository"
	"github.com/smallbiznis/franchisefund/internal/share/service"
	"go.uber.org/fx"
)

var Module = fx.Module("share.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)

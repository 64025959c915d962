package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/franchisefund/internal/cache"
	"github.com/smallbiznis/franchisefund/internal/clock"
	"github.com/smallbiznis/franchisefund/internal/config"
	"github.com/smallbiznis/franchisefund/internal/distribution"
	"github.com/smallbiznis/franchisefund/internal/franchise"
	"github.com/smallbiznis/franchisefund/internal/investment"
	"github.com/smallbiznis/franchisefund/internal/lifecycle"
	"github.com/smallbiznis/franchisefund/internal/lock"
	"github.com/smallbiznis/franchisefund/internal/migration"
	"github.com/smallbiznis/franchisefund/internal/observability"
	"github.com/smallbiznis/franchisefund/internal/pricefeed"
	"github.com/smallbiznis/franchisefund/internal/scheduler"
	"github.com/smallbiznis/franchisefund/internal/share"
	"github.com/smallbiznis/franchisefund/internal/token"
	"github.com/smallbiznis/franchisefund/internal/wallet"
	"github.com/smallbiznis/franchisefund/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		cache.Module,
		lock.Module,
		pricefeed.Module,

		// Domain services required by scheduler
		token.Module,
		investment.Module,
		wallet.Module,
		distribution.Module,
		lifecycle.Module,
		franchise.Module,
		share.Module,

		// No server module!
		scheduler.Module,
	)
	app.Run()
}

// RegisterSnowflake uses node 2 so scheduler and api ids never collide.
func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}

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
	"github.com/smallbiznis/franchisefund/internal/ratelimit"
	"github.com/smallbiznis/franchisefund/internal/scheduler"
	"github.com/smallbiznis/franchisefund/internal/server"
	"github.com/smallbiznis/franchisefund/internal/share"
	"github.com/smallbiznis/franchisefund/internal/token"
	"github.com/smallbiznis/franchisefund/internal/wallet"
	"github.com/smallbiznis/franchisefund/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		cache.Module,
		lock.Module,
		pricefeed.Module,
		ratelimit.Module,

		// Functional Domains
		token.Module,
		investment.Module,
		wallet.Module,
		distribution.Module,
		lifecycle.Module,
		franchise.Module,
		share.Module,

		// The monolith serves the API and runs the reconciliation jobs.
		scheduler.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

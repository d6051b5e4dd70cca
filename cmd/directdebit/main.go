package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/directdebit/internal/checkout"
	"github.com/smallbiznis/directdebit/internal/clock"
	"github.com/smallbiznis/directdebit/internal/config"
	"github.com/smallbiznis/directdebit/internal/gateway"
	"github.com/smallbiznis/directdebit/internal/instalment"
	"github.com/smallbiznis/directdebit/internal/lock"
	"github.com/smallbiznis/directdebit/internal/mandate"
	"github.com/smallbiznis/directdebit/internal/metricspush"
	"github.com/smallbiznis/directdebit/internal/migration"
	"github.com/smallbiznis/directdebit/internal/observability"
	"github.com/smallbiznis/directdebit/internal/payment"
	"github.com/smallbiznis/directdebit/internal/ratelimit"
	"github.com/smallbiznis/directdebit/internal/scheduler"
	"github.com/smallbiznis/directdebit/internal/server"
	"github.com/smallbiznis/directdebit/pkg/db"
	"go.uber.org/fx"
)

// Monolith: HTTP API, webhook endpoint and the instalment poller in one process.
func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		metricspush.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		lock.Module,
		ratelimit.Module,
		gateway.Module,

		// Functional Domains
		mandate.Module,
		payment.Module,
		instalment.Module,
		checkout.Module,
		scheduler.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}

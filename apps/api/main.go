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
	"github.com/smallbiznis/directdebit/internal/migration"
	"github.com/smallbiznis/directdebit/internal/observability"
	"github.com/smallbiznis/directdebit/internal/payment"
	"github.com/smallbiznis/directdebit/internal/ratelimit"
	"github.com/smallbiznis/directdebit/internal/server"
	"github.com/smallbiznis/directdebit/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		lock.Module,
		ratelimit.Module,
		gateway.Module,

		// Checkout enqueues instalment tasks; polling runs in apps/poller.
		mandate.Module,
		payment.Module,
		instalment.Module,
		checkout.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}

package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/directdebit/internal/clock"
	"github.com/smallbiznis/directdebit/internal/config"
	"github.com/smallbiznis/directdebit/internal/gateway"
	"github.com/smallbiznis/directdebit/internal/instalment"
	"github.com/smallbiznis/directdebit/internal/lock"
	"github.com/smallbiznis/directdebit/internal/metricspush"
	"github.com/smallbiznis/directdebit/internal/observability"
	"github.com/smallbiznis/directdebit/internal/payment"
	"github.com/smallbiznis/directdebit/internal/scheduler"
	"github.com/smallbiznis/directdebit/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		metricspush.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		lock.Module,
		gateway.Module,

		// Domain services required by the poller
		payment.Module,
		instalment.Module,

		// No server module!
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}

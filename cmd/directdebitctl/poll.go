package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/directdebit/internal/clock"
	"github.com/smallbiznis/directdebit/internal/config"
	"github.com/smallbiznis/directdebit/internal/gateway"
	"github.com/smallbiznis/directdebit/internal/instalment"
	"github.com/smallbiznis/directdebit/internal/lock"
	"github.com/smallbiznis/directdebit/internal/observability"
	"github.com/smallbiznis/directdebit/internal/payment"
	"github.com/smallbiznis/directdebit/internal/scheduler"
	"github.com/smallbiznis/directdebit/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func pollOnceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "poll-once",
		Short: "Run a single instalment poll batch and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			batch, _ := cmd.Flags().GetInt("batch")

			var sched *scheduler.Scheduler
			app := fx.New(
				fx.NopLogger,
				config.Module,
				observability.Module,
				fx.Provide(func(cfg config.Config) (*snowflake.Node, error) {
					return snowflake.NewNode(cfg.NodeID)
				}),
				db.Module,
				clock.Module,
				lock.Module,
				gateway.Module,
				payment.Module,
				instalment.Module,
				scheduler.Module,
				// The ticker loop stays off; this command drives one batch itself.
				fx.Decorate(func(cfg config.Config) config.Config {
					cfg.Poller.Enabled = false
					if batch > 0 {
						cfg.Poller.BatchSize = batch
					}
					return cfg
				}),
				fx.Populate(&sched),
			)
			if err := app.Err(); err != nil {
				return fmt.Errorf("poll-once: %w", err)
			}

			startCtx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := app.Start(startCtx); err != nil {
				return err
			}
			defer func() {
				stopCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
				defer stop()
				_ = app.Stop(stopCtx)
			}()

			if err := sched.RunOnce(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "poll batch complete")
			return nil
		},
	}

	cmd.Flags().Int("batch", 0, "Override the configured batch size")
	return cmd
}

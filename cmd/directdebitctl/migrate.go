package main

import (
	"context"
	"fmt"
	"time"

	"github.com/smallbiznis/directdebit/internal/config"
	"github.com/smallbiznis/directdebit/internal/migration"
	"github.com/smallbiznis/directdebit/internal/observability"
	"github.com/smallbiznis/directdebit/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			timeout, _ := cmd.Flags().GetDuration("timeout")

			// Migrations run from fx.Invoke during construction.
			app := fx.New(
				fx.NopLogger,
				config.Module,
				observability.Module,
				db.Module,
				fx.Decorate(func(cfg config.Config) config.Config {
					cfg.DBAutoMigrate = true
					return cfg
				}),
				migration.Module,
			)
			if err := app.Err(); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := app.Start(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return app.Stop(ctx)
		},
	}

	cmd.Flags().Duration("timeout", time.Minute, "Time allowed for startup and shutdown")
	return cmd
}

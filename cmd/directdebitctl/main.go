package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

// Operator tooling that runs outside the long-lived processes.
func main() {
	rootCmd := &cobra.Command{
		Use:           "directdebitctl",
		Short:         "Operate the direct debit service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(pollOnceCmd())
	rootCmd.AddCommand(signWebhookCmd())
	rootCmd.AddCommand(verifyWebhookCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

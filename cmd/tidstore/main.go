// Package main provides the entry point for the tidstore CLI application.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	version      = "0.1.0-dev"
	verbose      bool
	outputFormat string
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "tidstore",
		Short:         "An entity-statement store with a versioned entity data cache",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(validFormats, outputFormat) {
				return fmt.Errorf("invalid output format %q, valid formats: %v", outputFormat, validFormats)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", formatText, "Output format (text, json)")

	rootCmd.AddCommand(
		newInitCmd(),
		newIDCmd(),
		newStatementCmd(),
		newQueryCmd(),
		newEntityCmd(),
		newCacheCmd(),
	)

	return rootCmd
}

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ersonp/tidstore/internal/application/handlers"
	"github.com/ersonp/tidstore/internal/infrastructure/config"
	"github.com/ersonp/tidstore/internal/infrastructure/logging"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize a new tidstore",
		Long:  "Creates a .tidstore directory with default configuration and provisions the configured tables and collections.",
		Args:  cobra.NoArgs,
		RunE:  runInit,
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	handler := handlers.NewInitHandler(provisionBackends)
	result, err := handler.Handle(cmd.Context(), cwd)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Created %s\n", result.ConfigPath)
	for _, p := range result.Provisioned {
		fmt.Fprintf(w, "Provisioned %s\n", p)
	}
	fmt.Fprintln(w, "tidstore initialized successfully!")
	return nil
}

func provisionBackends(ctx context.Context, cfg *config.Config) ([]string, error) {
	logger, err := logging.New(cfg.Log, verbose)
	if err != nil {
		return nil, err
	}
	defer func() { _ = logger.Sync() }()

	b := newBackends(cfg, logger)
	defer b.Close()

	return b.provision(ctx)
}

package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var errNoCache = errors.New("no entity data cache configured (cache.backend is none)")

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Maintain the entity data cache",
	}

	cmd.AddCommand(
		newCacheCleanCmd(),
		newCacheClearCmd(),
		newCacheInvalidateCmd(),
	)

	return cmd
}

func newCacheCleanCmd() *cobra.Command {
	var keepVersions bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove expired and outdated entries",
		Long: `Remove expired entries and entries stored under a data id other than the
configured cache.data_id.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withDeps(ctx, func(d *Deps) error {
				if d.CacheHandler == nil {
					return errNoCache
				}
				if err := d.CacheHandler.HandleClean(ctx, keepVersions); err != nil {
					return fmt.Errorf("cleaning cache: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Cache cleaned.")
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&keepVersions, "keep-versions", false, "Keep entries of other data ids")

	return cmd
}

func newCacheClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withDeps(ctx, func(d *Deps) error {
				if d.CacheHandler == nil {
					return errNoCache
				}
				if err := d.CacheHandler.HandleClear(ctx); err != nil {
					return fmt.Errorf("clearing cache: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared.")
				return nil
			})
		},
	}
}

func newCacheInvalidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate <id>...",
		Short: "Drop the entries of some entities",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withDeps(ctx, func(d *Deps) error {
				if d.CacheHandler == nil {
					return errNoCache
				}
				ids, err := d.CacheHandler.HandleInvalidate(ctx, args)
				if err != nil {
					return fmt.Errorf("invalidating cache entries: %w", err)
				}
				return render(cmd, ids, func(w io.Writer) {
					fmt.Fprintf(w, "Invalidated %d entries.\n", len(ids))
				})
			})
		},
	}
}

package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ersonp/tidstore/internal/domain/entities"
)

func newIDCmd() *cobra.Command {
	var (
		count  int
		base36 bool
	)

	cmd := &cobra.Command{
		Use:   "id",
		Short: "Generate unique ids",
		Long: `Generate ids that have never been issued before.

Examples:
  tidstore id
  tidstore id -n 5 --base36`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runID(cmd, count, base36)
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of ids to generate")
	cmd.Flags().BoolVar(&base36, "base36", false, "Print ids in base 36")

	return cmd
}

func runID(cmd *cobra.Command, count int, base36 bool) error {
	if count < 1 {
		return fmt.Errorf("count must be positive, got %d", count)
	}
	ctx := cmd.Context()

	return withDeps(ctx, func(d *Deps) error {
		ids := make([]entities.Tid, 0, count)
		for range count {
			id, err := d.StatementHandler.HandleGenerateID(ctx)
			if err != nil {
				return fmt.Errorf("generating id: %w", err)
			}
			ids = append(ids, id)
		}

		return render(cmd, ids, func(w io.Writer) {
			for _, id := range ids {
				if base36 {
					fmt.Fprintln(w, id.Base36(true))
				} else {
					fmt.Fprintln(w, id)
				}
			}
		})
	})
}

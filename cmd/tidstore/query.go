package main

import (
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/ersonp/tidstore/internal/application/handlers"
)

func newQueryCmd() *cobra.Command {
	var params handlers.QueryParams

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Find statements",
		Long: `Find the statements matching every given filter, oldest first.

Examples:
  tidstore query --subject 100
  tidstore query --predicate type --object e:person
  tidstore query --subject 100 --all`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if params.Subject == "" && params.Predicate == "" && params.Object == "" {
				return errors.New("at least one of --subject, --predicate or --object is required")
			}
			ctx := cmd.Context()

			return withDeps(ctx, func(d *Deps) error {
				result, err := d.QueryHandler.Handle(ctx, params)
				if err != nil {
					return err
				}
				return render(cmd, result.Statements, func(w io.Writer) {
					printStatements(w, result.Statements)
				})
			})
		},
	}

	cmd.Flags().StringVarP(&params.Subject, "subject", "s", "", "Subject id")
	cmd.Flags().StringVarP(&params.Predicate, "predicate", "p", "", "Predicate id")
	cmd.Flags().StringVar(&params.Object, "object", "", "Object")
	cmd.Flags().BoolVarP(&params.IncludeCancelled, "all", "a", false, "Include cancelled statements")

	return cmd
}

package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ersonp/tidstore/internal/application/handlers"
	"github.com/ersonp/tidstore/internal/domain/entities"
)

func newEntityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entity",
		Short: "Work with typed entities",
		Long: `Entities are subjects with a type and a name. Their data is served from
the entity data cache and rebuilt from statements on a miss.`,
	}

	cmd.AddCommand(
		newEntityCreateCmd(),
		newEntityShowCmd(),
		newEntityRenameCmd(),
		newEntityMergeCmd(),
		newEntityListCmd(),
	)

	return cmd
}

func newEntityCreateCmd() *cobra.Command {
	var (
		author string
		meta   []string
	)

	cmd := &cobra.Command{
		Use:   "create <type> <name>",
		Short: "Create an entity",
		Long: `Create an entity and print its id.

Examples:
  tidstore entity create person "Averroes" --author 300
  tidstore entity create work "Tahafut al-Tahafut" --author 300 -m description=s:Rebuttal`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withDeps(ctx, func(d *Deps) error {
				id, err := d.EntityHandler.HandleCreate(ctx, handlers.CreateRequest{
					Type:     args[0],
					Name:     args[1],
					Author:   author,
					Metadata: meta,
				})
				if err != nil {
					return fmt.Errorf("creating entity: %w", err)
				}
				return render(cmd, map[string]entities.Tid{"id": id}, func(w io.Writer) {
					fmt.Fprintln(w, id)
				})
			})
		},
	}

	cmd.Flags().StringVar(&author, "author", "", "Author id")
	cmd.Flags().StringArrayVarP(&meta, "meta", "m", nil, "Extra statements as predicate=object (repeatable)")
	_ = cmd.MarkFlagRequired("author")

	return cmd
}

func newEntityShowCmd() *cobra.Command {
	var noFollow bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show the data of an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withDeps(ctx, func(d *Deps) error {
				view, err := d.EntityHandler.HandleShow(ctx, args[0], !noFollow)
				if err != nil {
					return err
				}
				return render(cmd, view, func(w io.Writer) {
					printEntity(w, view)
				})
			})
		},
	}

	cmd.Flags().BoolVar(&noFollow, "no-follow", false, "Show a merged entity instead of the entity it was merged into")

	return cmd
}

func newEntityRenameCmd() *cobra.Command {
	var author, note string

	cmd := &cobra.Command{
		Use:   "rename <id> <name>",
		Short: "Give an entity a new name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withDeps(ctx, func(d *Deps) error {
				if err := d.EntityHandler.HandleRename(ctx, args[0], args[1], author, note); err != nil {
					return fmt.Errorf("renaming entity: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s to %q\n", args[0], args[1])
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&author, "author", "", "Author id")
	cmd.Flags().StringVar(&note, "note", "", "Editorial note")
	_ = cmd.MarkFlagRequired("author")

	return cmd
}

func newEntityMergeCmd() *cobra.Command {
	var author, note string

	cmd := &cobra.Command{
		Use:   "merge <id> <into>",
		Short: "Merge an entity into another",
		Long: `Record that an entity is a duplicate of another. Lookups of the merged
entity are redirected to the entity it was merged into.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withDeps(ctx, func(d *Deps) error {
				if err := d.EntityHandler.HandleMerge(ctx, args[0], args[1], author, note); err != nil {
					return fmt.Errorf("merging entity: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Merged %s into %s\n", args[0], args[1])
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&author, "author", "", "Author id")
	cmd.Flags().StringVar(&note, "note", "", "Editorial note")
	_ = cmd.MarkFlagRequired("author")

	return cmd
}

func newEntityListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <type>",
		Short: "List the entities of a type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withDeps(ctx, func(d *Deps) error {
				result, err := d.EntityHandler.HandleList(ctx, args[0])
				if err != nil {
					return fmt.Errorf("listing entities: %w", err)
				}
				return render(cmd, result, func(w io.Writer) {
					if result.Total == 0 {
						fmt.Fprintln(w, "No entities found.")
						return
					}
					fmt.Fprintf(w, "Entities (%d total):\n\n", result.Total)
					for _, e := range result.Entities {
						fmt.Fprintf(w, "  %-16s %s\n", e.ID, e.Name)
					}
				})
			})
		},
	}
}

func printEntity(w io.Writer, view *handlers.EntityView) {
	data := view.Data
	if view.RedirectedFrom != 0 {
		fmt.Fprintf(w, "(%s was merged into %s)\n", view.RedirectedFrom, data.ID)
	}
	fmt.Fprintf(w, "Entity %s: %s\n", data.ID, data.Name)
	fmt.Fprintf(w, "Type:   %s\n", data.Type)
	if data.IsMerged() {
		fmt.Fprintf(w, "Merged into %s\n", data.MergedInto)
	}

	fmt.Fprintf(w, "\nStatements (%d):\n", len(data.Statements))
	for _, st := range data.Statements {
		printStatement(w, st)
	}
	if len(data.StatementsAsObject) > 0 {
		fmt.Fprintf(w, "\nReferenced by (%d):\n", len(data.StatementsAsObject))
		for _, st := range data.StatementsAsObject {
			printStatement(w, st)
		}
	}
}

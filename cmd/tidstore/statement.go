package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ersonp/tidstore/internal/application/handlers"
	"github.com/ersonp/tidstore/internal/domain/entities"
)

func newStatementCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "statement",
		Short: "Make, cancel and inspect statements",
		Long: `Statements are (subject, predicate, object) facts with metadata.

Ids may be given in decimal, in base 36, or as one of the names of the
system predicates and types (name, type, author, person, ...).

Objects are written e:<id> for entities, s:<text> for strings, n:<number>
for numbers and t:<RFC 3339 time> for timestamps. Anything else is a string.`,
	}

	cmd.AddCommand(
		newStatementMakeCmd(),
		newStatementCancelCmd(),
		newStatementGetCmd(),
		newStatementBatchCmd(),
	)

	return cmd
}

func newStatementMakeCmd() *cobra.Command {
	var (
		author string
		note   string
		meta   []string
	)

	cmd := &cobra.Command{
		Use:   "make <subject> <predicate> <object>",
		Short: "Make a statement",
		Long: `Make a statement and print its id.

Examples:
  tidstore statement make 100 name "Ibn Rushd" --author 300
  tidstore statement make 100 memberOf e:200 -m lang=s:ar`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withDeps(ctx, func(d *Deps) error {
				id, err := d.StatementHandler.HandleMake(ctx, handlers.MakeRequest{
					Subject:   args[0],
					Predicate: args[1],
					Object:    args[2],
					Metadata:  meta,
					Author:    author,
					Note:      note,
				})
				if err != nil {
					return fmt.Errorf("making statement: %w", err)
				}
				return render(cmd, map[string]entities.Tid{"statement_id": id}, func(w io.Writer) {
					fmt.Fprintln(w, id)
				})
			})
		},
	}

	addMetadataFlags(cmd, &author, &note, &meta)
	return cmd
}

func newStatementCancelCmd() *cobra.Command {
	var (
		author string
		note   string
		meta   []string
	)

	cmd := &cobra.Command{
		Use:   "cancel <statement-id>",
		Short: "Cancel a statement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withDeps(ctx, func(d *Deps) error {
				id, err := d.StatementHandler.HandleCancel(ctx, args[0], author, note, meta)
				if err != nil {
					return fmt.Errorf("cancelling statement: %w", err)
				}
				return render(cmd, map[string]entities.Tid{"cancellation_id": id}, func(w io.Writer) {
					fmt.Fprintln(w, id)
				})
			})
		},
	}

	addMetadataFlags(cmd, &author, &note, &meta)
	return cmd
}

func newStatementGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <statement-id>",
		Short: "Show a statement, cancelled or not",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withDeps(ctx, func(d *Deps) error {
				st, err := d.StatementHandler.HandleGet(ctx, args[0])
				if err != nil {
					return err
				}
				return render(cmd, st, func(w io.Writer) {
					printStatement(w, st)
				})
			})
		},
	}
}

func newStatementBatchCmd() *cobra.Command {
	var (
		format string
		author string
		note   string
	)

	cmd := &cobra.Command{
		Use:   "batch [file]",
		Short: "Run a file of commands as one atomic batch",
		Long: `Run a list of make and cancel commands as one batch. Either every
command takes effect or none does. Reads JSON from standard input when no
file is given; files are read as JSON or CSV by extension unless --format
says otherwise.

Ids, objects and metadata use the same notation as "statement make".
With --author every command also gets the author and a timestamp.

JSON:
  [
    {"op": "cancel", "statement_id": "1712345678901"},
    {"op": "make", "subject": "100", "predicate": "name", "object": "s:Ibn Rushd",
     "metadata": ["lang=e:200"]}
  ]

CSV (metadata may repeat):
  op,statement_id,subject,predicate,object,metadata
  cancel,1712345678901,,,,
  make,,100,name,s:Ibn Rushd,lang=e:200`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			opts := handlers.BatchOptions{Author: author, Note: note}
			if format != formatAuto {
				opts.Format = format
			}

			return withDeps(ctx, func(d *Deps) error {
				var (
					result *handlers.BatchResult
					err    error
				)
				if len(args) == 1 && args[0] != "-" {
					result, err = d.StatementHandler.HandleBatchFile(ctx, args[0], opts)
				} else {
					result, err = d.StatementHandler.HandleBatch(ctx, cmd.InOrStdin(), opts)
				}
				if err != nil {
					return fmt.Errorf("running batch: %w", err)
				}
				return render(cmd, result, func(w io.Writer) {
					for _, id := range result.IDs {
						fmt.Fprintln(w, id)
					}
				})
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatAuto, "Input format: auto, json or csv")
	cmd.Flags().StringVar(&author, "author", "", "Author id, recorded with a timestamp on every command")
	cmd.Flags().StringVar(&note, "note", "", "Editorial note (needs --author)")

	return cmd
}

func addMetadataFlags(cmd *cobra.Command, author, note *string, meta *[]string) {
	cmd.Flags().StringVar(author, "author", "", "Author id, recorded with a timestamp")
	cmd.Flags().StringVar(note, "note", "", "Editorial note (needs --author)")
	cmd.Flags().StringArrayVarP(meta, "meta", "m", nil, "Extra metadata as predicate=object (repeatable)")
}

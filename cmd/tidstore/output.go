package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ersonp/tidstore/internal/application/handlers"
	"github.com/ersonp/tidstore/internal/domain/entities"
)

// render writes v as JSON when the json output format is selected and
// calls text otherwise.
func render(cmd *cobra.Command, v any, text func(w io.Writer)) error {
	w := cmd.OutOrStdout()
	if outputFormat == formatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}

func printStatement(w io.Writer, st entities.Statement) {
	fmt.Fprintf(w, "%s  %s %s %s\n", st.ID, st.Subject, st.Predicate, handlers.FormatObject(st.Object))
	for _, pair := range handlers.FormatMetadata(st.Metadata) {
		fmt.Fprintf(w, "    %s\n", pair)
	}
	if st.IsCancelled() {
		fmt.Fprintf(w, "    cancelled by %s\n", st.CancellationID)
		for _, pair := range handlers.FormatMetadata(st.CancellationMetadata) {
			fmt.Fprintf(w, "      %s\n", pair)
		}
	}
}

func printStatements(w io.Writer, sts []entities.Statement) {
	if len(sts) == 0 {
		fmt.Fprintln(w, "No statements found.")
		return
	}
	for _, st := range sts {
		printStatement(w, st)
	}
}

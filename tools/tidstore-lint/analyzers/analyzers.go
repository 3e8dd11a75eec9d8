// Package analyzers provides all custom static analyzers for tidstore.
package analyzers

import (
	"golang.org/x/tools/go/analysis"

	"github.com/ersonp/tidstore/tools/tidstore-lint/analyzers/loopcall"
	"github.com/ersonp/tidstore/tools/tidstore-lint/analyzers/sentinelcmp"
)

// All returns all analyzers to run.
func All() []*analysis.Analyzer {
	return []*analysis.Analyzer{
		loopcall.Analyzer,
		sentinelcmp.Analyzer,
	}
}

// tidstore-lint is a custom static analyzer for tidstore usage patterns.
package main

import (
	"golang.org/x/tools/go/analysis/multichecker"

	"github.com/ersonp/tidstore/tools/tidstore-lint/analyzers"
)

func main() {
	multichecker.Main(analyzers.All()...)
}

// Package sentinelcmp detects sentinel errors compared with == or !=.
package sentinelcmp

import (
	"go/ast"
	"go/token"
	"go/types"
	"strings"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/inspect"
	"golang.org/x/tools/go/ast/inspector"
)

// Analyzer detects comparisons against package-level Err* variables, which
// miss the wrapped errors storage backends return.
var Analyzer = &analysis.Analyzer{
	Name:     "sentinelcmp",
	Doc:      "detects == and != comparisons against sentinel errors",
	Requires: []*analysis.Analyzer{inspect.Analyzer},
	Run:      run,
}

var errorType = types.Universe.Lookup("error").Type().Underlying().(*types.Interface)

func run(pass *analysis.Pass) (interface{}, error) {
	inspect := pass.ResultOf[inspect.Analyzer].(*inspector.Inspector)

	nodeFilter := []ast.Node{
		(*ast.BinaryExpr)(nil),
	}

	inspect.Preorder(nodeFilter, func(n ast.Node) {
		expr := n.(*ast.BinaryExpr)
		if expr.Op != token.EQL && expr.Op != token.NEQ {
			return
		}
		for _, side := range []ast.Expr{expr.X, expr.Y} {
			if name, ok := sentinel(pass, side); ok {
				pass.Reportf(expr.Pos(),
					"comparison with %s misses wrapped errors - use errors.Is", name)
				return
			}
		}
	})

	return nil, nil
}

func sentinel(pass *analysis.Pass, e ast.Expr) (string, bool) {
	var id *ast.Ident
	switch x := e.(type) {
	case *ast.Ident:
		id = x
	case *ast.SelectorExpr:
		id = x.Sel
	default:
		return "", false
	}

	v, ok := pass.TypesInfo.Uses[id].(*types.Var)
	if !ok || v.Pkg() == nil || v.Parent() != v.Pkg().Scope() {
		return "", false
	}
	if !strings.HasPrefix(v.Name(), "Err") || !types.Implements(v.Type(), errorType) {
		return "", false
	}
	return v.Name(), true
}

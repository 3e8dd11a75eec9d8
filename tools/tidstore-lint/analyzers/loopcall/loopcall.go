// Package loopcall detects single statement writes inside loops.
package loopcall

import (
	"go/ast"
	"go/types"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/inspect"
	"golang.org/x/tools/go/ast/inspector"
)

// Analyzer detects StatementStore writes inside loops that should be one
// atomic batch.
var Analyzer = &analysis.Analyzer{
	Name:     "loopcall",
	Doc:      "detects StatementStore writes inside loops that should be one batch",
	Requires: []*analysis.Analyzer{inspect.Analyzer},
	Run:      run,
}

// storeType is the receiver type whose writes are checked.
const storeType = "StatementStore"

// singleWrites are the StatementStore methods that commit one change each.
var singleWrites = map[string]bool{
	"MakeStatement":             true,
	"MakeStatementWithMetadata": true,
	"CancelStatement":           true,
}

func run(pass *analysis.Pass) (interface{}, error) {
	inspect := pass.ResultOf[inspect.Analyzer].(*inspector.Inspector)

	nodeFilter := []ast.Node{
		(*ast.RangeStmt)(nil),
		(*ast.ForStmt)(nil),
	}

	inspect.Preorder(nodeFilter, func(n ast.Node) {
		var body *ast.BlockStmt
		switch stmt := n.(type) {
		case *ast.RangeStmt:
			body = stmt.Body
		case *ast.ForStmt:
			body = stmt.Body
		}
		if body == nil {
			return
		}

		ast.Inspect(body, func(n ast.Node) bool {
			call, ok := n.(*ast.CallExpr)
			if !ok {
				return true
			}

			sel, ok := call.Fun.(*ast.SelectorExpr)
			if !ok {
				return true
			}

			methodName := sel.Sel.Name
			if singleWrites[methodName] && onStore(pass, sel) {
				pass.Reportf(call.Pos(),
					"%s called inside loop - use MakeMultipleStatementsAndCancellations so the changes land together",
					methodName)
			}

			return true
		})
	})

	return nil, nil
}

func onStore(pass *analysis.Pass, sel *ast.SelectorExpr) bool {
	selection := pass.TypesInfo.Selections[sel]
	if selection == nil || selection.Kind() != types.MethodVal {
		return false
	}
	recv := selection.Recv()
	if p, ok := recv.(*types.Pointer); ok {
		recv = p.Elem()
	}
	named, ok := recv.(*types.Named)
	return ok && named.Obj().Name() == storeType
}

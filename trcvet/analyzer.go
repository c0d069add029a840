// Package trcvet provides an analyzer which reports trace scopes that can
// never be ended.
//
// Opening a scope increments the nesting level of a trace context, and only
// Scope.End decrements it. A scope whose value is discarded leaves every
// later record on that thread one level too deep. The analyzer reports
//
//   - calls returning a trcsock.Scope used as expression statements
//   - such calls assigned to the blank identifier
//   - deferred calls returning a trcsock.Scope, which open the scope on return
//     rather than closing it
//
// Reports can be suppressed with a "//trcvet:ignore" comment on the same or
// the previous line.
package trcvet

import (
	"go/ast"
	"go/token"
	"go/types"
	"strings"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/inspect"
	"golang.org/x/tools/go/ast/astutil"
	"golang.org/x/tools/go/ast/inspector"
)

// ScopePackage is the import path of the package defining Scope.
const ScopePackage = "github.com/peterbourgon/trcsock"

// Analyzer reports scopes which are never ended.
var Analyzer = &analysis.Analyzer{
	Name:     "trcvet",
	Doc:      "reports trcsock scopes which are discarded, and so can never be ended",
	Requires: []*analysis.Analyzer{inspect.Analyzer},
	Run:      run,
}

func run(pass *analysis.Pass) (any, error) {
	inspect := pass.ResultOf[inspect.Analyzer].(*inspector.Inspector)

	ignored := map[string]ignoreMap{}
	for _, file := range pass.Files {
		filename := pass.Fset.Position(file.Pos()).Filename
		ignored[filename] = buildIgnoreMap(pass.Fset, file)
	}

	report := func(pos token.Pos, format string, args ...any) {
		position := pass.Fset.Position(pos)
		if ignored[position.Filename].shouldIgnore(position.Line) {
			return
		}
		pass.Reportf(pos, format, args...)
	}

	nodeFilter := []ast.Node{
		(*ast.ExprStmt)(nil),
		(*ast.AssignStmt)(nil),
		(*ast.DeferStmt)(nil),
	}

	inspect.Preorder(nodeFilter, func(n ast.Node) {
		switch stmt := n.(type) {
		case *ast.ExprStmt:
			if call, ok := astutil.Unparen(stmt.X).(*ast.CallExpr); ok && returnsScope(pass, call) {
				report(call.Pos(), "result of %s is discarded, so the scope is never ended", callName(call))
			}

		case *ast.AssignStmt:
			if len(stmt.Lhs) != len(stmt.Rhs) {
				return
			}
			for i, rhs := range stmt.Rhs {
				call, ok := astutil.Unparen(rhs).(*ast.CallExpr)
				if !ok || !returnsScope(pass, call) || !isBlank(stmt.Lhs[i]) {
					continue
				}
				report(call.Pos(), "result of %s is assigned to _, so the scope is never ended", callName(call))
			}

		case *ast.DeferStmt:
			if returnsScope(pass, stmt.Call) {
				report(stmt.Call.Pos(), "deferred %s opens a scope on return; defer %s.End() instead", callName(stmt.Call), callName(stmt.Call))
			}
		}
	})

	return nil, nil
}

// returnsScope returns true if the call's only result is a trcsock.Scope.
func returnsScope(pass *analysis.Pass, call *ast.CallExpr) bool {
	named, ok := pass.TypesInfo.TypeOf(call).(*types.Named)
	if !ok {
		return false
	}
	obj := named.Obj()
	return obj != nil && obj.Pkg() != nil && obj.Pkg().Path() == ScopePackage && obj.Name() == "Scope"
}

func isBlank(expr ast.Expr) bool {
	ident, ok := expr.(*ast.Ident)
	return ok && ident.Name == "_"
}

func callName(call *ast.CallExpr) string {
	switch fn := astutil.Unparen(call.Fun).(type) {
	case *ast.SelectorExpr:
		return fn.Sel.Name
	case *ast.Ident:
		return fn.Name
	default:
		return "call"
	}
}

//
//
//

type ignoreMap map[int]struct{}

func buildIgnoreMap(fset *token.FileSet, file *ast.File) ignoreMap {
	m := ignoreMap{}
	for _, cg := range file.Comments {
		for _, c := range cg.List {
			text := strings.TrimSpace(strings.TrimPrefix(c.Text, "//"))
			if strings.HasPrefix(text, "trcvet:ignore") {
				m[fset.Position(c.Pos()).Line] = struct{}{}
			}
		}
	}
	return m
}

func (m ignoreMap) shouldIgnore(line int) bool {
	_, onSameLine := m[line]
	_, onPrevLine := m[line-1]
	return onSameLine || onPrevLine
}

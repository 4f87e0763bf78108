package cfg

import (
	"github.com/l3aro/luataint/pkg/ast"
)

// freeVars returns the variables e reads without lowering anything. Calls
// contribute their receiver and argument variables.
func freeVars(e ast.Expr) []string {
	var vars []string
	var walk func(ast.Expr)
	walk = func(e ast.Expr) {
		switch e := e.(type) {
		case nil:
		case *ast.Name:
			vars = append(vars, e.ID)
		case *ast.Index:
			walk(e.Value)
			if !e.Dot {
				walk(e.Key)
			}
		case *ast.Call:
			if _, plain := e.Func.(*ast.Name); !plain || e.Method != "" {
				walk(e.Func)
			}
			for _, arg := range e.Args {
				walk(arg)
			}
		case *ast.Table:
			for _, field := range e.Fields {
				if _, isString := field.Key.(*ast.String); !isString {
					walk(field.Key)
				}
				walk(field.Value)
			}
		case *ast.BinaryOp:
			walk(e.Left)
			walk(e.Right)
		case *ast.UnaryOp:
			walk(e.Operand)
		case *ast.Paren:
			walk(e.X)
		}
	}
	walk(e)
	return dedupe(vars)
}

// Calls returns every call inside e, outermost first.
func Calls(e ast.Expr) []*ast.Call {
	var calls []*ast.Call
	var walk func(ast.Expr)
	walk = func(e ast.Expr) {
		switch e := e.(type) {
		case *ast.Call:
			calls = append(calls, e)
			walk(e.Func)
			for _, arg := range e.Args {
				walk(arg)
			}
		case *ast.Index:
			walk(e.Value)
			walk(e.Key)
		case *ast.Table:
			for _, field := range e.Fields {
				walk(field.Key)
				walk(field.Value)
			}
		case *ast.BinaryOp:
			walk(e.Left)
			walk(e.Right)
		case *ast.UnaryOp:
			walk(e.Operand)
		case *ast.Paren:
			walk(e.X)
		}
	}
	walk(e)
	return calls
}

// extractLHS returns the variable an assignment target defines and whether
// the update is weak (an index into the variable's table).
func extractLHS(target ast.Expr) (name string, weak bool, ok bool) {
	switch t := target.(type) {
	case *ast.Name:
		return t.ID, false, true
	case *ast.Index:
		base := ast.BaseName(t)
		return base, true, base != ""
	default:
		return "", false, false
	}
}

// targetName returns the dotted name of a function-valued assignment target.
func targetName(target ast.Expr) string {
	switch t := target.(type) {
	case *ast.Name:
		return t.ID
	case *ast.Index:
		if _, ok := t.Key.(*ast.String); ok && t.Dot && ast.BaseName(t) != "" {
			return ast.Format(t)
		}
	}
	return ""
}

func dedupe(vars []string) []string {
	if len(vars) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(vars))
	out := vars[:0:0]
	for _, v := range vars {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

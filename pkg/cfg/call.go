package cfg

import (
	"strconv"
	"strings"

	"github.com/l3aro/luataint/pkg/ast"
)

// call lowers a call expression into a Call node, preceded by the calls
// nested in its callee and arguments in evaluation order. It returns the
// fragment spanning all of them and the Call node's ID.
func (b *builder) call(c *ast.Call) (fragment, NodeID) {
	b.callIndex++
	carrier := CallIdentifier + "call_" + strconv.Itoa(b.callIndex)
	name := b.defs().Qualify(ast.CallName(c))

	pre := ignored()
	var rhs []string
	innermost := NoNode

	// Calls in the callee run first, e.g. io.popen(cmd) in io.popen(cmd):read().
	var receiver []string
	if _, plain := c.Func.(*ast.Name); !plain || c.Method != "" {
		f, vars := b.embeddedExpr(c.Func)
		pre = b.chain(pre, f)
		receiver = vars
	}

	args := make([]string, 0, len(c.Args))
	for _, arg := range c.Args {
		if nested, ok := arg.(*ast.Call); ok {
			f, id := b.call(nested)
			if innermost == NoNode {
				innermost = id
			}
			pre = b.chain(pre, f)
			nestedCarrier := b.g.Nodes[id].LHS
			args = append(args, nestedCarrier)
			rhs = append(rhs, nestedCarrier)
			continue
		}
		f, vars := b.embeddedExpr(arg)
		pre = b.chain(pre, f)
		args = append(args, ast.Format(arg))
		rhs = append(rhs, vars...)
	}
	rhs = append(rhs, receiver...)

	id := b.newNode(KindCall, carrier+" = ret_"+name+"("+strings.Join(args, ", ")+")", c, 0)
	n := b.g.Nodes[id]
	n.LHS = carrier
	n.RHS = dedupe(rhs)
	n.FuncName = name
	n.Args = args
	n.InnerMostCall = innermost
	n.Blackbox = !b.isLocalFunction(name)

	return b.then(pre, id), id
}

// isLocalFunction reports whether name is bound in the current module,
// either declared there or exported to it by a module it requires.
func (b *builder) isLocalFunction(name string) bool {
	return b.defs().Lookup(name) != nil
}

// embeddedExpr lowers every call inside e and returns the free variables of
// e, with each lowered call replaced by its return carrier.
func (b *builder) embeddedExpr(e ast.Expr) (fragment, []string) {
	out := ignored()
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
			f, id := b.call(e)
			out = b.chain(out, f)
			vars = append(vars, b.g.Nodes[id].LHS)
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
		case *ast.String, *ast.Number, *ast.Nil, *ast.True, *ast.False, *ast.Varargs, *ast.FunctionExpr:
		}
	}
	walk(e)
	return out, dedupe(vars)
}

// embedded is embeddedExpr over a list, left to right.
func (b *builder) embedded(exprs []ast.Expr) (fragment, []string) {
	out := ignored()
	var vars []string
	for _, e := range exprs {
		f, v := b.embeddedExpr(e)
		out = b.chain(out, f)
		vars = append(vars, v...)
	}
	return out, dedupe(vars)
}

// requireName returns the module name of `require "m"` or `require("m")`.
func requireName(c *ast.Call) (string, bool) {
	if c.Method != "" || len(c.Args) != 1 {
		return "", false
	}
	fn, ok := c.Func.(*ast.Name)
	if !ok || fn.ID != "require" {
		return "", false
	}
	s, ok := c.Args[0].(*ast.String)
	if !ok {
		return "", false
	}
	return s.S, true
}

// requireValue matches `require("m")` and `require("m").member`.
func requireValue(e ast.Expr) (module, member string, ok bool) {
	switch e := e.(type) {
	case *ast.Call:
		module, ok = requireName(e)
		return module, "", ok
	case *ast.Index:
		call, isCall := e.Value.(*ast.Call)
		key, isString := e.Key.(*ast.String)
		if !isCall || !isString {
			return "", "", false
		}
		module, ok = requireName(call)
		return module, key.S, ok
	default:
		return "", "", false
	}
}

package ast

import "fmt"

// Inspect traverses the tree rooted at n in depth-first order, calling f for
// each node. If f returns false the node's children are skipped. Function
// bodies are traversed too.
func Inspect(n Node, f func(Node) bool) {
	if n == nil || !f(n) {
		return
	}
	switch n := n.(type) {
	case *Chunk:
		inspectBlock(n.Body, f)
	case *Block:
		for _, s := range n.Stmts {
			Inspect(s, f)
		}

	case *Assign:
		inspectExprs(n.Targets, f)
		inspectExprs(n.Values, f)
	case *Function:
		Inspect(n.Name, f)
		inspectBlock(n.Body, f)
	case *CallStmt:
		Inspect(n.Call, f)
	case *Do:
		inspectBlock(n.Body, f)
	case *While:
		inspectExpr(n.Test, f)
		inspectBlock(n.Body, f)
	case *Repeat:
		inspectBlock(n.Body, f)
		inspectExpr(n.Test, f)
	case *If:
		inspectExpr(n.Test, f)
		inspectBlock(n.Body, f)
		inspectStmt(n.Else, f)
	case *ElseIf:
		inspectExpr(n.Test, f)
		inspectBlock(n.Body, f)
		inspectStmt(n.Else, f)
	case *Else:
		inspectBlock(n.Body, f)
	case *NumericFor:
		inspectExpr(n.Start, f)
		inspectExpr(n.Stop, f)
		inspectExpr(n.Step, f)
		inspectBlock(n.Body, f)
	case *GenericFor:
		inspectExprs(n.Iter, f)
		inspectBlock(n.Body, f)
	case *Return:
		inspectExprs(n.Values, f)
	case *Break, *Goto, *Label:

	case *Index:
		inspectExpr(n.Value, f)
		inspectExpr(n.Key, f)
	case *Call:
		inspectExpr(n.Func, f)
		inspectExprs(n.Args, f)
	case *Table:
		for _, field := range n.Fields {
			inspectExpr(field.Key, f)
			inspectExpr(field.Value, f)
		}
	case *FunctionExpr:
		inspectBlock(n.Body, f)
	case *BinaryOp:
		inspectExpr(n.Left, f)
		inspectExpr(n.Right, f)
	case *UnaryOp:
		inspectExpr(n.Operand, f)
	case *Paren:
		inspectExpr(n.X, f)
	case *Name, *String, *Number, *Nil, *True, *False, *Varargs:
	default:
		panic(fmt.Sprintf("ast.Inspect: unexpected node type %T", n))
	}
}

// Typed nil pointers stored in interfaces must not reach f.

func inspectBlock(b *Block, f func(Node) bool) {
	if b != nil {
		Inspect(b, f)
	}
}

func inspectStmt(s Stmt, f func(Node) bool) {
	if s != nil {
		Inspect(s, f)
	}
}

func inspectExpr(e Expr, f func(Node) bool) {
	if e != nil {
		Inspect(e, f)
	}
}

func inspectExprs(list []Expr, f func(Node) bool) {
	for _, e := range list {
		inspectExpr(e, f)
	}
}

package cfg

import (
	"strings"

	"github.com/l3aro/luataint/pkg/ast"
)

var comparisonOps = map[string]bool{
	"==": true, "~=": true, "<": true, ">": true, "<=": true, ">=": true,
}

func (b *builder) whileLoop(s *ast.While) (fragment, error) {
	header := b.loopHeader("while "+ast.Format(s.Test)+" do", s.Test, s)
	return b.loop(header, b.testCalls(s.Test), ignored(), s.Body)
}

func (b *builder) repeatLoop(s *ast.Repeat) (fragment, error) {
	header := b.loopHeader("repeat until "+ast.Format(s.Test), s.Test, s)
	return b.loop(header, b.testCalls(s.Test), ignored(), s.Body)
}

func (b *builder) numericFor(s *ast.NumericFor) (fragment, error) {
	step := "1"
	if s.Step != nil {
		step = ast.Format(s.Step)
	}
	rng := ast.Format(s.Start) + "," + ast.Format(s.Stop) + "," + step
	header := b.loopHeader("for "+s.Var+" = "+rng+" do", nil, s)

	var vars []string
	for _, e := range []ast.Expr{s.Start, s.Stop, s.Step} {
		vars = append(vars, freeVars(e)...)
	}
	id := b.newNode(KindAssignment, s.Var+" = "+rng, s, 0)
	n := b.g.Nodes[id]
	n.LHS = s.Var
	n.RHS = dedupe(vars)

	return b.loop(header, ignored(), single(id), s.Body)
}

func (b *builder) genericFor(s *ast.GenericFor) (fragment, error) {
	iter := ast.FormatList(s.Iter)
	header := b.loopHeader("for "+strings.Join(s.Targets, ", ")+" in "+iter+" do", nil, s)

	var pre fragment = ignored()
	if len(s.Iter) > 0 {
		pre = b.testCalls(s.Iter[0])
	}

	var vars []string
	for _, e := range s.Iter {
		vars = append(vars, freeVars(e)...)
	}
	vars = dedupe(vars)

	targets := ignored()
	for _, t := range s.Targets {
		id := b.newNode(KindAssignment, t+" = "+iter, s, 0)
		n := b.g.Nodes[id]
		n.LHS = t
		n.RHS = vars
		targets = b.chain(targets, single(id))
	}
	return b.loop(header, pre, targets, s.Body)
}

func (b *builder) loopHeader(label string, test ast.Expr, n ast.Stmt) NodeID {
	id := b.newNode(KindLoop, label, n, 0)
	if test != nil {
		b.g.Nodes[id].Test = test
		b.g.Nodes[id].RHS = freeVars(test)
	}
	return id
}

// loop wires header -> vars -> body, feeds the body's last nodes back into
// the header and makes the header plus any breaks the loop's last nodes.
// pre, the calls of the loop test, runs once ahead of the header.
func (b *builder) loop(header NodeID, pre, vars fragment, body *ast.Block) (fragment, error) {
	bodyFrag, err := b.block(body)
	if err != nil {
		return fragment{}, err
	}

	inner := b.chain(vars, bodyFrag)
	if !inner.ignored {
		b.g.Connect(header, inner.first)
		b.g.ConnectPredecessors(header, inner.last)
	}

	out := fragment{first: header, last: []NodeID{header}}
	out.last = append(out.last, bodyFrag.breaks...)
	if !pre.ignored {
		b.g.ConnectPredecessors(header, pre.last)
		out.first = pre.first
	}
	return out, nil
}

// testCalls lowers calls to locally declared functions found in a loop test,
// either the test itself or an operand of a comparison.
func (b *builder) testCalls(test ast.Expr) fragment {
	candidates := []ast.Expr{test}
	if op, ok := test.(*ast.BinaryOp); ok && comparisonOps[op.Op] {
		candidates = []ast.Expr{op.Left, op.Right}
	}

	out := ignored()
	for _, e := range candidates {
		call, ok := e.(*ast.Call)
		if !ok {
			continue
		}
		name := ast.CallName(call)
		if !b.isLocalFunction(name) && !b.isLocalFunction(b.defs().Qualify(name)) {
			continue
		}
		f, _ := b.call(call)
		out = b.chain(out, f)
	}
	return out
}

package cfg

import (
	"github.com/l3aro/luataint/pkg/ast"
)

// assign lowers global and local assignments.
func (b *builder) assign(s *ast.Assign) (fragment, error) {
	if len(s.Targets) == 1 && len(s.Values) == 1 {
		// local f = function() end and M.f = function() end are declarations.
		if fn, ok := s.Values[0].(*ast.FunctionExpr); ok {
			if name := targetName(s.Targets[0]); name != "" {
				b.declare(name, fn.Params, false, fn.Body, s.Line())
				return ignored(), nil
			}
		}
		if alias, ok := s.Targets[0].(*ast.Name); ok {
			if module, member, ok := requireValue(s.Values[0]); ok {
				return b.require(module, alias.ID, member, s)
			}
		}
	}

	switch {
	case len(s.Values) == 0:
		return b.declareLocals(s), nil
	case len(s.Targets) == 1:
		return b.assignOne(s.Targets[0], s.Values[0], s, s.Values[1:]), nil
	case len(s.Values) > 1:
		return b.assignTuple(s), nil
	default:
		if call, ok := s.Values[0].(*ast.Call); ok {
			return b.assignMultiCall(s, call), nil
		}
		return b.bestEffort(s), nil
	}
}

// declareLocals lowers `local a, b` into one nil assignment per name.
func (b *builder) declareLocals(s *ast.Assign) fragment {
	var frags []fragment
	for _, t := range s.Targets {
		lhs, _, ok := extractLHS(t)
		if !ok {
			continue
		}
		id := b.newNode(KindAssignment, "local "+ast.Format(t), s, 0)
		b.g.Nodes[id].LHS = lhs
		frags = append(frags, single(id))
	}
	return b.chain(frags...)
}

// assignOne lowers `target = value`. Extra values are evaluated for their
// calls and otherwise dropped.
func (b *builder) assignOne(target, value ast.Expr, s *ast.Assign, extra []ast.Expr) fragment {
	lhs, weak, ok := extractLHS(target)
	if !ok {
		return b.bestEffort(s)
	}

	var f fragment
	if call, isCall := value.(*ast.Call); isCall {
		callFrag, callID := b.call(call)
		f = b.then(callFrag, b.assignmentCall(target, lhs, weak, callID, s))
	} else {
		pre, vars := b.embeddedExpr(value)
		if weak {
			vars = dedupe(append(vars, lhs))
		}
		id := b.newNode(KindAssignment, ast.Format(target)+" = "+ast.Format(value), s, 0)
		n := b.g.Nodes[id]
		n.LHS = lhs
		n.RHS = vars
		f = b.then(pre, id)
	}

	if len(extra) > 0 {
		rest, _ := b.embedded(extra)
		f = b.chain(f, rest)
	}
	return f
}

// assignmentCall adds the node that copies a call's return carrier into lhs.
func (b *builder) assignmentCall(target ast.Expr, lhs string, weak bool, callID NodeID, s ast.Stmt) NodeID {
	carrier := b.g.Nodes[callID].LHS
	id := b.newNode(KindAssignmentCall, ast.Format(target)+" = "+carrier, s, 0)
	n := b.g.Nodes[id]
	n.LHS = lhs
	n.RHS = []string{carrier}
	if weak {
		n.RHS = dedupe(append(n.RHS, lhs))
	}
	n.CallNode = callID
	return id
}

// assignMultiCall lowers `a, b = f(x)`: the call once, then one
// AssignmentCall per target.
func (b *builder) assignMultiCall(s *ast.Assign, call *ast.Call) fragment {
	for _, t := range s.Targets {
		if _, _, ok := extractLHS(t); !ok {
			return b.bestEffort(s)
		}
	}
	out, callID := b.call(call)
	for _, t := range s.Targets {
		lhs, weak, _ := extractLHS(t)
		out = b.then(out, b.assignmentCall(t, lhs, weak, callID, s))
	}
	return out
}

// assignTuple pairs targets with values positionally. Targets left without
// a value share one combined assignment label and the last value's
// variables.
func (b *builder) assignTuple(s *ast.Assign) fragment {
	for _, t := range s.Targets {
		if _, _, ok := extractLHS(t); !ok {
			return b.bestEffort(s)
		}
	}

	n := len(s.Targets)
	if len(s.Values) < n {
		n = len(s.Values)
	}

	out := ignored()
	var lastVars []string
	for i := 0; i < n; i++ {
		target, value := s.Targets[i], s.Values[i]
		lhs, weak, _ := extractLHS(target)
		if call, ok := value.(*ast.Call); ok {
			callFrag, callID := b.call(call)
			out = b.chain(out, b.then(callFrag, b.assignmentCall(target, lhs, weak, callID, s)))
			lastVars = []string{b.g.Nodes[callID].LHS}
			continue
		}
		pre, vars := b.embeddedExpr(value)
		lastVars = vars
		if weak {
			vars = dedupe(append(vars, lhs))
		}
		id := b.newNode(KindAssignment, ast.Format(target)+" = "+ast.Format(value), s, 0)
		node := b.g.Nodes[id]
		node.LHS = lhs
		node.RHS = vars
		out = b.chain(out, b.then(pre, id))
	}

	if rest := s.Targets[n:]; len(rest) > 0 {
		label := ast.FormatList(rest) + " = " + ast.Format(s.Values[len(s.Values)-1])
		for _, t := range rest {
			lhs, weak, _ := extractLHS(t)
			vars := lastVars
			if weak {
				vars = dedupe(append(append([]string(nil), vars...), lhs))
			}
			id := b.newNode(KindAssignment, label, s, t.Line())
			node := b.g.Nodes[id]
			node.LHS = lhs
			node.RHS = vars
			out = b.chain(out, single(id))
		}
	}

	if extra := s.Values[n:]; len(extra) > 0 {
		rest, _ := b.embedded(extra)
		out = b.chain(out, rest)
	}
	return out
}

// bestEffort lowers an assignment shape that cannot be modelled precisely
// into a single node carrying all right-hand variables.
func (b *builder) bestEffort(s *ast.Assign) fragment {
	label := ast.FormatList(s.Targets) + " = " + ast.FormatList(s.Values)
	b.warn("assignment not properly handled, could result in not finding a vulnerability", s, label)

	pre, vars := b.embedded(s.Values)
	id := b.newNode(KindAssignment, label, s, 0)
	n := b.g.Nodes[id]
	n.LHS = ast.FormatList(s.Targets)
	n.RHS = vars
	return b.then(pre, id)
}

package cfg

import (
	"fmt"

	"github.com/l3aro/luataint/pkg/ast"
)

// stmt lowers a single statement.
func (b *builder) stmt(s ast.Stmt) (fragment, error) {
	switch s := s.(type) {
	case *ast.Assign:
		return b.assign(s)
	case *ast.Function:
		b.declare(ast.FunctionName(s), s.Params, s.Method, s.Body, s.Line())
		return ignored(), nil
	case *ast.CallStmt:
		if name, ok := requireName(s.Call); ok {
			return b.require(name, "", "", s)
		}
		f, _ := b.call(s.Call)
		return f, nil
	case *ast.Do:
		return b.block(s.Body)
	case *ast.If:
		return b.branch(KindIf, "if", s.Test, s.Body, s.Else, s)
	case *ast.While:
		return b.whileLoop(s)
	case *ast.Repeat:
		return b.repeatLoop(s)
	case *ast.NumericFor:
		return b.numericFor(s)
	case *ast.GenericFor:
		return b.genericFor(s)
	case *ast.Return:
		return b.returnStmt(s), nil
	case *ast.Break:
		id := b.newNode(KindBreak, "break", s, 0)
		return fragment{first: id, breaks: []NodeID{id}}, nil
	case *ast.Goto, *ast.Label:
		return single(b.newNode(KindStatement, ast.Format(s), s, 0)), nil
	case *ast.ElseIf, *ast.Else:
		// Only reachable through If.Else.
		panic(fmt.Sprintf("cfg: %T outside of if statement", s))
	default:
		panic(fmt.Sprintf("cfg: unhandled statement %T", s))
	}
}

// declare records a function definition in the current module.
func (b *builder) declare(name string, params []string, method bool, body *ast.Block, line int) {
	if method {
		params = append([]string{"self"}, params...)
	}
	f := b.frame()
	f.defs.Add(&Definition{
		Name:    name,
		Module:  f.defs.Module,
		Path:    f.path,
		Params:  params,
		Body:    body,
		Line:    line,
		Aliases: f.defs.Aliases,
	})
}

// branch lowers an if or elseif arm. The test node is the fragment's first
// node; when there is no else arm the test itself is a last node so that a
// false test falls through to the next statement.
func (b *builder) branch(kind Kind, keyword string, test ast.Expr, body *ast.Block, orElse ast.Stmt, n ast.Stmt) (fragment, error) {
	id := b.newNode(kind, keyword+" "+ast.Format(test)+" then", n, 0)
	b.g.Nodes[id].Test = test
	b.g.Nodes[id].RHS = freeVars(test)

	out := fragment{first: id}
	bodyFrag, err := b.block(body)
	if err != nil {
		return fragment{}, err
	}
	if bodyFrag.ignored {
		out.last = append(out.last, id)
	} else {
		b.g.Connect(id, bodyFrag.first)
		out.last = append(out.last, bodyFrag.last...)
		out.breaks = append(out.breaks, bodyFrag.breaks...)
	}

	switch e := orElse.(type) {
	case nil:
		out.last = appendUnique(out.last, id)
	case *ast.ElseIf:
		// The elseif test keeps its own label and hangs off this test.
		arm, err := b.branch(KindElseIf, "elseif", e.Test, e.Body, e.Else, e)
		if err != nil {
			return fragment{}, err
		}
		b.g.Connect(id, arm.first)
		out.last = append(out.last, arm.last...)
		out.breaks = append(out.breaks, arm.breaks...)
	case *ast.Else:
		arm, err := b.block(e.Body)
		if err != nil {
			return fragment{}, err
		}
		if arm.ignored {
			out.last = appendUnique(out.last, id)
		} else {
			b.g.Connect(id, arm.first)
			out.last = append(out.last, arm.last...)
			out.breaks = append(out.breaks, arm.breaks...)
		}
	default:
		panic(fmt.Sprintf("cfg: unexpected else arm %T", orElse))
	}
	return out, nil
}

// returnStmt lowers `return ...` into an assignment of the enclosing
// function's return slot, ret_<function>.
func (b *builder) returnStmt(s *ast.Return) fragment {
	lhs := "ret_" + b.frame().function

	if len(s.Values) == 1 {
		if call, ok := s.Values[0].(*ast.Call); ok {
			callFrag, callID := b.call(call)
			carrier := b.g.Nodes[callID].LHS
			id := b.newNode(KindReturn, lhs+" = "+carrier, s, 0)
			ret := b.g.Nodes[id]
			ret.LHS = lhs
			ret.RHS = []string{carrier}
			b.g.ConnectPredecessors(id, callFrag.last)
			return fragment{first: callFrag.first, last: []NodeID{id}}
		}
		if name, ok := s.Values[0].(*ast.Name); ok {
			if b.frame().defs.ExportTable == "" {
				b.frame().defs.ExportTable = name.ID
			}
		}
	}

	pre, vars := b.embedded(s.Values)
	id := b.newNode(KindReturn, lhs+" = "+ast.FormatList(s.Values), s, 0)
	ret := b.g.Nodes[id]
	ret.LHS = lhs
	ret.RHS = vars
	return b.then(pre, id)
}

// then appends node id after pre, which may be ignored.
func (b *builder) then(pre fragment, id NodeID) fragment {
	if pre.ignored {
		return single(id)
	}
	b.g.ConnectPredecessors(id, pre.last)
	return fragment{first: pre.first, last: []NodeID{id}}
}

// chain sequences fragments, skipping ignored ones.
func (b *builder) chain(frags ...fragment) fragment {
	out := ignored()
	for _, f := range frags {
		if f.ignored {
			continue
		}
		out.breaks = append(out.breaks, f.breaks...)
		if out.ignored {
			out.first, out.last, out.ignored = f.first, f.last, false
			continue
		}
		b.g.ConnectPredecessors(f.first, out.last)
		out.last = f.last
	}
	return out
}

func appendUnique(ids []NodeID, id NodeID) []NodeID {
	for _, x := range ids {
		if x == id {
			return ids
		}
	}
	return append(ids, id)
}

package parser

import (
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/l3aro/luataint/pkg/ast"
)

// converter walks a tree-sitter Lua tree and builds ast nodes.
//
// The grammar keeps prefix expressions, variables and argument lists hidden,
// so `t.a[k]` arrives as the flat token run `t . a [ k ]` inside its parent
// and the same holds for call prefixes, assignment targets and operands.
// Those runs are rebuilt here with a small recursive descent over siblings.
type converter struct {
	content  []byte
	comments []ast.Comment
}

// binaryOps are the anonymous operator tokens of binary_operation.
var binaryOps = map[string]bool{
	"or": true, "and": true,
	"<": true, "<=": true, "==": true, "~=": true, ">=": true, ">": true,
	"|": true, "~": true, "&": true, "<<": true, ">>": true,
	"+": true, "-": true, "*": true, "/": true, "//": true, "%": true,
	"..": true, "^": true,
}

// text returns the node source without the surrounding whitespace the
// grammar attaches to leading tokens.
func (c *converter) text(n *sitter.Node) string {
	return strings.TrimSpace(n.Content(c.content))
}

// pos returns the line of the first non-blank byte of n. Tokens that follow
// a line break start on the previous line in this grammar.
func (c *converter) pos(n *sitter.Node) ast.Pos {
	row := int(n.StartPoint().Row) + 1
	end := int(n.EndByte())
	for i := int(n.StartByte()); i < end && i < len(c.content); i++ {
		switch c.content[i] {
		case '\n':
			row++
		case ' ', '\t', '\r', '\f', '\v':
		default:
			return ast.Pos{Row: row}
		}
	}
	return ast.Pos{Row: row}
}

func (c *converter) unsupported(n *sitter.Node) error {
	return fmt.Errorf("%w: unsupported %s at line %d", ErrSyntax, n.Type(), c.pos(n).Line())
}

// children returns every child of n, named or not, except comments.
func children(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	out := make([]*sitter.Node, 0, n.ChildCount())
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child == nil || isComment(child) {
			continue
		}
		out = append(out, child)
	}
	return out
}

func isComment(n *sitter.Node) bool {
	switch n.Type() {
	case "comment", "emmy_documentation", "emmy_header":
		return true
	}
	return false
}

func indexOf(nodes []*sitter.Node, types ...string) int {
	for i, n := range nodes {
		for _, t := range types {
			if n.Type() == t {
				return i
			}
		}
	}
	return -1
}

// collectComments records every comment in the tree in source order.
func (c *converter) collectComments(n *sitter.Node) {
	switch n.Type() {
	case "comment", "emmy_header":
		c.comments = append(c.comments, ast.Comment{Pos: c.pos(n), Text: c.text(n)})
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if child := n.Child(i); child != nil {
			c.collectComments(child)
		}
	}
}

// block converts a run of statement nodes. Separators, markers and the
// shebang line are skipped.
func (c *converter) block(nodes []*sitter.Node) (*ast.Block, error) {
	b := &ast.Block{}
	if len(nodes) > 0 {
		b.Pos = c.pos(nodes[0])
	}
	for i, n := range nodes {
		if !n.IsNamed() || n.Type() == "shebang" {
			continue
		}
		if bareDeclarator(n) && i+1 < len(nodes) && nodes[i+1].Type() == "function_call" {
			// `f(a)(b)` splits into `f` and `(a)(b)`; the call keeps the rest.
			continue
		}
		stmt, err := c.stmt(n)
		if err != nil {
			return nil, err
		}
		b.Stmts = append(b.Stmts, stmt)
	}
	return b, nil
}

// bareDeclarator reports a variable_declaration with neither `local` nor `=`.
func bareDeclarator(n *sitter.Node) bool {
	if n.Type() != "variable_declaration" {
		return false
	}
	kids := children(n)
	return indexOf(kids, "local") < 0 && indexOf(kids, "=") < 0
}

func (c *converter) stmt(n *sitter.Node) (ast.Stmt, error) {
	switch n.Type() {
	case "variable_declaration":
		return c.assignment(n)
	case "function_call":
		call, err := c.call(n)
		if err != nil {
			return nil, err
		}
		return &ast.CallStmt{Pos: c.pos(n), Call: call}, nil
	case "function_statement":
		return c.function(n)
	case "do_statement":
		kids := children(n)
		body, err := c.between(kids, "do_start", "do_end")
		if err != nil {
			return nil, err
		}
		return &ast.Do{Pos: c.pos(n), Body: body}, nil
	case "while_statement":
		kids := children(n)
		test, err := c.exprBetween(n, kids, "while_start", "while_do")
		if err != nil {
			return nil, err
		}
		body, err := c.between(kids, "while_do", "while_end")
		if err != nil {
			return nil, err
		}
		return &ast.While{Pos: c.pos(n), Test: test, Body: body}, nil
	case "repeat_statement":
		kids := children(n)
		body, err := c.between(kids, "repeat_start", "repeat_until")
		if err != nil {
			return nil, err
		}
		until := indexOf(kids, "repeat_until")
		if until < 0 {
			return nil, c.unsupported(n)
		}
		test, err := c.exprSeq(n, kids[until+1:])
		if err != nil {
			return nil, err
		}
		return &ast.Repeat{Pos: c.pos(n), Body: body, Test: test}, nil
	case "if_statement":
		return c.ifStatement(n)
	case "for_statement":
		return c.forStatement(n)
	case "return_statement", "module_return_statement":
		values, err := c.exprList(n, children(n)[1:])
		if err != nil {
			return nil, err
		}
		return &ast.Return{Pos: c.pos(n), Values: values}, nil
	case "break_statement":
		return &ast.Break{Pos: c.pos(n)}, nil
	default:
		return nil, c.unsupported(n)
	}
}

// between converts the statements strictly between the first open marker
// and the following close marker.
func (c *converter) between(kids []*sitter.Node, open, close string) (*ast.Block, error) {
	start := indexOf(kids, open)
	if start < 0 {
		return &ast.Block{}, nil
	}
	end := start + 1 + indexOf(kids[start+1:], close)
	if end <= start {
		end = len(kids)
	}
	return c.block(kids[start+1 : end])
}

func (c *converter) exprBetween(parent *sitter.Node, kids []*sitter.Node, open, close string) (ast.Expr, error) {
	start, end := indexOf(kids, open), indexOf(kids, close)
	if start < 0 || end <= start {
		return nil, c.unsupported(parent)
	}
	return c.exprSeq(parent, kids[start+1:end])
}

// assignment handles `a, b = x, y`, `local a, b = x, y` and `local a`.
func (c *converter) assignment(n *sitter.Node) (*ast.Assign, error) {
	kids := children(n)
	stmt := &ast.Assign{Pos: c.pos(n), Local: indexOf(kids, "local") >= 0}

	eq := indexOf(kids, "=")
	targets := kids
	if eq >= 0 {
		targets = kids[:eq]
	}
	for _, t := range targets {
		if t.Type() != "variable_declarator" {
			continue
		}
		e, err := c.exprSeq(t, children(t))
		if err != nil {
			return nil, err
		}
		stmt.Targets = append(stmt.Targets, e)
	}
	if eq < 0 {
		return stmt, nil
	}
	values, err := c.exprList(n, kids[eq+1:])
	if err != nil {
		return nil, err
	}
	stmt.Values = values
	return stmt, nil
}

// function converts `function a.b()`, `function a:m()` and `local function f()`.
func (c *converter) function(n *sitter.Node) (ast.Stmt, error) {
	kids := children(n)
	fn := &ast.Function{Pos: c.pos(n), Local: indexOf(kids, "local") >= 0}
	if first := indexOf(kids, "local", "function_start"); first >= 0 {
		fn.Pos = c.pos(kids[first])
	}

	nameAt := indexOf(kids, "function_name", "identifier")
	if nameAt < 0 {
		return nil, c.unsupported(n)
	}
	nameNode := kids[nameAt]
	if nameNode.Type() == "identifier" {
		fn.Name = &ast.Name{Pos: c.pos(nameNode), ID: c.text(nameNode)}
	} else {
		var name ast.Expr
		for _, part := range children(nameNode) {
			switch part.Type() {
			case "identifier":
				id := c.text(part)
				if name == nil {
					name = &ast.Name{Pos: c.pos(part), ID: id}
					continue
				}
				name = &ast.Index{Pos: posOf(name), Value: name, Key: &ast.String{Pos: c.pos(part), S: id}, Dot: true}
			case "table_colon":
				fn.Method = true
			}
		}
		if name == nil {
			return nil, c.unsupported(nameNode)
		}
		fn.Name = name
	}

	params, body, err := c.funcBody(kids)
	if err != nil {
		return nil, err
	}
	fn.Params, fn.Body = params, body
	return fn, nil
}

// funcBody extracts the parameters and body shared by function statements
// and function expressions.
func (c *converter) funcBody(kids []*sitter.Node) ([]string, *ast.Block, error) {
	var params []string
	if at := indexOf(kids, "parameter_list"); at >= 0 {
		for _, p := range children(kids[at]) {
			switch p.Type() {
			case "identifier":
				params = append(params, c.text(p))
			case "ellipsis":
				params = append(params, "...")
			}
		}
	}
	if at := indexOf(kids, "function_body"); at >= 0 {
		body, err := c.block(children(kids[at]))
		if err != nil {
			return nil, nil, err
		}
		return params, body, nil
	}
	return params, &ast.Block{}, nil
}

type ifArm struct {
	marker *sitter.Node
	cond   []*sitter.Node
	body   []*sitter.Node
}

// ifStatement folds the elseif/else arms into a right-nested chain.
func (c *converter) ifStatement(n *sitter.Node) (ast.Stmt, error) {
	var arms []*ifArm
	var cur *ifArm
	inBody := false
	for _, k := range children(n) {
		switch k.Type() {
		case "if_start", "if_elseif":
			cur = &ifArm{marker: k}
			arms = append(arms, cur)
			inBody = false
		case "if_else":
			cur = &ifArm{marker: k}
			arms = append(arms, cur)
			inBody = true
		case "if_then":
			inBody = true
		case "if_end":
			cur = nil
		default:
			if cur == nil {
				continue
			}
			if inBody {
				cur.body = append(cur.body, k)
			} else {
				cur.cond = append(cur.cond, k)
			}
		}
	}
	if len(arms) == 0 || arms[0].marker.Type() != "if_start" {
		return nil, c.unsupported(n)
	}

	var tail ast.Stmt
	for i := len(arms) - 1; i >= 1; i-- {
		arm := arms[i]
		body, err := c.block(arm.body)
		if err != nil {
			return nil, err
		}
		if arm.marker.Type() == "if_else" {
			tail = &ast.Else{Pos: c.pos(arm.marker), Body: body}
			continue
		}
		test, err := c.exprSeq(arm.marker, arm.cond)
		if err != nil {
			return nil, err
		}
		tail = &ast.ElseIf{Pos: c.pos(arm.marker), Test: test, Body: body, Else: tail}
	}

	test, err := c.exprSeq(n, arms[0].cond)
	if err != nil {
		return nil, err
	}
	body, err := c.block(arms[0].body)
	if err != nil {
		return nil, err
	}
	return &ast.If{Pos: c.pos(n), Test: test, Body: body, Else: tail}, nil
}

func (c *converter) forStatement(n *sitter.Node) (ast.Stmt, error) {
	kids := children(n)
	body, err := c.between(kids, "for_do", "for_end")
	if err != nil {
		return nil, err
	}

	if at := indexOf(kids, "for_numeric"); at >= 0 {
		clause := kids[at]
		parts := children(clause)
		eq := indexOf(parts, "=")
		if eq < 1 {
			return nil, c.unsupported(clause)
		}
		bounds, err := c.exprList(clause, parts[eq+1:])
		if err != nil {
			return nil, err
		}
		if len(bounds) < 2 {
			return nil, c.unsupported(clause)
		}
		loop := &ast.NumericFor{Pos: c.pos(n), Var: c.text(parts[0]), Start: bounds[0], Stop: bounds[1], Body: body}
		if len(bounds) > 2 {
			loop.Step = bounds[2]
		}
		return loop, nil
	}

	at := indexOf(kids, "for_generic")
	if at < 0 {
		return nil, c.unsupported(n)
	}
	clause := kids[at]
	parts := children(clause)
	loop := &ast.GenericFor{Pos: c.pos(n), Body: body}
	if names := indexOf(parts, "identifier_list"); names >= 0 {
		for _, id := range children(parts[names]) {
			if id.Type() == "identifier" {
				loop.Targets = append(loop.Targets, c.text(id))
			}
		}
	}
	in := indexOf(parts, "for_in")
	if in < 0 {
		return nil, c.unsupported(clause)
	}
	if loop.Iter, err = c.exprList(clause, parts[in+1:]); err != nil {
		return nil, err
	}
	return loop, nil
}

// depthDelta tracks parenthesis and bracket nesting inside a flat run.
func depthDelta(n *sitter.Node) int {
	switch n.Type() {
	case "left_paren", "[":
		return 1
	case "right_paren", "]":
		return -1
	}
	return 0
}

// split cuts a flat run at top-level commas. Semicolons are dropped.
func split(nodes []*sitter.Node) [][]*sitter.Node {
	var groups [][]*sitter.Node
	var cur []*sitter.Node
	depth := 0
	for _, n := range nodes {
		if depth == 0 && !n.IsNamed() && (n.Type() == "," || n.Type() == ";") {
			if n.Type() == "," || len(cur) > 0 {
				groups = append(groups, cur)
			}
			cur = nil
			continue
		}
		depth += depthDelta(n)
		cur = append(cur, n)
	}
	if len(cur) > 0 {
		groups = append(groups, cur)
	}
	return groups
}

func (c *converter) exprList(parent *sitter.Node, nodes []*sitter.Node) ([]ast.Expr, error) {
	var out []ast.Expr
	for _, group := range split(nodes) {
		e, err := c.exprSeq(parent, group)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// exprSeq converts a flat run holding exactly one expression.
func (c *converter) exprSeq(parent *sitter.Node, nodes []*sitter.Node) (ast.Expr, error) {
	switch len(nodes) {
	case 0:
		return nil, fmt.Errorf("%w: missing expression in %s at line %d", ErrSyntax, parent.Type(), c.pos(parent).Line())
	case 1:
		return c.expr(nodes[0])
	}

	var e ast.Expr
	i := 0
	if nodes[0].Type() == "left_paren" {
		end := closing(nodes, 0)
		if end < 0 {
			return nil, c.unsupported(nodes[0])
		}
		x, err := c.exprSeq(parent, nodes[1:end])
		if err != nil {
			return nil, err
		}
		e = &ast.Paren{Pos: c.pos(nodes[0]), X: x}
		i = end + 1
	} else {
		x, err := c.expr(nodes[0])
		if err != nil {
			return nil, err
		}
		e = x
		i = 1
	}

	for i < len(nodes) {
		n := nodes[i]
		switch n.Type() {
		case ".":
			if i+1 >= len(nodes) || nodes[i+1].Type() != "identifier" {
				return nil, c.unsupported(parent)
			}
			key := nodes[i+1]
			e = &ast.Index{Pos: posOf(e), Value: e, Key: &ast.String{Pos: c.pos(key), S: c.text(key)}, Dot: true}
			i += 2
		case "[":
			end := closing(nodes, i)
			if end < 0 {
				return nil, c.unsupported(parent)
			}
			key, err := c.exprSeq(parent, nodes[i+1:end])
			if err != nil {
				return nil, err
			}
			e = &ast.Index{Pos: posOf(e), Value: e, Key: key}
			i = end + 1
		default:
			return nil, c.unsupported(n)
		}
	}
	return e, nil
}

// closing returns the index of the token that closes nodes[open].
func closing(nodes []*sitter.Node, open int) int {
	depth := 0
	for i := open; i < len(nodes); i++ {
		depth += depthDelta(nodes[i])
		if depth == 0 {
			return i
		}
	}
	return -1
}

func posOf(e ast.Expr) ast.Pos {
	return ast.Pos{Row: e.Line()}
}

func (c *converter) expr(n *sitter.Node) (ast.Expr, error) {
	p := c.pos(n)
	switch n.Type() {
	case "identifier":
		return &ast.Name{Pos: p, ID: c.text(n)}, nil
	case "function_call":
		return c.call(n)
	case "string", "string_argument":
		return &ast.String{Pos: p, S: c.stringContent(n)}, nil
	case "number":
		return &ast.Number{Pos: p, Raw: c.text(n)}, nil
	case "nil":
		return &ast.Nil{Pos: p}, nil
	case "boolean":
		if c.text(n) == "true" {
			return &ast.True{Pos: p}, nil
		}
		return &ast.False{Pos: p}, nil
	case "ellipsis":
		return &ast.Varargs{Pos: p}, nil
	case "tableconstructor", "table_argument":
		return c.table(n)
	case "function":
		params, body, err := c.funcBody(children(n))
		if err != nil {
			return nil, err
		}
		return &ast.FunctionExpr{Pos: p, Params: params, Body: body}, nil
	case "binary_operation":
		return c.binary(n)
	case "unary_operation":
		kids := children(n)
		if len(kids) < 2 {
			return nil, c.unsupported(n)
		}
		x, err := c.exprSeq(n, kids[1:])
		if err != nil {
			return nil, err
		}
		return &ast.UnaryOp{Pos: p, Op: c.text(kids[0]), Operand: x}, nil
	default:
		return nil, c.unsupported(n)
	}
}

// binary splits a binary_operation at its single top-level operator.
func (c *converter) binary(n *sitter.Node) (ast.Expr, error) {
	kids := children(n)
	depth := 0
	for i, k := range kids {
		if depth == 0 && i > 0 && !k.IsNamed() && binaryOps[k.Type()] {
			left, err := c.exprSeq(n, kids[:i])
			if err != nil {
				return nil, err
			}
			right, err := c.exprSeq(n, kids[i+1:])
			if err != nil {
				return nil, err
			}
			return &ast.BinaryOp{Pos: c.pos(n), Op: k.Type(), Left: left, Right: right}, nil
		}
		depth += depthDelta(k)
	}
	return nil, c.unsupported(n)
}

// call converts a function_call: a flat callee run, an optional `:method`,
// then a parenthesized, string or table argument.
func (c *converter) call(n *sitter.Node) (*ast.Call, error) {
	kids := children(n)
	end := indexOf(kids, "self_call_colon", "function_call_paren", "function_arguments", "string_argument", "table_argument")
	if end <= 0 {
		return nil, c.unsupported(n)
	}
	fn, err := c.exprSeq(n, kids[:end])
	if err != nil {
		return nil, err
	}
	call := &ast.Call{Pos: c.pos(n), Func: fn}

	rest := kids[end:]
	if rest[0].Type() == "self_call_colon" {
		if len(rest) < 2 || rest[1].Type() != "identifier" {
			return nil, c.unsupported(n)
		}
		call.Method = c.text(rest[1])
		rest = rest[2:]
	}

	for _, k := range rest {
		switch k.Type() {
		case "function_arguments":
			if call.Args, err = c.exprList(k, children(k)); err != nil {
				return nil, err
			}
		case "string_argument", "table_argument":
			arg, err := c.expr(k)
			if err != nil {
				return nil, err
			}
			call.Args = []ast.Expr{arg}
		}
	}
	return call, nil
}

func (c *converter) table(n *sitter.Node) (*ast.Table, error) {
	t := &ast.Table{Pos: c.pos(n)}
	at := indexOf(children(n), "fieldlist")
	if at < 0 {
		return t, nil
	}
	for _, f := range children(children(n)[at]) {
		if f.Type() != "field" {
			continue
		}
		field, err := c.field(f)
		if err != nil {
			return nil, err
		}
		t.Fields = append(t.Fields, field)
	}
	return t, nil
}

// field converts `name = v`, `[k] = v` or a positional `v`.
func (c *converter) field(n *sitter.Node) (ast.Field, error) {
	kids := children(n)
	if open := indexOf(kids, "field_left_bracket"); open >= 0 {
		shut := indexOf(kids, "field_right_bracket")
		if shut < open || shut+2 > len(kids) {
			return ast.Field{}, c.unsupported(n)
		}
		key, err := c.exprSeq(n, kids[open+1:shut])
		if err != nil {
			return ast.Field{}, err
		}
		value, err := c.exprSeq(n, kids[shut+2:])
		if err != nil {
			return ast.Field{}, err
		}
		return ast.Field{Key: key, Value: value}, nil
	}
	if len(kids) >= 3 && kids[0].Type() == "identifier" && kids[1].Type() == "=" {
		value, err := c.exprSeq(n, kids[2:])
		if err != nil {
			return ast.Field{}, err
		}
		return ast.Field{Key: &ast.String{Pos: c.pos(kids[0]), S: c.text(kids[0])}, Value: value}, nil
	}
	value, err := c.exprSeq(n, kids)
	if err != nil {
		return ast.Field{}, err
	}
	return ast.Field{Value: value}, nil
}

// stringContent returns the literal body. Escape sequences are kept as
// written and a long string drops its leading newline.
func (c *converter) stringContent(n *sitter.Node) string {
	var open, body string
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "string_start":
			open = c.text(child)
		case "string_content":
			body = child.Content(c.content)
		}
	}
	if strings.HasPrefix(open, "[") {
		body = strings.TrimPrefix(strings.TrimPrefix(body, "\r"), "\n")
	}
	return body
}

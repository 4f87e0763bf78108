// Package ast defines the Lua syntax tree consumed by the CFG builder.
// Trees are produced by the parser package and are never mutated afterwards.
package ast

// Node is implemented by every syntax tree node.
type Node interface {
	// Line returns the 1-based source line the node starts on.
	Line() int
	node()
}

// Stmt is a Lua statement.
type Stmt interface {
	Node
	stmt()
}

// Expr is a Lua expression.
type Expr interface {
	Node
	expr()
}

// Pos records where a node starts.
type Pos struct {
	Row int
}

// Line returns the 1-based source line.
func (p Pos) Line() int { return p.Row }

func (Pos) node() {}

// Chunk is a parsed source file.
type Chunk struct {
	Pos
	Body     *Block
	Comments []Comment
}

// Comment is a source comment. Text includes the leading dashes.
type Comment struct {
	Pos
	Text string
}

// Block is an ordered list of statements.
type Block struct {
	Pos
	Stmts []Stmt
}

// Statements

// Assign is `a, b = x, y` or, with Local set, `local a, b = x, y`.
type Assign struct {
	Pos
	Targets []Expr
	Values  []Expr
	Local   bool
}

// Function is a named function declaration: `function a.b()`, `function a:m()`
// or `local function f()`.
type Function struct {
	Pos
	Name   Expr
	Params []string
	Body   *Block
	Local  bool
	Method bool
}

// CallStmt is a call used as a statement.
type CallStmt struct {
	Pos
	Call *Call
}

// Do is `do ... end`.
type Do struct {
	Pos
	Body *Block
}

// While is `while test do ... end`.
type While struct {
	Pos
	Test Expr
	Body *Block
}

// Repeat is `repeat ... until test`.
type Repeat struct {
	Pos
	Body *Block
	Test Expr
}

// If is `if test then ... [elseif ...] [else ...] end`.
// Else is nil, an *ElseIf or an *Else.
type If struct {
	Pos
	Test Expr
	Body *Block
	Else Stmt
}

// ElseIf is one `elseif` arm. Else chains like If.Else.
type ElseIf struct {
	Pos
	Test Expr
	Body *Block
	Else Stmt
}

// Else is the trailing `else` arm.
type Else struct {
	Pos
	Body *Block
}

// NumericFor is `for v = start, stop[, step] do ... end`.
type NumericFor struct {
	Pos
	Var   string
	Start Expr
	Stop  Expr
	Step  Expr
	Body  *Block
}

// GenericFor is `for k, v in iter do ... end`.
type GenericFor struct {
	Pos
	Targets []string
	Iter    []Expr
	Body    *Block
}

// Return is `return a, b`.
type Return struct {
	Pos
	Values []Expr
}

// Break is `break`.
type Break struct {
	Pos
}

// Goto is `goto label`.
type Goto struct {
	Pos
	Label string
}

// Label is `::name::`.
type Label struct {
	Pos
	Name string
}

// Expressions

// Name is an identifier reference.
type Name struct {
	Pos
	ID string
}

// Index is `value.key` (Dot set, Key is a *String) or `value[key]`.
type Index struct {
	Pos
	Value Expr
	Key   Expr
	Dot   bool
}

// Call is `fn(args)` or, with Method set, `fn:Method(args)`.
type Call struct {
	Pos
	Func   Expr
	Method string
	Args   []Expr
}

// String is a string literal; S holds the unquoted content.
type String struct {
	Pos
	S string
}

// Number is a numeric literal kept in its source form.
type Number struct {
	Pos
	Raw string
}

// Nil is `nil`.
type Nil struct{ Pos }

// True is `true`.
type True struct{ Pos }

// False is `false`.
type False struct{ Pos }

// Varargs is `...`.
type Varargs struct{ Pos }

// Field is one table constructor entry. Key is nil for positional entries.
type Field struct {
	Key   Expr
	Value Expr
}

// Table is a table constructor.
type Table struct {
	Pos
	Fields []Field
}

// FunctionExpr is an anonymous `function(...) ... end`.
type FunctionExpr struct {
	Pos
	Params []string
	Body   *Block
}

// BinaryOp is `left op right`.
type BinaryOp struct {
	Pos
	Op    string
	Left  Expr
	Right Expr
}

// UnaryOp is `op operand`.
type UnaryOp struct {
	Pos
	Op      string
	Operand Expr
}

// Paren is a parenthesized expression.
type Paren struct {
	Pos
	X Expr
}

func (*Assign) stmt()     {}
func (*Function) stmt()   {}
func (*CallStmt) stmt()   {}
func (*Do) stmt()         {}
func (*While) stmt()      {}
func (*Repeat) stmt()     {}
func (*If) stmt()         {}
func (*ElseIf) stmt()     {}
func (*Else) stmt()       {}
func (*NumericFor) stmt() {}
func (*GenericFor) stmt() {}
func (*Return) stmt()     {}
func (*Break) stmt()      {}
func (*Goto) stmt()       {}
func (*Label) stmt()      {}

func (*Name) expr()         {}
func (*Index) expr()        {}
func (*Call) expr()         {}
func (*String) expr()       {}
func (*Number) expr()       {}
func (*Nil) expr()          {}
func (*True) expr()         {}
func (*False) expr()        {}
func (*Varargs) expr()      {}
func (*Table) expr()        {}
func (*FunctionExpr) expr() {}
func (*BinaryOp) expr()     {}
func (*UnaryOp) expr()      {}
func (*Paren) expr()        {}

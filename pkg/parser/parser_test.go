package parser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/luataint/pkg/ast"
)

func TestParse_Statements(t *testing.T) {
	src := `local x = req.get("q")
y = x .. "suffix"
os.execute(y)
`
	chunk, err := Parse([]byte(src))
	require.NoError(t, err)
	require.Len(t, chunk.Body.Stmts, 3)

	first, ok := chunk.Body.Stmts[0].(*ast.Assign)
	require.True(t, ok)
	assert.True(t, first.Local)
	assert.Equal(t, 1, first.Line())
	require.Len(t, first.Values, 1)
	call, ok := first.Values[0].(*ast.Call)
	require.True(t, ok)
	assert.Equal(t, "req.get", ast.CallName(call))
	assert.Equal(t, `req.get("q")`, ast.Format(call))

	second, ok := chunk.Body.Stmts[1].(*ast.Assign)
	require.True(t, ok)
	assert.False(t, second.Local)
	assert.Equal(t, `y = x .. "suffix"`, ast.Format(second))

	third, ok := chunk.Body.Stmts[2].(*ast.CallStmt)
	require.True(t, ok)
	assert.Equal(t, 3, third.Line())
	assert.Equal(t, "os.execute(y)", ast.Format(third.Call))
}

func TestParse_ControlFlow(t *testing.T) {
	src := `if a then
  b()
elseif c then
  d()
else
  e()
end
while x do break end
repeat y() until z
for i = 1, 10, 2 do end
for k, v in pairs(t) do end
do local q = 1 end
`
	chunk, err := Parse([]byte(src))
	require.NoError(t, err)
	require.Len(t, chunk.Body.Stmts, 6)

	ifStmt, ok := chunk.Body.Stmts[0].(*ast.If)
	require.True(t, ok)
	elseIf, ok := ifStmt.Else.(*ast.ElseIf)
	require.True(t, ok)
	assert.Equal(t, "c", ast.Format(elseIf.Test))
	_, ok = elseIf.Else.(*ast.Else)
	assert.True(t, ok)

	while, ok := chunk.Body.Stmts[1].(*ast.While)
	require.True(t, ok)
	require.Len(t, while.Body.Stmts, 1)
	assert.IsType(t, &ast.Break{}, while.Body.Stmts[0])

	assert.IsType(t, &ast.Repeat{}, chunk.Body.Stmts[2])

	numeric, ok := chunk.Body.Stmts[3].(*ast.NumericFor)
	require.True(t, ok)
	assert.Equal(t, "i", numeric.Var)
	assert.Equal(t, "2", ast.Format(numeric.Step))

	generic, ok := chunk.Body.Stmts[4].(*ast.GenericFor)
	require.True(t, ok)
	assert.Equal(t, []string{"k", "v"}, generic.Targets)
	assert.Equal(t, "pairs(t)", ast.FormatList(generic.Iter))

	assert.IsType(t, &ast.Do{}, chunk.Body.Stmts[5])

	lines := make([]int, len(chunk.Body.Stmts))
	for i, stmt := range chunk.Body.Stmts {
		lines[i] = stmt.Line()
	}
	assert.Equal(t, []int{1, 8, 9, 10, 11, 12}, lines)
	assert.Equal(t, 3, elseIf.Line())
	assert.Equal(t, 4, elseIf.Body.Stmts[0].Line())
}

func TestParse_CallShapes(t *testing.T) {
	tests := []struct {
		src  string
		name string
		want string
	}{
		{`f(x)`, "f", `f(x)`},
		{`a.b(x)`, "a.b", `a.b(x)`},
		{`os.execute(x)`, "os.execute", `os.execute(x)`},
		{`p.sub.f(x)`, "p.sub.f", `p.sub.f(x)`},
		{`io.popen(cmd):read("*a")`, "io.popen(cmd).read", `io.popen(cmd):read("*a")`},
		{`obj:m(x, y)`, "obj.m", `obj:m(x, y)`},
		{`a.b:c(d)`, "a.b.c", `a.b:c(d)`},
		{`t[k](x)`, "t[k]", `t[k](x)`},
		{`f"str"`, "f", `f("str")`},
		{`g{1, 2}`, "g", `g({1, 2})`},
		{`require "m"`, "require", `require("m")`},
		{`f()`, "f", `f()`},
		{`os.execute(util.trim(input))`, "os.execute", `os.execute(util.trim(input))`},
		{`f(t.a, b[1], "s" .. x)`, "f", `f(t.a, b[1], "s" .. x)`},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			chunk, err := Parse([]byte(tt.src))
			require.NoError(t, err)
			require.Len(t, chunk.Body.Stmts, 1)
			stmt, ok := chunk.Body.Stmts[0].(*ast.CallStmt)
			require.True(t, ok, "got %T", chunk.Body.Stmts[0])
			assert.Equal(t, tt.name, ast.CallName(stmt.Call))
			assert.Equal(t, tt.want, ast.Format(stmt.Call))
		})
	}
}

func TestParse_AssignmentShapes(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{`local a, b = 1, "s"`, `local a, b = 1, "s"`},
		{`local z`, `local z`},
		{`a.b.c = v`, `a.b.c = v`},
		{`t[k] = v`, `t[k] = v`},
		{`a[i], b.c = 1, 2`, `a[i], b.c = 1, 2`},
		{`x, y = f()`, `x, y = f()`},
		{`x = f(x)[1]`, `x = f(x)[1]`},
		{`y = a.b:c(d).e`, `y = a.b:c(d).e`},
		{`s = (a).b`, `s = (a).b`},
		{`q = t.a.b`, `q = t.a.b`},
		{`local f2 = require("m").f`, `local f2 = require("m").f`},
		{`z = t.a .. u[1]`, `z = t.a .. u[1]`},
		{`w = (a + b) * c`, `w = (a + b) * c`},
		{`y = not t.a`, `y = not t.a`},
		{`n = #t`, `n = #t`},
		{`v = ...`, `v = ...`},
		{`w = nil == true`, `w = nil == true`},
		{`e = "a\"b"`, `e = "a\"b"`},
		{`x = {f = function(p) return p end; x.y}`, `x = {f = function(p) ... end, x.y}`},
		{`x = {}`, `x = {}`},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			chunk, err := Parse([]byte(tt.src))
			require.NoError(t, err)
			require.Len(t, chunk.Body.Stmts, 1)
			assert.IsType(t, &ast.Assign{}, chunk.Body.Stmts[0])
			assert.Equal(t, tt.want, ast.Format(chunk.Body.Stmts[0]))
		})
	}
}

func TestParse_BinaryPrecedence(t *testing.T) {
	chunk, err := Parse([]byte("x = a + b * c\n"))
	require.NoError(t, err)
	assign := chunk.Body.Stmts[0].(*ast.Assign)
	sum, ok := assign.Values[0].(*ast.BinaryOp)
	require.True(t, ok)
	assert.Equal(t, "*", sum.Op)
	inner, ok := sum.Left.(*ast.BinaryOp)
	require.True(t, ok)
	assert.Equal(t, "+", inner.Op)
}

func TestParse_LineNumbers(t *testing.T) {
	src := `#!/usr/bin/lua
local s = [[long
str]] ; local e = 1
obj:m(x)

--- Documented.
-- @param x string
function M.f(x)
  return x
end
return M
`
	chunk, err := Parse([]byte(src))
	require.NoError(t, err)
	require.Len(t, chunk.Body.Stmts, 5)

	lines := make([]int, len(chunk.Body.Stmts))
	for i, stmt := range chunk.Body.Stmts {
		lines[i] = stmt.Line()
	}
	assert.Equal(t, []int{2, 3, 4, 8, 11}, lines)

	assert.Equal(t, `local s = "long
str"`, ast.Format(chunk.Body.Stmts[0]))
	fn := chunk.Body.Stmts[3].(*ast.Function)
	assert.Equal(t, "M.f", ast.FunctionName(fn))
	require.Len(t, fn.Body.Stmts, 1)
	assert.Equal(t, 9, fn.Body.Stmts[0].Line())
	assert.IsType(t, &ast.Return{}, chunk.Body.Stmts[4])
}

func TestParse_GotoUnsupported(t *testing.T) {
	_, err := Parse([]byte("goto done\n::done::\n"))
	assert.ErrorIs(t, err, ErrSyntax)
}

func TestParse_Functions(t *testing.T) {
	src := `local function f(a, b) return a end
function M.g(x) end
function M:h(...) end
local k = function(p) end
`
	chunk, err := Parse([]byte(src))
	require.NoError(t, err)
	require.Len(t, chunk.Body.Stmts, 4)

	f := chunk.Body.Stmts[0].(*ast.Function)
	assert.True(t, f.Local)
	assert.Equal(t, "f", ast.FunctionName(f))
	assert.Equal(t, []string{"a", "b"}, f.Params)
	require.Len(t, f.Body.Stmts, 1)
	assert.IsType(t, &ast.Return{}, f.Body.Stmts[0])

	g := chunk.Body.Stmts[1].(*ast.Function)
	assert.False(t, g.Local)
	assert.Equal(t, "M.g", ast.FunctionName(g))

	h := chunk.Body.Stmts[2].(*ast.Function)
	assert.True(t, h.Method)
	assert.Equal(t, "M.h", ast.FunctionName(h))
	assert.Equal(t, []string{"..."}, h.Params)

	k := chunk.Body.Stmts[3].(*ast.Assign)
	require.Len(t, k.Values, 1)
	assert.IsType(t, &ast.FunctionExpr{}, k.Values[0])
}

func TestParse_Expressions(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{`x = obj:method(a, b)`, `x = obj:method(a, b)`},
		{`x = t[k]`, `x = t[k]`},
		{`x = not a`, `x = not a`},
		{`x = -a`, `x = -a`},
		{`x = (a)`, `x = (a)`},
		{`x = {1, n = 2, ["k"] = 3}`, `x = {1, n = 2, k = 3}`},
		{`x = [[long]]`, `x = "long"`},
		{`x = require "m"`, `x = require("m")`},
		{`x = a and b or c`, `x = a and b or c`},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			chunk, err := Parse([]byte(tt.src))
			require.NoError(t, err)
			require.Len(t, chunk.Body.Stmts, 1)
			assert.Equal(t, tt.want, ast.Format(chunk.Body.Stmts[0]))
		})
	}
}

func TestParse_Comments(t *testing.T) {
	src := `local x = source() -- nosec
--[[ block ]]
sink(x)
`
	chunk, err := Parse([]byte(src))
	require.NoError(t, err)
	require.Len(t, chunk.Comments, 2)
	assert.Equal(t, 1, chunk.Comments[0].Line())
	assert.Equal(t, "-- nosec", chunk.Comments[0].Text)
	assert.Equal(t, 2, chunk.Comments[1].Line())
}

func TestParse_SyntaxError(t *testing.T) {
	_, err := Parse([]byte("local = = ="))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSyntax)
}

func TestParse_Compiled(t *testing.T) {
	assert.True(t, IsCompiled([]byte("\x1bLuaQ\x00\x01")))
	assert.False(t, IsCompiled([]byte("print(1)")))

	_, err := Parse([]byte("\x1bLuaS"))
	assert.ErrorIs(t, err, ErrCompiled)
}

func TestParser_CachesByContent(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.lua")
	b := filepath.Join(dir, "b.lua")
	require.NoError(t, os.WriteFile(a, []byte("x = 1\n"), 0644))
	require.NoError(t, os.WriteFile(b, []byte("x = 1\n"), 0644))

	p := New(Options{MaxTrees: 8})
	first, err := p.ParseFile(a)
	require.NoError(t, err)
	second, err := p.ParseFile(b)
	require.NoError(t, err)

	assert.Same(t, first, second)
	stats := p.Stats()
	assert.Equal(t, int64(1), stats.HitCount)
	assert.Equal(t, 1, stats.Length)
}

func TestParser_MissingFile(t *testing.T) {
	p := New(Options{})
	_, err := p.ParseFile(filepath.Join(t.TempDir(), "missing.lua"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

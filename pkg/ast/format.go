package ast

import (
	"strings"
)

// Format reconstructs a readable source rendering of n.
// It is used for node labels, so it favours stable output over exact layout.
func Format(n Node) string {
	var sb strings.Builder
	format(&sb, n)
	return sb.String()
}

// FormatList renders expressions separated by ", ".
func FormatList(exprs []Expr) string {
	parts := make([]string, 0, len(exprs))
	for _, e := range exprs {
		parts = append(parts, Format(e))
	}
	return strings.Join(parts, ", ")
}

func format(sb *strings.Builder, n Node) {
	switch n := n.(type) {
	case nil:
	case *Name:
		sb.WriteString(n.ID)
	case *Index:
		format(sb, n.Value)
		if s, ok := n.Key.(*String); ok && n.Dot {
			sb.WriteString(".")
			sb.WriteString(s.S)
			return
		}
		sb.WriteString("[")
		format(sb, n.Key)
		sb.WriteString("]")
	case *Call:
		format(sb, n.Func)
		if n.Method != "" {
			sb.WriteString(":")
			sb.WriteString(n.Method)
		}
		sb.WriteString("(")
		sb.WriteString(FormatList(n.Args))
		sb.WriteString(")")
	case *String:
		sb.WriteString(`"`)
		sb.WriteString(n.S)
		sb.WriteString(`"`)
	case *Number:
		sb.WriteString(n.Raw)
	case *Nil:
		sb.WriteString("nil")
	case *True:
		sb.WriteString("true")
	case *False:
		sb.WriteString("false")
	case *Varargs:
		sb.WriteString("...")
	case *Table:
		sb.WriteString("{")
		for i, f := range n.Fields {
			if i > 0 {
				sb.WriteString(", ")
			}
			switch k := f.Key.(type) {
			case nil:
			case *String:
				if isIdentifier(k.S) {
					sb.WriteString(k.S)
				} else {
					sb.WriteString("[")
					format(sb, k)
					sb.WriteString("]")
				}
				sb.WriteString(" = ")
			default:
				sb.WriteString("[")
				format(sb, k)
				sb.WriteString("] = ")
			}
			format(sb, f.Value)
		}
		sb.WriteString("}")
	case *FunctionExpr:
		sb.WriteString("function(")
		sb.WriteString(strings.Join(n.Params, ", "))
		sb.WriteString(") ... end")
	case *BinaryOp:
		format(sb, n.Left)
		sb.WriteString(" ")
		sb.WriteString(n.Op)
		sb.WriteString(" ")
		format(sb, n.Right)
	case *UnaryOp:
		sb.WriteString(n.Op)
		if n.Op == "not" {
			sb.WriteString(" ")
		}
		format(sb, n.Operand)
	case *Paren:
		sb.WriteString("(")
		format(sb, n.X)
		sb.WriteString(")")

	case *Assign:
		if n.Local {
			sb.WriteString("local ")
		}
		sb.WriteString(FormatList(n.Targets))
		if len(n.Values) > 0 {
			sb.WriteString(" = ")
			sb.WriteString(FormatList(n.Values))
		}
	case *CallStmt:
		format(sb, n.Call)
	case *Return:
		sb.WriteString("return")
		if len(n.Values) > 0 {
			sb.WriteString(" ")
			sb.WriteString(FormatList(n.Values))
		}
	case *Break:
		sb.WriteString("break")
	case *Goto:
		sb.WriteString("goto ")
		sb.WriteString(n.Label)
	case *Label:
		sb.WriteString("::")
		sb.WriteString(n.Name)
		sb.WriteString("::")
	case *Function:
		if n.Local {
			sb.WriteString("local ")
		}
		sb.WriteString("function ")
		sb.WriteString(FunctionName(n))
		sb.WriteString("(")
		sb.WriteString(strings.Join(n.Params, ", "))
		sb.WriteString(")")
	}
}

// CallName returns the dotted name of a call target, e.g. `os.execute` for
// os.execute(x) and `req.formvalue` for req:formvalue(x).
func CallName(c *Call) string {
	name := dottedName(c.Func)
	if c.Method != "" {
		return name + "." + c.Method
	}
	return name
}

// FunctionName returns the dotted name of a declared function. Methods use a
// dot separator so that `function M:get()` is registered as `M.get`.
func FunctionName(f *Function) string {
	return dottedName(f.Name)
}

func dottedName(e Expr) string {
	switch e := e.(type) {
	case *Name:
		return e.ID
	case *Index:
		if s, ok := e.Key.(*String); ok {
			return dottedName(e.Value) + "." + s.S
		}
		return Format(e)
	case *Paren:
		return dottedName(e.X)
	default:
		return Format(e)
	}
}

// BaseName returns the variable at the root of an index chain (`t` for
// t.a[b].c) or "" when the root is not a plain name.
func BaseName(e Expr) string {
	for {
		switch x := e.(type) {
		case *Name:
			return x.ID
		case *Index:
			e = x.Value
		case *Paren:
			e = x.X
		default:
			return ""
		}
	}
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

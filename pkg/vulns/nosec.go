package vulns

import (
	"strings"

	"github.com/l3aro/luataint/pkg/ast"
)

// Lines is a set of 1-based line numbers.
type Lines map[int]struct{}

// Contains reports whether line is in l.
func (l Lines) Contains(line int) bool {
	_, ok := l[line]
	return ok
}

// NosecLines returns the lines carrying a `-- nosec` comment. A block
// comment marks the line it starts on.
func NosecLines(chunk *ast.Chunk) Lines {
	lines := make(Lines)
	if chunk == nil {
		return lines
	}
	for _, c := range chunk.Comments {
		if isNosec(c.Text) {
			lines[c.Line()] = struct{}{}
		}
	}
	return lines
}

func isNosec(comment string) bool {
	text := strings.TrimLeft(comment, "-[=")
	return strings.Contains(strings.ToLower(text), "nosec")
}

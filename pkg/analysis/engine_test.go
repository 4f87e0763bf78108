package analysis

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/luataint/internal/log"
	"github.com/l3aro/luataint/pkg/cfg"
	"github.com/l3aro/luataint/pkg/parser"
)

func build(t *testing.T, src string) *cfg.CFG {
	t.Helper()
	root := t.TempDir()
	path := filepath.Join(root, "main.lua")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	trees := parser.New(parser.Options{})
	p, err := cfg.NewProject(root, cfg.Options{Trees: trees, Logger: log.Nop()})
	require.NoError(t, err)
	chunk, err := trees.ParseFile(path)
	require.NoError(t, err)
	g, err := p.Build(path, chunk)
	require.NoError(t, err)
	return g
}

// defLabels returns the labels of the definitions of variable reaching the
// node labelled at.
func defLabels(t *testing.T, table *Table, g *cfg.CFG, at, variable string) []string {
	t.Helper()
	n := g.Find(at)
	require.NotNil(t, n, "no node %q", at)
	var out []string
	for _, id := range table.Reaching(g, n.ID, variable) {
		out = append(out, g.Nodes[id].Label)
	}
	return out
}

func solve(t *testing.T, g *cfg.CFG, opts Options) (*Table, Stats) {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	table := NewTable(g)
	return table, New(opts).Run(table)
}

func TestReachingDefinitions(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		at       string
		variable string
		want     []string
	}{
		{
			name:     "strong update kills",
			src:      "x = a\nx = b\nprint(x)\n",
			at:       "~call_1 = ret_print(x)",
			variable: "x",
			want:     []string{"x = b"},
		},
		{
			name:     "self read keeps earlier definition",
			src:      "x = a\nx = x .. b\nprint(x)\n",
			at:       "~call_1 = ret_print(x)",
			variable: "x",
			want:     []string{"x = a", "x = x .. b"},
		},
		{
			name:     "branch join",
			src:      "x = a\nif c then\n  x = b\nend\nprint(x)\n",
			at:       "~call_1 = ret_print(x)",
			variable: "x",
			want:     []string{"x = a", "x = b"},
		},
		{
			name:     "loop carries definitions around",
			src:      "x = a\nwhile c do\n  print(x)\n  x = b\nend\n",
			at:       "~call_1 = ret_print(x)",
			variable: "x",
			want:     []string{"x = a", "x = b"},
		},
		{
			name:     "index assignment is weak",
			src:      "t = {}\nt.k = v\nprint(t)\n",
			at:       "~call_1 = ret_print(t)",
			variable: "t",
			want:     []string{"t = {}", "t.k = v"},
		},
		{
			name:     "call carrier",
			src:      "x = f(a)\nprint(x)\n",
			at:       "x = ~call_1",
			variable: "~call_1",
			want:     []string{"~call_1 = ret_f(a)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := build(t, tt.src)
			table, _ := solve(t, g, Options{})
			assert.Equal(t, tt.want, defLabels(t, table, g, tt.at, tt.variable))
		})
	}
}

func TestSolveIdempotent(t *testing.T) {
	g := build(t, "x = a\nfor i = 1, 3 do\n  if x then\n    x = f(x)\n  else\n    break\n  end\nend\nprint(x)\n")
	table := NewTable(g)
	engine := New(Options{Logger: log.Nop()})

	first := engine.Run(table)
	assert.Positive(t, first.Updates)
	assert.GreaterOrEqual(t, first.Iterations, g.Len())

	second := engine.Run(table)
	assert.Zero(t, second.Updates)
	assert.Equal(t, g.Len(), second.Iterations)
}

func TestSolveMonotonic(t *testing.T) {
	g := build(t, "x = a\nrepeat\n  y = x\n  x = y .. z\n  if y then\n    z = x\n  end\nuntil done(z)\nprint(x, y, z)\n")

	var violations []string
	opts := Options{
		OnUpdate: func(g *cfg.CFG, id cfg.NodeID, old, updated Set) {
			for d := range old {
				if !updated.Contains(d) {
					violations = append(violations, g.Nodes[id].Label+" lost "+g.Nodes[d].Label)
				}
			}
		},
	}
	_, stats := solve(t, g, opts)
	assert.Positive(t, stats.Updates)
	assert.Empty(t, violations)
}

func TestSolveSampling(t *testing.T) {
	g := build(t, "x = a\ny = x\n")
	_, stats := solve(t, g, Options{SampleEvery: 1})
	assert.Equal(t, g.Len(), stats.Iterations)
}

func TestTransferPanicsOnUnknownKind(t *testing.T) {
	g := &cfg.CFG{Nodes: []*cfg.Node{{ID: 0, Kind: cfg.Kind("bogus")}}}
	assert.Panics(t, func() { transfer(g, g.Nodes[0], Set{}) })
}

func TestSet(t *testing.T) {
	s := Set{3: {}, 1: {}, 2: {}}
	assert.Equal(t, []cfg.NodeID{1, 2, 3}, s.Sorted())
	assert.True(t, s.Equal(s.Clone()))
	assert.False(t, s.Equal(Set{1: {}}))
	assert.True(t, s.Contains(2))
	assert.False(t, s.Contains(4))
}

// Package analysis computes reaching definitions over lowered CFGs.
//
// The Table maps every node of every registered CFG to the set of definition
// nodes reaching the node's exit. The Engine fills it with a worklist
// fixed-point iteration.
package analysis

import (
	"sort"

	"github.com/l3aro/luataint/pkg/cfg"
)

// Set is a set of definition node IDs. Each definition defines exactly one
// variable, so a Set stands for (variable, definition) pairs.
type Set map[cfg.NodeID]struct{}

// Contains reports whether id is in s.
func (s Set) Contains(id cfg.NodeID) bool {
	_, ok := s[id]
	return ok
}

// Clone returns a copy of s.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// Equal reports whether s and o hold the same IDs.
func (s Set) Equal(o Set) bool {
	if len(s) != len(o) {
		return false
	}
	for id := range s {
		if _, ok := o[id]; !ok {
			return false
		}
	}
	return true
}

// Sorted returns the IDs in ascending order.
func (s Set) Sorted() []cfg.NodeID {
	ids := make([]cfg.NodeID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Table is the run-wide constraint table.
type Table struct {
	graphs []*cfg.CFG
	out    map[*cfg.CFG][]Set
}

// NewTable creates a table holding an empty state for every node of graphs.
func NewTable(graphs ...*cfg.CFG) *Table {
	t := &Table{out: make(map[*cfg.CFG][]Set)}
	for _, g := range graphs {
		t.Add(g)
	}
	return t
}

// Add registers g with an empty state per node. Adding a graph twice is a
// no-op.
func (t *Table) Add(g *cfg.CFG) {
	if _, ok := t.out[g]; ok {
		return
	}
	states := make([]Set, g.Len())
	for i := range states {
		states[i] = make(Set)
	}
	t.graphs = append(t.graphs, g)
	t.out[g] = states
}

// Graphs returns the registered CFGs in registration order.
func (t *Table) Graphs() []*cfg.CFG {
	return t.graphs
}

// Out returns the definitions reaching the exit of node id. The returned
// set must not be modified.
func (t *Table) Out(g *cfg.CFG, id cfg.NodeID) Set {
	return t.out[g][id]
}

// In returns the definitions reaching the entry of node id: the union of
// its predecessors' exit states.
func (t *Table) In(g *cfg.CFG, id cfg.NodeID) Set {
	in := make(Set)
	for _, p := range g.Nodes[id].Ingoing {
		for d := range t.out[g][p] {
			in[d] = struct{}{}
		}
	}
	return in
}

// Reaching returns the definitions of variable that reach node id, in
// ascending ID order.
func (t *Table) Reaching(g *cfg.CFG, id cfg.NodeID, variable string) []cfg.NodeID {
	var defs []cfg.NodeID
	for _, d := range t.In(g, id).Sorted() {
		if g.Nodes[d].LHS == variable {
			defs = append(defs, d)
		}
	}
	return defs
}

func (t *Table) set(g *cfg.CFG, id cfg.NodeID, s Set) {
	t.out[g][id] = s
}

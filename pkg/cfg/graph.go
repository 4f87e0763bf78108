package cfg

import (
	"github.com/l3aro/luataint/pkg/ast"
)

// CFG is the control flow graph of one lowered file or entry-point function.
// Nodes[0] is the entry node.
type CFG struct {
	Name  string  `json:"name"`
	Path  string  `json:"path"`
	Nodes []*Node `json:"nodes"`

	// Definitions holds the root module's definitions and aliases.
	Definitions *ModuleDefinitions `json:"-"`
	// Chunk is the syntax tree the graph was lowered from.
	Chunk *ast.Chunk `json:"-"`
}

// Node returns the node with the given ID.
func (g *CFG) Node(id NodeID) *Node {
	return g.Nodes[id]
}

// Entry returns the entry node ID.
func (g *CFG) Entry() NodeID {
	return 0
}

// Exit returns the ID of the last node, the root exit.
func (g *CFG) Exit() NodeID {
	return NodeID(len(g.Nodes) - 1)
}

// Len returns the number of nodes.
func (g *CFG) Len() int {
	return len(g.Nodes)
}

func (g *CFG) add(n *Node) NodeID {
	n.ID = NodeID(len(g.Nodes))
	g.Nodes = append(g.Nodes, n)
	return n.ID
}

// Connect adds the edge from -> to. Duplicate edges are ignored.
func (g *CFG) Connect(from, to NodeID) {
	src := g.Nodes[from]
	for _, id := range src.Outgoing {
		if id == to {
			return
		}
	}
	src.Outgoing = append(src.Outgoing, to)
	dst := g.Nodes[to]
	dst.Ingoing = append(dst.Ingoing, from)
}

// ConnectPredecessors adds an edge from every node in preds to to.
func (g *CFG) ConnectPredecessors(to NodeID, preds []NodeID) {
	for _, p := range preds {
		g.Connect(p, to)
	}
}

// HasEdge reports whether the edge from -> to exists.
func (g *CFG) HasEdge(from, to NodeID) bool {
	for _, id := range g.Nodes[from].Outgoing {
		if id == to {
			return true
		}
	}
	return false
}

// Find returns the first node whose label equals label, or nil.
func (g *CFG) Find(label string) *Node {
	for _, n := range g.Nodes {
		if n.Label == label {
			return n
		}
	}
	return nil
}

// Ancestors returns every node from which id is reachable, id excluded
// unless it lies on a cycle.
func (g *CFG) Ancestors(id NodeID) map[NodeID]struct{} {
	seen := make(map[NodeID]struct{})
	stack := append([]NodeID(nil), g.Nodes[id].Ingoing...)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := seen[cur]; ok {
			continue
		}
		seen[cur] = struct{}{}
		stack = append(stack, g.Nodes[cur].Ingoing...)
	}
	return seen
}

// fragment is the result of lowering one statement or statement list: the
// first-reached node, the last-reached nodes, and breaks bubbling up to the
// enclosing loop. An ignored fragment produced no node at all.
type fragment struct {
	first   NodeID
	last    []NodeID
	breaks  []NodeID
	ignored bool
}

func ignored() fragment {
	return fragment{first: NoNode, ignored: true}
}

func single(id NodeID) fragment {
	return fragment{first: id, last: []NodeID{id}}
}

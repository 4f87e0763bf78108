// Package cfg lowers Lua syntax trees into control flow graphs.
// It provides the node vocabulary, the statement lowering rules and the
// require resolver that splices imported modules into the importing graph.
package cfg

import (
	"fmt"

	"github.com/l3aro/luataint/pkg/ast"
)

// Kind represents the variant of a CFG node.
type Kind string

const (
	KindEntry          Kind = "entry"           // Module or function entry point
	KindExit           Kind = "exit"            // Module or function exit point
	KindAssignment     Kind = "assignment"      // Assignment of free variables
	KindAssignmentCall Kind = "assignment_call" // Assignment of a call's return carrier
	KindCall           Kind = "call"            // Builtin or blackbox call
	KindIf             Kind = "if"              // If test
	KindElseIf         Kind = "elseif"          // Chained elseif test
	KindLoop           Kind = "loop"            // Loop header (for, while, repeat)
	KindReturn         Kind = "return"          // Return into the function's return slot
	KindBreak          Kind = "break"           // Break out of the enclosing loop
	KindStatement      Kind = "statement"       // Non-effectful statement (goto, label)
	KindEntryParameter Kind = "entry_parameter" // Parameter of a framework entry point
)

// IsDefinition reports whether nodes of kind k define a variable.
func (k Kind) IsDefinition() bool {
	switch k {
	case KindAssignment, KindAssignmentCall, KindCall, KindReturn, KindEntryParameter:
		return true
	case KindEntry, KindExit, KindIf, KindElseIf, KindLoop, KindBreak, KindStatement:
		return false
	default:
		panic(fmt.Sprintf("cfg: unknown node kind %q", k))
	}
}

// IsControlFlow reports whether k is a branch or loop test.
func (k Kind) IsControlFlow() bool {
	switch k {
	case KindIf, KindElseIf, KindLoop:
		return true
	case KindEntry, KindExit, KindAssignment, KindAssignmentCall, KindCall,
		KindReturn, KindBreak, KindStatement, KindEntryParameter:
		return false
	default:
		panic(fmt.Sprintf("cfg: unknown node kind %q", k))
	}
}

// NodeID addresses a node inside its CFG's arena.
type NodeID int

// NoNode marks an absent node reference.
const NoNode NodeID = -1

// CallIdentifier prefixes the synthetic return carrier of a call.
const CallIdentifier = "~"

// Node is a CFG node. Edges are IDs into the owning CFG's arena.
type Node struct {
	ID    NodeID   `json:"id"`
	Kind  Kind     `json:"kind"`
	Label string   `json:"label"`
	Path  string   `json:"path"`
	Line  int      `json:"line"`
	AST   ast.Node `json:"-"`

	Outgoing []NodeID `json:"outgoing"`
	Ingoing  []NodeID `json:"ingoing"`

	// LHS is the variable a definition node defines.
	LHS string `json:"lhs,omitempty"`
	// RHS holds the free variables a node reads.
	RHS []string `json:"rhs,omitempty"`

	// Test is the condition of If, ElseIf and Loop nodes.
	Test ast.Expr `json:"-"`

	// FuncName is the alias-qualified callee of a Call node.
	FuncName string `json:"func_name,omitempty"`
	// Args holds the argument labels of a Call node; nested calls appear
	// as their return carriers.
	Args []string `json:"args,omitempty"`
	// Blackbox is set when the callee is not defined in the analysed project.
	Blackbox bool `json:"blackbox,omitempty"`
	// InnerMostCall is the first nested call lowered for this call's arguments.
	InnerMostCall NodeID `json:"inner_most_call"`
	// CallNode is the call an AssignmentCall wraps.
	CallNode NodeID `json:"call_node"`
}

// String returns the node's label prefixed with its location.
func (n *Node) String() string {
	return fmt.Sprintf("%s:%d %s", n.Path, n.Line, n.Label)
}

// Reads reports whether the node reads variable v.
func (n *Node) Reads(v string) bool {
	for _, r := range n.RHS {
		if r == v {
			return true
		}
	}
	return false
}

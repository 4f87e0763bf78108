package analysis

import (
	"container/list"
	"fmt"
	"runtime"

	"github.com/l3aro/luataint/internal/log"
	"github.com/l3aro/luataint/pkg/cfg"
)

// DefaultSampleEvery is how many iterations pass between progress samples.
const DefaultSampleEvery = 10000

// UpdateFunc observes a state change of node id from old to updated.
type UpdateFunc func(g *cfg.CFG, id cfg.NodeID, old, updated Set)

// Engine runs the reaching-definitions fixed point.
type Engine struct {
	logger      log.Logger
	sampleEvery int
	onUpdate    UpdateFunc
}

// Options configures an Engine.
type Options struct {
	Logger log.Logger
	// SampleEvery sets the progress sampling interval. 0 uses
	// DefaultSampleEvery.
	SampleEvery int
	// OnUpdate, when set, is called after every state change.
	OnUpdate UpdateFunc
}

// Stats summarizes one fixed-point run.
type Stats struct {
	Iterations int
	Updates    int
}

// New creates an Engine.
func New(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.SampleEvery <= 0 {
		opts.SampleEvery = DefaultSampleEvery
	}
	return &Engine{
		logger:      opts.Logger,
		sampleEvery: opts.SampleEvery,
		onUpdate:    opts.OnUpdate,
	}
}

// Run solves every graph registered in t.
func (e *Engine) Run(t *Table) Stats {
	var total Stats
	for _, g := range t.Graphs() {
		s := e.Solve(t, g)
		total.Iterations += s.Iterations
		total.Updates += s.Updates
	}
	return total
}

// Solve iterates g to its fixed point. The worklist starts with every node;
// a node is re-queued only when a predecessor's state changed, and never
// while it is already pending.
func (e *Engine) Solve(t *Table, g *cfg.CFG) Stats {
	t.Add(g)

	worklist := list.New()
	pending := make(map[cfg.NodeID]struct{}, g.Len())
	for _, n := range g.Nodes {
		worklist.PushBack(n.ID)
		pending[n.ID] = struct{}{}
	}

	var stats Stats
	for worklist.Len() > 0 {
		id := worklist.Remove(worklist.Front()).(cfg.NodeID)
		delete(pending, id)
		stats.Iterations++

		old := t.Out(g, id)
		updated := transfer(g, g.Nodes[id], t.In(g, id))
		if !updated.Equal(old) {
			t.set(g, id, updated)
			stats.Updates++
			if e.onUpdate != nil {
				e.onUpdate(g, id, old, updated)
			}
			for _, succ := range g.Nodes[id].Outgoing {
				if _, ok := pending[succ]; ok {
					continue
				}
				worklist.PushBack(succ)
				pending[succ] = struct{}{}
			}
		}

		if stats.Iterations%e.sampleEvery == 0 {
			e.sample(g, stats, worklist.Len())
		}
	}

	e.logger.Debug("fixed point reached",
		"cfg", g.Name,
		"nodes", g.Len(),
		"iterations", stats.Iterations,
		"updates", stats.Updates,
	)
	return stats
}

func (e *Engine) sample(g *cfg.CFG, stats Stats, pending int) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	e.logger.Debug("fixed point progress",
		"cfg", g.Name,
		"iterations", stats.Iterations,
		"pending", pending,
		"heap", fmt.Sprintf("%dMiB", m.HeapAlloc>>20),
	)
}

// transfer computes a node's exit state from its entry state. A definition
// kills earlier definitions of its variable, unless it also reads the
// variable, and adds itself.
func transfer(g *cfg.CFG, n *cfg.Node, in Set) Set {
	switch n.Kind {
	case cfg.KindAssignment, cfg.KindAssignmentCall, cfg.KindCall, cfg.KindReturn, cfg.KindEntryParameter:
		weak := n.Reads(n.LHS)
		out := make(Set, len(in)+1)
		for d := range in {
			if !weak && g.Nodes[d].LHS == n.LHS {
				continue
			}
			out[d] = struct{}{}
		}
		out[n.ID] = struct{}{}
		return out
	case cfg.KindEntry, cfg.KindExit, cfg.KindIf, cfg.KindElseIf, cfg.KindLoop, cfg.KindBreak, cfg.KindStatement:
		return in
	default:
		panic(fmt.Sprintf("analysis: unknown node kind %q", n.Kind))
	}
}

package vulns

import (
	"fmt"
	"sort"
	"strings"

	"github.com/l3aro/luataint/internal/log"
	"github.com/l3aro/luataint/pkg/analysis"
	"github.com/l3aro/luataint/pkg/ast"
	"github.com/l3aro/luataint/pkg/cfg"
)

// DefaultMaxPaths bounds the def-use paths explored per source and sink.
const DefaultMaxPaths = 1000

// ParameterTrigger is the trigger reported for entry-point parameters.
const ParameterTrigger = "parameter"

// Prompter decides interactively whether taint flows through a blackbox
// call nothing is known about.
type Prompter interface {
	Propagates(call *cfg.Node, v *Vulnerability) (bool, error)
}

// Options configures a Detector.
type Options struct {
	Triggers *Triggers
	Mapping  *Mapping
	// Prompter, when set, is asked about unmapped blackbox calls and its
	// answers are recorded in Mapping.
	Prompter Prompter
	// Nosec holds the opted-out lines per file path.
	Nosec    map[string]Lines
	MaxPaths int
	Logger   log.Logger
}

// Detector finds source to sink flows in analysed CFGs.
type Detector struct {
	triggers *Triggers
	mapping  *Mapping
	prompter Prompter
	nosec    map[string]Lines
	maxPaths int
	logger   log.Logger
}

// NewDetector creates a Detector. Missing triggers and mapping default to
// the built-in triggers and an empty mapping.
func NewDetector(opts Options) *Detector {
	if opts.Triggers == nil {
		opts.Triggers = DefaultTriggers()
	}
	if opts.Mapping == nil {
		opts.Mapping = NewMapping()
	}
	if opts.MaxPaths <= 0 {
		opts.MaxPaths = DefaultMaxPaths
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Detector{
		triggers: opts.Triggers,
		mapping:  opts.Mapping,
		prompter: opts.Prompter,
		nosec:    opts.Nosec,
		maxPaths: opts.MaxPaths,
		logger:   opts.Logger,
	}
}

// Find reports at most one finding per category, source and sink over every
// graph in table. A flow without sanitizer wins over a sanitized one, which
// wins over one crossing an unknown blackbox call.
func (d *Detector) Find(table *analysis.Table) ([]*Vulnerability, error) {
	var out []*Vulnerability
	for _, g := range table.Graphs() {
		found, err := d.findInGraph(table, g)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", g.Name, err)
		}
		out = append(out, found...)
	}
	out = dedupe(out)
	sortVulnerabilities(out)
	return out, nil
}

// dedupe keeps the strongest finding per category, source and sink. A module
// scanned on its own and spliced into an importer yields the same flow twice.
func dedupe(vulns []*Vulnerability) []*Vulnerability {
	type key struct {
		category     string
		source, sink string
	}
	best := make(map[key]int)
	out := vulns[:0:0]
	for _, v := range vulns {
		k := key{v.Category, location(v.Source), location(v.Sink)}
		if i, ok := best[k]; ok {
			if v.Kind().rank() < out[i].Kind().rank() {
				out[i] = v
			}
			continue
		}
		best[k] = len(out)
		out = append(out, v)
	}
	return out
}

type trigger struct {
	id   cfg.NodeID
	word string
}

func (d *Detector) findInGraph(table *analysis.Table, g *cfg.CFG) ([]*Vulnerability, error) {
	uses := defUse(table, g)

	var out []*Vulnerability
	for _, cat := range d.triggers.Sorted() {
		sources := d.sources(g, cat)
		if len(sources) == 0 {
			continue
		}
		for _, sink := range d.sinks(g, cat) {
			reach := reaching(uses, g, sink.id)
			for _, src := range sources {
				if src.id == sink.id {
					continue
				}
				if _, ok := reach[src.id]; !ok {
					continue
				}
				if d.suppressed(g.Nodes[src.id]) || d.suppressed(g.Nodes[sink.id]) {
					continue
				}
				v, err := d.flow(g, uses, reach, cat, src, sink)
				if err != nil {
					return nil, err
				}
				if v != nil {
					d.logger.Debug("found flow",
						"category", cat.Name,
						"kind", string(v.Kind()),
						"source", location(v.Source),
						"sink", location(v.Sink),
					)
					out = append(out, v)
				}
			}
		}
	}
	return out, nil
}

func (d *Detector) sources(g *cfg.CFG, cat *Category) []trigger {
	var out []trigger
	for _, n := range g.Nodes {
		switch n.Kind {
		case cfg.KindCall:
			if word, ok := cat.Source(n.FuncName); ok {
				out = append(out, trigger{id: n.ID, word: word})
			}
		case cfg.KindEntryParameter:
			out = append(out, trigger{id: n.ID, word: ParameterTrigger})
		}
	}
	return out
}

func (d *Detector) sinks(g *cfg.CFG, cat *Category) []trigger {
	var out []trigger
	for _, n := range g.Nodes {
		if n.Kind != cfg.KindCall {
			continue
		}
		if word, ok := cat.Sink(n.FuncName); ok {
			out = append(out, trigger{id: n.ID, word: word})
			continue
		}
		if n.Blackbox {
			if c, ok := d.mapping.Category(n.FuncName); ok && c == cat.Name {
				out = append(out, trigger{id: n.ID, word: n.FuncName})
			}
		}
	}
	return out
}

func (d *Detector) suppressed(n *cfg.Node) bool {
	return d.nosec[n.Path].Contains(n.Line)
}

// flow picks the strongest finding among the def-use paths from src to sink.
func (d *Detector) flow(g *cfg.CFG, uses map[cfg.NodeID][]cfg.NodeID, reach map[cfg.NodeID]struct{}, cat *Category, src, sink trigger) (*Vulnerability, error) {
	var (
		best     *Vulnerability
		err      error
		explored int
	)
	onPath := map[cfg.NodeID]bool{src.id: true}
	path := []cfg.NodeID{src.id}

	var walk func(cfg.NodeID) bool
	walk = func(cur cfg.NodeID) bool {
		if cur == sink.id {
			explored++
			v, cerr := d.classify(g, cat, path, src, sink)
			if cerr != nil {
				err = cerr
				return false
			}
			if v != nil && (best == nil || v.Kind().rank() < best.Kind().rank()) {
				best = v
			}
			return (best == nil || best.Kind() != KindVulnerable) && explored < d.maxPaths
		}
		for _, next := range uses[cur] {
			if onPath[next] {
				continue
			}
			if _, ok := reach[next]; !ok && next != sink.id {
				continue
			}
			onPath[next] = true
			path = append(path, next)
			more := walk(next)
			path = path[:len(path)-1]
			onPath[next] = false
			if !more {
				return false
			}
		}
		return true
	}
	walk(src.id)
	return best, err
}

// classify walks one def-use path. It returns nil when a blackbox call on
// the path is known not to propagate taint.
func (d *Detector) classify(g *cfg.CFG, cat *Category, path []cfg.NodeID, src, sink trigger) (*Vulnerability, error) {
	v := &Vulnerability{
		Category:      cat.Name,
		Source:        g.Nodes[src.id],
		SourceTrigger: src.word,
		Sink:          g.Nodes[sink.id],
		SinkTrigger:   sink.word,
		Variable:      g.Nodes[path[len(path)-2]].LHS,
	}

	chain := path[1 : len(path)-1]
	// Report a source call through the assignment receiving its value.
	if len(chain) > 0 {
		if first := g.Nodes[chain[0]]; first.Kind == cfg.KindAssignmentCall && first.CallNode == src.id {
			v.Source = first
			chain = chain[1:]
		}
	}
	for _, id := range chain {
		v.Chain = append(v.Chain, g.Nodes[id])
	}

	for _, n := range v.Chain {
		if n.Kind != cfg.KindCall {
			continue
		}
		if _, ok := cat.Sanitizer(n.FuncName); ok {
			v.Sanitized, v.Sanitizer, v.Confident = true, n, true
			return v, nil
		}
		if !n.Blackbox {
			continue
		}
		propagates, known, err := d.decide(n, v)
		if err != nil {
			return nil, err
		}
		switch {
		case !known:
			if v.Unknown == nil {
				v.Unknown = n
			}
		case !propagates:
			return nil, nil
		}
	}

	if guard := d.guard(g, cat, path, sink.id); guard != nil {
		v.Sanitized, v.Sanitizer, v.Confident = true, guard, false
	}
	return v, nil
}

// decide reports whether taint flows through a blackbox call and whether
// that is known at all.
func (d *Detector) decide(n *cfg.Node, v *Vulnerability) (propagates, known bool, err error) {
	if value, ok := d.mapping.Lookup(n.FuncName); ok {
		return value != DoesNotPropagate, true, nil
	}
	if d.prompter == nil {
		return false, false, nil
	}
	propagates, err = d.prompter.Propagates(n, v)
	if err != nil {
		return false, false, fmt.Errorf("deciding on %s: %w", n.FuncName, err)
	}
	if propagates {
		d.mapping.Set(n.FuncName, Propagates)
	} else {
		d.mapping.Set(n.FuncName, DoesNotPropagate)
	}
	return propagates, true, nil
}

// guard returns an if or elseif test that calls a sanitizer of cat on a
// variable of the path and controls whether the sink runs.
func (d *Detector) guard(g *cfg.CFG, cat *Category, path []cfg.NodeID, sink cfg.NodeID) *cfg.Node {
	vars := make(map[string]struct{}, len(path))
	for _, id := range path[:len(path)-1] {
		vars[g.Nodes[id].LHS] = struct{}{}
	}

	var ancestors map[cfg.NodeID]struct{}
	for _, n := range g.Nodes {
		if (n.Kind != cfg.KindIf && n.Kind != cfg.KindElseIf) || n.Test == nil {
			continue
		}
		if !readsAny(n, vars) || !callsSanitizer(g, cat, n.Test) {
			continue
		}
		if ancestors == nil {
			ancestors = g.Ancestors(sink)
		}
		if _, ok := ancestors[n.ID]; ok {
			return n
		}
	}
	return nil
}

func readsAny(n *cfg.Node, vars map[string]struct{}) bool {
	for _, r := range n.RHS {
		if _, ok := vars[r]; ok {
			return true
		}
	}
	return false
}

func callsSanitizer(g *cfg.CFG, cat *Category, test ast.Expr) bool {
	for _, c := range cfg.Calls(test) {
		name := ast.CallName(c)
		if g.Definitions != nil {
			name = g.Definitions.Qualify(name)
		}
		if _, ok := cat.Sanitizer(name); ok {
			return true
		}
	}
	return false
}

// defUse links each definition to the nodes it reaches that read its
// variable.
func defUse(table *analysis.Table, g *cfg.CFG) map[cfg.NodeID][]cfg.NodeID {
	uses := make(map[cfg.NodeID][]cfg.NodeID)
	for _, u := range g.Nodes {
		if len(u.RHS) == 0 {
			continue
		}
		for _, def := range table.In(g, u.ID).Sorted() {
			if u.Reads(g.Nodes[def].LHS) {
				uses[def] = append(uses[def], u.ID)
			}
		}
	}
	return uses
}

// reaching returns the nodes from which sink is reachable over def-use
// edges.
func reaching(uses map[cfg.NodeID][]cfg.NodeID, g *cfg.CFG, sink cfg.NodeID) map[cfg.NodeID]struct{} {
	reverse := make(map[cfg.NodeID][]cfg.NodeID)
	for def, us := range uses {
		for _, u := range us {
			reverse[u] = append(reverse[u], def)
		}
	}
	seen := make(map[cfg.NodeID]struct{})
	stack := append([]cfg.NodeID(nil), reverse[sink]...)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := seen[cur]; ok {
			continue
		}
		seen[cur] = struct{}{}
		stack = append(stack, reverse[cur]...)
	}
	return seen
}

func sortVulnerabilities(vulns []*Vulnerability) {
	sort.SliceStable(vulns, func(i, j int) bool {
		a, b := vulns[i], vulns[j]
		if a.Sink.Path != b.Sink.Path {
			return a.Sink.Path < b.Sink.Path
		}
		if a.Sink.Line != b.Sink.Line {
			return a.Sink.Line < b.Sink.Line
		}
		if a.Source.Line != b.Source.Line {
			return a.Source.Line < b.Source.Line
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		return strings.Compare(a.Variable, b.Variable) < 0
	})
}

// InputFilter decides whether a finding's source is reachable by external
// input.
type InputFilter interface {
	External(v *Vulnerability) bool
}

// ExternalInputs rejects entry-point parameters that are not request input:
// the method receiver and parameters named with a leading underscore.
type ExternalInputs struct{}

// External implements InputFilter.
func (ExternalInputs) External(v *Vulnerability) bool {
	if v.Source.Kind != cfg.KindEntryParameter {
		return true
	}
	name := v.Source.LHS
	return name != "self" && !strings.HasPrefix(name, "_")
}

// FilterExternal keeps the findings f accepts.
func FilterExternal(vulns []*Vulnerability, f InputFilter) []*Vulnerability {
	if f == nil {
		return vulns
	}
	out := vulns[:0:0]
	for _, v := range vulns {
		if f.External(v) {
			out = append(out, v)
		}
	}
	return out
}

package vulns

import (
	"fmt"
	"strings"

	"github.com/l3aro/luataint/pkg/cfg"
)

// Kind classifies a finding.
type Kind string

const (
	KindVulnerable Kind = "vulnerable"
	KindSanitized  Kind = "sanitized"
	// KindUnknown findings pass through a blackbox call nothing is known about.
	KindUnknown Kind = "unknown"
)

// rank orders kinds by how strongly they indicate a real issue.
func (k Kind) rank() int {
	switch k {
	case KindVulnerable:
		return 0
	case KindSanitized:
		return 1
	case KindUnknown:
		return 2
	default:
		panic(fmt.Sprintf("vulns: unknown kind %q", k))
	}
}

// Vulnerability is a flow of tainted data from a source to a sink.
type Vulnerability struct {
	Category string

	Source        *cfg.Node
	SourceTrigger string
	Sink          *cfg.Node
	SinkTrigger   string

	// Variable is the tainted variable read by the sink.
	Variable string
	// Chain holds the definitions between source and sink, in flow order.
	Chain []*cfg.Node

	Sanitized bool
	// Sanitizer is the node that sanitized the flow, a sanitizer call or an
	// if test guarding the sink.
	Sanitizer *cfg.Node
	// Confident is false when the sanitizer only guards the sink.
	Confident bool

	// Unknown is the first unmapped blackbox call on the chain.
	Unknown *cfg.Node
}

// Kind classifies v.
func (v *Vulnerability) Kind() Kind {
	switch {
	case v.Sanitized:
		return KindSanitized
	case v.Unknown != nil:
		return KindUnknown
	default:
		return KindVulnerable
	}
}

// Identity returns v's baseline identity.
func (v *Vulnerability) Identity() Identity {
	return Identity{
		Source:   location(v.Source),
		Sink:     location(v.Sink),
		Variable: v.Variable,
	}
}

func (v *Vulnerability) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %s\n", v.Kind(), v.Category)
	fmt.Fprintf(&sb, "  source %s:%d %s (%s)\n", v.Source.Path, v.Source.Line, v.Source.Label, v.SourceTrigger)
	for _, n := range v.Chain {
		fmt.Fprintf(&sb, "    %s:%d %s\n", n.Path, n.Line, n.Label)
	}
	fmt.Fprintf(&sb, "  sink %s:%d %s (%s)\n", v.Sink.Path, v.Sink.Line, v.Sink.Label, v.SinkTrigger)
	fmt.Fprintf(&sb, "  variable %s", v.Variable)
	if v.Sanitizer != nil {
		fmt.Fprintf(&sb, "\n  sanitized by %s:%d %s", v.Sanitizer.Path, v.Sanitizer.Line, v.Sanitizer.Label)
		if !v.Confident {
			sb.WriteString(" (guard)")
		}
	}
	if v.Unknown != nil {
		fmt.Fprintf(&sb, "\n  unknown blackbox %s:%d %s", v.Unknown.Path, v.Unknown.Line, v.Unknown.Label)
	}
	return sb.String()
}

func location(n *cfg.Node) string {
	return fmt.Sprintf("%s:%d", n.Path, n.Line)
}

// Location is a serializable node reference.
type Location struct {
	Path  string `json:"path" msgpack:"path"`
	Line  int    `json:"line" msgpack:"line"`
	Label string `json:"label" msgpack:"label"`
}

func newLocation(n *cfg.Node) *Location {
	if n == nil {
		return nil
	}
	return &Location{Path: n.Path, Line: n.Line, Label: n.Label}
}

// Record is the serialized form of a Vulnerability, as written to reports
// and read back from baselines.
type Record struct {
	Kind          Kind       `json:"kind" msgpack:"kind"`
	Category      string     `json:"category" msgpack:"category"`
	Source        *Location  `json:"source" msgpack:"source"`
	SourceTrigger string     `json:"source_trigger" msgpack:"source_trigger"`
	Sink          *Location  `json:"sink" msgpack:"sink"`
	SinkTrigger   string     `json:"sink_trigger" msgpack:"sink_trigger"`
	Variable      string     `json:"variable" msgpack:"variable"`
	Chain         []Location `json:"chain,omitempty" msgpack:"chain,omitempty"`
	Sanitizer     *Location  `json:"sanitizer,omitempty" msgpack:"sanitizer,omitempty"`
	Confident     bool       `json:"confident,omitempty" msgpack:"confident,omitempty"`
	Unknown       *Location  `json:"unknown,omitempty" msgpack:"unknown,omitempty"`
}

// Record converts v for serialization.
func (v *Vulnerability) Record() Record {
	r := Record{
		Kind:          v.Kind(),
		Category:      v.Category,
		Source:        newLocation(v.Source),
		SourceTrigger: v.SourceTrigger,
		Sink:          newLocation(v.Sink),
		SinkTrigger:   v.SinkTrigger,
		Variable:      v.Variable,
		Sanitizer:     newLocation(v.Sanitizer),
		Confident:     v.Confident,
		Unknown:       newLocation(v.Unknown),
	}
	for _, n := range v.Chain {
		r.Chain = append(r.Chain, *newLocation(n))
	}
	return r
}

// Identity returns the record's baseline identity.
func (r Record) Identity() Identity {
	id := Identity{Variable: r.Variable}
	if r.Source != nil {
		id.Source = fmt.Sprintf("%s:%d", r.Source.Path, r.Source.Line)
	}
	if r.Sink != nil {
		id.Sink = fmt.Sprintf("%s:%d", r.Sink.Path, r.Sink.Line)
	}
	return id
}

// Package report renders scan findings as text, JSON or msgpack.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/l3aro/luataint/pkg/vulns"
)

// Format is an output format.
type Format string

const (
	FormatText    Format = "text"
	FormatJSON    Format = "json"
	FormatMsgpack Format = "msgpack"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatText, FormatJSON, FormatMsgpack:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unknown report format %q (want text, json or msgpack)", s)
	}
}

// Document is a scan report. Baselines are read back from its
// vulnerabilities field.
type Document struct {
	RunID       string         `json:"run_id" msgpack:"run_id"`
	GeneratedAt time.Time      `json:"generated_at" msgpack:"generated_at"`
	Files       []string       `json:"files" msgpack:"files"`
	Summary     Summary        `json:"summary" msgpack:"summary"`
	Vulns       []vulns.Record `json:"vulnerabilities" msgpack:"vulnerabilities"`
}

// Summary counts findings by kind.
type Summary struct {
	Vulnerable int `json:"vulnerable" msgpack:"vulnerable"`
	Sanitized  int `json:"sanitized" msgpack:"sanitized"`
	Unknown    int `json:"unknown" msgpack:"unknown"`
}

// Options configures report building.
type Options struct {
	// OnlyUnsanitized drops sanitized findings.
	OnlyUnsanitized bool
	// Color styles the text format.
	Color bool
}

// New builds a Document for found over files.
func New(files []string, found []*vulns.Vulnerability, opts Options) *Document {
	doc := &Document{
		RunID:       uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
		Files:       files,
		Vulns:       []vulns.Record{},
	}
	for _, v := range found {
		if opts.OnlyUnsanitized && v.Sanitized {
			continue
		}
		r := v.Record()
		switch r.Kind {
		case vulns.KindVulnerable:
			doc.Summary.Vulnerable++
		case vulns.KindSanitized:
			doc.Summary.Sanitized++
		case vulns.KindUnknown:
			doc.Summary.Unknown++
		}
		doc.Vulns = append(doc.Vulns, r)
	}
	return doc
}

// HasVulnerable reports whether the document holds an unsanitized finding.
func (d *Document) HasVulnerable() bool {
	return d.Summary.Vulnerable > 0
}

// Write renders doc to w.
func Write(w io.Writer, doc *Document, format Format, opts Options) error {
	switch format {
	case FormatJSON:
		enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encoding json report: %w", err)
		}
		return nil
	case FormatMsgpack:
		if err := msgpack.NewEncoder(w).Encode(doc); err != nil {
			return fmt.Errorf("encoding msgpack report: %w", err)
		}
		return nil
	case FormatText, "":
		return writeText(w, doc, opts.Color)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

var (
	vulnerableStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	sanitizedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	unknownStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	dimStyle        = lipgloss.NewStyle().Faint(true)
)

func writeText(w io.Writer, doc *Document, color bool) error {
	paint := func(s lipgloss.Style, text string) string {
		if !color {
			return text
		}
		return s.Render(text)
	}

	var sb strings.Builder
	if len(doc.Vulns) == 0 {
		sb.WriteString("No vulnerabilities found.\n")
	} else {
		fmt.Fprintf(&sb, "%d vulnerabilities found:\n", len(doc.Vulns))
	}

	for i, r := range doc.Vulns {
		var style lipgloss.Style
		switch r.Kind {
		case vulns.KindVulnerable:
			style = vulnerableStyle
		case vulns.KindSanitized:
			style = sanitizedStyle
		default:
			style = unknownStyle
		}
		fmt.Fprintf(&sb, "\nVulnerability %d: %s (%s)\n", i+1, paint(style, string(r.Kind)), r.Category)
		fmt.Fprintf(&sb, "  File: %s\n", r.Source.Path)
		fmt.Fprintf(&sb, "  > User input at line %d, source %q:\n", r.Source.Line, r.SourceTrigger)
		fmt.Fprintf(&sb, "\t%s\n", r.Source.Label)
		if len(r.Chain) > 0 {
			sb.WriteString("  Reassigned in:\n")
			for _, l := range r.Chain {
				fmt.Fprintf(&sb, "\t%s %s\n", paint(dimStyle, fmt.Sprintf("%s:%d", l.Path, l.Line)), l.Label)
			}
		}
		fmt.Fprintf(&sb, "  File: %s\n", r.Sink.Path)
		fmt.Fprintf(&sb, "  > reaches line %d, sink %q:\n", r.Sink.Line, r.SinkTrigger)
		fmt.Fprintf(&sb, "\t%s\n", r.Sink.Label)
		fmt.Fprintf(&sb, "  Variable: %s\n", r.Variable)
		if r.Sanitizer != nil {
			how := "sanitized by"
			if !r.Confident {
				how = "potentially sanitized by"
			}
			fmt.Fprintf(&sb, "  This vulnerability is %s: %s (line %d)\n", how, r.Sanitizer.Label, r.Sanitizer.Line)
		}
		if r.Unknown != nil {
			fmt.Fprintf(&sb, "  This vulnerability is unknown due to: %s (line %d)\n", r.Unknown.Label, r.Unknown.Line)
		}
	}

	fmt.Fprintf(&sb, "\nSummary: %d vulnerable, %d sanitized, %d unknown (run %s)\n",
		doc.Summary.Vulnerable, doc.Summary.Sanitized, doc.Summary.Unknown, doc.RunID)

	_, err := io.WriteString(w, sb.String())
	return err
}

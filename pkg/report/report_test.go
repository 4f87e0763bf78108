package report

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/luataint/pkg/cfg"
	"github.com/l3aro/luataint/pkg/vulns"
)

func sampleFindings() []*vulns.Vulnerability {
	src := &cfg.Node{Path: "app.lua", Line: 3, Label: "x = ~call_1", Kind: cfg.KindAssignmentCall, LHS: "x"}
	sink := &cfg.Node{Path: "app.lua", Line: 5, Label: "~call_2 = ret_os.execute(x)", Kind: cfg.KindCall}
	escape := &cfg.Node{Path: "app.lua", Line: 8, Label: "~call_4 = ret_shellquote(y)", Kind: cfg.KindCall}
	src2 := &cfg.Node{Path: "app.lua", Line: 7, Label: "y = ~call_3", Kind: cfg.KindAssignmentCall, LHS: "y"}
	sink2 := &cfg.Node{Path: "app.lua", Line: 9, Label: "~call_5 = ret_os.execute(~call_4)", Kind: cfg.KindCall}

	return []*vulns.Vulnerability{
		{
			Category: "command_injection", Source: src, SourceTrigger: "io.read",
			Sink: sink, SinkTrigger: "os.execute", Variable: "x",
		},
		{
			Category: "command_injection", Source: src2, SourceTrigger: "io.read",
			Sink: sink2, SinkTrigger: "os.execute", Variable: "~call_4",
			Chain: []*cfg.Node{escape}, Sanitized: true, Sanitizer: escape, Confident: true,
		},
	}
}

func TestNew(t *testing.T) {
	doc := New([]string{"app.lua"}, sampleFindings(), Options{})
	assert.Len(t, doc.Vulns, 2)
	assert.Equal(t, Summary{Vulnerable: 1, Sanitized: 1}, doc.Summary)
	assert.True(t, doc.HasVulnerable())
	_, err := uuid.Parse(doc.RunID)
	assert.NoError(t, err)

	only := New(nil, sampleFindings(), Options{OnlyUnsanitized: true})
	assert.Len(t, only.Vulns, 1)
	assert.Equal(t, Summary{Vulnerable: 1}, only.Summary)

	empty := New(nil, nil, Options{})
	assert.NotNil(t, empty.Vulns)
	assert.False(t, empty.HasVulnerable())
}

func TestWriteText(t *testing.T) {
	doc := New([]string{"app.lua"}, sampleFindings(), Options{})

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, doc, FormatText, Options{}))
	out := buf.String()

	assert.Contains(t, out, "2 vulnerabilities found:")
	assert.Contains(t, out, "Vulnerability 1: vulnerable (command_injection)")
	assert.Contains(t, out, "> User input at line 3, source \"io.read\":")
	assert.Contains(t, out, "Reassigned in:")
	assert.Contains(t, out, "sanitized by: ~call_4 = ret_shellquote(y) (line 8)")
	assert.Contains(t, out, "Summary: 1 vulnerable, 1 sanitized, 0 unknown")

	buf.Reset()
	require.NoError(t, Write(&buf, New(nil, nil, Options{}), FormatText, Options{}))
	assert.Contains(t, buf.String(), "No vulnerabilities found.")
}

func TestReportReadsBackAsBaseline(t *testing.T) {
	found := sampleFindings()
	doc := New([]string{"app.lua"}, found, Options{})

	for _, format := range []Format{FormatJSON, FormatMsgpack} {
		t.Run(string(format), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Write(&buf, doc, format, Options{}))

			path := filepath.Join(t.TempDir(), "report."+string(format))
			require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

			baseline, err := vulns.LoadBaseline(path)
			require.NoError(t, err)
			assert.Len(t, baseline, 2)
			assert.Empty(t, baseline.Filter(found))
		})
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	f, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatText, f)

	_, err = ParseFormat("sarif")
	assert.Error(t, err)

	assert.Error(t, Write(&bytes.Buffer{}, New(nil, nil, Options{}), Format("xml"), Options{}))
}

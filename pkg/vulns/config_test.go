package vulns

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/l3aro/luataint/pkg/parser"
)

func TestDefaultTriggers(t *testing.T) {
	triggers := DefaultTriggers()

	cmd, ok := triggers.Categories["command_injection"]
	require.True(t, ok)
	assert.Equal(t, "command_injection", cmd.Name)
	assert.Contains(t, cmd.Sources, "luci.http.formvalue")

	word, ok := cmd.Sink("os.execute")
	assert.True(t, ok)
	assert.Equal(t, "os.execute", word)

	_, ok = cmd.Sanitizer("luci.util.shellquote")
	assert.True(t, ok)

	var names []string
	for _, c := range triggers.Sorted() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"code_injection", "command_injection", "path_traversal", "sql_injection", "xss"}, names)
}

func TestParseTriggersErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"invalid yaml", "categories: ["},
		{"no categories", "categories: {}"},
		{"empty category", "categories:\n  a:\n"},
		{"no sinks", "categories:\n  a:\n    sources: [x]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTriggers([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadTriggers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "triggers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testTriggers), 0o644))

	triggers, err := LoadTriggers(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"escape"}, triggers.Categories["injection"].Sanitizers)

	_, err = LoadTriggers(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestMappingSave(t *testing.T) {
	for _, name := range []string{"mapping.yaml", "mapping.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)

			m, err := LoadMapping(path)
			require.NoError(t, err)
			assert.Zero(t, m.Len())

			m.Set("os.tmpname", DoesNotPropagate)
			m.Set("string.format", Propagates)
			m.Set("shell", "command_injection")
			require.True(t, m.Dirty())
			require.NoError(t, m.Save())
			assert.False(t, m.Dirty())

			loaded, err := LoadMapping(path)
			require.NoError(t, err)
			assert.Equal(t, []string{"os.tmpname", "shell", "string.format"}, loaded.Names())

			c, ok := loaded.Category("shell")
			assert.True(t, ok)
			assert.Equal(t, "command_injection", c)
			_, ok = loaded.Category("string.format")
			assert.False(t, ok)
		})
	}
}

func TestMappingSetUnchanged(t *testing.T) {
	m := NewMapping()
	m.Set("f", Propagates)
	m.dirty = false
	m.Set("f", Propagates)
	assert.False(t, m.Dirty())
	assert.NoError(t, m.Save())
}

func TestLoadBaseline(t *testing.T) {
	records := []Record{{
		Kind:     KindVulnerable,
		Category: "injection",
		Source:   &Location{Path: "a.lua", Line: 1, Label: "x = ~call_1"},
		Sink:     &Location{Path: "a.lua", Line: 2, Label: "~call_2 = ret_run_command(x)"},
		Variable: "x",
	}}
	doc := document{Vulnerabilities: records}
	want := Baseline{{Source: "a.lua:1", Sink: "a.lua:2", Variable: "x"}: {}}

	dir := t.TempDir()
	jsonData, err := json.Marshal(doc)
	require.NoError(t, err)
	mpData, err := msgpack.Marshal(doc)
	require.NoError(t, err)

	files := map[string][]byte{
		"report.json":    jsonData,
		"report.msgpack": mpData,
		"report.out":     mpData,
	}
	for name, data := range files {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(path, data, 0o644))
			got, err := LoadBaseline(path)
			require.NoError(t, err)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("baseline mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNosecLines(t *testing.T) {
	src := "local a = 1 -- nosec\n--[[ NOSEC ]] local b = 2\n-- regular comment\nlocal c = 3 --nosec: reviewed\n"
	chunk, err := parser.Parse([]byte(src))
	require.NoError(t, err)

	lines := NosecLines(chunk)
	assert.True(t, lines.Contains(1))
	assert.True(t, lines.Contains(2))
	assert.False(t, lines.Contains(3))
	assert.True(t, lines.Contains(4))
	assert.Len(t, lines, 3)
	assert.Empty(t, NosecLines(nil))
}

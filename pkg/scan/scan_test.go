package scan

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/l3aro/luataint/internal/config"
	"github.com/l3aro/luataint/internal/log"
	"github.com/l3aro/luataint/pkg/cfg"
	"github.com/l3aro/luataint/pkg/report"
	"github.com/l3aro/luataint/pkg/vulns"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func project(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, src := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	}
	return root
}

func run(t *testing.T, root string, c *config.Config) *Result {
	t.Helper()
	res, err := Run(context.Background(), root, Options{Config: c, Logger: log.Nop()})
	require.NoError(t, err)
	return res
}

func TestRunFindings(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		mutate func(*config.Config)
		want   []vulns.Kind
	}{
		{
			name: "command injection",
			src:  "local cmd = io.read()\nos.execute(cmd)\n",
			want: []vulns.Kind{vulns.KindVulnerable},
		},
		{
			name: "shell quoted",
			src:  "local cmd = io.read()\ncmd = luci.util.shellquote(cmd)\nos.execute(cmd)\n",
			want: []vulns.Kind{vulns.KindSanitized},
		},
		{
			name: "nosec on sink",
			src:  "local cmd = io.read()\nos.execute(cmd) -- nosec\n",
		},
		{
			name:   "nosec ignored",
			src:    "local cmd = io.read()\nos.execute(cmd) -- nosec\n",
			mutate: func(c *config.Config) { c.IgnoreNosec = true },
			want:   []vulns.Kind{vulns.KindVulnerable},
		},
		{
			name: "constant argument",
			src:  "local cmd = io.read()\nos.execute(\"uptime\")\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := project(t, map[string]string{"main.lua": tt.src})
			c := config.DefaultConfig()
			if tt.mutate != nil {
				tt.mutate(c)
			}
			res := run(t, root, c)

			var kinds []vulns.Kind
			for _, v := range res.Vulnerabilities {
				kinds = append(kinds, v.Kind())
			}
			assert.Equal(t, tt.want, kinds)
			assert.Equal(t, []string{"main.lua"}, res.Files)
		})
	}
}

func TestRunDeduplicatesSplicedModules(t *testing.T) {
	root := project(t, map[string]string{
		"main.lua": "require(\"util\")\n",
		"util.lua": "local x = io.read()\nos.execute(x)\n",
	})

	res := run(t, root, config.DefaultConfig())
	require.Len(t, res.Vulnerabilities, 1)
	v := res.Vulnerabilities[0]
	assert.Equal(t, filepath.Join(root, "util.lua"), v.Sink.Path)
	assert.Equal(t, 2, v.Sink.Line)
	assert.Len(t, res.Graphs, 2)
}

func TestRunAllTargets(t *testing.T) {
	root := project(t, map[string]string{
		"a/util.lua":  "local x = io.read()\nos.execute(x)\n",
		"b/main.lua":  "require(\"a.util\")\n",
		"c/other.lua": "print(1)\n",
	})

	tests := []struct {
		name      string
		targets   []string
		wantFiles []string
	}{
		{
			name:      "overlapping targets",
			targets:   []string{root, filepath.Join(root, "a")},
			wantFiles: []string{"a/util.lua", "b/main.lua", "c/other.lua"},
		},
		{
			name:      "sibling directories",
			targets:   []string{filepath.Join(root, "b"), filepath.Join(root, "a")},
			wantFiles: []string{"a/util.lua", "b/main.lua"},
		},
		{
			name:      "same file twice",
			targets:   []string{filepath.Join(root, "a", "util.lua"), filepath.Join(root, "a")},
			wantFiles: []string{"util.lua"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := RunAll(context.Background(), tt.targets, Options{Config: config.DefaultConfig(), Logger: log.Nop()})
			require.NoError(t, err)
			assert.Equal(t, tt.wantFiles, res.Files)
			require.Len(t, res.Vulnerabilities, 1)
			assert.Equal(t, filepath.Join(root, "a", "util.lua"), res.Vulnerabilities[0].Sink.Path)
		})
	}

	_, err := RunAll(context.Background(), nil, Options{Logger: log.Nop()})
	assert.Error(t, err)
}

func TestCommonDir(t *testing.T) {
	sep := string(filepath.Separator)
	base := filepath.Join(sep, "srv", "app")
	tests := []struct {
		dirs []string
		want string
	}{
		{dirs: []string{base}, want: base},
		{dirs: []string{filepath.Join(base, "a"), filepath.Join(base, "b")}, want: base},
		{dirs: []string{base, filepath.Join(base, "a", "b")}, want: base},
		{dirs: []string{filepath.Join(base, "ab"), filepath.Join(base, "a")}, want: base},
		{dirs: []string{base, filepath.Join(sep, "opt")}, want: sep},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, commonDir(tt.dirs), "dirs %v", tt.dirs)
	}
}

func TestRunMissingInitializerAborts(t *testing.T) {
	root := project(t, map[string]string{
		"main.lua":        "local h = require(\"helpers\")\nos.execute(io.read())\n",
		"helpers/str.lua": "return {}\n",
	})

	res, err := Run(context.Background(), root, Options{Config: config.DefaultConfig(), Logger: log.Nop()})
	require.Error(t, err)
	assert.ErrorIs(t, err, cfg.ErrMissingInitializer)
	assert.True(t, IsConfigurationError(err))
	assert.Nil(t, res)
}

func TestRunSkipsUnparsableFiles(t *testing.T) {
	root := project(t, map[string]string{
		"broken.lua": "local = = (\n",
		"main.lua":   "local cmd = io.read()\nos.execute(cmd)\n",
		"old.lua":    "\x1bLuaS\x00",
	})

	res := run(t, root, config.DefaultConfig())
	assert.Equal(t, []string{"broken.lua"}, res.Skipped)
	assert.Equal(t, []string{"main.lua"}, res.Files)
	assert.Len(t, res.Vulnerabilities, 1)
}

func TestRunEntryPointParameters(t *testing.T) {
	root := project(t, map[string]string{
		"controller.lua": `entry({"admin", "files"}, call("action_read"))

function action_read(path, _opts)
  io.open(path)
  io.open(_opts)
end
`,
	})

	res := run(t, root, config.DefaultConfig())
	require.Len(t, res.Vulnerabilities, 1)
	v := res.Vulnerabilities[0]
	assert.Equal(t, "path_traversal", v.Category)
	assert.Equal(t, cfg.KindEntryParameter, v.Source.Kind)
	assert.Equal(t, vulns.ParameterTrigger, v.SourceTrigger)
	assert.Equal(t, "path", v.Variable)

	c := config.DefaultConfig()
	c.Framework = "none"
	assert.Empty(t, run(t, root, c).Vulnerabilities)
}

func TestRunBaseline(t *testing.T) {
	root := project(t, map[string]string{
		"main.lua": "local cmd = io.read()\nos.execute(cmd)\n",
	})
	c := config.DefaultConfig()

	first := run(t, root, c)
	require.Len(t, first.Vulnerabilities, 1)

	var buf bytes.Buffer
	require.NoError(t, report.Write(&buf, first.Report(c), report.FormatJSON, report.Options{}))
	c.Baseline = filepath.Join(t.TempDir(), "baseline.json")
	require.NoError(t, os.WriteFile(c.Baseline, buf.Bytes(), 0o644))

	second := run(t, root, c)
	assert.Empty(t, second.Vulnerabilities)
	assert.Equal(t, 1, second.Suppressed)
}

type answer bool

func (a answer) Propagates(*cfg.Node, *vulns.Vulnerability) (bool, error) {
	return bool(a), nil
}

func TestRunInteractiveSavesMapping(t *testing.T) {
	root := project(t, map[string]string{
		"main.lua": "local x = io.read()\nlocal y = wrap(x)\nos.execute(y)\n",
	})
	c := config.DefaultConfig()
	c.Interactive = true
	c.BlackboxMappingFile = filepath.Join(t.TempDir(), "mapping.yaml")

	res, err := Run(context.Background(), root, Options{Config: c, Logger: log.Nop(), Prompter: answer(true)})
	require.NoError(t, err)
	require.Len(t, res.Vulnerabilities, 1)
	assert.Equal(t, vulns.KindVulnerable, res.Vulnerabilities[0].Kind())

	m, err := vulns.LoadMapping(c.BlackboxMappingFile)
	require.NoError(t, err)
	value, ok := m.Lookup("wrap")
	require.True(t, ok)
	assert.Equal(t, vulns.Propagates, value)
}

func TestRunUnknownBlackbox(t *testing.T) {
	root := project(t, map[string]string{
		"main.lua": "local x = io.read()\nlocal y = wrap(x)\nos.execute(y)\n",
	})

	res := run(t, root, config.DefaultConfig())
	require.Len(t, res.Vulnerabilities, 1)
	v := res.Vulnerabilities[0]
	assert.Equal(t, vulns.KindUnknown, v.Kind())
	require.NotNil(t, v.Unknown)
	assert.Contains(t, v.Unknown.Label, "ret_wrap(x)")
}

func TestRunInvalidInputs(t *testing.T) {
	root := project(t, map[string]string{"main.lua": "print(1)\n"})

	c := config.DefaultConfig()
	c.Framework = "rails"
	_, err := Run(context.Background(), root, Options{Config: c, Logger: log.Nop()})
	assert.Error(t, err)

	c = config.DefaultConfig()
	c.TriggerFile = filepath.Join(root, "missing.yaml")
	_, err = Run(context.Background(), root, Options{Config: c, Logger: log.Nop()})
	assert.Error(t, err)

	_, err = Run(context.Background(), filepath.Join(root, "nope"), Options{Logger: log.Nop()})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Run(ctx, root, Options{Logger: log.Nop()})
	assert.ErrorIs(t, err, context.Canceled)
}

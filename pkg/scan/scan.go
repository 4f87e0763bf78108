// Package scan runs the whole analysis over a file or directory: discovery,
// CFG construction, the fixed-point engine, detection and baseline diffing.
package scan

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/l3aro/luataint/internal/config"
	"github.com/l3aro/luataint/internal/log"
	"github.com/l3aro/luataint/internal/scanner"
	"github.com/l3aro/luataint/pkg/analysis"
	"github.com/l3aro/luataint/pkg/cfg"
	"github.com/l3aro/luataint/pkg/framework"
	"github.com/l3aro/luataint/pkg/parser"
	"github.com/l3aro/luataint/pkg/report"
	"github.com/l3aro/luataint/pkg/vulns"
)

// Options configures a Run.
type Options struct {
	Config *config.Config
	Logger log.Logger
	// Prompter answers unmapped blackbox calls when the configuration is
	// interactive.
	Prompter vulns.Prompter
}

// Result is the outcome of a Run.
type Result struct {
	// Files are the scanned paths, relative to the scan root.
	Files []string
	// Skipped are files that could not be read or parsed.
	Skipped []string
	// Vulnerabilities are the findings left after filtering and baseline diffing.
	Vulnerabilities []*vulns.Vulnerability
	// Suppressed counts findings hidden by the baseline.
	Suppressed int
	Graphs     []*cfg.CFG
	Stats      analysis.Stats
}

// Report builds the report document for the result.
func (r *Result) Report(c *config.Config) *report.Document {
	return report.New(r.Files, r.Vulnerabilities, report.Options{OnlyUnsanitized: c.OnlyUnsanitized})
}

// IsConfigurationError reports whether err is a project layout problem that
// aborts the run rather than skipping a file.
func IsConfigurationError(err error) bool {
	return errors.Is(err, cfg.ErrMissingInitializer) ||
		errors.Is(err, cfg.ErrAliasConflict) ||
		errors.Is(err, cfg.ErrCyclicImport)
}

// Run scans target, a Lua file or a directory.
func Run(ctx context.Context, target string, opts Options) (*Result, error) {
	return RunAll(ctx, []string{target}, opts)
}

// RunAll scans every target as one project. Files reached from more than
// one target are analysed once, and module paths resolve from the closest
// directory holding every target unless the configuration names a project
// root.
func RunAll(ctx context.Context, targets []string, opts Options) (*Result, error) {
	if len(targets) == 0 {
		return nil, errors.New("no scan targets")
	}
	c := opts.Config
	if c == nil {
		c = config.DefaultConfig()
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	triggers, mapping, err := detectionInputs(c)
	if err != nil {
		return nil, err
	}
	var baseline vulns.Baseline
	if c.Baseline != "" {
		if baseline, err = vulns.LoadBaseline(c.Baseline); err != nil {
			return nil, err
		}
	}
	criteria, err := framework.ParseCriteria(c.Framework)
	if err != nil {
		return nil, err
	}

	files, scanRoot, err := discover(targets, c, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("discovered files", "count", len(files), "root", scanRoot)

	root := scanRoot
	if c.ProjectRoot != "" {
		if root, err = filepath.Abs(c.ProjectRoot); err != nil {
			return nil, fmt.Errorf("resolving project root: %w", err)
		}
	}
	trees := parser.New(parser.Options{MaxTrees: c.MaxTrees})
	project, err := cfg.NewProject(root, cfg.Options{
		AllowLocalImports: c.AllowLocalImports,
		Trees:             trees,
		Logger:            logger,
	})
	if err != nil {
		return nil, fmt.Errorf("loading project %s: %w", root, err)
	}

	res := &Result{}
	nosec := make(map[string]vulns.Lines)
	var graphs []*cfg.CFG

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		chunk, err := trees.ParseFile(f.FullPath)
		if err != nil {
			logger.Warn("skipping file", "path", f.Path, "error", err)
			res.Skipped = append(res.Skipped, f.Path)
			continue
		}
		if !c.IgnoreNosec {
			if lines := vulns.NosecLines(chunk); len(lines) > 0 {
				nosec[f.FullPath] = lines
			}
		}

		g, err := project.Build(f.FullPath, chunk)
		if err != nil {
			if IsConfigurationError(err) {
				return nil, fmt.Errorf("building %s: %w", f.Path, err)
			}
			logger.Warn("skipping file", "path", f.Path, "error", err)
			res.Skipped = append(res.Skipped, f.Path)
			continue
		}
		logger.Debug("built cfg", "path", f.Path, "nodes", g.Len())

		res.Files = append(res.Files, f.Path)
		graphs = append(graphs, g)
	}

	graphs, err = framework.New(project, criteria, logger).Run(graphs)
	if err != nil {
		return nil, err
	}
	res.Graphs = graphs

	table := analysis.NewTable(graphs...)
	res.Stats = analysis.New(analysis.Options{Logger: logger}).Run(table)
	logger.Debug("fixed point reached",
		"graphs", len(graphs),
		"iterations", res.Stats.Iterations,
		"updates", res.Stats.Updates,
		"tree_cache_hits", trees.Stats().HitCount)

	var prompter vulns.Prompter
	if c.Interactive {
		prompter = opts.Prompter
	}
	detector := vulns.NewDetector(vulns.Options{
		Triggers: triggers,
		Mapping:  mapping,
		Prompter: prompter,
		Nosec:    nosec,
		MaxPaths: c.MaxPaths,
		Logger:   logger,
	})
	found, err := detector.Find(table)
	if err != nil {
		return nil, err
	}
	found = vulns.FilterExternal(found, vulns.ExternalInputs{})

	if baseline != nil {
		kept := baseline.Filter(found)
		res.Suppressed = len(found) - len(kept)
		found = kept
	}
	res.Vulnerabilities = found

	if mapping.Dirty() {
		if err := mapping.Save(); err != nil {
			return nil, err
		}
		logger.Info("saved blackbox mapping", "path", c.BlackboxMappingFile, "entries", mapping.Len())
	}

	return res, nil
}

// discover lists the Lua files of every target, each once, with paths
// relative to the closest directory holding all targets.
func discover(targets []string, c *config.Config, logger log.Logger) ([]scanner.FileInfo, string, error) {
	scanOpts := scanner.DefaultOptions()
	scanOpts.Recursive = c.Recursive
	scanOpts.ExcludedPaths = c.ExcludedPaths
	scanOpts.Logger = logger
	s := scanner.New(scanOpts)

	var (
		found []scanner.FileInfo
		roots []string
	)
	for _, target := range targets {
		files, err := s.Scan(target)
		if err != nil {
			return nil, "", fmt.Errorf("discovering files in %s: %w", target, err)
		}
		roots = append(roots, s.Root())
		found = append(found, files...)
	}
	root := commonDir(roots)

	seen := make(map[string]struct{}, len(found))
	files := make([]scanner.FileInfo, 0, len(found))
	for _, f := range found {
		if _, ok := seen[f.FullPath]; ok {
			continue
		}
		seen[f.FullPath] = struct{}{}
		if rel, err := filepath.Rel(root, f.FullPath); err == nil {
			f.Path = filepath.ToSlash(rel)
		}
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, root, nil
}

// commonDir returns the deepest directory containing every dir.
func commonDir(dirs []string) string {
	common := dirs[0]
	for _, d := range dirs[1:] {
		for !within(common, d) {
			parent := filepath.Dir(common)
			if parent == common {
				break
			}
			common = parent
		}
	}
	return common
}

func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func detectionInputs(c *config.Config) (*vulns.Triggers, *vulns.Mapping, error) {
	triggers := vulns.DefaultTriggers()
	if c.TriggerFile != "" {
		t, err := vulns.LoadTriggers(c.TriggerFile)
		if err != nil {
			return nil, nil, err
		}
		triggers = t
	}

	mapping := vulns.NewMapping()
	if c.BlackboxMappingFile != "" {
		m, err := vulns.LoadMapping(filepath.Clean(c.BlackboxMappingFile))
		if err != nil {
			return nil, nil, err
		}
		mapping = m
	}
	return triggers, mapping, nil
}

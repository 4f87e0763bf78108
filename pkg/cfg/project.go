package cfg

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/l3aro/luataint/internal/log"
	"github.com/l3aro/luataint/pkg/ast"
)

// InitFile is the package initializer of a directory module.
const InitFile = "init.lua"

// stdlibModules are never reported as uninspectable.
var stdlibModules = []string{
	"_G", "bit32", "coroutine", "debug", "io", "math", "os", "package", "string", "table", "utf8",
}

// Module is a requirable project module: a .lua file or a directory.
type Module struct {
	// Name is the dotted module name, e.g. "app.util".
	Name string
	// Path is the file or directory path.
	Path string
}

// IsDir reports whether the module is a directory (package) module.
func (m Module) IsDir() bool {
	info, err := os.Stat(m.Path)
	return err == nil && info.IsDir()
}

// TreeSource supplies parsed syntax trees for module files.
type TreeSource interface {
	ParseFile(path string) (*ast.Chunk, error)
}

// Project is the run-wide lowering context: the project's modules, the
// tree source, and the set of external modules already reported.
type Project struct {
	Root              string
	Modules           []Module
	AllowLocalImports bool

	trees  TreeSource
	logger log.Logger
	warned map[string]struct{}
}

// Options configures a Project.
type Options struct {
	AllowLocalImports bool
	Trees             TreeSource
	Logger            log.Logger
}

// NewProject discovers the modules under root.
func NewProject(root string, opts Options) (*Project, error) {
	if opts.Trees == nil {
		return nil, fmt.Errorf("project %s: no tree source", root)
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	modules, err := ProjectModules(root)
	if err != nil {
		return nil, err
	}
	p := &Project{
		Root:              root,
		Modules:           modules,
		AllowLocalImports: opts.AllowLocalImports,
		trees:             opts.Trees,
		logger:            opts.Logger,
		warned:            make(map[string]struct{}),
	}
	for _, name := range stdlibModules {
		p.warned[name] = struct{}{}
	}
	return p, nil
}

// Logger returns the project's logger.
func (p *Project) Logger() log.Logger {
	return p.logger
}

// noticeExternal logs an uninspectable module at most once per run and
// reports whether a notice was emitted.
func (p *Project) noticeExternal(name string) bool {
	if _, ok := p.warned[name]; ok {
		return false
	}
	p.warned[name] = struct{}{}
	p.logger.Info("cannot inspect module", "module", name)
	return true
}

// ProjectModules lists every .lua file and directory under root as a
// dotted module name relative to root. Hidden directories are skipped.
// For equal names the file module sorts before the directory module.
func ProjectModules(root string) ([]Module, error) {
	var modules []Module
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
		} else if filepath.Ext(path) != ".lua" {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		modules = append(modules, Module{Name: moduleName(rel), Path: path})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discovering modules in %s: %w", root, err)
	}
	sortModules(modules)
	return modules, nil
}

// DirectoryModules lists the .lua files and subdirectories next to file.
func DirectoryModules(file string) []Module {
	dir := filepath.Dir(file)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var modules []Module
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if !e.IsDir() && filepath.Ext(name) != ".lua" {
			continue
		}
		modules = append(modules, Module{Name: moduleName(name), Path: filepath.Join(dir, name)})
	}
	sortModules(modules)
	return modules
}

func moduleName(rel string) string {
	rel = strings.TrimSuffix(filepath.ToSlash(rel), ".lua")
	return strings.ReplaceAll(rel, "/", ".")
}

func sortModules(modules []Module) {
	sort.SliceStable(modules, func(i, j int) bool {
		if modules[i].Name != modules[j].Name {
			return modules[i].Name < modules[j].Name
		}
		return strings.HasSuffix(modules[i].Path, ".lua") && !strings.HasSuffix(modules[j].Path, ".lua")
	})
}

// findModule returns the module named name, or false.
func findModule(modules []Module, name string) (Module, bool) {
	for _, m := range modules {
		if m.Name == name {
			return m, true
		}
	}
	return Module{}, false
}

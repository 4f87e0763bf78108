package cfg

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/l3aro/luataint/pkg/ast"
)

// require lowers `require("module")`. Project modules are inlined between
// "Module Entry" and "Module Exit" nodes and their definitions exported to
// the requiring module under the module's name. alias, when set, is the
// local name the result is bound to; member selects `require("m").member`.
func (b *builder) require(module, alias, member string, n ast.Node) (fragment, error) {
	canonical := strings.TrimLeft(module, ".")
	if alias != "" {
		full := canonical
		if member != "" {
			full += "." + member
		}
		if alias != full {
			b.defs().Aliases[alias] = full
		}
	}

	mod, ok := b.resolve(module)
	if !ok {
		if canonical != "" {
			b.project.noticeExternal(canonical)
		}
		return ignored(), nil
	}

	file := mod.Path
	isInit := mod.IsDir()
	if isInit {
		file = filepath.Join(mod.Path, InitFile)
		if _, err := os.Stat(file); err != nil {
			return fragment{}, fmt.Errorf("%w: %s (required at %s:%d)",
				ErrMissingInitializer, mod.Path, b.frame().path, n.Line())
		}
	}

	for _, f := range b.frames {
		if sameFile(f.path, file) {
			return fragment{}, fmt.Errorf("%w: %s (required at %s:%d)",
				ErrCyclicImport, file, b.frame().path, n.Line())
		}
	}

	chunk, err := b.project.trees.ParseFile(file)
	if err != nil {
		b.project.logger.Warn("skipping module that failed to parse",
			"module", canonical,
			"path", file,
			"error", err,
		)
		return ignored(), nil
	}

	return b.importModule(canonical, file, isInit, chunk)
}

// resolve finds the module a require names. Names with leading dots are
// relative to the requiring file, one dot per level; other names are looked
// up among the requiring file's neighbours, when allowed, then the project.
func (b *builder) resolve(module string) (Module, bool) {
	if strings.HasPrefix(module, ".") {
		return b.resolveRelative(module)
	}
	if b.project.AllowLocalImports {
		if m, ok := findModule(b.frame().localModules, module); ok {
			return m, true
		}
	}
	return findModule(b.project.Modules, module)
}

func (b *builder) resolveRelative(module string) (Module, bool) {
	level := len(module) - len(strings.TrimLeft(module, "."))
	rest := module[level:]
	if rest == "" {
		return Module{}, false
	}

	dir := filepath.Dir(b.frame().path)
	for i := 1; i < level; i++ {
		dir = filepath.Dir(dir)
	}
	path := filepath.Join(dir, filepath.FromSlash(strings.ReplaceAll(rest, ".", "/")))

	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return Module{Name: rest, Path: path}, true
	}
	if _, err := os.Stat(path + ".lua"); err == nil {
		return Module{Name: rest, Path: path + ".lua"}, true
	}
	return Module{}, false
}

// importModule lowers a required module's chunk in a frame of its own and
// exports its definitions into the requiring module.
func (b *builder) importModule(name, file string, isInit bool, chunk *ast.Chunk) (fragment, error) {
	parent := b.defs()
	child := NewModuleDefinitions(name)
	child.IsInit = isInit

	var (
		entry, exit NodeID
		body        fragment
		err         error
	)
	func() {
		b.push(&frame{defs: child, path: file, function: name})
		defer b.pop()

		entry = b.newNode(KindEntry, "Module Entry "+name, nil, 0)
		body, err = b.block(chunk.Body)
		if err != nil {
			return
		}
		exit = b.newNode(KindExit, "Module Exit "+name, nil, 0)
	}()
	if err != nil {
		return fragment{}, err
	}
	b.wrap(entry, body, exit)

	if err := b.export(name, child, parent); err != nil {
		return fragment{}, fmt.Errorf("module %s: %w", name, err)
	}
	return fragment{first: entry, last: []NodeID{exit}}, nil
}

// export copies child's definitions into parent as name.<definition>. The
// table a module returns is its namespace, so `M.f` in a module returning M
// is exported as `name.f`.
func (b *builder) export(name string, child, parent *ModuleDefinitions) error {
	for _, def := range child.Definitions {
		local := def.Name
		if child.ExportTable != "" {
			local = strings.TrimPrefix(local, child.ExportTable+".")
		}
		if child.IsInit {
			qualified, err := qualifyInitDefinition(local, def.Reexported, child.Aliases, parent.Aliases)
			if err != nil {
				return err
			}
			local = qualified
		}

		exported := *def
		exported.Name = name + "." + local
		exported.Module = parent.Module
		exported.Reexported = true
		parent.Add(&exported)
	}
	return nil
}

func sameFile(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}

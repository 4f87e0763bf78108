package cfg

import (
	"github.com/l3aro/luataint/pkg/ast"
)

// Definition binds a qualified name to a function declaration.
type Definition struct {
	// Name is the qualified name, e.g. "M.handler" or "mod.M.handler".
	Name string
	// Module is the module the binding was recorded in.
	Module string
	// Path is the file the function is declared in.
	Path string

	Params []string
	Body   *ast.Block
	Line   int

	// Aliases is the alias mapping of the declaring module, used when the
	// function body is lowered on its own.
	Aliases map[string]string
	// Reexported marks a definition a module received from one of its own
	// requires rather than declared itself.
	Reexported bool
}

// ModuleDefinitions is the definition registry of one module being lowered.
type ModuleDefinitions struct {
	Module      string
	Definitions []*Definition
	// Aliases maps a local alias to its canonical dotted name.
	Aliases map[string]string
	// IsInit marks a package initializer (init.lua).
	IsInit bool
	// ExportTable is the table the module returns at top level, if any.
	ExportTable string

	byName map[string]*Definition
}

// NewModuleDefinitions creates an empty registry for module.
func NewModuleDefinitions(module string) *ModuleDefinitions {
	return &ModuleDefinitions{
		Module:  module,
		Aliases: make(map[string]string),
		byName:  make(map[string]*Definition),
	}
}

// Add records def. A later definition with the same name replaces the
// earlier one in lookups but both stay in Definitions order.
func (m *ModuleDefinitions) Add(def *Definition) {
	m.Definitions = append(m.Definitions, def)
	m.byName[def.Name] = def
}

// Lookup returns the definition named name, or nil.
func (m *ModuleDefinitions) Lookup(name string) *Definition {
	return m.byName[name]
}

// Qualify resolves a label through the alias mapping, so that `sh.run`
// becomes `os.run` after `local sh = require("os")`.
func (m *ModuleDefinitions) Qualify(label string) string {
	return qualifyAlias(label, m.Aliases)
}

// frame is one module lowering in progress.
type frame struct {
	defs         *ModuleDefinitions
	path         string
	localModules []Module
	// function is the name used for the return slot of Return nodes.
	function string
}

package cfg

import (
	"path/filepath"
	"strings"

	"github.com/l3aro/luataint/pkg/ast"
)

// builder lowers one top-level file, and every module it requires, into a
// single CFG.
type builder struct {
	project *Project
	g       *CFG

	// callIndex numbers calls for their ~call_N return carriers.
	callIndex int
	// frames is the stack of modules being lowered, innermost last.
	frames []*frame
}

func newBuilder(p *Project, g *CFG) *builder {
	return &builder{project: p, g: g}
}

// Build lowers the file at path, whose syntax tree is chunk, into a CFG
// delimited by "Entry module" and "Exit module" nodes.
func (p *Project) Build(path string, chunk *ast.Chunk) (*CFG, error) {
	name := moduleBase(path)
	g := &CFG{Name: name, Path: path, Chunk: chunk}
	b := newBuilder(p, g)

	defs := NewModuleDefinitions(name)
	b.push(&frame{defs: defs, path: path, function: name})
	defer b.pop()

	entry := b.newNode(KindEntry, "Entry module", nil, 0)
	body, err := b.block(chunk.Body)
	if err != nil {
		return nil, err
	}
	exit := b.newNode(KindExit, "Exit module", nil, 0)
	b.wrap(entry, body, exit)

	g.Definitions = defs
	return g, nil
}

// BuildFunction lowers an entry-point function into its own CFG:
// Function Entry, one EntryParameter per parameter, the body, Function Exit.
func (p *Project) BuildFunction(def *Definition, chunk *ast.Chunk) (*CFG, error) {
	g := &CFG{Name: def.Name, Path: def.Path, Chunk: chunk}
	b := newBuilder(p, g)

	defs := NewModuleDefinitions(def.Module)
	for k, v := range def.Aliases {
		defs.Aliases[k] = v
	}
	b.push(&frame{defs: defs, path: def.Path, function: def.Name})
	defer b.pop()

	entry := b.newNode(KindEntry, "Function Entry "+def.Name, nil, def.Line)
	prev := []NodeID{entry}
	for _, param := range def.Params {
		if param == "..." {
			continue
		}
		id := b.newNode(KindEntryParameter, param, nil, def.Line)
		b.g.Nodes[id].LHS = param
		b.g.ConnectPredecessors(id, prev)
		prev = []NodeID{id}
	}

	body, err := b.block(def.Body)
	if err != nil {
		return nil, err
	}
	exit := b.newNode(KindExit, "Function Exit "+def.Name, nil, def.Line)
	if body.ignored {
		b.g.ConnectPredecessors(exit, prev)
	} else {
		b.g.ConnectPredecessors(body.first, prev)
		b.g.ConnectPredecessors(exit, body.last)
	}

	g.Definitions = defs
	return g, nil
}

func moduleBase(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func (b *builder) push(f *frame) {
	if b.project.AllowLocalImports {
		f.localModules = DirectoryModules(f.path)
	}
	b.frames = append(b.frames, f)
}

func (b *builder) pop() {
	b.frames = b.frames[:len(b.frames)-1]
}

func (b *builder) frame() *frame {
	return b.frames[len(b.frames)-1]
}

func (b *builder) defs() *ModuleDefinitions {
	return b.frame().defs
}

// newNode appends a node of kind to the arena.
func (b *builder) newNode(kind Kind, label string, n ast.Node, line int) NodeID {
	if line == 0 && n != nil {
		line = n.Line()
	}
	return b.g.add(&Node{
		Kind:          kind,
		Label:         label,
		Path:          b.frame().path,
		Line:          line,
		AST:           n,
		InnerMostCall: NoNode,
		CallNode:      NoNode,
	})
}

// wrap connects entry -> body -> exit, or entry -> exit for an ignored body.
func (b *builder) wrap(entry NodeID, body fragment, exit NodeID) {
	if body.ignored {
		b.g.Connect(entry, exit)
		return
	}
	b.g.Connect(entry, body.first)
	b.g.ConnectPredecessors(exit, body.last)
}

// block lowers a statement list. Ignored statements are skipped and every
// other statement's last nodes are connected to the next statement's first
// node. A list lowering to nothing yields an ignored fragment.
func (b *builder) block(block *ast.Block) (fragment, error) {
	if block == nil {
		return ignored(), nil
	}
	out := ignored()
	for _, stmt := range block.Stmts {
		f, err := b.stmt(stmt)
		if err != nil {
			return fragment{}, err
		}
		out.breaks = append(out.breaks, f.breaks...)
		if f.ignored {
			continue
		}
		if out.ignored {
			out.first = f.first
			out.ignored = false
		} else {
			b.g.ConnectPredecessors(f.first, out.last)
		}
		out.last = f.last
	}
	if out.ignored {
		out.last = nil
	}
	return out, nil
}

func (b *builder) warn(msg string, n ast.Node, label string) {
	b.project.logger.Warn(msg,
		"path", b.frame().path,
		"line", n.Line(),
		"statement", label,
	)
}

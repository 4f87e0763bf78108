// Package parser converts Lua source into the ast package's syntax tree using
// the tree-sitter Lua grammar.
package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/lua"

	"github.com/l3aro/luataint/pkg/ast"
	"github.com/l3aro/luataint/pkg/cache"
)

var (
	// ErrSyntax is returned when the source does not parse cleanly.
	ErrSyntax = errors.New("syntax error")
	// ErrCompiled is returned for precompiled Lua bytecode.
	ErrCompiled = errors.New("compiled lua chunk")
)

// compiledSignature is the header of luac output.
var compiledSignature = []byte("\x1bLua")

// IsCompiled reports whether content is precompiled Lua bytecode.
func IsCompiled(content []byte) bool {
	return bytes.HasPrefix(content, compiledSignature)
}

// Parser parses Lua files and memoizes the resulting trees by content.
type Parser struct {
	trees *cache.LRU[*ast.Chunk]
}

// Options configures a Parser.
type Options struct {
	// MaxTrees bounds the number of cached trees. 0 means unlimited.
	MaxTrees int
}

// New creates a Parser.
func New(opts Options) *Parser {
	return &Parser{
		trees: cache.New(cache.Options[*ast.Chunk]{MaxSize: opts.MaxTrees}),
	}
}

// ParseFile reads and parses the file at path.
func (p *Parser) ParseFile(path string) (*ast.Chunk, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", path, err)
	}
	chunk, err := p.Parse(content)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return chunk, nil
}

// Parse parses content, returning a cached tree when the same content was
// parsed before. Trees are shared and must not be modified.
func (p *Parser) Parse(content []byte) (*ast.Chunk, error) {
	key := cache.HashBytes(content)
	if chunk, ok := p.trees.Get(key); ok {
		return chunk, nil
	}
	chunk, err := Parse(content)
	if err != nil {
		return nil, err
	}
	p.trees.Set(key, chunk)
	return chunk, nil
}

// Stats reports tree cache usage.
func (p *Parser) Stats() cache.Stats {
	return p.trees.Stats()
}

// Parse parses Lua source without caching.
func Parse(content []byte) (*ast.Chunk, error) {
	if IsCompiled(content) {
		return nil, ErrCompiled
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lua.GetLanguage())

	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	c := &converter{content: content}
	if root.HasError() {
		return nil, fmt.Errorf("%w at line %d", ErrSyntax, c.errorLine(root))
	}

	chunk := &ast.Chunk{Pos: ast.Pos{Row: 1}}
	body, err := c.block(children(root))
	if err != nil {
		return nil, err
	}
	chunk.Body = body
	c.collectComments(root)
	chunk.Comments = c.comments
	return chunk, nil
}

// errorLine returns the 1-based line of the first ERROR or MISSING node.
func (c *converter) errorLine(n *sitter.Node) int {
	if n.Type() == "ERROR" || n.IsMissing() {
		return c.pos(n).Line()
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child != nil && child.HasError() {
			return c.errorLine(child)
		}
	}
	return c.pos(n).Line()
}

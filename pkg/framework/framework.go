// Package framework finds the entry-point functions of web framework code
// and lowers each into a CFG whose parameters are taint sources.
package framework

import (
	"fmt"
	"sort"
	"strings"

	"github.com/l3aro/luataint/internal/log"
	"github.com/l3aro/luataint/pkg/ast"
	"github.com/l3aro/luataint/pkg/cfg"
)

// Criteria selects which functions are entry points.
type Criteria string

const (
	// CriteriaLuCI selects functions a LuCI controller routes to with
	// call("name"), post("name") or form("name").
	CriteriaLuCI Criteria = "luci"
	// CriteriaAll selects every function declared in the file.
	CriteriaAll Criteria = "all"
	// CriteriaPublic selects functions whose name has no leading underscore.
	CriteriaPublic Criteria = "public"
	// CriteriaNone disables entry-point detection.
	CriteriaNone Criteria = "none"
)

// ParseCriteria validates a criteria name.
func ParseCriteria(s string) (Criteria, error) {
	switch c := Criteria(strings.ToLower(strings.TrimSpace(s))); c {
	case CriteriaLuCI, CriteriaAll, CriteriaPublic, CriteriaNone:
		return c, nil
	case "":
		return CriteriaLuCI, nil
	default:
		return "", fmt.Errorf("unknown framework criteria %q (want luci, all, public or none)", s)
	}
}

// routeTargets are the LuCI dispatcher helpers naming a controller function.
var routeTargets = map[string]bool{"call": true, "post": true, "form": true}

// Adaptor adds entry-point function CFGs to a list of module CFGs.
type Adaptor struct {
	project  *cfg.Project
	criteria Criteria
	logger   log.Logger
}

// New creates an Adaptor.
func New(p *cfg.Project, criteria Criteria, logger log.Logger) *Adaptor {
	if logger == nil {
		logger = p.Logger()
	}
	return &Adaptor{project: p, criteria: criteria, logger: logger}
}

// Run returns graphs followed by one CFG per entry point found in them.
func (a *Adaptor) Run(graphs []*cfg.CFG) ([]*cfg.CFG, error) {
	out := append([]*cfg.CFG(nil), graphs...)
	for _, g := range graphs {
		for _, def := range a.EntryPoints(g) {
			fg, err := a.project.BuildFunction(def, g.Chunk)
			if err != nil {
				return nil, fmt.Errorf("entry point %s in %s: %w", def.Name, g.Path, err)
			}
			a.logger.Debug("added entry point", "function", def.Name, "path", g.Path, "nodes", fg.Len())
			out = append(out, fg)
		}
	}
	return out, nil
}

// EntryPoints returns the functions declared in g's own file that match the
// criteria, in declaration order.
func (a *Adaptor) EntryPoints(g *cfg.CFG) []*cfg.Definition {
	if a.criteria == CriteriaNone || g.Definitions == nil {
		return nil
	}

	var routes map[string]bool
	if a.criteria == CriteriaLuCI {
		routes = RouteTargets(g.Chunk)
		if len(routes) == 0 {
			return nil
		}
	}

	var out []*cfg.Definition
	for _, def := range g.Definitions.Definitions {
		if def.Path != g.Path || g.Definitions.Lookup(def.Name) != def {
			continue
		}
		short := def.Name[strings.LastIndex(def.Name, ".")+1:]
		switch a.criteria {
		case CriteriaLuCI:
			if !routes[short] && !routes[def.Name] {
				continue
			}
		case CriteriaPublic:
			if strings.HasPrefix(short, "_") {
				continue
			}
		case CriteriaAll:
		default:
			panic(fmt.Sprintf("framework: unknown criteria %q", a.criteria))
		}
		out = append(out, def)
	}
	return out
}

// RouteTargets returns the function names passed as string literals to
// call(), post() or form() anywhere in chunk.
func RouteTargets(chunk *ast.Chunk) map[string]bool {
	routes := make(map[string]bool)
	if chunk == nil {
		return routes
	}
	ast.Inspect(chunk, func(n ast.Node) bool {
		c, ok := n.(*ast.Call)
		if !ok || c.Method != "" || len(c.Args) == 0 {
			return true
		}
		fn, ok := c.Func.(*ast.Name)
		if !ok || !routeTargets[fn.ID] {
			return true
		}
		if s, ok := c.Args[0].(*ast.String); ok {
			routes[s.S] = true
		}
		return true
	})
	return routes
}

// Names returns the sorted keys of a route set.
func Names(routes map[string]bool) []string {
	out := make([]string, 0, len(routes))
	for r := range routes {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Package vulns finds tainted flows from source calls to sink calls in
// analysed CFGs.
package vulns

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default_triggers.yaml
var defaultTriggers []byte

// Category groups the trigger words of one vulnerability class.
type Category struct {
	Name       string   `yaml:"-"`
	Sources    []string `yaml:"sources"`
	Sinks      []string `yaml:"sinks"`
	Sanitizers []string `yaml:"sanitizers"`
}

// Triggers is a trigger-word configuration.
type Triggers struct {
	Categories map[string]*Category `yaml:"categories"`
}

// DefaultTriggers returns the built-in trigger words.
func DefaultTriggers() *Triggers {
	t, err := ParseTriggers(defaultTriggers)
	if err != nil {
		panic(fmt.Sprintf("vulns: invalid built-in triggers: %v", err))
	}
	return t
}

// LoadTriggers reads a trigger file.
func LoadTriggers(path string) (*Triggers, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading trigger file %s: %w", path, err)
	}
	t, err := ParseTriggers(data)
	if err != nil {
		return nil, fmt.Errorf("trigger file %s: %w", path, err)
	}
	return t, nil
}

// ParseTriggers parses trigger YAML.
func ParseTriggers(data []byte) (*Triggers, error) {
	var t Triggers
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing triggers: %w", err)
	}
	if len(t.Categories) == 0 {
		return nil, fmt.Errorf("no categories defined")
	}
	for name, c := range t.Categories {
		if c == nil {
			return nil, fmt.Errorf("category %s is empty", name)
		}
		if len(c.Sinks) == 0 {
			return nil, fmt.Errorf("category %s has no sinks", name)
		}
		c.Name = name
	}
	return &t, nil
}

// Sorted returns the categories ordered by name.
func (t *Triggers) Sorted() []*Category {
	out := make([]*Category, 0, len(t.Categories))
	for _, c := range t.Categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Source returns the source word matching name, if any.
func (c *Category) Source(name string) (string, bool) {
	return matchAny(name, c.Sources)
}

// Sink returns the sink word matching name, if any.
func (c *Category) Sink(name string) (string, bool) {
	return matchAny(name, c.Sinks)
}

// Sanitizer returns the sanitizer word matching name, if any.
func (c *Category) Sanitizer(name string) (string, bool) {
	return matchAny(name, c.Sanitizers)
}

func matchAny(name string, words []string) (string, bool) {
	for _, w := range words {
		if Match(name, w) {
			return w, true
		}
	}
	return "", false
}

// Match reports whether the qualified call name matches a trigger word:
// either exactly or as a suffix starting at a dot. A trailing "(" on the
// word is ignored, so "os.execute(" matches os.execute.
func Match(name, word string) bool {
	word = strings.TrimSuffix(strings.TrimSpace(word), "(")
	if word == "" || name == "" {
		return false
	}
	return name == word || strings.HasSuffix(name, "."+word)
}

package vulns

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Blackbox decisions. Any other mapping value names a category, making the
// call a sink of that category.
const (
	Propagates       = "propagates"
	DoesNotPropagate = "does_not_propagate"
)

// Mapping records what is known about blackbox calls, keyed by qualified
// function name.
type Mapping struct {
	path    string
	entries map[string]string
	dirty   bool
}

// NewMapping creates an empty in-memory mapping.
func NewMapping() *Mapping {
	return &Mapping{entries: make(map[string]string)}
}

// LoadMapping reads a blackbox mapping file, YAML or JSON. A missing file
// yields an empty mapping that Save will create.
func LoadMapping(path string) (*Mapping, error) {
	m := NewMapping()
	m.path = path

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading blackbox mapping %s: %w", path, err)
	}
	// JSON is a subset of YAML.
	if err := yaml.Unmarshal(data, &m.entries); err != nil {
		return nil, fmt.Errorf("parsing blackbox mapping %s: %w", path, err)
	}
	if m.entries == nil {
		m.entries = make(map[string]string)
	}
	return m, nil
}

// Lookup returns the mapping value for name.
func (m *Mapping) Lookup(name string) (string, bool) {
	v, ok := m.entries[name]
	return v, ok
}

// Category returns the category a blackbox call is mapped to, if any.
func (m *Mapping) Category(name string) (string, bool) {
	v, ok := m.entries[name]
	if !ok || v == Propagates || v == DoesNotPropagate {
		return "", false
	}
	return v, true
}

// Set records value for name.
func (m *Mapping) Set(name, value string) {
	if m.entries[name] == value {
		return
	}
	m.entries[name] = value
	m.dirty = true
}

// Len returns the number of entries.
func (m *Mapping) Len() int {
	return len(m.entries)
}

// Dirty reports whether Set changed the mapping since it was loaded or saved.
func (m *Mapping) Dirty() bool {
	return m.dirty
}

// Save writes the mapping back to the file it was loaded from, as JSON when
// the file name ends in .json and YAML otherwise.
func (m *Mapping) Save() error {
	if m.path == "" {
		return nil
	}
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(m.path), ".json") {
		data, err = json.MarshalIndent(m.entries, "", "  ")
	} else {
		data, err = yaml.Marshal(m.entries)
	}
	if err != nil {
		return fmt.Errorf("encoding blackbox mapping: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		return fmt.Errorf("writing blackbox mapping %s: %w", m.path, err)
	}
	m.dirty = false
	return nil
}

// Names returns the mapped names in sorted order.
func (m *Mapping) Names() []string {
	names := make([]string, 0, len(m.entries))
	for n := range m.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

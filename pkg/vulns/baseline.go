package vulns

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/vmihailenco/msgpack/v5"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Identity is the structural identity of a finding, stable across runs over
// an unchanged file.
type Identity struct {
	Source   string
	Sink     string
	Variable string
}

// Baseline is a set of previously accepted findings.
type Baseline map[Identity]struct{}

// document is the part of a report a baseline needs.
type document struct {
	Vulnerabilities []Record `json:"vulnerabilities" msgpack:"vulnerabilities"`
}

// LoadBaseline reads a previous report, JSON or msgpack.
func LoadBaseline(path string) (Baseline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading baseline %s: %w", path, err)
	}
	var doc document
	if isMsgpack(path, data) {
		err = msgpack.Unmarshal(data, &doc)
	} else {
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing baseline %s: %w", path, err)
	}
	return NewBaseline(doc.Vulnerabilities), nil
}

func isMsgpack(path string, data []byte) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".msgpack", ".mpk":
		return true
	case ".json":
		return false
	}
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] != '{'
}

// NewBaseline builds a baseline from records.
func NewBaseline(records []Record) Baseline {
	b := make(Baseline, len(records))
	for _, r := range records {
		b[r.Identity()] = struct{}{}
	}
	return b
}

// Contains reports whether v was accepted by the baseline.
func (b Baseline) Contains(v *Vulnerability) bool {
	_, ok := b[v.Identity()]
	return ok
}

// Filter returns the findings not in the baseline.
func (b Baseline) Filter(vulns []*Vulnerability) []*Vulnerability {
	if len(b) == 0 {
		return vulns
	}
	var out []*Vulnerability
	for _, v := range vulns {
		if !b.Contains(v) {
			out = append(out, v)
		}
	}
	return out
}

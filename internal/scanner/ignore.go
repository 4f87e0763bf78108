package scanner

import (
	"path"
	"strings"
)

// IgnorePattern represents a single gitignore-style pattern.
type IgnorePattern struct {
	pattern     string // Original pattern
	isNegation  bool   // True if pattern starts with !
	isDirectory bool   // True if pattern ends with /
	isAbsolute  bool   // True if pattern starts with /
	segments    []string
}

// ParseIgnorePattern parses a gitignore-style pattern string.
func ParseIgnorePattern(pattern string) IgnorePattern {
	p := IgnorePattern{pattern: pattern}

	if strings.HasPrefix(pattern, "!") {
		p.isNegation = true
		pattern = pattern[1:]
	}
	if strings.HasSuffix(pattern, "/") {
		p.isDirectory = true
		pattern = strings.TrimSuffix(pattern, "/")
	}
	if strings.HasPrefix(pattern, "/") {
		p.isAbsolute = true
		pattern = pattern[1:]
	}

	p.segments = strings.Split(pattern, "/")
	return p
}

// Match checks if the slash-separated path matches this pattern. Negation
// patterns match like positive ones; the caller flips the result.
func (p IgnorePattern) Match(relPath string) bool {
	parts := strings.Split(relPath, "/")

	if p.isDirectory {
		// "build/" covers everything below any build directory.
		for start := 0; start < len(parts); start++ {
			if p.isAbsolute && start > 0 {
				break
			}
			for end := start + 1; end <= len(parts); end++ {
				if matchSegments(p.segments, parts[start:end]) {
					return true
				}
			}
		}
		return false
	}

	for start := 0; start < len(parts); start++ {
		if p.isAbsolute && start > 0 {
			break
		}
		if matchSegments(p.segments, parts[start:]) {
			return true
		}
	}
	return false
}

// IsNegation returns true if this pattern is a negation pattern.
func (p IgnorePattern) IsNegation() bool {
	return p.isNegation
}

// matchSegments matches pattern segments against path segments, with **
// standing for any number of directories.
func matchSegments(pattern, parts []string) bool {
	if len(pattern) == 0 {
		return len(parts) == 0
	}

	if pattern[0] == "**" {
		if len(pattern) == 1 {
			return true
		}
		for i := 0; i <= len(parts); i++ {
			if matchSegments(pattern[1:], parts[i:]) {
				return true
			}
		}
		return false
	}

	if len(parts) == 0 || !matchSegment(pattern[0], parts[0]) {
		return false
	}
	return matchSegments(pattern[1:], parts[1:])
}

// matchSegment compares one segment case-insensitively, honoring *, ? and [...].
func matchSegment(pattern, segment string) bool {
	ok, err := path.Match(strings.ToLower(pattern), strings.ToLower(segment))
	return err == nil && ok
}

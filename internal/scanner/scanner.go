// Package scanner discovers the Lua files a scan covers. It respects
// .luataintignore files with gitignore-style patterns, the configured
// excluded paths and skips precompiled chunks.
package scanner

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/l3aro/luataint/internal/log"
	"github.com/l3aro/luataint/pkg/parser"
)

// FileInfo represents information about a discovered file.
type FileInfo struct {
	Path     string // Relative path from root
	FullPath string // Absolute path
	Language string // Detected language from extension
	Size     int64  // File size in bytes
}

// Options configures the scanner behavior.
type Options struct {
	Recursive       bool       // Descend into subdirectories
	SkipHidden      bool       // Skip hidden files and directories (starting with .)
	FollowSymlinks  bool       // Follow symlinks (within root only)
	DefaultExcludes []string   // Default directories to exclude
	ExcludedPaths   []string   // Extra gitignore-style patterns from the configuration
	IgnoreFileName  string     // Name of the ignore file (default: .luataintignore)
	Logger          log.Logger // Receives skipped-file notices
}

// DefaultOptions returns scanner options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		Recursive:      true,
		SkipHidden:     true,
		FollowSymlinks: false,
		IgnoreFileName: ".luataintignore",
		DefaultExcludes: []string{
			".git",
			".hg",
			".svn",
			"CVS",
			".luarocks",
			"lua_modules",
			".idea",
			".vscode",
		},
	}
}

// Scanner provides file tree scanning capabilities.
type Scanner struct {
	opts Options
	root string
	log  log.Logger
}

// New creates a new Scanner with the given options.
func New(opts Options) *Scanner {
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &Scanner{opts: opts, log: logger}
}

// Scan returns the Lua files under root sorted by path. root may also name
// a single file, which is returned as long as it is readable source.
func (s *Scanner) Scan(root string) ([]FileInfo, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		s.root = filepath.Dir(absRoot)
		if s.isCompiled(absRoot) {
			return nil, nil
		}
		return []FileInfo{{
			Path:     filepath.Base(absRoot),
			FullPath: absRoot,
			Language: DetectLanguage(filepath.Ext(absRoot)),
			Size:     info.Size(),
		}}, nil
	}
	s.root = absRoot

	// Load ignore patterns from root
	ignorePatterns, err := s.loadIgnorePatterns(absRoot)
	if err != nil {
		return nil, fmt.Errorf("loading ignore patterns: %w", err)
	}
	for _, p := range s.opts.ExcludedPaths {
		ignorePatterns = append(ignorePatterns, ParseIgnorePattern(filepath.ToSlash(p)))
	}

	var files []FileInfo

	err = filepath.Walk(absRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			s.log.Warn("skipping unreadable path", "path", path, "error", err)
			return nil
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil {
			return nil
		}
		if relPath == "." {
			return nil
		}
		relPathSlash := filepath.ToSlash(relPath)

		if s.opts.SkipHidden && s.isHidden(info.Name()) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if info.IsDir() {
			if !s.opts.Recursive || s.isDefaultExcluded(info.Name()) {
				return filepath.SkipDir
			}
			if s.matchesIgnorePatterns(relPathSlash, ignorePatterns) {
				return filepath.SkipDir
			}
			nestedPatterns, err := s.loadIgnorePatterns(path)
			if err == nil && len(nestedPatterns) > 0 {
				ignorePatterns = append(ignorePatterns, nestedPatterns...)
			}
			return nil
		}

		if !IsLua(info.Name()) {
			return nil
		}
		if s.matchesIgnorePatterns(relPathSlash, ignorePatterns) {
			return nil
		}

		if info.Mode()&os.ModeSymlink != 0 {
			if !s.opts.FollowSymlinks {
				return nil
			}
			realPath, err := filepath.EvalSymlinks(path)
			if err != nil {
				return nil
			}
			realAbs, err := filepath.Abs(realPath)
			if err != nil {
				return nil
			}
			if !strings.HasPrefix(realAbs, absRoot+string(filepath.Separator)) {
				return nil
			}
			targetInfo, err := os.Stat(realPath)
			if err != nil || targetInfo.IsDir() {
				return nil
			}
			info = targetInfo
		}

		if s.isCompiled(path) {
			return nil
		}

		files = append(files, FileInfo{
			Path:     relPathSlash,
			FullPath: path,
			Language: DetectLanguage(filepath.Ext(path)),
			Size:     info.Size(),
		})

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// Root returns the absolute directory of the last Scan.
func (s *Scanner) Root() string {
	return s.root
}

// isCompiled peeks at the file header for the bytecode signature.
func (s *Scanner) isCompiled(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	head := make([]byte, 4)
	n, _ := io.ReadFull(f, head)
	if parser.IsCompiled(head[:n]) {
		s.log.Info("skipping compiled chunk", "path", path)
		return true
	}
	return false
}

// isHidden checks if a file or directory name indicates it's hidden.
func (s *Scanner) isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// isDefaultExcluded checks if the name matches default exclusion patterns.
func (s *Scanner) isDefaultExcluded(name string) bool {
	for _, exclude := range s.opts.DefaultExcludes {
		if strings.EqualFold(name, exclude) {
			return true
		}
	}
	return false
}

// loadIgnorePatterns loads ignore patterns from the ignore file in the given directory.
func (s *Scanner) loadIgnorePatterns(dir string) ([]IgnorePattern, error) {
	if s.opts.IgnoreFileName == "" {
		return nil, nil
	}
	ignorePath := filepath.Join(dir, s.opts.IgnoreFileName)
	file, err := os.Open(ignorePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var patterns []IgnorePattern
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, ParseIgnorePattern(line))
	}

	return patterns, scanner.Err()
}

// matchesIgnorePatterns checks if the given path should be ignored based on patterns.
// Patterns are checked in order, and negation patterns can override previous
// positive matches.
func (s *Scanner) matchesIgnorePatterns(relPath string, patterns []IgnorePattern) bool {
	ignored := false
	for _, pattern := range patterns {
		if pattern.Match(relPath) {
			ignored = !pattern.IsNegation()
		}
	}
	return ignored
}

// Scan is a convenience function that scans a directory with default options.
func Scan(root string) ([]FileInfo, error) {
	return New(DefaultOptions()).Scan(root)
}

package sync

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// IgnoreFileName is the per-root ignore file, one pattern per line.
const IgnoreFileName = ".skiffignore"

// DefaultIgnorePatterns are always excluded from sync on top of the
// configured patterns. They cover skiff's own artifacts, VCS metadata,
// OS junk and transient editor files.
var DefaultIgnorePatterns = []string{
	IgnoreFileName,
	"*.skifftmp",
	".git/",
	".DS_Store",
	"Thumbs.db",
	"*.tmp",
	"*.swp",
	"*.partial",
}

// IgnoreMatcher classifies relative paths as excluded from sync.
// Patterns are a union: a path is ignored if any pattern matches.
//
// Supported forms:
//   - exact match: "notes.txt"
//   - directory prefix: "node_modules/" matches the dir and everything under it
//   - simplified glob: "*" matches any run of characters, including "/"
//   - plain patterns also match as an implicit directory prefix: "build"
//     matches "build" and "build/out.bin"
//
// There is no negation syntax.
type IgnoreMatcher struct {
	patterns []string
}

func NewIgnoreMatcher(patterns ...string) *IgnoreMatcher {
	cleaned := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		cleaned = append(cleaned, p)
	}
	return &IgnoreMatcher{patterns: cleaned}
}

// Match reports whether relPath is excluded. relPath must be
// slash-separated and relative to the watch root.
func (m *IgnoreMatcher) Match(relPath string) bool {
	relPath = filepath.ToSlash(relPath)
	for _, pattern := range m.patterns {
		if matchPattern(relPath, pattern) {
			return true
		}
	}
	return false
}

func (m *IgnoreMatcher) Patterns() []string {
	return m.patterns
}

func matchPattern(path, pattern string) bool {
	if path == pattern {
		return true
	}

	// directory pattern: "dir/" matches "dir" and anything under it
	if dir, ok := strings.CutSuffix(pattern, "/"); ok {
		return path == dir || strings.HasPrefix(path, dir+"/")
	}

	if strings.Contains(pattern, "*") {
		return matchGlob(path, pattern)
	}

	// plain pattern doubles as a directory prefix
	return strings.HasPrefix(path, pattern+"/")
}

// matchGlob implements the simplified wildcard match. "*" spans any
// characters including "/", so "*.tmp" matches nested paths too.
func matchGlob(path, pattern string) bool {
	segments := strings.Split(pattern, "*")

	pos := 0
	if first := segments[0]; first != "" {
		if !strings.HasPrefix(path, first) {
			return false
		}
		pos = len(first)
	}

	for _, seg := range segments[1 : len(segments)-1] {
		if seg == "" {
			continue
		}
		idx := strings.Index(path[pos:], seg)
		if idx < 0 {
			return false
		}
		pos += idx + len(seg)
	}

	last := segments[len(segments)-1]
	if last == "" {
		// pattern ends with "*", anything after the last match is fine
		return true
	}
	return strings.HasSuffix(path, last) && len(path)-len(last) >= pos
}

// LoadIgnoreFile reads patterns from the ignore file in rootDir.
// Returns an empty list if the file does not exist. Blank lines and
// lines starting with "#" are skipped.
func LoadIgnoreFile(rootDir string) ([]string, error) {
	path := filepath.Join(rootDir, IgnoreFileName)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open ignore file %s: %w", path, err)
	}
	defer file.Close()

	var patterns []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ignore file %s: %w", path, err)
	}
	return patterns, nil
}

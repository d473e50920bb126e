package fs

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// defaultIgnorePatterns hide the ignore file itself and the temp files Write
// leaves behind if interrupted.
var defaultIgnorePatterns = []string{IgnoreFileName, ".*.tmp"}

type ignoreRule struct {
	glob    string
	anchor  bool // glob contains '/', match against the whole relative path
	dirOnly bool // trailing '/', only directories match
	negate  bool // leading '!', re-includes a previously ignored path
}

// IgnoreMatcher decides which installation paths are left out of a scan.
// Rules are evaluated in order and the last matching rule wins, so a
// "!name" rule can re-include something an earlier glob excluded.
type IgnoreMatcher struct {
	rules []ignoreRule
}

// NewIgnoreMatcher parses raw patterns. Blank lines and '#' comments are
// skipped; the default patterns always come first.
func NewIgnoreMatcher(rawPatterns []string) *IgnoreMatcher {
	m := &IgnoreMatcher{}
	for _, raw := range append(append([]string(nil), defaultIgnorePatterns...), rawPatterns...) {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		var r ignoreRule
		if strings.HasPrefix(raw, "!") {
			r.negate = true
			raw = raw[1:]
		}
		if strings.HasSuffix(raw, "/") {
			r.dirOnly = true
			raw = strings.TrimSuffix(raw, "/")
		}
		raw = strings.TrimPrefix(raw, "/")
		if raw == "" {
			continue
		}
		r.glob = raw
		r.anchor = strings.Contains(raw, "/")
		m.rules = append(m.rules, r)
	}
	return m
}

// Match reports whether relativePath, relative to the installation root,
// is ignored.
func (m *IgnoreMatcher) Match(relativePath string, isDir bool) bool {
	if relativePath == "" {
		return false
	}
	slashed := filepath.ToSlash(relativePath)
	base := path.Base(slashed)

	ignored := false
	for _, r := range m.rules {
		if r.dirOnly && !isDir {
			continue
		}
		subject := base
		if r.anchor {
			subject = slashed
		}
		ok, err := path.Match(r.glob, subject)
		if err != nil || !ok {
			continue
		}
		ignored = !r.negate
	}
	return ignored
}

// ParseIgnoreFile reads the raw lines of an ignore file. A missing file
// yields no patterns.
func ParseIgnoreFile(p string) ([]string, error) {
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return lines, nil
}

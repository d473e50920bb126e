package fs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewIgnoreMatcher(t *testing.T) {
	t.Run("skips blank lines and comments", func(t *testing.T) {
		t.Parallel()
		m := NewIgnoreMatcher([]string{"", "  ", "# comment", "*.log"})
		want := len(defaultIgnorePatterns) + 1
		if len(m.rules) != want {
			t.Fatalf("expected %d rules, got %d", want, len(m.rules))
		}
		if last := m.rules[len(m.rules)-1]; last.glob != "*.log" {
			t.Errorf("expected *.log, got %s", last.glob)
		}
	})

	t.Run("parses rule modifiers", func(t *testing.T) {
		t.Parallel()
		m := NewIgnoreMatcher([]string{"!keep.jar", "cache/", "/plugins/Old.jar"})
		rules := m.rules[len(defaultIgnorePatterns):]
		if !rules[0].negate || rules[0].glob != "keep.jar" {
			t.Errorf("rule 0 = %+v, want negated keep.jar", rules[0])
		}
		if !rules[1].dirOnly || rules[1].glob != "cache" {
			t.Errorf("rule 1 = %+v, want directory-only cache", rules[1])
		}
		if !rules[2].anchor || rules[2].glob != "plugins/Old.jar" {
			t.Errorf("rule 2 = %+v, want anchored plugins/Old.jar", rules[2])
		}
	})
}

func TestIgnoreMatcher_Match(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		path     string
		isDir    bool
		want     bool
	}{
		{"basename glob", []string{"*.log"}, filepath.Join("plugins", "app.log"), false, true},
		{"basename glob other extension", []string{"*.log"}, filepath.Join("plugins", "app.jar"), false, false},
		{"anchored path", []string{"plugins/Old.jar"}, filepath.Join("plugins", "Old.jar"), false, true},
		{"anchored path elsewhere", []string{"plugins/Old.jar"}, filepath.Join("jars", "Old.jar"), false, false},
		{"directory rule on directory", []string{"cache/"}, filepath.Join("plugins", "cache"), true, true},
		{"directory rule on file", []string{"cache/"}, filepath.Join("plugins", "cache"), false, false},
		{"negation re-includes", []string{"*.jar", "!Keep.jar"}, filepath.Join("jars", "Keep.jar"), false, false},
		{"negation before glob loses", []string{"!Keep.jar", "*.jar"}, filepath.Join("jars", "Keep.jar"), false, true},
		{"default ignore file", nil, IgnoreFileName, false, true},
		{"default temp file", nil, filepath.Join("jars", ".a.jar.123.tmp"), false, true},
		{"no patterns", nil, filepath.Join("jars", "a.jar"), false, false},
		{"empty path", []string{"*"}, "", false, false},
		{"bad pattern skipped", []string{"[", "*.txt"}, "notes.txt", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := NewIgnoreMatcher(tt.patterns)
			if got := m.Match(tt.path, tt.isDir); got != tt.want {
				t.Errorf("Match(%q, %v) = %v, want %v", tt.path, tt.isDir, got, tt.want)
			}
		})
	}
}

func TestParseIgnoreFile(t *testing.T) {
	t.Run("reads raw lines", func(t *testing.T) {
		t.Parallel()
		p := filepath.Join(t.TempDir(), IgnoreFileName)
		if err := os.WriteFile(p, []byte("*.log\n# comment\n\n!keep.log\n"), 0644); err != nil {
			t.Fatalf("writing test file: %v", err)
		}

		lines, err := ParseIgnoreFile(p)
		if err != nil {
			t.Fatalf("ParseIgnoreFile() error = %v", err)
		}
		if len(lines) != 4 {
			t.Fatalf("expected 4 raw lines, got %d", len(lines))
		}
		m := NewIgnoreMatcher(lines)
		if got := len(m.rules) - len(defaultIgnorePatterns); got != 2 {
			t.Errorf("expected 2 parsed rules, got %d", got)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		lines, err := ParseIgnoreFile(filepath.Join(t.TempDir(), IgnoreFileName))
		if err != nil {
			t.Fatalf("ParseIgnoreFile() error = %v", err)
		}
		if lines != nil {
			t.Errorf("expected nil, got %v", lines)
		}
	})
}

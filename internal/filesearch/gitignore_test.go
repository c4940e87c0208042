package filesearch

import (
	"strings"
	"testing"
)

func TestGitignoreMatcher(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		isDir   bool
		want    bool
	}{
		// Simple patterns
		{"*.log", "test.log", false, true},
		{"*.log", "test.txt", false, false},
		{"*.log", "logs/test.log", false, true},

		// Directory patterns
		{"node_modules/", "node_modules", true, true},
		{"node_modules/", "node_modules/package.json", false, true},
		{"node_modules/", "src/node_modules", true, true},

		// Wildcard patterns
		{"build/*", "build/output.txt", false, true},
		{"build/*", "build", true, false},
		{"build/*", "src/build/output.txt", false, true},

		// Negation patterns
		{"!important.log", "important.log", false, false},

		// Double asterisk
		{"**/temp", "temp", false, true},
		{"**/temp", "src/temp", false, true},
		{"**/temp", "src/lib/temp", false, true},

		// Leading slash (root-only)
		{"/root.txt", "root.txt", false, true},
		{"/root.txt", "src/root.txt", false, false},
	}

	for _, tt := range tests {
		pattern := parseGitignorePattern(tt.pattern)
		if pattern == nil {
			t.Errorf("failed to parse pattern: %s", tt.pattern)
			continue
		}

		matcher := &GitignoreMatcher{patterns: []*gitignorePattern{pattern}}
		got := matcher.Matches(tt.path, tt.isDir)

		if got != tt.want {
			t.Errorf("pattern %q, path %q (isDir=%v): got %v, want %v",
				tt.pattern, tt.path, tt.isDir, got, tt.want)
		}
	}
}

func TestGitignoreMultiplePatterns(t *testing.T) {
	patterns := []string{
		"*.log",
		"!important.log",
	}

	matcher := &GitignoreMatcher{}
	for _, p := range patterns {
		pattern := parseGitignorePattern(p)
		if pattern != nil {
			matcher.patterns = append(matcher.patterns, pattern)
		}
	}

	tests := []struct {
		path string
		want bool
	}{
		{"test.log", true},       // Ignored by *.log
		{"important.log", false}, // Un-ignored by !important.log
		{"other.txt", false},     // Not matched
	}

	for _, tt := range tests {
		got := matcher.Matches(tt.path, false)
		if got != tt.want {
			t.Errorf("path %q: got %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestGitignoreNestedScope(t *testing.T) {
	m := &GitignoreMatcher{}
	if err := m.Add(strings.NewReader("*.log\n"), ""); err != nil {
		t.Fatal(err)
	}
	if err := m.Add(strings.NewReader("# generated sources\ngen/\n!keep.log\n"), "sub"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path  string
		isDir bool
		want  bool
	}{
		{"a.log", false, true},
		{"sub/a.log", false, true},
		{"sub/keep.log", false, false}, // re-included beneath sub/
		{"keep.log", false, true},      // negation does not reach the root
		{"sub/gen", true, true},
		{"sub/gen/A.java", false, true},
		{"gen", true, false},
		{"other/gen/A.java", false, false},
	}

	for _, tt := range tests {
		if got := m.Matches(tt.path, tt.isDir); got != tt.want {
			t.Errorf("path %q (isDir=%v): got %v, want %v", tt.path, tt.isDir, got, tt.want)
		}
	}
}

func TestGitignoreCharClassAndEscape(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"Test[AB].java", "TestA.java", true},
		{"Test[AB].java", "TestC.java", false},
		{"\\#notes", "#notes", true},
		{"file?.txt", "file1.txt", true},
		{"file?.txt", "file12.txt", false},
		{"a.b", "axb", false},
	}
	for _, tt := range tests {
		p := parseGitignorePattern(tt.pattern)
		if p == nil {
			t.Fatalf("failed to parse %q", tt.pattern)
		}
		m := &GitignoreMatcher{patterns: []*gitignorePattern{p}}
		if got := m.Matches(tt.path, false); got != tt.want {
			t.Errorf("pattern %q, path %q: got %v, want %v", tt.pattern, tt.path, got, tt.want)
		}
	}
}

func TestNewGitignoreMatcherMissingFile(t *testing.T) {
	m, err := NewGitignoreMatcher(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if m.Matches("anything.java", false) {
		t.Error("empty matcher ignored a path")
	}
}

package filesearch

import (
	"bufio"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

// GitignoreMatcher matches slash-separated paths, relative to the walk root,
// against patterns collected from every .gitignore seen so far. Patterns
// from a nested .gitignore only apply beneath the directory that holds it.
type GitignoreMatcher struct {
	patterns []*gitignorePattern
}

type gitignorePattern struct {
	base     string // directory of the .gitignore, relative to the walk root; "" for the root
	regex    *regexp.Regexp
	negation bool
	dirOnly  bool
	anchored bool
}

// NewGitignoreMatcher returns a matcher seeded with <root>/.gitignore.
// A missing file yields an empty matcher.
func NewGitignoreMatcher(root string) (*GitignoreMatcher, error) {
	m := &GitignoreMatcher{}
	if err := m.LoadDir(root, ""); err != nil {
		return nil, err
	}
	return m, nil
}

// LoadDir adds the patterns of <absDir>/.gitignore, scoped to relDir.
func (m *GitignoreMatcher) LoadDir(absDir, relDir string) error {
	f, err := os.Open(filepath.Join(absDir, ".gitignore"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	return m.Add(f, relDir)
}

// Add parses gitignore lines from r and scopes them to base.
func (m *GitignoreMatcher) Add(r io.Reader, base string) error {
	base = strings.Trim(filepath.ToSlash(base), "/")
	if base == "." {
		base = ""
	}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if p := parseGitignorePattern(line); p != nil {
			p.base = base
			m.patterns = append(m.patterns, p)
		}
	}
	return scanner.Err()
}

// Matches reports whether relPath is ignored. The last matching pattern wins,
// so a later negation can re-include a path.
func (m *GitignoreMatcher) Matches(relPath string, isDir bool) bool {
	if m == nil || len(m.patterns) == 0 {
		return false
	}
	relPath = filepath.ToSlash(relPath)

	ignored := false
	for _, p := range m.patterns {
		local, ok := p.scope(relPath)
		if !ok {
			continue
		}
		if p.matches(local, isDir) {
			ignored = !p.negation
		}
	}
	return ignored
}

// scope strips the pattern's base from relPath, reporting false when relPath
// is outside it.
func (p *gitignorePattern) scope(relPath string) (string, bool) {
	if p.base == "" {
		return relPath, true
	}
	if !strings.HasPrefix(relPath, p.base+"/") {
		return "", false
	}
	return relPath[len(p.base)+1:], true
}

func (p *gitignorePattern) matches(local string, isDir bool) bool {
	switch {
	case p.dirOnly && isDir:
		return p.regex.MatchString(local)
	case p.dirOnly:
		// A file is ignored when any of its parent directories is.
		return p.regex.MatchString(path.Dir(local))
	case p.anchored:
		return p.regex.MatchString(local)
	default:
		return p.regex.MatchString(local) || p.regex.MatchString(path.Base(local))
	}
}

// parseGitignorePattern compiles one gitignore line. Invalid patterns yield nil.
func parseGitignorePattern(line string) *gitignorePattern {
	p := &gitignorePattern{}
	if rest, ok := strings.CutPrefix(line, "!"); ok {
		p.negation = true
		line = rest
	}
	p.anchored = strings.HasPrefix(line, "/")
	if rest, ok := strings.CutSuffix(line, "/"); ok {
		p.dirOnly = true
		line = rest
	}

	re, err := regexp.Compile(globToRegex(line))
	if err != nil {
		return nil
	}
	p.regex = re
	return p
}

// globToRegex translates gitignore glob syntax. Unanchored patterns match at
// any depth and also cover everything beneath a matched directory.
func globToRegex(glob string) string {
	var b strings.Builder

	anchored := strings.HasPrefix(glob, "/")
	if anchored {
		b.WriteString("^")
		glob = glob[1:]
	} else {
		b.WriteString("(^|/)")
	}

	for i := 0; i < len(glob); i++ {
		switch c := glob[i]; c {
		case '*':
			switch {
			case strings.HasPrefix(glob[i:], "**/"):
				b.WriteString("(.*/)?")
				i += 2
			case strings.HasPrefix(glob[i:], "**"):
				b.WriteString(".*")
				i++
			default:
				b.WriteString("[^/]*")
			}
		case '?':
			b.WriteString("[^/]")
		case '[':
			end := strings.IndexByte(glob[i+1:], ']')
			if end < 0 {
				b.WriteString(`\[`)
				continue
			}
			b.WriteString(glob[i : i+end+2])
			i += end + 1
		case '\\':
			if i+1 < len(glob) {
				b.WriteString(regexp.QuoteMeta(glob[i+1 : i+2]))
				i++
			} else {
				b.WriteString(`\\`)
			}
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}

	if anchored {
		b.WriteString("$")
	} else {
		b.WriteString("(/.*)?$")
	}
	return b.String()
}

// Package filesearch enumerates source files under a workspace, skipping
// anything the project's .gitignore files exclude.
package filesearch

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
)

// Options configures an enumeration.
type Options struct {
	Extensions []string // File suffixes to keep, e.g. ".java". Empty keeps everything.
	SkipDirs   []string // Directory names never descended into, in addition to .git.
	MaxResults int      // Maximum files to return (0 = unlimited).
}

// Searcher walks one workspace root.
type Searcher struct {
	root string
}

// NewSearcher creates a searcher for the given root directory.
func NewSearcher(root string) (*Searcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	return &Searcher{root: abs}, nil
}

// Files returns the absolute paths of matching files in lexical walk order.
// Unreadable directories are skipped rather than failing the walk.
func (s *Searcher) Files(ctx context.Context, opts Options) ([]string, error) {
	ignore, err := NewGitignoreMatcher(s.root)
	if err != nil {
		// Non-fatal: just won't filter gitignored files
		ignore = &GitignoreMatcher{}
	}

	skip := map[string]bool{".git": true}
	for _, d := range opts.SkipDirs {
		skip[d] = true
	}

	var files []string
	err = filepath.WalkDir(s.root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil || rel == "." {
			return nil
		}

		if d.IsDir() {
			if skip[d.Name()] || ignore.Matches(rel, true) {
				return filepath.SkipDir
			}
			// Nested .gitignore files scope to their own subtree.
			_ = ignore.LoadDir(path, rel)
			return nil
		}

		if !d.Type().IsRegular() || !hasSuffix(d.Name(), opts.Extensions) || ignore.Matches(rel, false) {
			return nil
		}
		files = append(files, path)
		if opts.MaxResults > 0 && len(files) >= opts.MaxResults {
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil && !errors.Is(err, filepath.SkipAll) {
		return nil, err
	}
	return files, nil
}

func hasSuffix(name string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	for _, ext := range exts {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

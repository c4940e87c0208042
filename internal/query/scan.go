package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
	"golang.org/x/sync/errgroup"

	"github.com/xonecas/javalsp/internal/filesearch"
	"github.com/xonecas/javalsp/internal/lsp"
)

// fileSymbols is the outline of one enumerated file.
type fileSymbols struct {
	uri     protocol.DocumentURI
	symbols []protocol.DocumentSymbol
}

// scan fetches the document symbols of every workspace file. Files whose
// fetch fails are logged and left out; the order of the result follows
// enumeration order regardless of completion order. A server that stops
// mid-scan fails the whole scan.
func (c *Composer) scan(ctx context.Context, logger zerolog.Logger) ([]fileSymbols, error) {
	uris, err := c.enumerate(ctx, logger)
	if err != nil {
		return nil, err
	}

	results := make([]fileSymbols, len(uris))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, u := range uris {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			syms, err := c.src.DocumentSymbols(gctx, u)
			if errors.Is(err, lsp.ErrNotInitialized) {
				return err
			}
			if err != nil {
				scanFailures.Inc()
				logger.Warn().Err(err).Str("uri", string(u)).Msg("query: skipping file")
				return nil
			}
			results[i] = fileSymbols{uri: u, symbols: syms}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := results[:0]
	for _, r := range results {
		if r.uri != "" {
			out = append(out, r)
		}
	}
	return out, nil
}

// enumerate lists the distinct files holding the workspace's top-level
// types, in first-seen order. When the server lists nothing it falls back to
// the *.java files on disk.
func (c *Composer) enumerate(ctx context.Context, logger zerolog.Logger) ([]protocol.DocumentURI, error) {
	types, err := c.src.FindWorkspaceSymbols(ctx, allSymbols)
	if err != nil {
		return nil, err
	}

	seen := make(map[protocol.DocumentURI]bool, len(types))
	uris := make([]protocol.DocumentURI, 0, len(types))
	for _, si := range types {
		u := si.Location.URI
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		uris = append(uris, u)
	}
	if len(uris) > 0 || c.files == nil {
		return uris, nil
	}

	logger.Info().Str("root", c.root).Msg("query: server listed no types, enumerating sources")
	files, err := c.files.Files(ctx, filesearch.Options{
		Extensions: []string{".java"},
		SkipDirs:   []string{"target", "build", "bin", "out", "node_modules"},
	})
	if err != nil {
		return nil, fmt.Errorf("enumerate sources: %w", err)
	}
	for _, f := range files {
		uris = append(uris, uri.File(f))
	}
	return uris, nil
}

// collectMatches appends, depth first, every node whose name contains
// lowerQuery. The node's detail becomes the record's container.
func collectMatches(nodes []protocol.DocumentSymbol, lowerQuery, file string, out []SymbolRecord) []SymbolRecord {
	for _, n := range nodes {
		if strings.Contains(strings.ToLower(n.Name), lowerQuery) {
			out = append(out, SymbolRecord{
				Name:      n.Name,
				Kind:      n.Kind.String(),
				Container: n.Detail,
				File:      file,
				Line:      int(n.Range.Start.Line) + 1,
				Column:    int(n.Range.Start.Character) + 1,
			})
		}
		out = collectMatches(n.Children, lowerQuery, file, out)
	}
	return out
}

// collectMethods appends, depth first, every Method node whose name contains
// lowerName. container is the name of the nearest enclosing Class or
// Interface; it changes only when descending into one.
func collectMethods(nodes []protocol.DocumentSymbol, lowerName, container, file string, out []MethodRecord) []MethodRecord {
	for _, n := range nodes {
		if n.Kind == protocol.SymbolKindMethod && strings.Contains(strings.ToLower(n.Name), lowerName) {
			out = append(out, MethodRecord{
				Name:      n.Name,
				Kind:      n.Kind.String(),
				Container: container,
				File:      file,
				Line:      int(n.Range.Start.Line) + 1,
				Column:    int(n.Range.Start.Character) + 1,
			})
		}
		inner := container
		if n.Kind == protocol.SymbolKindClass || n.Kind == protocol.SymbolKindInterface {
			inner = n.Name
		}
		out = collectMethods(n.Children, lowerName, inner, file, out)
	}
	return out
}

func symbolRecord(si protocol.SymbolInformation) SymbolRecord {
	start := si.Location.Range.Start
	return SymbolRecord{
		Name:      si.Name,
		Kind:      si.Kind.String(),
		Container: si.ContainerName,
		File:      filePath(si.Location.URI),
		Line:      int(start.Line) + 1,
		Column:    int(start.Character) + 1,
	}
}

func locationRecords(locs []protocol.Location) []LocationRecord {
	out := make([]LocationRecord, 0, len(locs))
	for _, l := range locs {
		out = append(out, LocationRecord{
			File:        filePath(l.URI),
			StartLine:   int(l.Range.Start.Line) + 1,
			StartColumn: int(l.Range.Start.Character) + 1,
			EndLine:     int(l.Range.End.Line) + 1,
			EndColumn:   int(l.Range.End.Character) + 1,
		})
	}
	return out
}

func documentSymbolRecords(nodes []protocol.DocumentSymbol) []DocumentSymbolRecord {
	out := make([]DocumentSymbolRecord, 0, len(nodes))
	for _, n := range nodes {
		rec := DocumentSymbolRecord{
			Name:      n.Name,
			Kind:      n.Kind.String(),
			Detail:    n.Detail,
			StartLine: int(n.Range.Start.Line) + 1,
			EndLine:   int(n.Range.End.Line) + 1,
		}
		if len(n.Children) > 0 {
			rec.Children = documentSymbolRecords(n.Children)
		}
		out = append(out, rec)
	}
	return out
}

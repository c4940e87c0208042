// Package query turns tool-level questions about a Java workspace into LSP
// requests and merges the answers into plain records with 1-based
// coordinates. Every entry point returns a Result; failures never escape as
// Go errors or panics.
package query

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"github.com/xonecas/javalsp/internal/filesearch"
)

// allSymbols is the workspace/symbol query JDTLS answers with every
// top-level type in the workspace.
const allSymbols = "*"

var scanFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "javalsp_scan_file_failures_total",
	Help: "Files skipped during a workspace scan because their document symbols could not be fetched.",
})

// SymbolSource is the subset of an LSP session the composer needs.
// Positions are 0-based.
type SymbolSource interface {
	FindWorkspaceSymbols(ctx context.Context, query string) ([]protocol.SymbolInformation, error)
	DocumentSymbols(ctx context.Context, doc protocol.DocumentURI) ([]protocol.DocumentSymbol, error)
	References(ctx context.Context, doc protocol.DocumentURI, pos protocol.Position) ([]protocol.Location, error)
	Definition(ctx context.Context, doc protocol.DocumentURI, pos protocol.Position) ([]protocol.Location, error)
}

// Options configures a Composer.
type Options struct {
	// Concurrency bounds parallel document-symbol fetches during a scan.
	Concurrency int
	// FallbackGlob enumerates *.java files on disk when the server's "*"
	// query returns nothing.
	FallbackGlob bool
}

// Composer answers the bridge's five queries. It keeps no state between
// calls and is safe for concurrent use.
type Composer struct {
	src         SymbolSource
	root        string
	concurrency int
	files       *filesearch.Searcher
}

// New returns a composer over src for the workspace at root.
func New(src SymbolSource, root string, opts Options) *Composer {
	c := &Composer{
		src:         src,
		root:        root,
		concurrency: max(opts.Concurrency, 1),
	}
	if opts.FallbackGlob {
		s, err := filesearch.NewSearcher(root)
		if err != nil {
			log.Warn().Err(err).Str("root", root).Msg("query: source enumeration disabled")
		} else {
			c.files = s
		}
	}
	return c
}

func callLogger(tool string) zerolog.Logger {
	return log.With().Str("call_id", uuid.NewString()).Str("tool", tool).Logger()
}

// FindSymbols returns workspace-symbol matches for q, followed by every
// document-symbol node, at any depth in any workspace file, whose name
// contains q case-insensitively.
func (c *Composer) FindSymbols(ctx context.Context, q string) Result {
	logger := callLogger("find_symbols")
	logger.Info().Str("query", q).Msg("query: find symbols")

	matches, err := c.src.FindWorkspaceSymbols(ctx, q)
	if err != nil {
		logger.Error().Err(err).Msg("query: find symbols")
		return failed(err)
	}
	symbols := make([]SymbolRecord, 0, len(matches))
	for _, si := range matches {
		symbols = append(symbols, symbolRecord(si))
	}

	docs, err := c.scan(ctx, logger)
	if err != nil {
		logger.Error().Err(err).Msg("query: find symbols")
		return failed(err)
	}
	lower := strings.ToLower(q)
	for _, d := range docs {
		symbols = collectMatches(d.symbols, lower, filePath(d.uri), symbols)
	}

	logger.Debug().Int("count", len(symbols)).Msg("query: find symbols done")
	return ok(SymbolsResult{Query: q, Count: len(symbols), Symbols: symbols})
}

// FindInterfacesWithMethod returns every Method node whose name contains
// methodName case-insensitively, with its nearest enclosing class or
// interface as container.
func (c *Composer) FindInterfacesWithMethod(ctx context.Context, methodName string) Result {
	logger := callLogger("find_interfaces_with_method")
	logger.Info().Str("method", methodName).Msg("query: find interfaces with method")

	docs, err := c.scan(ctx, logger)
	if err != nil {
		logger.Error().Err(err).Msg("query: find interfaces with method")
		return failed(err)
	}
	methods := make([]MethodRecord, 0)
	lower := strings.ToLower(methodName)
	for _, d := range docs {
		methods = collectMethods(d.symbols, lower, "", filePath(d.uri), methods)
	}

	return ok(MethodsResult{MethodName: methodName, Count: len(methods), Methods: methods})
}

// FindReferences lists references (declaration included) to the symbol at
// a 1-based line and character.
func (c *Composer) FindReferences(ctx context.Context, file string, line, character int) Result {
	logger := callLogger("find_references")
	logger.Info().Str("file", file).Int("line", line).Int("character", character).Msg("query: find references")

	pos, err := position(line, character)
	if err != nil {
		return failed(err)
	}
	locs, err := c.src.References(ctx, c.documentURI(file), pos)
	if err != nil {
		logger.Error().Err(err).Msg("query: find references")
		return failed(err)
	}
	refs := locationRecords(locs)
	return ok(ReferencesResult{File: file, Line: line, Character: character, Count: len(refs), References: refs})
}

// FindDefinition locates the definition of the symbol at a 1-based line and
// character.
func (c *Composer) FindDefinition(ctx context.Context, file string, line, character int) Result {
	logger := callLogger("find_definition")
	logger.Info().Str("file", file).Int("line", line).Int("character", character).Msg("query: find definition")

	pos, err := position(line, character)
	if err != nil {
		return failed(err)
	}
	locs, err := c.src.Definition(ctx, c.documentURI(file), pos)
	if err != nil {
		logger.Error().Err(err).Msg("query: find definition")
		return failed(err)
	}
	defs := locationRecords(locs)
	return ok(DefinitionResult{File: file, Line: line, Character: character, Count: len(defs), Definitions: defs})
}

// DocumentSymbols returns the symbol outline of one file.
func (c *Composer) DocumentSymbols(ctx context.Context, file string) Result {
	logger := callLogger("document_symbols")
	logger.Info().Str("file", file).Msg("query: document symbols")

	syms, err := c.src.DocumentSymbols(ctx, c.documentURI(file))
	if err != nil {
		logger.Error().Err(err).Msg("query: document symbols")
		return failed(err)
	}
	records := documentSymbolRecords(syms)
	return ok(DocumentSymbolsResult{File: file, Count: len(records), Symbols: records})
}

// documentURI returns the file URI for file. Relative paths are joined to
// the workspace root; absolute paths are used as given, without cleaning.
func (c *Composer) documentURI(file string) protocol.DocumentURI {
	if !filepath.IsAbs(file) {
		file = filepath.Join(c.root, file)
	}
	p := filepath.ToSlash(file)
	if !strings.HasPrefix(p, "/") {
		// Windows drive paths: file:///C:/...
		p = "/" + p
	}
	u := url.URL{Scheme: uri.FileScheme, Path: p}
	return protocol.DocumentURI(u.String())
}

func position(line, character int) (protocol.Position, error) {
	if line < 1 || character < 1 {
		return protocol.Position{}, fmt.Errorf("line and character are 1-based; got line %d, character %d", line, character)
	}
	return protocol.Position{Line: uint32(line - 1), Character: uint32(character - 1)}, nil
}

// filePath turns a file URI into a filesystem path. Other schemes (such as
// jdt:// for library classes) and unparsable URIs are returned unchanged.
func filePath(u protocol.DocumentURI) string {
	parsed, err := url.Parse(string(u))
	if err != nil || parsed.Scheme != uri.FileScheme {
		return string(u)
	}
	return filepath.FromSlash(parsed.Path)
}

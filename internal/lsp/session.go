// Package lsp owns the Java language server: it launches and supervises the
// subprocess, speaks JSON-RPC to it, and exposes the handful of typed LSP
// requests the bridge needs.
package lsp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"github.com/xonecas/javalsp/internal/constants"
)

// State is the handshake state of a Session.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateInitialized
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateInitialized:
		return "initialized"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Options bounds the session's blocking operations.
type Options struct {
	DataDir         string
	LaunchGrace     time.Duration
	RequestTimeout  time.Duration
	InitTimeout     time.Duration
	PostInitGrace   time.Duration
	ShutdownTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 120 * time.Second
	}
	if o.InitTimeout <= 0 {
		o.InitTimeout = 180 * time.Second
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = 5 * time.Second
	}
	return o
}

// lifecycle is what a Session needs from the process behind its stream.
type lifecycle interface {
	IsAlive() bool
	Terminate(ctx context.Context, graceful func(context.Context))
}

// Session is one JSON-RPC connection to a running language server.
type Session struct {
	root    string
	rootURI protocol.DocumentURI
	opts    Options

	proc lifecycle
	conn *jsonrpc2.Conn
	sink *callbackSink

	initMu sync.Mutex // serializes Initialize

	mu    sync.Mutex
	state State
}

// Start launches the server for workspace and connects to it. The returned
// session still needs Initialize.
func Start(ctx context.Context, workspace, commandLine string, opts Options) (*Session, error) {
	root, err := filepath.Abs(workspace)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve workspace: %v", ErrLaunch, err)
	}
	proc, err := StartProcess(ctx, root, commandLine, ProcessOptions{
		DataDir:     opts.DataDir,
		LaunchGrace: opts.LaunchGrace,
	})
	if err != nil {
		return nil, err
	}

	s := newSession(root, proc.Stdio(), proc, opts)
	go func() {
		select {
		case <-proc.Exited():
			// Fails pending calls even if a grandchild keeps stdout open.
			_ = s.conn.Close()
		case <-s.conn.DisconnectNotify():
		}
	}()
	return s, nil
}

func newSession(root string, stream io.ReadWriteCloser, proc lifecycle, opts Options) *Session {
	rootURI := protocol.DocumentURI(uri.File(root))
	s := &Session{
		root:    root,
		rootURI: rootURI,
		opts:    opts.withDefaults(),
		proc:    proc,
		sink: newCallbackSink(protocol.WorkspaceFolder{
			URI:  string(rootURI),
			Name: filepath.Base(root),
		}),
	}
	s.conn = jsonrpc2.NewConn(
		context.Background(),
		jsonrpc2.NewBufferedStream(stream, jsonrpc2.VSCodeObjectCodec{}),
		s.sink.handler(),
		jsonrpc2.SetLogger(rpcLogger{}),
	)
	return s
}

// Root returns the absolute workspace path.
func (s *Session) Root() string {
	return s.root
}

// State returns the current handshake state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Status returns the last status message the server reported.
func (s *Session) Status() string {
	return s.sink.Status()
}

// Ready reports whether the server has announced it finished indexing.
func (s *Session) Ready() bool {
	select {
	case <-s.sink.Ready():
		return true
	default:
		return false
	}
}

// WaitReady blocks until the server reports ready, timeout elapses, or ctx
// is done. A false result is not an error: some server builds never report.
func (s *Session) WaitReady(ctx context.Context, timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-s.sink.Ready():
		return true
	case <-t.C:
		log.Warn().Dur("timeout", timeout).Str("status", s.Status()).Msg("lsp: server not ready, continuing")
		return false
	case <-ctx.Done():
		return false
	}
}

// Initialize performs the initialize/initialized handshake, then waits the
// post-init grace period. Calling it again after success is a no-op.
func (s *Session) Initialize(ctx context.Context) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	if s.State() == StateInitialized {
		return nil
	}
	if !s.proc.IsAlive() {
		s.setState(StateFailed)
		return fmt.Errorf("%w: %w", ErrInitializationFailure, ErrProcessDead)
	}
	s.setState(StateInitializing)

	params := &protocol.InitializeParams{
		ProcessID: int32(os.Getpid()),
		ClientInfo: &protocol.ClientInfo{
			Name:    constants.ServerName,
			Version: constants.Version,
		},
		RootURI:          s.rootURI,
		Capabilities:     clientCapabilities(),
		WorkspaceFolders: []protocol.WorkspaceFolder{s.sink.folder},
	}

	log.Info().Str("root", s.root).Dur("timeout", s.opts.InitTimeout).Msg("lsp: initializing")

	ictx, cancel := context.WithTimeout(ctx, s.opts.InitTimeout)
	defer cancel()

	var result protocol.InitializeResult
	if err := s.conn.Call(ictx, protocol.MethodInitialize, params, &result); err != nil {
		s.setState(StateFailed)
		var rpcErr *jsonrpc2.Error
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return fmt.Errorf("%w after %s", ErrInitializationTimeout, s.opts.InitTimeout)
		case errors.As(err, &rpcErr):
			return fmt.Errorf("%w: %s", ErrInitializationFailure, rpcErr.Message)
		case errors.Is(err, jsonrpc2.ErrClosed) || !s.proc.IsAlive():
			return fmt.Errorf("%w: %w", ErrInitializationFailure, ErrProcessDead)
		default:
			return fmt.Errorf("%w: %v", ErrInitializationFailure, err)
		}
	}

	if err := s.conn.Notify(ctx, protocol.MethodInitialized, &protocol.InitializedParams{}); err != nil {
		s.setState(StateFailed)
		return fmt.Errorf("%w: initialized notification: %v", ErrInitializationFailure, err)
	}
	s.setState(StateInitialized)

	ev := log.Info().Str("root", s.root)
	if result.ServerInfo != nil {
		ev = ev.Str("server", result.ServerInfo.Name).Str("version", result.ServerInfo.Version)
	}
	ev.Msg("lsp: initialized")

	if s.opts.PostInitGrace > 0 {
		t := time.NewTimer(s.opts.PostInitGrace)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
		}
	}
	return nil
}

func clientCapabilities() protocol.ClientCapabilities {
	return protocol.ClientCapabilities{
		Workspace: &protocol.WorkspaceClientCapabilities{
			Symbol:           &protocol.WorkspaceSymbolClientCapabilities{DynamicRegistration: true},
			WorkspaceFolders: true,
			Configuration:    true,
		},
		TextDocument: &protocol.TextDocumentClientCapabilities{
			Definition: &protocol.DefinitionTextDocumentClientCapabilities{
				DynamicRegistration: true,
				LinkSupport:         true,
			},
			References: &protocol.ReferencesTextDocumentClientCapabilities{DynamicRegistration: true},
			DocumentSymbol: &protocol.DocumentSymbolClientCapabilities{
				DynamicRegistration:               true,
				HierarchicalDocumentSymbolSupport: true,
			},
		},
	}
}

// FindWorkspaceSymbols runs workspace/symbol. With JDTLS, query "*" lists
// every top-level type in the workspace.
func (s *Session) FindWorkspaceSymbols(ctx context.Context, query string) ([]protocol.SymbolInformation, error) {
	var result workspaceSymbolResult
	params := &protocol.WorkspaceSymbolParams{Query: query}
	if err := s.call(ctx, protocol.MethodWorkspaceSymbol, params, &result); err != nil {
		return nil, err
	}
	return result.Symbols, nil
}

// DocumentSymbols runs textDocument/documentSymbol. Flat responses come back
// as childless nodes.
func (s *Session) DocumentSymbols(ctx context.Context, doc protocol.DocumentURI) ([]protocol.DocumentSymbol, error) {
	var result documentSymbolResult
	params := &protocol.DocumentSymbolParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: doc},
	}
	if err := s.call(ctx, protocol.MethodTextDocumentDocumentSymbol, params, &result); err != nil {
		return nil, err
	}
	return result.Symbols, nil
}

// References runs textDocument/references at a 0-based position, including
// the declaration.
func (s *Session) References(ctx context.Context, doc protocol.DocumentURI, pos protocol.Position) ([]protocol.Location, error) {
	var result locationResult
	params := &protocol.ReferenceParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: doc},
			Position:     pos,
		},
		Context: protocol.ReferenceContext{IncludeDeclaration: true},
	}
	if err := s.call(ctx, protocol.MethodTextDocumentReferences, params, &result); err != nil {
		return nil, err
	}
	return result.Locations, nil
}

// Definition runs textDocument/definition at a 0-based position. Location
// links are reduced to their target.
func (s *Session) Definition(ctx context.Context, doc protocol.DocumentURI, pos protocol.Position) ([]protocol.Location, error) {
	var result locationResult
	params := &protocol.DefinitionParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: doc},
			Position:     pos,
		},
	}
	if err := s.call(ctx, protocol.MethodTextDocumentDefinition, params, &result); err != nil {
		return nil, err
	}
	return result.Locations, nil
}

// Shutdown sends shutdown and exit if the server is still up, then kills
// the process and closes the connection. Safe to call more than once.
func (s *Session) Shutdown(ctx context.Context) {
	s.proc.Terminate(ctx, s.goodbye)
	if err := s.conn.Close(); err != nil && !errors.Is(err, jsonrpc2.ErrClosed) {
		log.Debug().Err(err).Msg("lsp: close connection")
	}
}

func (s *Session) goodbye(ctx context.Context) {
	if s.State() != StateInitialized {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, s.opts.ShutdownTimeout)
	defer cancel()
	if err := s.conn.Call(sctx, protocol.MethodShutdown, nil, nil); err != nil {
		log.Warn().Err(err).Msg("lsp: shutdown request")
	}
	if err := s.conn.Notify(sctx, protocol.MethodExit, nil); err != nil {
		log.Warn().Err(err).Msg("lsp: exit notification")
	}
}

func (s *Session) ensureInitialized() error {
	if s.State() != StateInitialized {
		return ErrNotInitialized
	}
	if !s.proc.IsAlive() {
		return ErrProcessDead
	}
	return nil
}

// call issues one bounded request and maps transport failures onto the
// package's error taxonomy.
func (s *Session) call(ctx context.Context, method string, params, result any) error {
	if err := s.ensureInitialized(); err != nil {
		requestsTotal.WithLabelValues(method, outcomeDead).Inc()
		return fmt.Errorf("lsp: %s: %w", method, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()

	start := time.Now()
	err := s.conn.Call(ctx, method, params, result)
	requestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		requestsTotal.WithLabelValues(method, outcomeOK).Inc()
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		requestsTotal.WithLabelValues(method, outcomeTimeout).Inc()
		return fmt.Errorf("lsp: %s: %w after %s", method, ErrRequestTimeout, s.opts.RequestTimeout)
	case errors.Is(err, jsonrpc2.ErrClosed) || !s.proc.IsAlive():
		requestsTotal.WithLabelValues(method, outcomeDead).Inc()
		return fmt.Errorf("lsp: %s: %w", method, ErrProcessDead)
	default:
		requestsTotal.WithLabelValues(method, outcomeError).Inc()
		return fmt.Errorf("lsp: %s: %w", method, err)
	}
}

// rpcLogger routes jsonrpc2 transport messages to zerolog.
type rpcLogger struct{}

func (rpcLogger) Printf(format string, v ...any) {
	log.Debug().Msgf("lsp: "+format, v...)
}

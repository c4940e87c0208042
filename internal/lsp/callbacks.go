package lsp

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/jsonrpc2"
	"go.lsp.dev/protocol"
)

// Server-to-client methods that go.lsp.dev/protocol does not name.
const (
	methodLanguageStatus         = "language/status"
	methodLanguageProgressReport = "language/progressReport"
	methodLanguageActionable     = "language/actionableNotification"
	methodLanguageEvent          = "language/eventNotification"
	methodExecuteClientCommand   = "workspace/executeClientCommand"
	methodInlayHintRefresh       = "workspace/inlayHint/refresh"
	methodInlineValueRefresh     = "workspace/inlineValue/refresh"
	methodDiagnosticRefresh      = "workspace/diagnostic/refresh"
	serviceReadyStatus           = "ServiceReady"
	readyMarker                  = "Ready"
)

// statusReport is the payload of the JDTLS language/status notification.
type statusReport struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// callbackSink answers every server-initiated request so the server never
// blocks on the client, and closes the ready latch on the first status
// notification that reports the service as ready.
type callbackSink struct {
	folder protocol.WorkspaceFolder

	readyOnce sync.Once
	ready     chan struct{}

	mu     sync.Mutex
	status string
}

func newCallbackSink(folder protocol.WorkspaceFolder) *callbackSink {
	return &callbackSink{
		folder: folder,
		ready:  make(chan struct{}),
	}
}

// handler returns the jsonrpc2 handler for inbound requests and notifications.
func (c *callbackSink) handler() jsonrpc2.Handler {
	return jsonrpc2.HandlerWithError(c.handle).SuppressErrClosed()
}

// Ready is closed once the server reports it has finished indexing.
func (c *callbackSink) Ready() <-chan struct{} {
	return c.ready
}

// Status returns the last status message reported by the server.
func (c *callbackSink) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *callbackSink) handle(_ context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
	switch req.Method {
	// Notifications.
	case methodLanguageStatus:
		var s statusReport
		if !decodeParams(req, &s) {
			return nil, nil
		}
		c.onStatus(s)
		return nil, nil

	case protocol.MethodWindowLogMessage:
		var p protocol.LogMessageParams
		if decodeParams(req, &p) {
			log.WithLevel(messageLevel(p.Type)).Str("source", "jdtls").Msg(p.Message)
		}
		return nil, nil

	case protocol.MethodWindowShowMessage:
		var p protocol.ShowMessageParams
		if decodeParams(req, &p) {
			log.WithLevel(messageLevel(p.Type)).Str("source", "jdtls").Msg(p.Message)
		}
		return nil, nil

	case protocol.MethodTextDocumentPublishDiagnostics:
		var p protocol.PublishDiagnosticsParams
		if decodeParams(req, &p) {
			log.Debug().Str("uri", string(p.URI)).Int("count", len(p.Diagnostics)).Msg("lsp: diagnostics")
		}
		return nil, nil

	case protocol.MethodProgress, methodLanguageProgressReport:
		log.Trace().Str("method", req.Method).RawJSON("params", rawParams(req)).Msg("lsp: progress")
		return nil, nil

	case protocol.MethodTelemetryEvent, methodLanguageActionable, methodLanguageEvent:
		log.Debug().Str("method", req.Method).RawJSON("params", rawParams(req)).Msg("lsp: notification")
		return nil, nil

	// Requests.
	case protocol.MethodClientRegisterCapability:
		var p protocol.RegistrationParams
		if decodeParams(req, &p) {
			for _, r := range p.Registrations {
				log.Debug().Str("id", r.ID).Str("method", r.Method).Msg("lsp: capability registered")
			}
		}
		return nil, nil

	case protocol.MethodClientUnregisterCapability:
		return nil, nil

	case protocol.MethodWorkspaceWorkspaceFolders:
		return []protocol.WorkspaceFolder{c.folder}, nil

	case protocol.MethodWorkspaceConfiguration:
		var p protocol.ConfigurationParams
		decodeParams(req, &p)
		return make([]any, len(p.Items)), nil

	case protocol.MethodWorkspaceApplyEdit:
		log.Warn().Msg("lsp: declined workspace edit")
		return protocol.ApplyWorkspaceEditResponse{Applied: false}, nil

	case protocol.MethodWindowShowMessageRequest:
		var p protocol.ShowMessageRequestParams
		if decodeParams(req, &p) {
			log.WithLevel(messageLevel(p.Type)).Str("source", "jdtls").Msg(p.Message)
		}
		return nil, nil

	case protocol.MethodShowDocument:
		return protocol.ShowDocumentResult{Success: false}, nil

	case protocol.MethodWorkDoneProgressCreate,
		protocol.MethodCodeLensRefresh,
		protocol.MethodSemanticTokensRefresh,
		methodInlayHintRefresh,
		methodInlineValueRefresh,
		methodDiagnosticRefresh,
		methodExecuteClientCommand:
		return nil, nil
	}

	if req.Notif {
		log.Debug().Str("method", req.Method).Msg("lsp: unhandled notification")
		return nil, nil
	}
	log.Warn().Str("method", req.Method).Msg("lsp: unsupported server request")
	return nil, &jsonrpc2.Error{
		Code:    jsonrpc2.CodeMethodNotFound,
		Message: "method not supported: " + req.Method,
	}
}

func (c *callbackSink) onStatus(s statusReport) {
	c.mu.Lock()
	c.status = s.Message
	c.mu.Unlock()

	log.Info().Str("type", s.Type).Str("message", s.Message).Msg("lsp: server status")

	if s.Type == serviceReadyStatus || strings.Contains(s.Message, readyMarker) {
		c.readyOnce.Do(func() {
			log.Info().Msg("lsp: server ready")
			close(c.ready)
		})
	}
}

// decodeParams unmarshals req.Params into v, logging on failure.
func decodeParams(req *jsonrpc2.Request, v any) bool {
	if req.Params == nil {
		return false
	}
	if err := json.Unmarshal(*req.Params, v); err != nil {
		log.Error().Err(err).Str("method", req.Method).Msg("lsp: unmarshal params")
		return false
	}
	return true
}

func rawParams(req *jsonrpc2.Request) []byte {
	if req.Params == nil {
		return []byte("null")
	}
	return *req.Params
}

func messageLevel(t protocol.MessageType) zerolog.Level {
	switch t {
	case protocol.MessageTypeError:
		return zerolog.ErrorLevel
	case protocol.MessageTypeWarning:
		return zerolog.WarnLevel
	case protocol.MessageTypeInfo:
		return zerolog.InfoLevel
	default:
		return zerolog.DebugLevel
	}
}

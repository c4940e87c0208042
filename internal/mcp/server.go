// Package mcp exposes the Java query tools over the Model Context Protocol.
package mcp

import (
	"context"
	"errors"
	"io"
	stdlog "log"
	"strings"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"

	"github.com/xonecas/javalsp/internal/constants"
	"github.com/xonecas/javalsp/internal/mcptools"
)

const instructions = `Java code intelligence backed by the Eclipse JDT language server.
Lines and characters are 1-based. Relative file paths resolve against the workspace root.
Every tool returns a JSON object; failures return {"error": "..."}.`

// Server is the MCP front end of the bridge.
type Server struct {
	mcp *mcpserver.MCPServer
}

// NewServer registers the query tools backed by q.
func NewServer(q mcptools.Querier) *Server {
	s := mcpserver.NewMCPServer(constants.ServerName, constants.Version,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithInstructions(instructions),
		mcpserver.WithRecovery(),
		mcpserver.WithToolHandlerMiddleware(logCalls),
	)
	s.AddTools(mcptools.All(q)...)
	return &Server{mcp: s}
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcp
}

// ServeStdio serves newline-delimited JSON-RPC on in/out until in reaches
// EOF or ctx is canceled. Cancellation is not reported as an error.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := mcpserver.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(stdlog.New(errorWriter{}, "", 0))

	log.Info().Int("tools", len(s.mcp.ListTools())).Msg("mcp: serving on stdio")
	err := stdio.Listen(ctx, in, out)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func logCalls(next mcpserver.ToolHandlerFunc) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		start := time.Now()
		res, err := next(ctx, req)
		ev := log.Debug()
		if err != nil || (res != nil && res.IsError) {
			ev = log.Warn().Err(err)
		}
		ev.Str("tool", req.Params.Name).Dur("elapsed", time.Since(start)).Msg("mcp: tool call")
		return res, err
	}
}

// errorWriter routes the stdio transport's log lines into zerolog.
type errorWriter struct{}

func (errorWriter) Write(p []byte) (int, error) {
	log.Error().Str("source", "mcp-stdio").Msg(strings.TrimSpace(string(p)))
	return len(p), nil
}

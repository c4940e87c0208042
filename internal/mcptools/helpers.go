// Package mcptools defines the bridge's MCP tools and their handlers.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/xonecas/javalsp/internal/query"
)

var (
	toolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "javalsp_tool_calls_total",
		Help: "MCP tool calls by tool and outcome.",
	}, []string{"tool", "outcome"})

	toolDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "javalsp_tool_call_duration_seconds",
		Help:    "MCP tool call latency.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	}, []string{"tool"})
)

// Querier answers the five Java queries. *query.Composer implements it.
type Querier interface {
	FindSymbols(ctx context.Context, q string) query.Result
	FindReferences(ctx context.Context, file string, line, character int) query.Result
	FindDefinition(ctx context.Context, file string, line, character int) query.Result
	DocumentSymbols(ctx context.Context, file string) query.Result
	FindInterfacesWithMethod(ctx context.Context, methodName string) query.Result
}

// All returns every tool bound to q, in registration order.
func All(q Querier) []mcpserver.ServerTool {
	return []mcpserver.ServerTool{
		{Tool: NewFindSymbolsTool(), Handler: MakeFindSymbolsHandler(q)},
		{Tool: NewFindReferencesTool(), Handler: MakeFindReferencesHandler(q)},
		{Tool: NewFindDefinitionTool(), Handler: MakeFindDefinitionHandler(q)},
		{Tool: NewDocumentSymbolsTool(), Handler: MakeDocumentSymbolsHandler(q)},
		{Tool: NewFindInterfacesWithMethodTool(), Handler: MakeFindInterfacesWithMethodHandler(q)},
	}
}

// toolResult renders r as pretty-printed JSON text. Failed results are
// flagged as tool errors but keep the same {"error": ...} body.
func toolResult(tool string, start time.Time, r query.Result) (*mcplib.CallToolResult, error) {
	toolDuration.WithLabelValues(tool).Observe(time.Since(start).Seconds())
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		toolCalls.WithLabelValues(tool, "error").Inc()
		return toolError(tool, "encode result: %v", err), nil
	}
	res := mcplib.NewToolResultText(string(data))
	if r.Err() != "" {
		toolCalls.WithLabelValues(tool, "error").Inc()
		res.IsError = true
		return res, nil
	}
	toolCalls.WithLabelValues(tool, "ok").Inc()
	return res, nil
}

// toolError returns an {"error": ...} tool result for problems caught
// before the query runs, such as missing or out-of-range arguments.
func toolError(tool, format string, args ...any) *mcplib.CallToolResult {
	toolCalls.WithLabelValues(tool, "invalid").Inc()
	data, _ := json.MarshalIndent(map[string]string{"error": fmt.Sprintf(format, args...)}, "", "  ")
	return mcplib.NewToolResultError(string(data))
}

// position reads the required 1-based file, line and character arguments.
func position(req mcplib.CallToolRequest) (file string, line, character int, err error) {
	if file, err = req.RequireString("file"); err != nil {
		return "", 0, 0, err
	}
	if line, err = req.RequireInt("line"); err != nil {
		return "", 0, 0, err
	}
	if character, err = req.RequireInt("character"); err != nil {
		return "", 0, 0, err
	}
	if line < 1 || character < 1 {
		return "", 0, 0, fmt.Errorf("line and character are 1-based; got line %d, character %d", line, character)
	}
	return file, line, character, nil
}

package mcptools

import (
	"context"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

const (
	findSymbolsName              = "find_symbols"
	findReferencesName           = "find_references"
	findDefinitionName           = "find_definition"
	documentSymbolsName          = "document_symbols"
	findInterfacesWithMethodName = "find_interfaces_with_method"
)

func fileArg() mcplib.ToolOption {
	return mcplib.WithString("file",
		mcplib.Required(),
		mcplib.Description("Path to the Java file"),
	)
}

func positionArgs() []mcplib.ToolOption {
	return []mcplib.ToolOption{
		fileArg(),
		mcplib.WithNumber("line",
			mcplib.Required(),
			mcplib.Min(1),
			mcplib.Description("Line number (1-based)"),
		),
		mcplib.WithNumber("character",
			mcplib.Required(),
			mcplib.Min(1),
			mcplib.Description("Character/column position (1-based)"),
		),
	}
}

// NewFindSymbolsTool creates the find_symbols tool definition.
func NewFindSymbolsTool() mcplib.Tool {
	return mcplib.NewTool(findSymbolsName,
		mcplib.WithDescription("Search for Java symbols (classes, methods, fields) by name"),
		mcplib.WithReadOnlyHintAnnotation(true),
		mcplib.WithString("query",
			mcplib.Required(),
			mcplib.Description("The symbol name or pattern to search for"),
		),
	)
}

// MakeFindSymbolsHandler creates a handler that searches workspace and
// document symbols.
func MakeFindSymbolsHandler(q Querier) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		start := time.Now()
		text, err := req.RequireString("query")
		if err != nil {
			return toolError(findSymbolsName, "%v", err), nil
		}
		return toolResult(findSymbolsName, start, q.FindSymbols(ctx, text))
	}
}

// NewFindReferencesTool creates the find_references tool definition.
func NewFindReferencesTool() mcplib.Tool {
	opts := append([]mcplib.ToolOption{
		mcplib.WithDescription("Find all references to a symbol at a given file location"),
		mcplib.WithReadOnlyHintAnnotation(true),
	}, positionArgs()...)
	return mcplib.NewTool(findReferencesName, opts...)
}

// MakeFindReferencesHandler creates a handler that lists references to the
// symbol at a position.
func MakeFindReferencesHandler(q Querier) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		start := time.Now()
		file, line, character, err := position(req)
		if err != nil {
			return toolError(findReferencesName, "%v", err), nil
		}
		return toolResult(findReferencesName, start, q.FindReferences(ctx, file, line, character))
	}
}

// NewFindDefinitionTool creates the find_definition tool definition.
func NewFindDefinitionTool() mcplib.Tool {
	opts := append([]mcplib.ToolOption{
		mcplib.WithDescription("Go to the definition of a symbol at a given file location"),
		mcplib.WithReadOnlyHintAnnotation(true),
	}, positionArgs()...)
	return mcplib.NewTool(findDefinitionName, opts...)
}

// MakeFindDefinitionHandler creates a handler that locates the definition of
// the symbol at a position.
func MakeFindDefinitionHandler(q Querier) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		start := time.Now()
		file, line, character, err := position(req)
		if err != nil {
			return toolError(findDefinitionName, "%v", err), nil
		}
		return toolResult(findDefinitionName, start, q.FindDefinition(ctx, file, line, character))
	}
}

// NewDocumentSymbolsTool creates the document_symbols tool definition.
func NewDocumentSymbolsTool() mcplib.Tool {
	return mcplib.NewTool(documentSymbolsName,
		mcplib.WithDescription("Get all symbols (classes, methods, fields) defined in a Java file"),
		mcplib.WithReadOnlyHintAnnotation(true),
		fileArg(),
	)
}

// MakeDocumentSymbolsHandler creates a handler that outlines one file.
func MakeDocumentSymbolsHandler(q Querier) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		start := time.Now()
		file, err := req.RequireString("file")
		if err != nil {
			return toolError(documentSymbolsName, "%v", err), nil
		}
		return toolResult(documentSymbolsName, start, q.DocumentSymbols(ctx, file))
	}
}

// NewFindInterfacesWithMethodTool creates the find_interfaces_with_method
// tool definition.
func NewFindInterfacesWithMethodTool() mcplib.Tool {
	return mcplib.NewTool(findInterfacesWithMethodName,
		mcplib.WithDescription("Find all interfaces that contain a method with the given name"),
		mcplib.WithReadOnlyHintAnnotation(true),
		mcplib.WithString("method_name",
			mcplib.Required(),
			mcplib.Description("The method name to search for"),
		),
	)
}

// MakeFindInterfacesWithMethodHandler creates a handler that finds methods
// by name along with their enclosing type.
func MakeFindInterfacesWithMethodHandler(q Querier) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		start := time.Now()
		name, err := req.RequireString("method_name")
		if err != nil {
			return toolError(findInterfacesWithMethodName, "%v", err), nil
		}
		return toolResult(findInterfacesWithMethodName, start, q.FindInterfacesWithMethod(ctx, name))
	}
}

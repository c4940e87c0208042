package lsp

import (
	"bytes"
	"encoding/json"
	"fmt"

	"go.lsp.dev/protocol"
)

// The servers answer workspace/symbol, textDocument/definition and
// textDocument/documentSymbol with one of several shapes depending on the
// negotiated capabilities. Each union below decodes any of them and
// normalizes to a single go.lsp.dev/protocol type before leaving the package.

// workspaceSymbolResult is SymbolInformation[] or WorkspaceSymbol[].
// A WorkspaceSymbol may carry a location without a range ({uri} only) when
// the server defers resolution; such entries are dropped.
type workspaceSymbolResult struct {
	Symbols []protocol.SymbolInformation
}

type workspaceSymbolEntry struct {
	Name          string               `json:"name"`
	Kind          protocol.SymbolKind  `json:"kind"`
	Tags          []protocol.SymbolTag `json:"tags,omitempty"`
	Deprecated    bool                 `json:"deprecated,omitempty"`
	ContainerName string               `json:"containerName,omitempty"`
	Location      *deferredLocation    `json:"location"`
}

type deferredLocation struct {
	URI   protocol.DocumentURI `json:"uri"`
	Range *protocol.Range      `json:"range,omitempty"`
}

func (r *workspaceSymbolResult) UnmarshalJSON(data []byte) error {
	r.Symbols = nil
	if isNull(data) {
		return nil
	}
	var entries []workspaceSymbolEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("workspace symbols: %w", err)
	}
	r.Symbols = make([]protocol.SymbolInformation, 0, len(entries))
	for _, e := range entries {
		if e.Location == nil || e.Location.URI == "" || e.Location.Range == nil {
			continue
		}
		r.Symbols = append(r.Symbols, protocol.SymbolInformation{
			Name:          e.Name,
			Kind:          e.Kind,
			Tags:          e.Tags,
			Deprecated:    e.Deprecated,
			ContainerName: e.ContainerName,
			Location: protocol.Location{
				URI:   e.Location.URI,
				Range: *e.Location.Range,
			},
		})
	}
	return nil
}

// locationResult is Location, Location[], LocationLink[] or null.
// A link's target URI and range stand in for the location.
type locationResult struct {
	Locations []protocol.Location
}

type locationOrLink struct {
	URI         protocol.DocumentURI `json:"uri"`
	Range       protocol.Range       `json:"range"`
	TargetURI   protocol.DocumentURI `json:"targetUri"`
	TargetRange protocol.Range       `json:"targetRange"`
}

func (l locationOrLink) location() protocol.Location {
	if l.TargetURI != "" {
		return protocol.Location{URI: l.TargetURI, Range: l.TargetRange}
	}
	return protocol.Location{URI: l.URI, Range: l.Range}
}

func (r *locationResult) UnmarshalJSON(data []byte) error {
	r.Locations = nil
	data = bytes.TrimSpace(data)
	if isNull(data) {
		return nil
	}
	if data[0] == '{' {
		var single locationOrLink
		if err := json.Unmarshal(data, &single); err != nil {
			return fmt.Errorf("location: %w", err)
		}
		r.Locations = []protocol.Location{single.location()}
		return nil
	}
	var many []locationOrLink
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("locations: %w", err)
	}
	r.Locations = make([]protocol.Location, 0, len(many))
	for _, l := range many {
		r.Locations = append(r.Locations, l.location())
	}
	return nil
}

// documentSymbolResult is DocumentSymbol[] or SymbolInformation[].
// Flat entries become childless nodes whose range and selection range are
// both the entry's location range.
type documentSymbolResult struct {
	Symbols []protocol.DocumentSymbol
}

func (r *documentSymbolResult) UnmarshalJSON(data []byte) error {
	r.Symbols = nil
	if isNull(data) {
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("document symbols: %w", err)
	}
	if len(raw) == 0 {
		return nil
	}

	var probe struct {
		Location *json.RawMessage `json:"location"`
	}
	if err := json.Unmarshal(raw[0], &probe); err != nil {
		return fmt.Errorf("document symbols: %w", err)
	}

	if probe.Location == nil {
		return json.Unmarshal(data, &r.Symbols)
	}

	var flat []protocol.SymbolInformation
	if err := json.Unmarshal(data, &flat); err != nil {
		return fmt.Errorf("document symbols: %w", err)
	}
	r.Symbols = make([]protocol.DocumentSymbol, 0, len(flat))
	for _, si := range flat {
		r.Symbols = append(r.Symbols, protocol.DocumentSymbol{
			Name:           si.Name,
			Kind:           si.Kind,
			Tags:           si.Tags,
			Deprecated:     si.Deprecated,
			Range:          si.Location.Range,
			SelectionRange: si.Location.Range,
		})
	}
	return nil
}

func isNull(data []byte) bool {
	data = bytes.TrimSpace(data)
	return len(data) == 0 || bytes.Equal(data, []byte("null"))
}

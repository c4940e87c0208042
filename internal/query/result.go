package query

import (
	"encoding/json"
	"errors"
)

// SymbolRecord is a symbol with 1-based coordinates and a filesystem path.
type SymbolRecord struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Container string `json:"container,omitempty"`
	File      string `json:"file"`
	Line      int    `json:"line"`
	Column    int    `json:"column"`
}

// MethodRecord is a method match. Container is the nearest enclosing class
// or interface and is always present, empty for a top-level method.
type MethodRecord struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Container string `json:"container"`
	File      string `json:"file"`
	Line      int    `json:"line"`
	Column    int    `json:"column"`
}

// LocationRecord is a 1-based file span.
type LocationRecord struct {
	File        string `json:"file"`
	StartLine   int    `json:"startLine"`
	StartColumn int    `json:"startColumn"`
	EndLine     int    `json:"endLine"`
	EndColumn   int    `json:"endColumn"`
}

// DocumentSymbolRecord is one node of a file's symbol outline.
type DocumentSymbolRecord struct {
	Name      string                 `json:"name"`
	Kind      string                 `json:"kind"`
	Detail    string                 `json:"detail,omitempty"`
	StartLine int                    `json:"startLine"`
	EndLine   int                    `json:"endLine"`
	Children  []DocumentSymbolRecord `json:"children,omitempty"`
}

// SymbolsResult is the payload of FindSymbols.
type SymbolsResult struct {
	Query   string         `json:"query"`
	Count   int            `json:"count"`
	Symbols []SymbolRecord `json:"symbols"`
}

// ReferencesResult is the payload of FindReferences. File, Line and
// Character echo the caller's input.
type ReferencesResult struct {
	File       string           `json:"file"`
	Line       int              `json:"line"`
	Character  int              `json:"character"`
	Count      int              `json:"count"`
	References []LocationRecord `json:"references"`
}

// DefinitionResult is the payload of FindDefinition.
type DefinitionResult struct {
	File        string           `json:"file"`
	Line        int              `json:"line"`
	Character   int              `json:"character"`
	Count       int              `json:"count"`
	Definitions []LocationRecord `json:"definitions"`
}

// DocumentSymbolsResult is the payload of DocumentSymbols.
type DocumentSymbolsResult struct {
	File    string                 `json:"file"`
	Count   int                    `json:"count"`
	Symbols []DocumentSymbolRecord `json:"symbols"`
}

// MethodsResult is the payload of FindInterfacesWithMethod.
type MethodsResult struct {
	MethodName string         `json:"methodName"`
	Count      int            `json:"count"`
	Methods    []MethodRecord `json:"methods"`
}

// Result holds either a payload or an error message, never both. It
// marshals to the payload, or to {"error": message}.
type Result struct {
	payload any
	errMsg  string
}

func ok(payload any) Result {
	return Result{payload: payload}
}

func failed(err error) Result {
	if err == nil {
		err = errors.New("unknown error")
	}
	msg := err.Error()
	if msg == "" {
		msg = "unknown error"
	}
	return Result{errMsg: msg}
}

// Err returns the error message, or "" on success.
func (r Result) Err() string {
	return r.errMsg
}

// Payload returns the success payload, or nil on failure.
func (r Result) Payload() any {
	return r.payload
}

// MarshalJSON implements json.Marshaler.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.errMsg != "" {
		return json.Marshal(struct {
			Error string `json:"error"`
		}{r.errMsg})
	}
	return json.Marshal(r.payload)
}

// Package mcp contains the wire data types and method names of the tool
// protocol served by registry-mcp. It mirrors the JSON representation
// exchanged over the stdio channel while keeping the surface Go-friendly
// (exported structs with json tags, string constants for method names).
//
// The package is intentionally free of transport logic: the stdio package
// implements framing and dispatch, and the mcpservice package builds tool
// descriptors and results from these concrete types.
//
// # Method Names
//
// The four request methods are enumerated as Method constants
// (InitializeMethod, PingMethod, ListToolsMethod, CallToolMethod). Using the
// constants avoids typographical mistakes and keeps a single point of truth.
//
// # Tool results
//
// Every successful call_tool response carries exactly one content block of
// type "json" whose data member is the handler's result value:
//
//	res := mcp.JSONResult(map[string]any{"ok": true})
//	// {"content":[{"type":"json","data":{"ok":true}}]}
//
// # Arguments
//
// CallToolRequest accepts arguments either as a JSON object or as a string
// holding JSON-encoded arguments; both decode to the same RawMessage.
package mcp

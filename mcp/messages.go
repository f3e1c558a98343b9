package mcp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Method is a protocol method identifier used in JSON-RPC messages.
type Method string

// Method names understood by the dispatcher.
const (
	InitializeMethod Method = "initialize"
	PingMethod       Method = "ping"
	ListToolsMethod  Method = "list_tools"
	CallToolMethod   Method = "call_tool"
)

// InitializeResult is returned from initialize.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion,omitempty"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      ImplementationInfo `json:"serverInfo"`
}

// PingResult is returned from ping.
type PingResult struct {
	OK bool `json:"ok"`
}

// ListToolsResult is returned from list_tools.
type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

// CallToolRequest is the params object of call_tool.
type CallToolRequest struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// UnmarshalJSON decodes call_tool params. A string-valued arguments member is
// treated as JSON-encoded arguments and parsed before dispatch.
func (r *CallToolRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name      *string         `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Name == nil || *raw.Name == "" {
		return errors.New("missing tool name")
	}
	args, err := normalizeArguments(raw.Arguments)
	if err != nil {
		return err
	}
	r.Name = *raw.Name
	r.Arguments = args
	return nil
}

func normalizeArguments(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] != '"' {
		return trimmed, nil
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return nil, err
	}
	inner := bytes.TrimSpace([]byte(s))
	if len(inner) == 0 {
		return nil, nil
	}
	if !json.Valid(inner) {
		return nil, fmt.Errorf("arguments string is not valid JSON")
	}
	return inner, nil
}

// CallToolResult is the result of call_tool.
type CallToolResult struct {
	Content []ContentBlock `json:"content"`
}

// JSONResult wraps a handler result in the single-block result envelope.
func JSONResult(data any) *CallToolResult {
	return &CallToolResult{Content: []ContentBlock{{Type: ContentTypeJSON, Data: data}}}
}

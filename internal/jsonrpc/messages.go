package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ProtocolVersion is the supported JSON-RPC protocol version.
const ProtocolVersion = "2.0"

// Message is the raw JSON representation of a JSON-RPC message.
type Message []byte

// Request represents a JSON-RPC request (with an ID) or notification (without ID).
type Request struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Method         string          `json:"method"`
	Params         json.RawMessage `json:"params,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

// IsNotification reports whether the request carries no id.
func (r *Request) IsNotification() bool { return r.ID.IsNil() }

// Response represents a JSON-RPC response. The id is always serialized; it is
// null when the request could not be parsed or carried no id.
type Response struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	ID             *RequestID      `json:"id"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *Error          `json:"error,omitempty"`
}

// NewResultResponse builds a successful JSON-RPC response object.
func NewResultResponse(id *RequestID, result any) (*Response, error) {
	resultBytes, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	return &Response{
		JSONRPCVersion: ProtocolVersion,
		Result:         resultBytes,
		ID:             id,
	}, nil
}

// NewErrorResponse builds an error JSON-RPC response with the given code.
func NewErrorResponse(id *RequestID, code ErrorCode, message string, data any) *Response {
	return &Response{
		JSONRPCVersion: ProtocolVersion,
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
		ID: id,
	}
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Data    any       `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// DecodeError is returned by ParseRequest. Code tells the caller which
// protocol error to answer with and ID carries whatever id could be
// recovered from the malformed message (nil when none).
type DecodeError struct {
	Code ErrorCode
	ID   *RequestID
	Err  error
}

func (e *DecodeError) Error() string { return e.Err.Error() }
func (e *DecodeError) Unwrap() error { return e.Err }

// ParseRequest decodes one framed message into a Request. Input that is not
// JSON at all yields ErrorCodeParseError; well-formed JSON that is not a
// request object yields ErrorCodeInvalidRequest.
func ParseRequest(data []byte) (*Request, error) {
	data = bytes.TrimSpace(data)
	if !json.Valid(data) {
		return nil, &DecodeError{Code: ErrorCodeParseError, Err: errors.New("parse error")}
	}

	var raw struct {
		JSONRPCVersion *string         `json:"jsonrpc"`
		Method         json.RawMessage `json:"method"`
		Params         json.RawMessage `json:"params"`
		ID             json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &DecodeError{Code: ErrorCodeInvalidRequest, Err: fmt.Errorf("invalid request: %w", err)}
	}

	var id *RequestID
	if len(raw.ID) > 0 {
		id = &RequestID{}
		if err := id.UnmarshalJSON(raw.ID); err != nil {
			return nil, &DecodeError{Code: ErrorCodeInvalidRequest, Err: err}
		}
		if id.IsNil() {
			id = nil
		}
	}

	// The version member is optional on input; if present it must match.
	if raw.JSONRPCVersion != nil && *raw.JSONRPCVersion != ProtocolVersion {
		return nil, &DecodeError{Code: ErrorCodeInvalidRequest, ID: id, Err: fmt.Errorf("invalid JSON-RPC version: expected %q, got %q", ProtocolVersion, *raw.JSONRPCVersion)}
	}

	var method string
	if len(raw.Method) > 0 {
		if err := json.Unmarshal(raw.Method, &method); err != nil {
			return nil, &DecodeError{Code: ErrorCodeInvalidRequest, ID: id, Err: errors.New("method must be a string")}
		}
	}
	if method == "" {
		return nil, &DecodeError{Code: ErrorCodeInvalidRequest, ID: id, Err: errors.New("missing method")}
	}

	params := raw.Params
	if bytes.Equal(bytes.TrimSpace(params), []byte("null")) {
		params = nil
	}

	return &Request{
		JSONRPCVersion: ProtocolVersion,
		Method:         method,
		Params:         params,
		ID:             id,
	}, nil
}

package jsonrpc

// ErrorCode is a JSON-RPC 2.0 error code.
type ErrorCode int

// Reserved codes plus the one server-defined code used for tool failures.
const (
	ErrorCodeParseError     ErrorCode = -32700 // line is not valid JSON
	ErrorCodeInvalidRequest ErrorCode = -32600 // e.g. call_tool without an id
	ErrorCodeMethodNotFound ErrorCode = -32601 // unknown method or tool
	ErrorCodeInvalidParams  ErrorCode = -32602
	ErrorCodeInternalError  ErrorCode = -32603 // result could not be encoded
	ErrorCodeServerError    ErrorCode = -32000 // handler returned an error or panicked
)

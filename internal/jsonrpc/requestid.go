package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RequestID is a JSON-RPC id: a string, a number or absent. Numbers keep
// their literal text so a response echoes exactly what the peer sent (1.0
// stays 1.0, large integers keep full precision).
type RequestID struct {
	value any // string, json.Number or nil
}

// NewRequestID wraps a string or any Go numeric value. Other types yield a
// nil id.
func NewRequestID(value any) *RequestID {
	switch v := value.(type) {
	case string, json.Number:
		return &RequestID{value: v}
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return &RequestID{value: json.Number(fmt.Sprint(v))}
	}
	return &RequestID{}
}

// String is the id's text, used for log attributes. Nil ids are "".
func (id *RequestID) String() string {
	if id.IsNil() {
		return ""
	}
	if n, ok := id.value.(json.Number); ok {
		return n.String()
	}
	return id.value.(string)
}

// Value returns the string or json.Number, or nil.
func (id *RequestID) Value() any {
	if id == nil {
		return nil
	}
	return id.value
}

// IsNil reports whether the id is absent or null. A nil receiver is nil.
func (id *RequestID) IsNil() bool {
	return id == nil || id.value == nil
}

// Equal reports whether two ids carry the same JSON value. "1" and 1 differ.
func (id *RequestID) Equal(other *RequestID) bool {
	if id.IsNil() || other.IsNil() {
		return id.IsNil() && other.IsNil()
	}
	return id.value == other.value
}

func (id *RequestID) MarshalJSON() ([]byte, error) {
	if id.IsNil() {
		return []byte("null"), nil
	}
	return json.Marshal(id.value)
}

func (id *RequestID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		id.value = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("invalid id: %w", err)
	}
	switch v.(type) {
	case json.Number, string:
		id.value = v
		return nil
	}
	return fmt.Errorf("id must be a string or number, got %s", data)
}

package jsonrpc

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		wantCode ErrorCode
		wantID   string
		method   string
	}{
		{name: "numeric id", in: `{"jsonrpc":"2.0","id":7,"method":"ping"}`, wantID: "7", method: "ping"},
		{name: "string id", in: `{"jsonrpc":"2.0","id":"abc","method":"list_tools"}`, wantID: "abc", method: "list_tools"},
		{name: "version omitted", in: `{"id":1,"method":"ping"}`, wantID: "1", method: "ping"},
		{name: "notification", in: `{"jsonrpc":"2.0","method":"ping"}`, method: "ping"},
		{name: "null id is notification", in: `{"jsonrpc":"2.0","id":null,"method":"ping"}`, method: "ping"},
		{name: "garbage", in: `{not json`, wantCode: ErrorCodeParseError},
		{name: "array", in: `[1,2,3]`, wantCode: ErrorCodeInvalidRequest},
		{name: "missing method", in: `{"jsonrpc":"2.0","id":3}`, wantCode: ErrorCodeInvalidRequest, wantID: "3"},
		{name: "bad version", in: `{"jsonrpc":"1.0","id":4,"method":"ping"}`, wantCode: ErrorCodeInvalidRequest, wantID: "4"},
		{name: "object id", in: `{"jsonrpc":"2.0","id":{},"method":"ping"}`, wantCode: ErrorCodeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseRequest([]byte(tt.in))
			if tt.wantCode != 0 {
				var de *DecodeError
				if !errors.As(err, &de) {
					t.Fatalf("expected DecodeError, got %v", err)
				}
				if de.Code != tt.wantCode {
					t.Fatalf("code: want %d, got %d", tt.wantCode, de.Code)
				}
				if got := de.ID.String(); got != tt.wantID {
					t.Fatalf("recovered id: want %q, got %q", tt.wantID, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if req.Method != tt.method {
				t.Fatalf("method: want %q, got %q", tt.method, req.Method)
			}
			if got := req.ID.String(); got != tt.wantID {
				t.Fatalf("id: want %q, got %q", tt.wantID, got)
			}
			if tt.wantID == "" && !req.IsNotification() {
				t.Fatalf("expected notification")
			}
		})
	}
}

func TestResponseEchoesIDVerbatim(t *testing.T) {
	for _, raw := range []string{`7`, `"7"`, `12345678901234567890`, `1.5`} {
		req, err := ParseRequest([]byte(`{"jsonrpc":"2.0","id":` + raw + `,"method":"ping"}`))
		if err != nil {
			t.Fatalf("parse %s: %v", raw, err)
		}
		res, err := NewResultResponse(req.ID, map[string]bool{"ok": true})
		if err != nil {
			t.Fatal(err)
		}
		b, err := json.Marshal(res)
		if err != nil {
			t.Fatal(err)
		}
		var back struct {
			ID json.RawMessage `json:"id"`
		}
		if err := json.Unmarshal(b, &back); err != nil {
			t.Fatal(err)
		}
		if string(back.ID) != raw {
			t.Fatalf("id not echoed: want %s, got %s", raw, back.ID)
		}
	}
}

func TestErrorResponseNullID(t *testing.T) {
	b, err := json.Marshal(NewErrorResponse(nil, ErrorCodeParseError, "parse error", nil))
	if err != nil {
		t.Fatal(err)
	}
	want := `{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"parse error"}}`
	if string(b) != want {
		t.Fatalf("want %s, got %s", want, b)
	}
}

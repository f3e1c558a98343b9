package mcp

import (
	"encoding/json"
	"testing"
)

func TestCallToolRequest_Arguments(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "object", in: `{"name":"get_entity","arguments":{"orgnr":"123456789"}}`, want: `{"orgnr":"123456789"}`},
		{name: "encoded string", in: `{"name":"get_entity","arguments":"{\"orgnr\":\"123456789\"}"}`, want: `{"orgnr":"123456789"}`},
		{name: "absent", in: `{"name":"index_docs_semantic"}`, want: ``},
		{name: "null", in: `{"name":"index_docs_semantic","arguments":null}`, want: ``},
		{name: "empty string", in: `{"name":"index_docs_semantic","arguments":""}`, want: ``},
		{name: "bad encoded string", in: `{"name":"x","arguments":"{nope"}`, wantErr: true},
		{name: "missing name", in: `{"arguments":{}}`, wantErr: true},
		{name: "name not string", in: `{"name":5}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req CallToolRequest
			err := json.Unmarshal([]byte(tt.in), &req)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(req.Arguments) != tt.want {
				t.Fatalf("arguments: want %q, got %q", tt.want, req.Arguments)
			}
		})
	}
}

func TestJSONResultShape(t *testing.T) {
	b, err := json.Marshal(JSONResult(map[string]int{"n": 1}))
	if err != nil {
		t.Fatal(err)
	}
	if want := `{"content":[{"type":"json","data":{"n":1}}]}`; string(b) != want {
		t.Fatalf("want %s, got %s", want, b)
	}
}

func TestInitializeResultShape(t *testing.T) {
	b, err := json.Marshal(InitializeResult{
		Capabilities: ServerCapabilities{Tools: &struct{}{}},
		ServerInfo:   ImplementationInfo{Name: "registry-mcp", Version: "1.0.0"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if want := `{"capabilities":{"tools":{}},"serverInfo":{"name":"registry-mcp","version":"1.0.0"}}`; string(b) != want {
		t.Fatalf("want %s, got %s", want, b)
	}
}

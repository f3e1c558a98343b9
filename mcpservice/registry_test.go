package mcpservice

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

type echoArgs struct {
	Message string   `json:"message" jsonschema:"required" jsonschema_description:"Text to echo back"`
	Count   int      `json:"count,omitempty" jsonschema:"minimum=1,maximum=10,default=3"`
	Tags    []string `json:"tags,omitempty"`
}

func newEcho() Tool {
	return NewTool("echo", func(ctx context.Context, a echoArgs) (any, error) {
		return map[string]any{"message": a.Message, "count": a.Count}, nil
	}, WithToolDescription("Echo a message"))
}

func TestNewToolReflectsSchema(t *testing.T) {
	desc := newEcho().Descriptor()
	if desc.Name != "echo" || desc.Description != "Echo a message" {
		t.Fatalf("unexpected descriptor: %+v", desc)
	}
	s := desc.InputSchema
	if s.Type != "object" {
		t.Fatalf("expected object schema, got %q", s.Type)
	}
	if len(s.Required) != 1 || s.Required[0] != "message" {
		t.Fatalf("expected required [message], got %v", s.Required)
	}
	msg, ok := s.Properties["message"]
	if !ok || msg.Type != "string" || msg.Description != "Text to echo back" {
		t.Fatalf("unexpected message property: %+v", msg)
	}
	count := s.Properties["count"]
	if count.Type != "integer" {
		t.Fatalf("expected integer count, got %q", count.Type)
	}
	if count.Minimum == nil || *count.Minimum != 1 || count.Maximum == nil || *count.Maximum != 10 {
		t.Fatalf("expected bounds 1..10, got %v..%v", count.Minimum, count.Maximum)
	}
	tags := s.Properties["tags"]
	if tags.Type != "array" || tags.Items == nil || tags.Items.Type != "string" {
		t.Fatalf("unexpected tags property: %+v", tags)
	}
	if s.AdditionalProperties {
		t.Fatalf("expected additionalProperties=false by default")
	}
}

func TestToolCallDecodesArguments(t *testing.T) {
	tool := newEcho()
	res, err := tool.Call(context.Background(), json.RawMessage(`{"message":"hi","count":2,"extra":true}`))
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	m := res.(map[string]any)
	if m["message"] != "hi" || m["count"] != 2 {
		t.Fatalf("unexpected result: %v", m)
	}

	// Absent arguments decode to the zero value.
	res, err = tool.Call(context.Background(), nil)
	if err != nil {
		t.Fatalf("call without args: %v", err)
	}
	if res.(map[string]any)["message"] != "" {
		t.Fatalf("expected zero message, got %v", res)
	}

	if _, err := tool.Call(context.Background(), json.RawMessage(`{"count":"many"}`)); err == nil {
		t.Fatalf("expected decode error for mistyped argument")
	}
}

func TestRegistry(t *testing.T) {
	other := NewTool("other", func(ctx context.Context, _ struct{}) (any, error) { return "ok", nil })
	reg, err := NewRegistry(newEcho(), other)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	list := reg.List()
	if len(list) != 2 || list[0].Name != "echo" || list[1].Name != "other" {
		t.Fatalf("unexpected listing: %+v", list)
	}
	if _, ok := reg.Lookup("echo"); !ok {
		t.Fatalf("expected echo to be registered")
	}
	res, err := reg.Call(context.Background(), "other", nil)
	if err != nil || res != "ok" {
		t.Fatalf("call other: %v %v", res, err)
	}
	if _, err := reg.Call(context.Background(), "missing", nil); !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("expected ErrToolNotFound, got %v", err)
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	if _, err := NewRegistry(newEcho(), newEcho()); err == nil {
		t.Fatalf("expected duplicate name error")
	}
}

// Package logctx carries per-message logging context. Records logged with a
// context that went through WithRPCMessage or WithToolCallData gain "rpc" and
// "tool" attribute groups.
package logctx

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	rpcKey ctxKey = iota
	toolKey
)

// RPCMessage identifies the JSON-RPC message being handled.
type RPCMessage struct {
	Method string
	ID     string
}

// ToolCallData identifies the tool being run by call_tool.
type ToolCallData struct {
	ToolName string
}

func WithRPCMessage(ctx context.Context, msg *RPCMessage) context.Context {
	return context.WithValue(ctx, rpcKey, msg)
}

func WithToolCallData(ctx context.Context, data *ToolCallData) context.Context {
	return context.WithValue(ctx, toolKey, data)
}

// Handler wraps another slog.Handler and adds the context groups.
type Handler struct {
	slog.Handler
}

func New(h slog.Handler) *Handler {
	return &Handler{Handler: h}
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	if msg, ok := ctx.Value(rpcKey).(*RPCMessage); ok && msg != nil {
		attrs := []any{slog.String("method", msg.Method)}
		if msg.ID != "" {
			attrs = append(attrs, slog.String("id", msg.ID))
		}
		r.AddAttrs(slog.Group("rpc", attrs...))
	}
	if td, ok := ctx.Value(toolKey).(*ToolCallData); ok && td != nil {
		r.AddAttrs(slog.Group("tool", slog.String("name", td.ToolName)))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return New(h.Handler.WithAttrs(attrs))
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return New(h.Handler.WithGroup(name))
}

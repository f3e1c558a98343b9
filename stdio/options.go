package stdio

import (
	"io"
	"log/slog"
	"time"

	"github.com/ggoodman/registry-mcp/mcp"
	"go.opentelemetry.io/otel/trace"
)

// Option customizes a Handler.
type Option func(*Handler)

// WithIO sets the reader and writer for the handler.
func WithIO(r io.Reader, w io.Writer) Option {
	return func(h *Handler) {
		if r != nil {
			h.r = r
		}
		if w != nil {
			h.w = w
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.l = l
		}
	}
}

// WithServerInfo sets the implementation info reported from initialize.
func WithServerInfo(info mcp.ImplementationInfo) Option {
	return func(h *Handler) { h.info = info }
}

// WithShutdownGrace bounds how long Serve waits for in-flight calls after
// the input reaches EOF. Zero cancels outstanding calls immediately.
func WithShutdownGrace(d time.Duration) Option {
	return func(h *Handler) {
		if d >= 0 {
			h.grace = d
		}
	}
}

// WithMaxConcurrentCalls limits the number of tool calls executing at once.
// Calls beyond the limit wait for a free slot. Zero means unbounded.
func WithMaxConcurrentCalls(n int) Option {
	return func(h *Handler) {
		if n >= 0 {
			h.maxCalls = n
		}
	}
}

// WithTracer overrides the tracer used for tool call spans.
func WithTracer(t trace.Tracer) Option {
	return func(h *Handler) {
		if t != nil {
			h.tracer = t
		}
	}
}

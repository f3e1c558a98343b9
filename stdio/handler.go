package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/ggoodman/registry-mcp/internal/jsonrpc"
	"github.com/ggoodman/registry-mcp/internal/logctx"
	"github.com/ggoodman/registry-mcp/mcp"
	"github.com/ggoodman/registry-mcp/mcpservice"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

const defaultShutdownGrace = 5 * time.Second

// Handler is a single-connection stdio transport that reads JSON-RPC messages
// from an io.Reader and writes responses to an io.Writer. By default, it uses
// os.Stdin and os.Stdout.
//
// The handler owns framing and dispatch only; tool semantics live behind the
// mcpservice.Registry it is constructed with.
type Handler struct {
	r        io.Reader
	w        io.Writer
	l        *slog.Logger
	reg      *mcpservice.Registry
	info     mcp.ImplementationInfo
	grace    time.Duration
	maxCalls int
	tracer   trace.Tracer

	sem *semaphore.Weighted

	writeMu sync.Mutex
	closed  bool

	calls sync.WaitGroup
}

// NewHandler constructs a stdio Handler with defaults and applies options.
func NewHandler(reg *mcpservice.Registry, opts ...Option) *Handler {
	h := &Handler{
		r:      os.Stdin,
		w:      os.Stdout,
		l:      slog.Default(),
		reg:    reg,
		info:   mcp.ImplementationInfo{Name: "registry-mcp", Version: "dev"},
		grace:  defaultShutdownGrace,
		tracer: otel.Tracer("github.com/ggoodman/registry-mcp/stdio"),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.maxCalls > 0 {
		h.sem = semaphore.NewWeighted(int64(h.maxCalls))
	}
	return h
}

type readResult struct {
	line []byte
	err  error
}

// Serve runs the stdio event loop until EOF on the reader or the context is
// canceled. It is safe to call at most once per Handler.
//
// On EOF, Serve stops reading, waits up to the shutdown grace period for
// in-flight tool calls to write their responses and then returns nil. Calls
// still running after the grace period are canceled and their responses are
// discarded. On context cancellation Serve cancels in-flight calls and
// returns the context error.
func (h *Handler) Serve(ctx context.Context) error {
	callCtx, cancelCalls := context.WithCancel(ctx)
	defer cancelCalls()

	lines := make(chan readResult)
	go h.readLoop(ctx, lines)

	h.l.InfoContext(ctx, "stdio.serve.start", slog.String("server", h.info.Name))

	for {
		select {
		case <-ctx.Done():
			h.close()
			return ctx.Err()
		case rr := <-lines:
			if rr.line != nil {
				h.handleLine(callCtx, rr.line)
			}
			if rr.err != nil {
				if !errors.Is(rr.err, io.EOF) {
					h.l.ErrorContext(ctx, "stdio.read.err", slog.String("err", rr.err.Error()))
				}
				h.drain(ctx, cancelCalls)
				return nil
			}
		}
	}
}

func (h *Handler) readLoop(ctx context.Context, out chan<- readResult) {
	br := bufio.NewReader(h.r)
	for {
		line, err := br.ReadBytes('\n')
		var rr readResult
		if len(line) > 0 {
			rr.line = line
		}
		rr.err = err
		if rr.line != nil || rr.err != nil {
			select {
			case out <- rr:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (h *Handler) drain(ctx context.Context, cancelCalls context.CancelFunc) {
	start := time.Now()
	done := make(chan struct{})
	go func() {
		h.calls.Wait()
		close(done)
	}()

	timer := time.NewTimer(h.grace)
	defer timer.Stop()

	select {
	case <-done:
		h.l.InfoContext(ctx, "stdio.serve.drained", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
	case <-timer.C:
		h.l.WarnContext(ctx, "stdio.serve.drain_timeout", slog.Duration("grace", h.grace))
		h.close()
		cancelCalls()
	case <-ctx.Done():
		h.close()
		cancelCalls()
	}
	h.close()
}

func (h *Handler) handleLine(ctx context.Context, line []byte) {
	if len(bytes.TrimSpace(line)) == 0 {
		return
	}

	req, err := jsonrpc.ParseRequest(line)
	if err != nil {
		var de *jsonrpc.DecodeError
		code := jsonrpc.ErrorCodeParseError
		var id *jsonrpc.RequestID
		if errors.As(err, &de) {
			code = de.Code
			id = de.ID
		}
		h.l.WarnContext(ctx, "stdio.decode.err", slog.Int("code", int(code)), slog.String("err", err.Error()))
		h.writeResponse(ctx, jsonrpc.NewErrorResponse(id, code, err.Error(), nil))
		return
	}

	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: req.Method, ID: req.ID.String()})

	switch mcp.Method(req.Method) {
	case mcp.InitializeMethod:
		h.reply(ctx, req, &mcp.InitializeResult{
			ProtocolVersion: mcp.LatestProtocolVersion,
			Capabilities:    mcp.ServerCapabilities{Tools: &struct{}{}},
			ServerInfo:      h.info,
		})
	case mcp.PingMethod:
		h.reply(ctx, req, &mcp.PingResult{OK: true})
	case mcp.ListToolsMethod:
		h.reply(ctx, req, &mcp.ListToolsResult{Tools: h.reg.List()})
	case mcp.CallToolMethod:
		h.handleCallTool(ctx, req)
	default:
		if req.IsNotification() {
			h.l.DebugContext(ctx, "stdio.notification.ignored")
			return
		}
		h.writeResponse(ctx, jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method), nil))
	}
}

// reply answers a request with a result. Notifications get no response.
func (h *Handler) reply(ctx context.Context, req *jsonrpc.Request, result any) {
	if req.IsNotification() {
		return
	}
	res, err := jsonrpc.NewResultResponse(req.ID, result)
	if err != nil {
		h.writeResponse(ctx, jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, err.Error(), nil))
		return
	}
	h.writeResponse(ctx, res)
}

func (h *Handler) handleCallTool(ctx context.Context, req *jsonrpc.Request) {
	if req.IsNotification() {
		h.writeResponse(ctx, jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeInvalidRequest, "call_tool requires an id", nil))
		return
	}

	var params mcp.CallToolRequest
	if len(req.Params) == 0 {
		h.writeResponse(ctx, jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "missing params", nil))
		return
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		h.writeResponse(ctx, jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, fmt.Sprintf("invalid params: %v", err), nil))
		return
	}

	tool, ok := h.reg.Lookup(params.Name)
	if !ok {
		h.writeResponse(ctx, jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, fmt.Sprintf("unknown tool: %s", params.Name), nil))
		return
	}

	ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolName: params.Name})

	h.calls.Add(1)
	go func() {
		defer h.calls.Done()
		h.runTool(ctx, req.ID, tool, params)
	}()
}

func (h *Handler) runTool(ctx context.Context, id *jsonrpc.RequestID, tool mcpservice.Tool, params mcp.CallToolRequest) {
	if h.sem != nil {
		if err := h.sem.Acquire(ctx, 1); err != nil {
			h.writeResponse(ctx, jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeServerError, err.Error(), nil))
			return
		}
		defer h.sem.Release(1)
	}

	ctx, span := h.tracer.Start(ctx, "call_tool "+params.Name, trace.WithAttributes(
		attribute.String("tool.name", params.Name),
		attribute.String("rpc.jsonrpc.request_id", id.String()),
	))
	defer span.End()

	start := time.Now()
	result, err := h.invoke(ctx, tool, params.Arguments)
	dur := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.l.WarnContext(ctx, "stdio.call_tool.err", slog.Int64("dur_ms", dur.Milliseconds()), slog.String("err", err.Error()))
		h.writeResponse(ctx, jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeServerError, err.Error(), nil))
		return
	}

	res, err := jsonrpc.NewResultResponse(id, mcp.JSONResult(result))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.l.ErrorContext(ctx, "stdio.call_tool.encode_err", slog.String("err", err.Error()))
		h.writeResponse(ctx, jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeInternalError, err.Error(), nil))
		return
	}
	h.l.InfoContext(ctx, "stdio.call_tool.ok", slog.Int64("dur_ms", dur.Milliseconds()))
	h.writeResponse(ctx, res)
}

// invoke runs the tool, converting a panic into an error.
func (h *Handler) invoke(ctx context.Context, tool mcpservice.Tool, args json.RawMessage) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			h.l.ErrorContext(ctx, "stdio.call_tool.panic", slog.Any("panic", r))
			result = nil
			err = fmt.Errorf("tool panicked: %v", r)
		}
	}()
	return tool.Call(ctx, args)
}

func (h *Handler) writeResponse(ctx context.Context, res *jsonrpc.Response) {
	b, err := json.Marshal(res)
	if err != nil {
		h.l.ErrorContext(ctx, "stdio.write.marshal_err", slog.String("err", err.Error()))
		return
	}
	b = append(b, '\n')

	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	if h.closed {
		h.l.DebugContext(ctx, "stdio.write.dropped")
		return
	}
	if _, err := h.w.Write(b); err != nil {
		h.l.ErrorContext(ctx, "stdio.write.err", slog.String("err", err.Error()))
	}
}

func (h *Handler) close() {
	h.writeMu.Lock()
	h.closed = true
	h.writeMu.Unlock()
}

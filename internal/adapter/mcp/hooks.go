package mcp

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/guillermoBallester/tally/internal/core/port"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var errToolResult = errors.New("tool returned an error result")

// inflight is one tool call between its before and after hooks.
type inflight struct {
	tool    string
	dataset string
	start   time.Time
	span    trace.Span
}

// toolCalls tracks in-flight tool calls by JSON-RPC id.
type toolCalls struct {
	logger *slog.Logger
	tracer trace.Tracer
	inst   port.Instrumentation
	calls  sync.Map
}

func (t *toolCalls) begin(ctx context.Context, id any, req *mcp.CallToolRequest) {
	call := &inflight{
		tool:    req.Params.Name,
		dataset: datasetArg(req),
		start:   time.Now(),
	}
	if t.tracer != nil {
		attrs := []attribute.KeyValue{attribute.String("mcp.tool", call.tool)}
		if call.dataset != "" {
			attrs = append(attrs, attribute.String("dataset.table", call.dataset))
		}
		_, call.span = t.tracer.Start(ctx, "mcp.tool.call", trace.WithAttributes(attrs...))
	}
	t.calls.Store(id, call)
}

// finish closes the call registered under id. A nil err marks success.
func (t *toolCalls) finish(ctx context.Context, id any, fallbackTool string, err error) {
	call := &inflight{tool: fallbackTool}
	if v, ok := t.calls.LoadAndDelete(id); ok {
		call = v.(*inflight)
	}
	if call.tool == "" {
		return
	}

	var duration time.Duration
	if !call.start.IsZero() {
		duration = time.Since(call.start)
	}

	attrs := []slog.Attr{
		slog.String("rpc.method", "tools/call"),
		slog.String("mcp.tool", call.tool),
		slog.Duration("duration", duration),
		slog.Bool("error", err != nil),
	}
	if call.dataset != "" {
		attrs = append(attrs, slog.String("dataset.table", call.dataset))
	}
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelError
		attrs = append(attrs, slog.String("error.message", err.Error()))
	}
	t.logger.LogAttrs(ctx, level, "tool call", attrs...)

	if t.inst != nil {
		t.inst.RecordToolDuration(ctx, float64(duration.Milliseconds()))
	}

	if call.span != nil {
		if err != nil {
			call.span.RecordError(err)
			call.span.SetStatus(codes.Error, err.Error())
		}
		call.span.End()
	}
}

// ToolCallHooks logs every tool call and, when a tracer is set, wraps it in a
// span. Tool durations go to inst.
func ToolCallHooks(logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *server.Hooks {
	t := &toolCalls{logger: logger, tracer: tracer, inst: inst}
	hooks := &server.Hooks{}

	hooks.AddBeforeCallTool(t.begin)

	hooks.AddAfterCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest, result any) {
		var err error
		if r, ok := result.(*mcp.CallToolResult); ok && r.IsError {
			err = errToolResult
		}
		t.finish(ctx, id, req.Params.Name, err)
	})

	hooks.AddOnError(func(ctx context.Context, id any, method mcp.MCPMethod, message any, err error) {
		tool := ""
		if req, ok := message.(*mcp.CallToolRequest); ok {
			tool = req.Params.Name
		}
		t.finish(ctx, id, tool, err)
	})

	return hooks
}

// datasetArg returns the table_name argument of a tool call, if any.
func datasetArg(req *mcp.CallToolRequest) string {
	table, _ := req.GetArguments()["table_name"].(string)
	return table
}

package observability

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/florianilch/clawd/internal/observability/middleware"
)

// traceContextHandler adds correlation attributes to records logged with a
// request context: trace_id and span_id from an incoming traceparent, and the
// request_id assigned by the HTTP middleware. Translation and dispatch logs
// can then be joined with the request log line.
type traceContextHandler struct {
	handler slog.Handler
}

// Compile-time check that traceContextHandler implements slog.Handler
var _ slog.Handler = (*traceContextHandler)(nil)

func newTraceContextHandler(handler slog.Handler) *traceContextHandler {
	return &traceContextHandler{handler: handler}
}

func (h *traceContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *traceContextHandler) Handle(ctx context.Context, record slog.Record) error {
	if requestID, ok := ctx.Value(middleware.RequestIDContextKey{}).(string); ok && requestID != "" {
		record.AddAttrs(slog.String("request_id", requestID))
	}

	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.IsValid() {
		record.AddAttrs(
			slog.String("trace_id", spanCtx.TraceID().String()),
			slog.String("span_id", spanCtx.SpanID().String()),
		)
	}

	return h.handler.Handle(ctx, record)
}

func (h *traceContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceContextHandler{handler: h.handler.WithAttrs(attrs)}
}

func (h *traceContextHandler) WithGroup(name string) slog.Handler {
	return &traceContextHandler{handler: h.handler.WithGroup(name)}
}

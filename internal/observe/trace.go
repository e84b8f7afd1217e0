package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/cadence"

// Span attribute keys.
const (
	AttrRunID   = attribute.Key("cadence.run.id")
	AttrBlockID = attribute.Key("cadence.block.id")
)

type runIDKey struct{}

// Tracer returns the cadence tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span named name. The caller ends it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// StartRunSpan attaches runID to ctx and opens the root span of a run.
func StartRunSpan(ctx context.Context, runID string) (context.Context, trace.Span) {
	ctx = WithRunID(ctx, runID)
	return StartSpan(ctx, "cadence.run", trace.WithAttributes(AttrRunID.String(runID)))
}

// StartBlockSpan opens a span for one stage of one block, e.g.
// "cadence.analyze". The run id on ctx, if any, is copied onto the span.
func StartBlockSpan(ctx context.Context, stage string, blockID int) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{AttrBlockID.Int(blockID)}
	if id := RunID(ctx); id != "" {
		attrs = append(attrs, AttrRunID.String(id))
	}
	return StartSpan(ctx, "cadence."+stage, trace.WithAttributes(attrs...))
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// WithRunID returns a copy of ctx carrying runID.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunID returns the run id stored by [WithRunID], or "".
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// CorrelationID returns the trace ID of the active span in ctx, or "".
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// Logger returns slog.Default() with run_id, trace_id and span_id attached
// when ctx carries them.
func Logger(ctx context.Context) *slog.Logger {
	var attrs []any
	if id := RunID(ctx); id != "" {
		attrs = append(attrs, slog.String("run_id", id))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if len(attrs) == 0 {
		return slog.Default()
	}
	return slog.Default().With(attrs...)
}

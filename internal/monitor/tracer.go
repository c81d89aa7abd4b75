package monitor

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "analyst-sandbox"

// Tracer wraps OpenTelemetry tracing. Spans go to the global
// TracerProvider, which is a no-op unless the binary installs one.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a new Tracer using the global TracerProvider.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(tracerName),
	}
}

// StartSpan creates a span named analyst.<name> and returns the updated context.
func (t *Tracer) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, fmt.Sprintf("analyst.%s", name),
		trace.WithAttributes(attrs...),
	)
	return ctx, span
}

// EndSpan marks span failed when err is non-nil and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// SpanFromContext returns the current span from the context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// Common attribute keys for tracing.
var (
	AttrTurnID     = attribute.Key("analyst.turn.id")
	AttrDatasetID  = attribute.Key("analyst.dataset.id")
	AttrScripts    = attribute.Key("analyst.turn.scripts")
	AttrExecID     = attribute.Key("analyst.execution.id")
	AttrCodeHash   = attribute.Key("analyst.code_hash")
	AttrRule       = attribute.Key("analyst.verdict.rule")
	AttrSuccess    = attribute.Key("analyst.execution.success")
	AttrDurationMS = attribute.Key("analyst.duration_ms")
)

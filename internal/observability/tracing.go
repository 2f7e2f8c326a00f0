package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation name of copilot spans.
const TracerName = "meeting-copilot"

// Span attribute keys
const (
	AttrSessionID = "session_id"
	AttrOperation = "operation"
	AttrModel     = "model"
	AttrRecord    = "record_kind"
	AttrStatus    = "http_status"
)

// Span names
const (
	SpanCompletion = "copilot.completion"
	SpanPersist    = "copilot.persist"
)

// Tracer starts spans around outbound provider and persistence calls. It
// uses the global provider, which is a no-op until one is installed.
type Tracer struct {
	tracer trace.Tracer
}

func NewTracer() *Tracer {
	return &Tracer{tracer: otel.Tracer(TracerName)}
}

// StartCompletionSpan starts a span for one language model call.
func (t *Tracer) StartCompletionSpan(ctx context.Context, operation, model string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanCompletion,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(AttrOperation, operation),
			attribute.String(AttrModel, model),
		),
	)
}

// StartPersistSpan starts a span for one write to the session-record service.
func (t *Tracer) StartPersistSpan(ctx context.Context, sessionID, kind string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanPersist,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(AttrSessionID, sessionID),
			attribute.String(AttrRecord, kind),
		),
	)
}

// EndSpan records err, if any, and ends the span.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

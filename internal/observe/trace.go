package observe

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/parley"

// InterviewIDKey is the span attribute and log key carrying the interview id.
const InterviewIDKey = "interview_id"

type interviewKey struct{}

// Tracer returns the Parley tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// WithInterview tags ctx with the id of the interview it belongs to. Spans
// started with [StartSpan] and loggers from [Logger] pick it up.
func WithInterview(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, interviewKey{}, id)
}

// InterviewID returns the interview id carried by ctx, if any.
func InterviewID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(interviewKey{}).(uuid.UUID)
	return id, ok
}

// StartSpan starts a span, adding the interview id from ctx as an attribute.
// The caller must call span.End().
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if id, ok := InterviewID(ctx); ok {
		opts = append(opts, trace.WithAttributes(attribute.String(InterviewIDKey, id.String())))
	}
	return Tracer().Start(ctx, name, opts...)
}

// CorrelationID returns the trace id of the span in ctx, or "". It is also
// sent as the X-Correlation-ID response header.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger with the interview id, trace id and
// span id found in ctx.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if id, ok := InterviewID(ctx); ok {
		l = l.With(slog.String(InterviewIDKey, id.String()))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}

// Package observe provides application-wide observability primitives for
// Parley: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped from the /metrics endpoint. A package-level default [Metrics]
// instance ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Parley metrics.
const meterName = "github.com/MrWong99/parley"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// DialogueDuration tracks a full dialogue call including retries. Use with
	// attributes: attribute.String("op", "exchange"|"analyze"),
	// attribute.String("status", ...)
	DialogueDuration metric.Float64Histogram

	// SpeakDuration tracks how long one system utterance took to play.
	SpeakDuration metric.Float64Histogram

	// ListenDuration tracks the length of listening windows.
	ListenDuration metric.Float64Histogram

	// --- Counters ---

	// DialogueAttempts counts individual LLM attempts. Use with attributes:
	//   attribute.String("op", ...), attribute.String("status", ...)
	DialogueAttempts metric.Int64Counter

	// TurnTransitions counts turn-state changes. Use with attributes:
	//   attribute.String("from", ...), attribute.String("to", ...)
	TurnTransitions metric.Int64Counter

	// FillerUtterances counts replies substituted after a failed dialogue call.
	FillerUtterances metric.Int64Counter

	// SessionsPersisted counts persistence attempts. Use with attribute:
	//   attribute.String("status", "ok"|"error")
	SessionsPersisted metric.Int64Counter

	// --- Error counters ---

	// SpeechErrors counts speech engine failures. Use with attribute:
	//   attribute.String("kind", ...)
	SpeechErrors metric.Int64Counter

	// BreakerTransitions counts LLM circuit breaker state changes by provider
	// and target state.
	BreakerTransitions metric.Int64Counter

	// --- Gauges ---

	// ActiveInterviews tracks the number of interviews currently running.
	ActiveInterviews metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("route", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for LLM
// round-trips and utterance playback.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.DialogueDuration, err = m.Float64Histogram("parley.dialogue.duration",
		metric.WithDescription("Latency of dialogue calls including retries."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SpeakDuration, err = m.Float64Histogram("parley.speech.speak.duration",
		metric.WithDescription("Playback time of system utterances."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ListenDuration, err = m.Float64Histogram("parley.speech.listen.duration",
		metric.WithDescription("Length of listening windows."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.DialogueAttempts, err = m.Int64Counter("parley.dialogue.attempts",
		metric.WithDescription("Total LLM attempts by operation and status."),
	); err != nil {
		return nil, err
	}
	if met.TurnTransitions, err = m.Int64Counter("parley.turn.transitions",
		metric.WithDescription("Total turn-state transitions by source and target state."),
	); err != nil {
		return nil, err
	}
	if met.FillerUtterances, err = m.Int64Counter("parley.turn.fillers",
		metric.WithDescription("Total filler utterances substituted for failed dialogue calls."),
	); err != nil {
		return nil, err
	}
	if met.SessionsPersisted, err = m.Int64Counter("parley.sessions.persisted",
		metric.WithDescription("Total session persistence attempts by status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.SpeechErrors, err = m.Int64Counter("parley.speech.errors",
		metric.WithDescription("Total speech engine failures by kind."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("parley.llm.breaker.transitions",
		metric.WithDescription("Total LLM circuit breaker state changes by provider and target state."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveInterviews, err = m.Int64UpDownCounter("parley.active_interviews",
		metric.WithDescription("Number of interviews currently running."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("parley.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordDialogue records the outcome of one dialogue call: its total
// duration and the number of attempts it took.
func (m *Metrics) RecordDialogue(ctx context.Context, op, status string, d time.Duration) {
	m.DialogueDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("status", status),
		),
	)
}

// RecordDialogueAttempt increments the attempt counter.
func (m *Metrics) RecordDialogueAttempt(ctx context.Context, op, status string) {
	m.DialogueAttempts.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("status", status),
		),
	)
}

// RecordTransition increments the turn transition counter.
func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	m.TurnTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}

// RecordSpeechError increments the speech error counter.
func (m *Metrics) RecordSpeechError(ctx context.Context, kind string) {
	m.SpeechErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordBreakerTransition counts a circuit breaker moving to state to.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, provider, to string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("to", to),
		),
	)
}

// RecordPersist increments the persistence counter.
func (m *Metrics) RecordPersist(ctx context.Context, status string) {
	m.SessionsPersisted.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

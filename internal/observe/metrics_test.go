package observe

import (
	"context"
	"slices"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestLatencyHistograms_UseInterviewBuckets(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	// A long spoken question and a slow model both land well inside the range.
	m.SpeakDuration.Record(ctx, 12)
	m.ListenDuration.Record(ctx, 35)
	m.DialogueDuration.Record(ctx, 0.8)

	rm := collect(t, reader)
	for _, name := range []string{
		"parley.dialogue.duration",
		"parley.speech.speak.duration",
		"parley.speech.listen.duration",
	} {
		t.Run(name, func(t *testing.T) {
			met := findMetric(rm, name)
			if met == nil {
				t.Fatalf("metric %q not found", name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok || len(hist.DataPoints) != 1 {
				t.Fatalf("metric %q: want one histogram data point", name)
			}
			if !slices.Equal(hist.DataPoints[0].Bounds, latencyBuckets) {
				t.Errorf("bounds = %v, want %v", hist.DataPoints[0].Bounds, latencyBuckets)
			}
		})
	}
}

// sumFor returns the value of the data point of counter name that carries
// key=value, and whether it was found.
func sumFor(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) (int64, bool) {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", name)
	}
	for _, dp := range sum.DataPoints {
		for _, kv := range dp.Attributes.ToSlice() {
			if string(kv.Key) == key && kv.Value.AsString() == value {
				return dp.Value, true
			}
		}
	}
	return 0, false
}

func TestDialogueRecording(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordDialogueAttempt(ctx, "exchange", "error")
	m.RecordDialogueAttempt(ctx, "exchange", "error")
	m.RecordDialogueAttempt(ctx, "exchange", "ok")
	m.RecordDialogue(ctx, "exchange", "ok", 2500*time.Millisecond)

	rm := collect(t, reader)
	if v, ok := sumFor(t, rm, "parley.dialogue.attempts", "status", "error"); !ok || v != 2 {
		t.Errorf("error attempts = %d (found %v), want 2", v, ok)
	}

	met := findMetric(rm, "parley.dialogue.duration")
	if met == nil {
		t.Fatal("duration metric not found")
	}
	hist := met.Data.(metricdata.Histogram[float64])
	if len(hist.DataPoints) != 1 || hist.DataPoints[0].Sum != 2.5 {
		t.Errorf("duration data points = %+v", hist.DataPoints)
	}
}

func TestTransitionCounter(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordTransition(ctx, "idle", "speaking")
	m.RecordTransition(ctx, "idle", "speaking")
	m.RecordTransition(ctx, "speaking", "listening")

	rm := collect(t, reader)
	if v, ok := sumFor(t, rm, "parley.turn.transitions", "to", "listening"); !ok || v != 1 {
		t.Errorf("to=listening = %d (found %v), want 1", v, ok)
	}
	if v, ok := sumFor(t, rm, "parley.turn.transitions", "to", "speaking"); !ok || v != 2 {
		t.Errorf("to=speaking = %d (found %v), want 2", v, ok)
	}
}

func TestSpeechAndPersistCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordSpeechError(ctx, "permission_denied")
	m.RecordPersist(ctx, "ok")
	m.RecordPersist(ctx, "error")
	m.RecordPersist(ctx, "ok")
	m.FillerUtterances.Add(ctx, 1)

	rm := collect(t, reader)
	if v, ok := sumFor(t, rm, "parley.speech.errors", "kind", "permission_denied"); !ok || v != 1 {
		t.Errorf("speech errors = %d (found %v), want 1", v, ok)
	}
	if v, ok := sumFor(t, rm, "parley.sessions.persisted", "status", "ok"); !ok || v != 2 {
		t.Errorf("persisted ok = %d (found %v), want 2", v, ok)
	}
	if findMetric(rm, "parley.turn.fillers") == nil {
		t.Error("filler counter not found")
	}
}

func TestActiveInterviewsGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveInterviews.Add(ctx, 1)
	m.ActiveInterviews.Add(ctx, 1)
	m.ActiveInterviews.Add(ctx, -1)

	rm := collect(t, reader)
	met := findMetric(rm, "parley.active_interviews")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) == 0 {
		t.Fatal("metric is not a sum with data points")
	}
	if got := sum.DataPoints[0].Value; got != 1 {
		t.Errorf("gauge value = %d, want 1", got)
	}
}

func TestBreakerTransitions(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordBreakerTransition(ctx, "gemini", "open")
	m.RecordBreakerTransition(ctx, "gemini", "half-open")
	m.RecordBreakerTransition(ctx, "gemini", "open")

	rm := collect(t, reader)
	if v, ok := sumFor(t, rm, "parley.llm.breaker.transitions", "to", "open"); !ok || v != 2 {
		t.Errorf("to=open = %d (found %v), want 2", v, ok)
	}
}

func TestDefaultMetrics_Shared(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics is not a singleton")
	}
}

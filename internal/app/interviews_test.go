package app_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/parley/internal/app"
	"github.com/MrWong99/parley/internal/interview"
	"github.com/MrWong99/parley/internal/session"
	"github.com/MrWong99/parley/internal/speech"
	speechmock "github.com/MrWong99/parley/internal/speech/mock"
	"github.com/MrWong99/parley/internal/store"
)

// collect drains sched's events onto a buffered channel so the scheduler
// never blocks on them.
func collect(sched *interview.Scheduler) <-chan interview.Event {
	out := make(chan interview.Event, 256)
	go func() {
		defer close(out)
		for ev := range sched.Events() {
			out <- ev
		}
	}()
	return out
}

func waitFor(t *testing.T, events <-chan interview.Event, what string, match func(interview.Event) bool) interview.Event {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatalf("event stream closed while waiting for %s", what)
			}
			if match(ev) {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", what)
		}
	}
}

func systemSaid(text string) func(interview.Event) bool {
	return func(ev interview.Event) bool {
		return ev.Kind == interview.EventUtterance && ev.Utterance.Speaker == session.System && strings.Contains(ev.Utterance.Text, text)
	}
}

func isIdle(ev interview.Event) bool {
	return ev.Kind == interview.EventStateChanged && ev.State == interview.Idle
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestInterviews_TypedInterview(t *testing.T) {
	t.Parallel()
	st := store.NewMemStore()
	a := newApp(t, app.WithStore(st))
	ctx := context.Background()

	rec := &speechmock.Recognizer{InitErr: speech.ErrRecognitionUnsupported}
	sched, err := a.Interviews().Launch(ctx, interview.Request{Topic: "Go"}, &speechmock.Synthesizer{}, rec)
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	events := collect(sched)

	waitFor(t, events, "greeting", systemSaid("Go"))
	waitFor(t, events, "idle after greeting", isIdle)

	if err := sched.Listen(ctx); !errors.Is(err, speech.ErrRecognitionUnsupported) {
		t.Fatalf("Listen = %v, want ErrRecognitionUnsupported", err)
	}
	if rec.Starts() != 0 {
		t.Errorf("recognizer started %d times, want 0", rec.Starts())
	}

	if err := sched.Submit(ctx, "I would use a worker pool."); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitFor(t, events, "reply", systemSaid("What about backpressure?"))

	active := a.Interviews().Active()
	if len(active) != 1 || active[0].Topic != "Go" || active[0].ID != sched.ID() {
		t.Fatalf("Active = %+v", active)
	}

	if err := sched.End(ctx); err != nil {
		t.Fatalf("End: %v", err)
	}
	got, err := st.Get(ctx, sched.ID())
	if err != nil {
		t.Fatalf("Get persisted session: %v", err)
	}
	if n := len(got.Utterances); n != 4 {
		t.Errorf("persisted %d utterances, want 4", n)
	}
	eventually(t, "interview to be released", func() bool { return a.Interviews().Len() == 0 })
}

func TestInterviews_Settings(t *testing.T) {
	t.Parallel()
	a := newApp(t)
	off := false

	tests := []struct {
		name string
		req  interview.Request
		want interview.Settings
	}{
		{
			name: "defaults",
			want: interview.Settings{
				Topic:      "Technical Interview",
				Difficulty: "Mid-Level",
				Duration:   30 * time.Minute,
				AutoListen: true,
				Context:    session.ContextWindow{MaxUtterances: 2},
			},
		},
		{
			name: "overrides",
			req:  interview.Request{Topic: "SQL", Difficulty: "Senior", Duration: 5 * time.Minute, AutoListen: &off},
			want: interview.Settings{
				Topic:      "SQL",
				Difficulty: "Senior",
				Duration:   5 * time.Minute,
				AutoListen: false,
				Context:    session.ContextWindow{MaxUtterances: 2},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.Interviews().Settings(tt.req); got != tt.want {
				t.Errorf("Settings = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestInterviews_SynthesizerFailure(t *testing.T) {
	t.Parallel()
	a := newApp(t)

	synth := &speechmock.Synthesizer{InitErr: speech.ErrSynthesisUnsupported}
	_, err := a.Interviews().Launch(context.Background(), interview.Request{}, synth, &speechmock.Recognizer{})
	if !errors.Is(err, speech.ErrSynthesisUnsupported) {
		t.Fatalf("Launch = %v, want ErrSynthesisUnsupported", err)
	}
	if n := a.Interviews().Len(); n != 0 {
		t.Errorf("Len = %d, want 0", n)
	}
}

func TestInterviews_ShutdownDiscards(t *testing.T) {
	t.Parallel()
	st := store.NewMemStore()
	a := newApp(t, app.WithStore(st))
	ctx := context.Background()

	sched, err := a.Interviews().Launch(ctx, interview.Request{Topic: "Go"}, &speechmock.Synthesizer{}, &speechmock.Recognizer{})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	events := collect(sched)
	waitFor(t, events, "greeting", systemSaid("Go"))

	sctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := a.Interviews().Shutdown(sctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	select {
	case <-sched.Done():
	default:
		t.Fatal("scheduler still running after Shutdown")
	}
	if sessions, _ := st.List(ctx); len(sessions) != 0 {
		t.Errorf("stored %d sessions, want 0", len(sessions))
	}

	_, err = a.Interviews().Launch(ctx, interview.Request{}, &speechmock.Synthesizer{}, &speechmock.Recognizer{})
	if !errors.Is(err, app.ErrShuttingDown) {
		t.Errorf("Launch after Shutdown = %v, want ErrShuttingDown", err)
	}
}

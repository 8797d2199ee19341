package speech_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/parley/internal/speech"
	"github.com/MrWong99/parley/internal/speech/mock"
)

func newOutput(t *testing.T, synth *mock.Synthesizer) *speech.Output {
	t.Helper()
	out := speech.NewOutput(synth, speech.OutputConfig{Language: "en-US"})
	if err := out.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return out
}

func waitErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("completion not resolved")
		return nil
	}
}

func waitStarted(t *testing.T, synth *mock.Synthesizer) string {
	t.Helper()
	select {
	case text := <-synth.Started():
		return text
	case <-time.After(2 * time.Second):
		t.Fatal("no utterance started")
		return ""
	}
}

func TestOutput_FIFO(t *testing.T) {
	t.Parallel()
	synth := &mock.Synthesizer{Hold: true}
	out := newOutput(t, synth)
	ctx := context.Background()

	texts := []string{"one", "two", "three", "four"}
	var dones []<-chan error
	for _, text := range texts {
		dones = append(dones, out.Speak(ctx, text))
	}

	for i, want := range texts {
		if got := waitStarted(t, synth); got != want {
			t.Fatalf("utterance %d started = %q, want %q", i, got, want)
		}
		if !out.Speaking() {
			t.Errorf("Speaking() = false while %q plays", want)
		}
		synth.Finish()
		if err := waitErr(t, dones[i]); err != nil {
			t.Errorf("utterance %q: %v", want, err)
		}
	}

	if got := synth.Spoken(); !slices.Equal(got, texts) {
		t.Errorf("Spoken = %v, want %v", got, texts)
	}
	if got := synth.MaxConcurrent(); got != 1 {
		t.Errorf("MaxConcurrent = %d, want 1", got)
	}
}

func TestOutput_StopKeepsPending(t *testing.T) {
	t.Parallel()
	synth := &mock.Synthesizer{Hold: true}
	out := newOutput(t, synth)
	ctx := context.Background()

	first := out.Speak(ctx, "first")
	second := out.Speak(ctx, "second")
	waitStarted(t, synth)

	out.Stop(false)
	if err := waitErr(t, first); !errors.Is(err, speech.ErrCanceled) {
		t.Errorf("first: err = %v, want ErrCanceled", err)
	}
	if got := waitStarted(t, synth); got != "second" {
		t.Fatalf("next started = %q, want second", got)
	}
	synth.Finish()
	if err := waitErr(t, second); err != nil {
		t.Errorf("second: %v", err)
	}
}

func TestOutput_StopClearPending(t *testing.T) {
	t.Parallel()
	synth := &mock.Synthesizer{Hold: true}
	out := newOutput(t, synth)
	ctx := context.Background()

	first := out.Speak(ctx, "first")
	second := out.Speak(ctx, "second")
	third := out.Speak(ctx, "third")
	waitStarted(t, synth)

	out.Stop(true)
	for name, ch := range map[string]<-chan error{"first": first, "second": second, "third": third} {
		if err := waitErr(t, ch); !errors.Is(err, speech.ErrCanceled) {
			t.Errorf("%s: err = %v, want ErrCanceled", name, err)
		}
	}
	if out.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", out.Pending())
	}

	// The channel is still usable after a full stop.
	after := out.Speak(ctx, "after")
	if got := waitStarted(t, synth); got != "after" {
		t.Fatalf("started = %q, want after", got)
	}
	synth.Finish()
	if err := waitErr(t, after); err != nil {
		t.Errorf("after: %v", err)
	}
}

func TestOutput_EngineFailure(t *testing.T) {
	t.Parallel()
	synth := &mock.Synthesizer{SpeakErr: errors.New("audio device lost")}
	out := newOutput(t, synth)

	err := waitErr(t, out.Speak(context.Background(), "hello"))
	if !errors.Is(err, speech.ErrSynthesis) {
		t.Errorf("err = %v, want ErrSynthesis", err)
	}
}

func TestOutput_NotInitialised(t *testing.T) {
	t.Parallel()
	out := speech.NewOutput(&mock.Synthesizer{}, speech.OutputConfig{})
	err := waitErr(t, out.Speak(context.Background(), "hello"))
	if !errors.Is(err, speech.ErrSynthesisUnsupported) {
		t.Errorf("err = %v, want ErrSynthesisUnsupported", err)
	}
}

func TestOutput_InitializeNoVoices(t *testing.T) {
	t.Parallel()
	out := speech.NewOutput(&mock.Synthesizer{VoiceList: []speech.Voice{}}, speech.OutputConfig{})
	if err := out.Initialize(context.Background()); !errors.Is(err, speech.ErrNoVoiceAvailable) {
		t.Errorf("Initialize: err = %v, want ErrNoVoiceAvailable", err)
	}
}

func TestOutput_RequestCarriesVoiceAndRate(t *testing.T) {
	t.Parallel()
	synth := &mock.Synthesizer{}
	out := newOutput(t, synth)
	if err := waitErr(t, out.Speak(context.Background(), "hi")); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	reqs := synth.Requests()
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqs))
	}
	if reqs[0].Voice.Name != "Neural English" {
		t.Errorf("voice = %q, want the neural voice", reqs[0].Voice.Name)
	}
	if reqs[0].Rate != speech.DefaultRate {
		t.Errorf("rate = %v, want %v", reqs[0].Rate, speech.DefaultRate)
	}
}

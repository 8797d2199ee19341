package console_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/parley/internal/speech"
	"github.com/MrWong99/parley/internal/speech/console"
)

func TestSynthesizer_PrintsLabelledLine(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	s := console.NewSynthesizer(&buf, console.WithLabel("Alex"))

	if err := s.Speak(context.Background(), speech.SpeakRequest{Text: "Tell me about channels."}); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if got, want := buf.String(), "Alex: Tell me about channels.\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestSynthesizer_PacingHonoursCancellation(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	s := console.NewSynthesizer(&buf, console.WithPacing(time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.Speak(ctx, speech.SpeakRequest{Text: "a long sentence", Rate: 1})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Speak = %v, want DeadlineExceeded", err)
	}
}

func TestSynthesizer_SingleVoice(t *testing.T) {
	t.Parallel()
	voices, err := console.NewSynthesizer(&bytes.Buffer{}).Voices(context.Background())
	if err != nil || len(voices) != 1 {
		t.Fatalf("Voices = %v, %v", voices, err)
	}
	if _, err := speech.SelectVoice(voices, "en-US"); err != nil {
		t.Errorf("SelectVoice: %v", err)
	}
}

func TestRecognizer_Unsupported(t *testing.T) {
	t.Parallel()
	var r console.Recognizer
	if err := r.Initialize(context.Background()); !errors.Is(err, speech.ErrRecognitionUnsupported) {
		t.Errorf("Initialize = %v", err)
	}
	if _, err := r.Start(context.Background(), "en-US"); !errors.Is(err, speech.ErrRecognitionUnsupported) {
		t.Errorf("Start = %v", err)
	}
}

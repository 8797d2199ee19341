// Package console provides a terminal speech engine for practice runs:
// interviewer utterances are printed instead of spoken, and recognition is
// reported as unsupported so answers are typed.
package console

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/MrWong99/parley/internal/speech"
)

var (
	_ speech.Synthesizer = (*Synthesizer)(nil)
	_ speech.Recognizer  = Recognizer{}
)

// voice is the single voice the console offers.
var voice = speech.Voice{ID: "console", Name: "Console Natural", Language: "und"}

// Synthesizer writes each utterance as a line prefixed with the speaker label.
type Synthesizer struct {
	w       io.Writer
	label   string
	perRune time.Duration

	mu sync.Mutex
}

// Option configures a [Synthesizer].
type Option func(*Synthesizer)

// WithLabel sets the prefix printed before each utterance. The default is
// "Interviewer".
func WithLabel(label string) Option {
	return func(s *Synthesizer) { s.label = label }
}

// WithPacing delays completion by d per character at rate 1.0, so the
// conversation moves at roughly speaking speed. Zero completes immediately.
func WithPacing(d time.Duration) Option {
	return func(s *Synthesizer) { s.perRune = d }
}

// NewSynthesizer returns a console synthesizer writing to w.
func NewSynthesizer(w io.Writer, opts ...Option) *Synthesizer {
	s := &Synthesizer{w: w, label: "Interviewer"}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Initialize is a no-op.
func (s *Synthesizer) Initialize(context.Context) error { return nil }

// Voices returns the single console voice.
func (s *Synthesizer) Voices(context.Context) ([]speech.Voice, error) {
	return []speech.Voice{voice}, nil
}

// Speak prints req.Text and, with pacing enabled, waits for the simulated
// playback time or ctx cancellation.
func (s *Synthesizer) Speak(ctx context.Context, req speech.SpeakRequest) error {
	s.mu.Lock()
	_, err := fmt.Fprintf(s.w, "%s: %s\n", s.label, req.Text)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("console: write: %w", err)
	}
	if s.perRune <= 0 {
		return nil
	}

	rate := req.Rate
	if rate <= 0 {
		rate = 1
	}
	d := time.Duration(float64(s.perRune) * float64(len([]rune(req.Text))) / rate)
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown is a no-op.
func (s *Synthesizer) Shutdown(context.Context) error { return nil }

// Recognizer reports that the terminal cannot listen. Callers fall back to
// typed answers.
type Recognizer struct{}

// Initialize returns [speech.ErrRecognitionUnsupported].
func (Recognizer) Initialize(context.Context) error {
	return fmt.Errorf("console: %w", speech.ErrRecognitionUnsupported)
}

// Start returns [speech.ErrRecognitionUnsupported].
func (Recognizer) Start(context.Context, string) (<-chan speech.Transcript, error) {
	return nil, fmt.Errorf("console: %w", speech.ErrRecognitionUnsupported)
}

// Stop is a no-op.
func (Recognizer) Stop(context.Context) error { return nil }

// Shutdown is a no-op.
func (Recognizer) Shutdown(context.Context) error { return nil }

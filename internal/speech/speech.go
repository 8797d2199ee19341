// Package speech wraps host speech synthesis and recognition behind
// injectable engines and exposes the two channels the interview loop drives:
// [Output], which speaks one utterance at a time, and [Input], which turns a
// listening window into a final transcript.
//
// Engines are explicit values with an Initialize/Shutdown lifecycle. The
// browser bridge, the console engine and the test mock all implement the
// same [Synthesizer] and [Recognizer] interfaces, so nothing above this
// package touches a process-wide speech handle.
package speech

import (
	"context"
	"errors"
)

var (
	// ErrRecognitionUnsupported means the host has no speech recognition.
	// Voice input is unavailable but typed input still works.
	ErrRecognitionUnsupported = errors.New("speech: recognition unsupported")

	// ErrRecognitionPermissionDenied means the user refused microphone access.
	ErrRecognitionPermissionDenied = errors.New("speech: microphone permission denied")

	// ErrSynthesisUnsupported means the host cannot synthesise speech.
	ErrSynthesisUnsupported = errors.New("speech: synthesis unsupported")

	// ErrNoVoiceAvailable is returned by [Output.Initialize] when the engine
	// reports an empty voice list.
	ErrNoVoiceAvailable = errors.New("speech: no voice available")

	// ErrSynthesis wraps engine failures in the middle of an utterance.
	ErrSynthesis = errors.New("speech: synthesis failed")

	// ErrCanceled resolves the completion of an utterance that was stopped or
	// dropped before it finished playing.
	ErrCanceled = errors.New("speech: utterance canceled")
)

// Voice describes one synthesis voice offered by the host.
type Voice struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"lang"`
}

// SpeakRequest is a single utterance handed to a [Synthesizer].
type SpeakRequest struct {
	Text  string
	Voice Voice
	Rate  float64
}

// Synthesizer is a text-to-speech engine.
//
// Implementations must be safe for concurrent use, though [Output] never
// calls Speak concurrently.
type Synthesizer interface {
	// Initialize prepares the engine. It returns [ErrSynthesisUnsupported] when
	// the host has no synthesis capability.
	Initialize(ctx context.Context) error

	// Voices lists the voices available after initialisation.
	Voices(ctx context.Context) ([]Voice, error)

	// Speak plays req and blocks until playback completes, fails or ctx is
	// cancelled. Cancelling ctx must silence the utterance.
	Speak(ctx context.Context, req SpeakRequest) error

	// Shutdown releases the engine.
	Shutdown(ctx context.Context) error
}

// Transcript is one recognition result. Err is set when the engine failed
// while listening; such a transcript carries no text.
type Transcript struct {
	Text  string
	Final bool
	Err   error
}

// Recognizer is a continuous speech-to-text engine.
type Recognizer interface {
	// Initialize prepares the engine. It returns [ErrRecognitionUnsupported]
	// or [ErrRecognitionPermissionDenied] when listening is impossible.
	Initialize(ctx context.Context) error

	// Start begins continuous recognition in the given language. Results are
	// delivered on the returned channel, which the engine closes once
	// recognition has fully stopped.
	Start(ctx context.Context, language string) (<-chan Transcript, error)

	// Stop asks the engine to finish. Remaining results are flushed before
	// the channel returned by Start is closed.
	Stop(ctx context.Context) error

	// Shutdown releases the engine.
	Shutdown(ctx context.Context) error
}

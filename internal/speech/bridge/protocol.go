package bridge

import (
	"errors"
	"fmt"

	"github.com/MrWong99/parley/internal/speech"
)

// Frame types sent by the server.
const (
	TypeSpeak       = "speak"
	TypeCancel      = "cancel"
	TypeListenStart = "listen_start"
	TypeListenStop  = "listen_stop"
)

// Frame types sent by the browser page.
const (
	TypeHello       = "hello"
	TypeVoices      = "voices"
	TypeSpeakEnd    = "speak_end"
	TypeSpeakError  = "speak_error"
	TypePartial     = "partial"
	TypeFinal       = "final"
	TypeListenEnd   = "listen_end"
	TypeListenError = "listen_error"
)

// Message is one JSON frame on the bridge. Only the fields relevant to Type
// are set.
type Message struct {
	Type string `json:"type"`

	// ID correlates speak, cancel, speak_end and speak_error frames.
	ID uint64 `json:"id,omitempty"`

	Text  string  `json:"text,omitempty"`
	Lang  string  `json:"lang,omitempty"`
	Voice string  `json:"voice,omitempty"`
	Rate  float64 `json:"rate,omitempty"`

	// Synthesis and Recognition advertise host capabilities in a hello frame.
	Synthesis   bool           `json:"synthesis,omitempty"`
	Recognition bool           `json:"recognition,omitempty"`
	Voices      []speech.Voice `json:"voices,omitempty"`

	// Error carries the Web Speech error code of a failure frame
	// (e.g. "not-allowed", "network", "synthesis-failed").
	Error string `json:"error,omitempty"`

	// Enabled is the toggle value of an auto_listen control frame.
	Enabled *bool `json:"enabled,omitempty"`
}

// recognitionError maps a Web Speech recognition error code to a sentinel.
func recognitionError(code string) error {
	switch code {
	case "not-allowed", "service-not-allowed", "audio-capture":
		return fmt.Errorf("bridge: %s: %w", code, speech.ErrRecognitionPermissionDenied)
	case "unsupported", "language-not-supported":
		return fmt.Errorf("bridge: %s: %w", code, speech.ErrRecognitionUnsupported)
	case "":
		return errors.New("bridge: recognition failed")
	default:
		return fmt.Errorf("bridge: recognition failed: %s", code)
	}
}

// synthesisError maps a Web Speech synthesis error code to a sentinel.
func synthesisError(code string) error {
	switch code {
	case "synthesis-unavailable", "not-allowed":
		return fmt.Errorf("bridge: %s: %w", code, speech.ErrSynthesisUnsupported)
	case "voice-unavailable":
		return fmt.Errorf("bridge: %s: %w", code, speech.ErrNoVoiceAvailable)
	default:
		return fmt.Errorf("bridge: %s: %w", code, speech.ErrSynthesis)
	}
}

package interview

import (
	"time"

	"github.com/MrWong99/parley/internal/session"
)

// State is whose turn it is. Exactly one state is active; Speaking and
// Listening never overlap.
type State int32

const (
	// Idle is the initial state and the recovery state after any error.
	Idle State = iota
	// Speaking means a system utterance is playing.
	Speaking
	// Listening means the candidate's answer is being captured.
	Listening
	// Thinking means a dialogue call is in flight.
	Thinking
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Speaking:
		return "speaking"
	case Listening:
		return "listening"
	case Thinking:
		return "thinking"
	}
	return "unknown"
}

// EventKind discriminates [Event].
type EventKind int

const (
	// EventStateChanged carries the new State.
	EventStateChanged EventKind = iota
	// EventCaption carries the live caption while listening.
	EventCaption
	// EventUtterance carries an utterance appended to the session.
	EventUtterance
	// EventBanner carries a user-visible notice.
	EventBanner
	// EventBannerCleared carries the ID of a transient banner that expired.
	EventBannerCleared
	// EventError carries a recovered error, for logging surfaces.
	EventError
	// EventFinished carries the sealed, persisted session. It is the last
	// event.
	EventFinished
)

// String returns the event kind name used on the wire.
func (k EventKind) String() string {
	switch k {
	case EventStateChanged:
		return "state"
	case EventCaption:
		return "caption"
	case EventUtterance:
		return "utterance"
	case EventBanner:
		return "banner"
	case EventBannerCleared:
		return "banner_cleared"
	case EventError:
		return "error"
	case EventFinished:
		return "finished"
	}
	return "unknown"
}

// Event is emitted by the scheduler. Only the fields relevant to Kind are
// set.
type Event struct {
	Kind      EventKind
	State     State
	Caption   string
	Utterance session.Utterance
	Banner    Banner
	Err       error
	Session   *session.Session
}

// Banner is a user-visible notice. Transient banners disappear after TTL;
// persistent banners stay until the condition is resolved and carry
// remediation advice.
type Banner struct {
	ID          int
	Message     string
	Remediation string
	Transient   bool
	TTL         time.Duration
}

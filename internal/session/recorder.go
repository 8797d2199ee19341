package session

import (
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSealed is returned by [Recorder.Append] and [Recorder.Attach] once the
// session has been sealed.
var ErrSealed = errors.New("session: sealed")

// Recorder accumulates a session's utterances in insertion order. Once
// sealed, the session is immutable and every mutating call fails with
// [ErrSealed].
//
// All methods are safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	s      Session
	sealed bool
}

// NewRecorder opens a new session on topic. A zero startedAt means now.
func NewRecorder(topic string, startedAt time.Time) *Recorder {
	if startedAt.IsZero() {
		startedAt = time.Now()
	}
	return &Recorder{
		s: Session{
			ID:        uuid.New(),
			StartedAt: startedAt,
			Topic:     topic,
		},
	}
}

// ID returns the session identifier.
func (r *Recorder) ID() uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.s.ID
}

// Append adds u to the end of the transcript.
func (r *Recorder) Append(u Utterance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return ErrSealed
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	// Stored records are JSON, which cannot carry invalid UTF-8.
	u.Text = strings.ToValidUTF8(u.Text, "\uFFFD")
	r.s.Utterances = append(r.s.Utterances, u)
	return nil
}

// Attach sets the session analysis, replacing any previous one. The
// recorder keeps its own copy with empty lists stored as nil, the form a
// decoded record has.
func (r *Recorder) Attach(a *Analysis) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return ErrSealed
	}
	if a != nil {
		cp := *a
		cp.Feedback = compact(cp.Feedback)
		cp.Improvements = compact(cp.Improvements)
		cp.Strengths = compact(cp.Strengths)
		a = &cp
	}
	r.s.Analysis = a
	return nil
}

func compact(items []string) []string {
	if len(items) == 0 {
		return nil
	}
	return slices.Clone(items)
}

// Len returns the number of recorded utterances.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.s.Utterances)
}

// Snapshot returns a deep copy of the session as it stands.
func (r *Recorder) Snapshot() Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.s.Clone()
}

// Seal marks the session immutable and returns it. Sealing twice returns the
// same record.
func (r *Recorder) Seal() Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
	return r.s.Clone()
}

// Sealed reports whether [Recorder.Seal] has been called.
func (r *Recorder) Sealed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sealed
}

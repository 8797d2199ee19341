// Package session holds the interview transcript model: utterances, the
// session record they belong to, the append-only [Recorder] that builds it,
// and the [ContextWindow] that derives dialogue grounding from it.
package session

import (
	"time"

	"github.com/google/uuid"
)

// Speaker attributes an utterance to the interviewer or the candidate.
type Speaker int

const (
	// System is the interviewer voice (greeting, questions, feedback).
	System Speaker = iota
	// User is the candidate.
	User
)

// String returns "system" or "user".
func (s Speaker) String() string {
	if s == User {
		return "user"
	}
	return "system"
}

// Utterance is one spoken or typed turn. It is a value type and is never
// modified after it has been appended to a session.
type Utterance struct {
	Text      string
	Speaker   Speaker
	CreatedAt time.Time
}

// Analysis is the scored assessment attached to a finished session.
type Analysis struct {
	// Score is the overall score in [0, 100].
	Score             float64
	Feedback          []string
	Improvements      []string
	Strengths         []string
	OverallAssessment string
}

// Session is the record of one interview.
type Session struct {
	ID         uuid.UUID
	StartedAt  time.Time
	Topic      string
	Utterances []Utterance
	Analysis   *Analysis
}

// Clone returns a deep copy of s.
func (s Session) Clone() Session {
	out := s
	if s.Utterances != nil {
		out.Utterances = make([]Utterance, len(s.Utterances))
		copy(out.Utterances, s.Utterances)
	}
	if s.Analysis != nil {
		a := *s.Analysis
		a.Feedback = cloneStrings(a.Feedback)
		a.Improvements = cloneStrings(a.Improvements)
		a.Strengths = cloneStrings(a.Strengths)
		out.Analysis = &a
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/parley/internal/session"
)

// Sender values used in [MessageRecord.Sender]. The interviewer is recorded
// as "gemini" for compatibility with records produced by the web client.
const (
	SenderUser        = "user"
	SenderInterviewer = "gemini"
)

// Record is the persisted JSON form of a session. Field names are stable.
type Record struct {
	ID        string          `json:"id"`
	Timestamp string          `json:"timestamp"`
	Messages  []MessageRecord `json:"messages"`
	Settings  SettingsRecord  `json:"settings"`
	Analysis  *AnalysisRecord `json:"analysis,omitempty"`
}

// MessageRecord is one utterance.
type MessageRecord struct {
	Text      string `json:"text"`
	Sender    string `json:"sender"`
	Timestamp string `json:"timestamp"`
}

// SettingsRecord holds the interview settings.
type SettingsRecord struct {
	Topic string `json:"topic"`
}

// AnalysisRecord is the session assessment.
type AnalysisRecord struct {
	Score             float64  `json:"score"`
	Feedback          []string `json:"feedback"`
	Improvements      []string `json:"improvements"`
	Strengths         []string `json:"strengths"`
	OverallAssessment string   `json:"overallAssessment"`
}

// Encode converts a session to its record. Timestamps are written in UTC with
// nanosecond precision so [Decode] restores the same instants.
func Encode(s session.Session) Record {
	r := Record{
		ID:        s.ID.String(),
		Timestamp: formatTime(s.StartedAt),
		Messages:  make([]MessageRecord, 0, len(s.Utterances)),
		Settings:  SettingsRecord{Topic: s.Topic},
	}
	for _, u := range s.Utterances {
		sender := SenderInterviewer
		if u.Speaker == session.User {
			sender = SenderUser
		}
		r.Messages = append(r.Messages, MessageRecord{
			Text:      u.Text,
			Sender:    sender,
			Timestamp: formatTime(u.CreatedAt),
		})
	}
	if a := s.Analysis; a != nil {
		r.Analysis = &AnalysisRecord{
			Score:             a.Score,
			Feedback:          nonNil(a.Feedback),
			Improvements:      nonNil(a.Improvements),
			Strengths:         nonNil(a.Strengths),
			OverallAssessment: a.OverallAssessment,
		}
	}
	return r
}

// Decode converts a record back to a session. Empty lists decode to nil.
func Decode(r Record) (session.Session, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return session.Session{}, fmt.Errorf("store: decode id %q: %w", r.ID, err)
	}
	started, err := parseTime(r.Timestamp)
	if err != nil {
		return session.Session{}, fmt.Errorf("store: decode timestamp: %w", err)
	}

	s := session.Session{ID: id, StartedAt: started, Topic: r.Settings.Topic}
	for i, m := range r.Messages {
		at, err := parseTime(m.Timestamp)
		if err != nil {
			return session.Session{}, fmt.Errorf("store: decode messages[%d].timestamp: %w", i, err)
		}
		var sp session.Speaker
		switch m.Sender {
		case SenderUser:
			sp = session.User
		case SenderInterviewer, "system":
			sp = session.System
		default:
			return session.Session{}, fmt.Errorf("store: decode messages[%d]: unknown sender %q", i, m.Sender)
		}
		s.Utterances = append(s.Utterances, session.Utterance{Text: m.Text, Speaker: sp, CreatedAt: at})
	}
	if a := r.Analysis; a != nil {
		s.Analysis = &session.Analysis{
			Score:             a.Score,
			Feedback:          nilIfEmpty(a.Feedback),
			Improvements:      nilIfEmpty(a.Improvements),
			Strengths:         nilIfEmpty(a.Strengths),
			OverallAssessment: a.OverallAssessment,
		}
	}
	return s, nil
}

// Marshal encodes s as indented JSON, the export file format.
func Marshal(s session.Session) ([]byte, error) {
	data, err := json.MarshalIndent(Encode(s), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("store: marshal session %s: %w", s.ID, err)
	}
	return data, nil
}

// Unmarshal decodes a JSON record produced by [Marshal] or the web client.
func Unmarshal(data []byte) (session.Session, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return session.Session{}, fmt.Errorf("store: unmarshal record: %w", err)
	}
	return Decode(r)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func nilIfEmpty(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	return in
}

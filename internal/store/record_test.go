package store

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/parley/internal/session"
)

func TestEncode_WireShape(t *testing.T) {
	t.Parallel()
	at := time.Date(2026, 4, 1, 8, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	s := session.Session{
		ID:        uuid.MustParse("7c9e6679-7425-40de-944b-e07fc1f90ae7"),
		StartedAt: at,
		Topic:     "JavaScript",
		Utterances: []session.Utterance{
			{Text: "Hello", Speaker: session.System, CreatedAt: at},
			{Text: "Hi", Speaker: session.User, CreatedAt: at.Add(time.Second)},
		},
	}

	data, err := Marshal(s)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("json.Unmarshal: %v", err)
	}

	if raw["id"] != "7c9e6679-7425-40de-944b-e07fc1f90ae7" {
		t.Errorf("id = %v", raw["id"])
	}
	if raw["timestamp"] != "2026-04-01T06:00:00Z" {
		t.Errorf("timestamp = %v, want UTC RFC 3339", raw["timestamp"])
	}
	if _, ok := raw["analysis"]; ok {
		t.Error("analysis present on session without analysis")
	}
	settings, _ := raw["settings"].(map[string]any)
	if settings["topic"] != "JavaScript" {
		t.Errorf("settings.topic = %v", settings["topic"])
	}
	msgs, _ := raw["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages len = %d, want 2", len(msgs))
	}
	if m := msgs[0].(map[string]any); m["sender"] != SenderInterviewer {
		t.Errorf("messages[0].sender = %v, want %q", m["sender"], SenderInterviewer)
	}
	if m := msgs[1].(map[string]any); m["sender"] != SenderUser || m["text"] != "Hi" {
		t.Errorf("messages[1] = %v", m)
	}
}

func TestEncode_EmptyListsAreArrays(t *testing.T) {
	t.Parallel()
	s := session.Session{ID: uuid.New(), StartedAt: time.Now(), Analysis: &session.Analysis{Score: 50}}
	data, err := Marshal(s)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for _, want := range []string{`"messages": []`, `"feedback": []`, `"strengths": []`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("export missing %s:\n%s", want, data)
		}
	}

	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Utterances != nil || got.Analysis.Feedback != nil {
		t.Errorf("empty lists should decode to nil: %+v", got)
	}
}

func TestDecode_Errors(t *testing.T) {
	t.Parallel()
	ok := `{"id":"7c9e6679-7425-40de-944b-e07fc1f90ae7","timestamp":"2026-04-01T06:00:00Z","messages":[],"settings":{"topic":"x"}}`

	tests := []struct {
		name string
		in   string
	}{
		{"not json", `{`},
		{"bad id", strings.Replace(ok, "7c9e6679-7425-40de-944b-e07fc1f90ae7", "nope", 1)},
		{"bad timestamp", strings.Replace(ok, "2026-04-01T06:00:00Z", "yesterday", 1)},
		{"bad sender", strings.Replace(ok, `"messages":[]`, `"messages":[{"text":"a","sender":"bot","timestamp":"2026-04-01T06:00:00Z"}]`, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Unmarshal([]byte(tt.in)); err == nil {
				t.Error("Unmarshal: want error, got nil")
			}
		})
	}

	if _, err := Unmarshal([]byte(ok)); err != nil {
		t.Errorf("Unmarshal valid record: %v", err)
	}
}

package session

import (
	"strings"
	"testing"
)

func utts(texts ...string) []Utterance {
	out := make([]Utterance, len(texts))
	for i, t := range texts {
		sp := System
		if i%2 == 1 {
			sp = User
		}
		out[i] = Utterance{Text: t, Speaker: sp}
	}
	return out
}

func TestContextWindow_DefaultIsLastExchange(t *testing.T) {
	t.Parallel()
	got := ContextWindow{}.Select(utts("q1", "a1", "q2", "a2"))
	if len(got) != 2 || got[0].Text != "q2" || got[1].Text != "a2" {
		t.Errorf("Select = %+v, want q2,a2", got)
	}
}

func TestContextWindow_ShorterThanWindow(t *testing.T) {
	t.Parallel()
	got := ContextWindow{MaxUtterances: 5}.Select(utts("greeting"))
	if len(got) != 1 || got[0].Text != "greeting" {
		t.Errorf("Select = %+v, want [greeting]", got)
	}
	if len(ContextWindow{}.Select(nil)) != 0 {
		t.Error("Select(nil) should be empty")
	}
}

func TestContextWindow_TokenBudgetDropsOldest(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("x", 400) // ~100 tokens
	w := ContextWindow{MaxUtterances: 3, MaxTokens: 110}
	got := w.Select(utts(long, long, "short answer"))
	if len(got) != 2 {
		t.Fatalf("Select kept %d utterances, want 2", len(got))
	}
	if got[1].Text != "short answer" {
		t.Errorf("newest utterance should be kept, got %q", got[1].Text)
	}
}

func TestContextWindow_Render(t *testing.T) {
	t.Parallel()
	got := ContextWindow{}.Context(utts("What is a closure?", "A function with its scope."))
	want := "Interviewer: What is a closure?\nCandidate: A function with its scope."
	if got != want {
		t.Errorf("Context = %q, want %q", got, want)
	}
}

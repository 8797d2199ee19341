package phonetic_test

import (
	"testing"

	"github.com/MrWong99/parley/internal/transcript/phonetic"
)

var terms = phonetic.Prepare([]string{
	"JavaScript", "TypeScript", "Node.js", "Kubernetes", "PostgreSQL", "event loop", "Go",
})

func TestMatcher_Match(t *testing.T) {
	t.Parallel()

	m := phonetic.New()

	tests := []struct {
		phrase   string
		want     string
		wantConf float64 // minimum
	}{
		{phrase: "javascript", want: "JavaScript", wantConf: 1},
		{phrase: "java script", want: "JavaScript", wantConf: 1},
		{phrase: "type script", want: "TypeScript", wantConf: 1},
		{phrase: "node j s", want: "Node.js", wantConf: 1},
		{phrase: "Event Loop", want: "event loop", wantConf: 1},
		{phrase: "kubernetis", want: "Kubernetes", wantConf: 0.9},
		{phrase: "postgresql", want: "PostgreSQL", wantConf: 1},
	}
	for _, tt := range tests {
		t.Run(tt.phrase, func(t *testing.T) {
			t.Parallel()
			got, conf, ok := m.Match(tt.phrase, terms)
			if !ok {
				t.Fatalf("Match(%q): ok=false, want match %q", tt.phrase, tt.want)
			}
			if got != tt.want {
				t.Errorf("Match(%q) = %q, want %q", tt.phrase, got, tt.want)
			}
			if conf < tt.wantConf {
				t.Errorf("Match(%q) confidence = %f, want >= %f", tt.phrase, conf, tt.wantConf)
			}
		})
	}
}

func TestMatcher_NoMatch(t *testing.T) {
	t.Parallel()

	m := phonetic.New()

	for _, phrase := range []string{"", "go", "type", "cooking", "the weather is nice", "script"} {
		got, conf, ok := m.Match(phrase, terms)
		if ok {
			t.Errorf("Match(%q) matched %q (%.2f), want no match", phrase, got, conf)
			continue
		}
		if got != phrase || conf != 0 {
			t.Errorf("Match(%q) = (%q, %f), want phrase unchanged with confidence 0", phrase, got, conf)
		}
	}
}

func TestMatcher_EmptyVocabulary(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	if _, _, ok := m.Match("javascript", phonetic.Prepare(nil)); ok {
		t.Error("matched against an empty vocabulary")
	}
	if _, _, ok := m.Match("javascript", nil); ok {
		t.Error("matched against a nil vocabulary")
	}
}

func TestPrepare(t *testing.T) {
	t.Parallel()

	ts := phonetic.Prepare([]string{"React", " react ", "", "Tower of Babel"})
	if got := ts.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2", got)
	}
	if got := ts.MaxWords(); got != 3 {
		t.Errorf("MaxWords() = %d, want 3", got)
	}
}

func TestMatcher_Thresholds(t *testing.T) {
	t.Parallel()

	strict := phonetic.New(phonetic.WithPhoneticThreshold(0.999), phonetic.WithFuzzyThreshold(0.999))
	if _, _, ok := strict.Match("kubernetis", terms); ok {
		t.Error("strict matcher accepted a misspelling")
	}
	if got, _, ok := strict.Match("java script", terms); !ok || got != "JavaScript" {
		t.Errorf("strict matcher: Match(java script) = %q, %v; want exact spelling match", got, ok)
	}

	loose := phonetic.New(phonetic.WithMinLength(2))
	if got, _, ok := loose.Match("go", terms); !ok || got != "Go" {
		t.Errorf("WithMinLength(2): Match(go) = %q, %v; want Go", got, ok)
	}
}

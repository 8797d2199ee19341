package session

import (
	"fmt"
	"strings"
)

// charsPerToken is the heuristic ratio used for token estimation.
// English text averages roughly 4 characters per token across common
// LLM tokenizers.
const charsPerToken = 4

// ContextWindow selects the trailing utterances passed to the dialogue
// backend as grounding. It is derived per turn and never stored.
type ContextWindow struct {
	// MaxUtterances bounds how many trailing utterances are kept. Zero means 2,
	// the most recent exchange.
	MaxUtterances int

	// MaxTokens drops the oldest selected utterances until the estimate fits.
	// Zero disables the budget.
	MaxTokens int
}

// Select returns the trailing utterances of utts that fit the window, oldest
// first. The result shares no memory with utts.
func (w ContextWindow) Select(utts []Utterance) []Utterance {
	n := w.MaxUtterances
	if n <= 0 {
		n = 2
	}
	if n > len(utts) {
		n = len(utts)
	}
	out := make([]Utterance, n)
	copy(out, utts[len(utts)-n:])

	if w.MaxTokens > 0 {
		total := 0
		for _, u := range out {
			total += estimateTokens(u.Text)
		}
		for len(out) > 0 && total > w.MaxTokens {
			total -= estimateTokens(out[0].Text)
			out = out[1:]
		}
	}
	return out
}

// Render formats utterances as a plain transcript, one line per utterance.
func (w ContextWindow) Render(utts []Utterance) string {
	var b strings.Builder
	for i, u := range utts {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", speakerLabel(u.Speaker), u.Text)
	}
	return b.String()
}

// Context selects and renders in one step.
func (w ContextWindow) Context(utts []Utterance) string {
	return w.Render(w.Select(utts))
}

func speakerLabel(s Speaker) string {
	if s == User {
		return "Candidate"
	}
	return "Interviewer"
}

// estimateTokens returns a rough token count using the
// 1-token-per-4-characters heuristic.
func estimateTokens(s string) int {
	tokens := len(s) / charsPerToken
	if tokens == 0 && len(s) > 0 {
		tokens = 1
	}
	return tokens
}

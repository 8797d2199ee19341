// Package transcript fixes technical vocabulary in recognised answers before
// they are sent to the interviewer.
//
// Speech recognisers are tuned for everyday language and routinely split or
// mangle the terms a technical interview revolves around: "java script",
// "cuber netties", "post gress". A [Vocabulary] holds the expected terms per
// interview topic and rewrites phrases that sound like one of them, using a
// [PhoneticMatcher] for the comparison.
//
// Each [Correction] records what was replaced and how confident the match
// was, so callers can log or display the substitutions.
package transcript

import "github.com/MrWong99/parley/internal/transcript/phonetic"

// Correction is one phrase substitution.
type Correction struct {
	// Original is the phrase as recognised.
	Original string

	// Corrected is the vocabulary term that replaced it.
	Corrected string

	// Confidence is the similarity score in [0, 1].
	Confidence float64
}

// Result is the outcome of correcting one answer.
type Result struct {
	Original  string
	Corrected string

	// Corrections lists the substitutions in text order. It is empty when
	// the answer needed none.
	Corrections []Correction
}

// PhoneticMatcher resolves a phrase to a term from a prepared vocabulary.
// *phonetic.Matcher implements it.
//
// Implementations must be safe for concurrent use.
type PhoneticMatcher interface {
	// Match returns the best term for phrase. When ok is false, match must
	// equal phrase and confidence must be 0.
	Match(phrase string, terms *phonetic.Terms) (match string, confidence float64, ok bool)
}

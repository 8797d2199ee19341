// Package phonetic matches misrecognised phrases to known technical terms by
// how they sound.
//
// Candidates are found in two passes. A term whose Double Metaphone codes
// overlap the phrase's codes is a phonetic candidate and is accepted when its
// Jaro-Winkler similarity reaches the phonetic threshold. Without phonetic
// overlap, a term is only accepted on a higher fuzzy threshold. Similarity is
// computed on the full lower-cased strings and on their space-free
// concatenation, so "java script" meets "JavaScript" and "node j s" meets
// "Node.js".
//
// Phrases much shorter or longer than a term never match it, which keeps
// everyday words such as "type" from turning into "TypeScript".
package phonetic

import (
	"math"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.80
	defaultFuzzyThreshold    = 0.90
	defaultMinLength         = 4
	defaultMaxSkew           = 0.3
)

// Option configures a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the Jaro-Winkler score a phonetic candidate
// needs. Default: 0.80.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) { m.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the Jaro-Winkler score a term without phonetic
// overlap needs. Default: 0.90.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) { m.fuzzyThreshold = threshold }
}

// WithMinLength sets the number of letters a phrase needs to be matched at
// all, so short words like "go" or "sql" are left as spoken. Default: 4.
func WithMinLength(n int) Option {
	return func(m *Matcher) { m.minLength = n }
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
	minLength         int
}

// New returns a matcher with the given options applied over the defaults.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
		minLength:         defaultMinLength,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// term is a vocabulary entry with its comparison forms precomputed.
type term struct {
	text    string
	lower   string
	compact string
	codes   map[string]struct{}
}

// Terms is a prepared vocabulary. Build it once with [Prepare] and reuse it
// for every phrase.
type Terms struct {
	terms    []term
	maxWords int
}

// Prepare precomputes the phonetic codes of terms. Blank and duplicate
// entries are dropped.
func Prepare(terms []string) *Terms {
	ts := &Terms{}
	seen := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		lower := strings.ToLower(t)
		if lower == "" {
			continue
		}
		if _, dup := seen[lower]; dup {
			continue
		}
		seen[lower] = struct{}{}

		tokens := strings.Fields(lower)
		ts.terms = append(ts.terms, term{
			text:    t,
			lower:   lower,
			compact: compact(lower),
			codes:   codesFor(tokens),
		})
		ts.maxWords = max(ts.maxWords, len(tokens))
	}
	return ts
}

// Len returns the number of distinct terms.
func (ts *Terms) Len() int {
	if ts == nil {
		return 0
	}
	return len(ts.terms)
}

// MaxWords returns the word count of the longest term.
func (ts *Terms) MaxWords() int {
	if ts == nil {
		return 0
	}
	return ts.maxWords
}

// Match returns the term that phrase most likely stands for. When ok is
// false, match is phrase unchanged and confidence is 0. A phrase that spells
// a term, ignoring case, spaces and punctuation, matches with confidence 1.
func (m *Matcher) Match(phrase string, ts *Terms) (match string, confidence float64, ok bool) {
	lower := strings.ToLower(strings.TrimSpace(phrase))
	if lower == "" || ts.Len() == 0 {
		return phrase, 0, false
	}
	tokens := strings.Fields(lower)
	joined := strings.Join(tokens, " ")
	flat := compact(joined)

	if letters(flat) < m.minLength {
		return phrase, 0, false
	}
	for _, t := range ts.terms {
		if t.lower == joined || (t.compact != "" && t.compact == flat) {
			return t.text, 1, true
		}
	}

	codes := codesFor(tokens)
	var (
		best         term
		bestScore    float64
		bestPhonetic bool
	)
	for _, t := range ts.terms {
		if skewed(flat, t.compact) {
			continue
		}
		score := matchr.JaroWinkler(joined, t.lower, false)
		if flat != joined || t.compact != t.lower {
			score = math.Max(score, matchr.JaroWinkler(flat, t.compact, false))
		}

		if overlaps(codes, t.codes) {
			if score >= m.phoneticThreshold && (!bestPhonetic || score > bestScore) {
				best, bestScore, bestPhonetic = t, score, true
			}
			continue
		}
		if !bestPhonetic && score >= m.fuzzyThreshold && score > bestScore {
			best, bestScore = t, score
		}
	}
	if best.text == "" {
		return phrase, 0, false
	}
	return best.text, bestScore, true
}

// compact drops everything but letters and digits.
func compact(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

func letters(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}

// skewed reports whether a and b differ in length by more than the allowed
// share of the longer one.
func skewed(a, b string) bool {
	la, lb := len([]rune(a)), len([]rune(b))
	longest := max(la, lb)
	if longest == 0 {
		return true
	}
	return float64(abs(la-lb))/float64(longest) > defaultMaxSkew
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// codesFor returns the union of the Double Metaphone codes of tokens.
func codesFor(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func overlaps(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

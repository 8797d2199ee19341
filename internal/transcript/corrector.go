package transcript

import (
	"log/slog"
	"strings"
	"sync"
	"unicode"

	"github.com/MrWong99/parley/internal/transcript/phonetic"
)

// CommonTopic is the vocabulary key whose terms apply to every topic.
const CommonTopic = "*"

// Option configures a [Vocabulary].
type Option func(*Vocabulary)

// WithMatcher replaces the default phonetic matcher.
func WithMatcher(m PhoneticMatcher) Option {
	return func(v *Vocabulary) { v.matcher = m }
}

// Vocabulary corrects recognised answers against per-topic term lists.
// Topics are matched case-insensitively; terms listed under [CommonTopic]
// are added to every topic. It is safe for concurrent use, and [Update] may
// be called while answers are being corrected.
type Vocabulary struct {
	matcher PhoneticMatcher

	mu     sync.RWMutex
	topics map[string]*phonetic.Terms
	common *phonetic.Terms
}

// NewVocabulary builds a vocabulary from topic → terms.
func NewVocabulary(terms map[string][]string, opts ...Option) *Vocabulary {
	v := &Vocabulary{matcher: phonetic.New()}
	for _, o := range opts {
		o(v)
	}
	v.Update(terms)
	return v
}

// Update replaces all term lists.
func (v *Vocabulary) Update(terms map[string][]string) {
	common := terms[CommonTopic]
	topics := make(map[string]*phonetic.Terms, len(terms))
	for topic, list := range terms {
		if topic == CommonTopic {
			continue
		}
		key := topicKey(topic)
		merged := make([]string, 0, len(list)+len(common))
		merged = append(merged, list...)
		merged = append(merged, common...)
		topics[key] = phonetic.Prepare(merged)
	}

	v.mu.Lock()
	v.topics = topics
	v.common = phonetic.Prepare(common)
	v.mu.Unlock()
}

// Topics returns the number of topics with their own term list.
func (v *Vocabulary) Topics() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.topics)
}

// Correct returns text with misrecognised terms of topic replaced.
func (v *Vocabulary) Correct(topic, text string) string {
	res := v.Apply(topic, text)
	if len(res.Corrections) > 0 {
		slog.Debug("transcript: vocabulary corrections applied",
			"topic", topic,
			"count", len(res.Corrections),
			"corrected", res.Corrected,
		)
	}
	return res.Corrected
}

// Apply corrects text and reports every substitution.
//
// The text is split into words. At each position, windows of up to one word
// more than the longest term are compared, since recognisers tend to split a
// term into more words than it has. The best-scoring window wins and longer
// windows win ties, unless a shorter window inside it matches the same term
// at least as well. Punctuation around a replaced window is kept.
func (v *Vocabulary) Apply(topic, text string) Result {
	res := Result{Original: text, Corrected: text, Corrections: []Correction{}}

	terms := v.termsFor(topic)
	if terms.Len() == 0 {
		return res
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return res
	}

	cores := make([]string, len(words))
	for i, w := range words {
		cores[i] = strings.TrimFunc(w, isPunct)
	}

	match := func(from, to int) (string, float64, bool) {
		phrase := strings.Join(cores[from:to], " ")
		if strings.TrimSpace(phrase) == "" {
			return "", 0, false
		}
		return v.matcher.Match(phrase, terms)
	}
	// covered reports whether the window minus its first or last word already
	// matches term as well, i.e. that word is not part of the term.
	covered := func(from, to int, term string, score float64) bool {
		for _, w := range [][2]int{{from + 1, to}, {from, to - 1}} {
			if m, s, ok := match(w[0], w[1]); ok && m == term && s >= score {
				return true
			}
		}
		return false
	}

	maxWindow := terms.MaxWords() + 1
	out := make([]string, 0, len(words))
	for i := 0; i < len(words); {
		bestN, bestScore, bestTerm := 0, 0.0, ""
		for n := min(maxWindow, len(words)-i); n >= 1; n-- {
			term, score, ok := match(i, i+n)
			if !ok || score <= bestScore {
				continue
			}
			if n > 1 && covered(i, i+n, term, score) {
				continue
			}
			bestN, bestScore, bestTerm = n, score, term
		}

		if bestN == 0 {
			out = append(out, words[i])
			i++
			continue
		}

		original := strings.Join(cores[i:i+bestN], " ")
		lead := leading(words[i])
		trail := trailing(words[i+bestN-1])
		out = append(out, lead+bestTerm+trail)
		if original != bestTerm {
			res.Corrections = append(res.Corrections, Correction{
				Original:   original,
				Corrected:  bestTerm,
				Confidence: bestScore,
			})
		}
		i += bestN
	}

	res.Corrected = strings.Join(out, " ")
	return res
}

func (v *Vocabulary) termsFor(topic string) *phonetic.Terms {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if ts, ok := v.topics[topicKey(topic)]; ok {
		return ts
	}
	return v.common
}

func topicKey(topic string) string {
	return strings.ToLower(strings.TrimSpace(topic))
}

func isPunct(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '+' && r != '#'
}

func leading(w string) string {
	return w[:len(w)-len(strings.TrimLeftFunc(w, isPunct))]
}

func trailing(w string) string {
	return w[len(strings.TrimRightFunc(w, isPunct)):]
}

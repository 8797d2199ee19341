package dialogue

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MrWong99/parley/internal/session"
)

// Scorecard is the model's assessment of a whole interview.
type Scorecard struct {
	Clarity           int      `json:"clarity"`
	Relevance         int      `json:"relevance"`
	TechnicalAccuracy int      `json:"technicalAccuracy"`
	Confidence        int      `json:"confidence"`
	Feedback          []string `json:"feedback"`
	Improvements      []string `json:"improvements"`
	Strengths         []string `json:"strengths"`
	OverallAssessment string   `json:"overallAssessment"`
}

// Analysis reduces the scorecard to the persisted form. Score is the mean of
// the four dimensions.
func (s Scorecard) Analysis() *session.Analysis {
	return &session.Analysis{
		Score:             float64(s.Clarity+s.Relevance+s.TechnicalAccuracy+s.Confidence) / 4,
		Feedback:          s.Feedback,
		Improvements:      s.Improvements,
		Strengths:         s.Strengths,
		OverallAssessment: s.OverallAssessment,
	}
}

// parseScorecard decodes a model reply. Models often wrap JSON in a fenced
// block or add a sentence around it, so the outermost object is extracted
// first.
func parseScorecard(reply string) (Scorecard, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end < start {
		return Scorecard{}, fmt.Errorf("%w: no JSON object in reply", ErrMalformedAnalysis)
	}

	var raw struct {
		Clarity           *int     `json:"clarity"`
		Relevance         *int     `json:"relevance"`
		TechnicalAccuracy *int     `json:"technicalAccuracy"`
		Confidence        *int     `json:"confidence"`
		Feedback          []string `json:"feedback"`
		Improvements      []string `json:"improvements"`
		Strengths         []string `json:"strengths"`
		OverallAssessment string   `json:"overallAssessment"`
	}
	if err := json.Unmarshal([]byte(reply[start:end+1]), &raw); err != nil {
		return Scorecard{}, fmt.Errorf("%w: %w", ErrMalformedAnalysis, err)
	}

	dims := []struct {
		name string
		v    *int
	}{
		{"clarity", raw.Clarity},
		{"relevance", raw.Relevance},
		{"technicalAccuracy", raw.TechnicalAccuracy},
		{"confidence", raw.Confidence},
	}
	for _, d := range dims {
		if d.v == nil {
			return Scorecard{}, fmt.Errorf("%w: missing %s", ErrMalformedAnalysis, d.name)
		}
		if *d.v < 0 || *d.v > 100 {
			return Scorecard{}, fmt.Errorf("%w: %s %d out of range [0, 100]", ErrMalformedAnalysis, d.name, *d.v)
		}
	}

	return Scorecard{
		Clarity:           *raw.Clarity,
		Relevance:         *raw.Relevance,
		TechnicalAccuracy: *raw.TechnicalAccuracy,
		Confidence:        *raw.Confidence,
		Feedback:          raw.Feedback,
		Improvements:      raw.Improvements,
		Strengths:         raw.Strengths,
		OverallAssessment: raw.OverallAssessment,
	}, nil
}

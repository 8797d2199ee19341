package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked: interviews that
// are already running keep the settings they started with.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	InterviewChanged bool // topic, difficulty, duration, auto-listen, context or analysis defaults
	SpeechChanged    bool // language, rate or stop timeout

	// VocabularyTopics lists topics whose term list was added, removed or edited.
	VocabularyTopics []string
}

// Changed reports whether any hot-reloadable field differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.InterviewChanged || d.SpeechChanged || len(d.VocabularyTopics) > 0
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	d.InterviewChanged = old.Interview != new.Interview

	// Engine selection needs a restart; the remaining speech knobs apply to
	// the next interview.
	d.SpeechChanged = old.Speech.Language != new.Speech.Language ||
		old.Speech.Rate != new.Speech.Rate ||
		old.Speech.StopTimeout != new.Speech.StopTimeout

	for topic, oldTerms := range old.Vocabulary {
		newTerms, ok := new.Vocabulary[topic]
		if !ok || !slices.Equal(oldTerms, newTerms) {
			d.VocabularyTopics = append(d.VocabularyTopics, topic)
		}
	}
	for topic := range new.Vocabulary {
		if _, ok := old.Vocabulary[topic]; !ok {
			d.VocabularyTopics = append(d.VocabularyTopics, topic)
		}
	}
	slices.Sort(d.VocabularyTopics)

	return d
}

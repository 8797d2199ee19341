package speech

import "strings"

// preferredVoiceMarkers flag the higher quality voices most hosts ship.
var preferredVoiceMarkers = []string{"natural", "premium", "neural"}

// SelectVoice picks the voice to speak with. In order of preference: a
// natural/premium/neural voice in language, any natural/premium/neural
// voice, any voice in language, the first voice. An empty list returns
// [ErrNoVoiceAvailable].
func SelectVoice(voices []Voice, language string) (Voice, error) {
	if len(voices) == 0 {
		return Voice{}, ErrNoVoiceAvailable
	}

	passes := []func(Voice) bool{
		func(v Voice) bool { return isPreferred(v) && languageMatches(v.Language, language) },
		isPreferred,
		func(v Voice) bool { return languageMatches(v.Language, language) },
	}
	for _, match := range passes {
		for _, v := range voices {
			if match(v) {
				return v, nil
			}
		}
	}
	return voices[0], nil
}

func isPreferred(v Voice) bool {
	name := strings.ToLower(v.Name)
	for _, m := range preferredVoiceMarkers {
		if strings.Contains(name, m) {
			return true
		}
	}
	return false
}

// languageMatches compares BCP 47 tags case-insensitively. A bare primary
// subtag on either side ("en") matches any region of that language.
func languageMatches(have, want string) bool {
	if have == "" || want == "" {
		return false
	}
	have = strings.ReplaceAll(have, "_", "-")
	want = strings.ReplaceAll(want, "_", "-")
	if strings.EqualFold(have, want) {
		return true
	}
	hp, _, hasRegionH := strings.Cut(have, "-")
	wp, _, hasRegionW := strings.Cut(want, "-")
	if !strings.EqualFold(hp, wp) {
		return false
	}
	return !hasRegionH || !hasRegionW
}

package narrative

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// FuzzyMatcher resolves misspelled or partial names ("Mirah", "Lord Aldrc")
// against roster names. A name is a candidate when any of its words shares a
// Double Metaphone code with the phrase; candidates are ranked by
// Jaro-Winkler similarity.
type FuzzyMatcher struct {
	// MinScore is the lowest Jaro-Winkler score accepted.
	MinScore float64
}

// NewFuzzyMatcher returns a matcher with a conservative threshold.
func NewFuzzyMatcher() *FuzzyMatcher {
	return &FuzzyMatcher{MinScore: 0.85}
}

// Match returns the best-scoring phonetic candidate in names.
func (f *FuzzyMatcher) Match(phrase string, names []string) (string, bool) {
	tokens := strings.Fields(strings.ToLower(phrase))
	if len(tokens) == 0 {
		return "", false
	}
	codes := metaphoneCodes(tokens)

	best, bestScore := "", 0.0
	for _, name := range names {
		nameTokens := strings.Fields(strings.ToLower(name))
		if len(nameTokens) == 0 || !sharesCode(codes, metaphoneCodes(nameTokens)) {
			continue
		}
		score := matchr.JaroWinkler(strings.Join(tokens, " "), strings.Join(nameTokens, " "), false)
		for _, t := range tokens {
			for _, n := range nameTokens {
				if s := matchr.JaroWinkler(t, n, false); s > score {
					score = s
				}
			}
		}
		if score >= f.MinScore && score > bestScore {
			best, bestScore = name, score
		}
	}
	return best, best != ""
}

func metaphoneCodes(tokens []string) map[string]bool {
	codes := make(map[string]bool, 2*len(tokens))
	for _, t := range tokens {
		if isStopword(t) {
			continue
		}
		primary, secondary := matchr.DoubleMetaphone(t)
		if primary != "" {
			codes[primary] = true
		}
		if secondary != "" {
			codes[secondary] = true
		}
	}
	return codes
}

func sharesCode(a, b map[string]bool) bool {
	for c := range a {
		if b[c] {
			return true
		}
	}
	return false
}

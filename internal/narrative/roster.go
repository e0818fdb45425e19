package narrative

import (
	"regexp"
	"strings"
	"unicode"
)

// maxTitleWords bounds how many words after a determiner are considered part
// of a descriptive title ("the tall old merchant").
const maxTitleWords = 4

// Character is a roster entry supplied by the world state.
type Character struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	// Voice overrides the voice derived from the description, if set.
	Voice string `json:"voice,omitempty" yaml:"voice,omitempty"`
}

// Gender infers the character's gender from its description.
func (c Character) Gender() Gender {
	return InferGender(c.Description)
}

// Voices holds the configured voice identifiers.
type Voices struct {
	Narrator string
	Player   string
	Male     string
	Female   string
}

// ForGender returns the default voice for g. Ungendered speakers get the
// male default.
func (v Voices) ForGender(g Gender) string {
	if g == GenderFemale {
		return v.Female
	}
	return v.Male
}

// ForCharacter returns c's explicit voice, or the gender default derived
// from its description.
func (v Voices) ForCharacter(c Character) string {
	if c.Voice != "" {
		return c.Voice
	}
	return v.ForGender(c.Gender())
}

// Roster is a case-insensitive index over the characters present for one
// narrative call. It is read-only after construction.
type Roster struct {
	order  []string
	byName map[string]Character
	descs  map[string]string
}

// NewRoster indexes people in the current area followed by the player's
// followers. A later entry with the same name replaces the earlier record
// but keeps its position.
func NewRoster(people, followers []Character) *Roster {
	r := &Roster{
		byName: make(map[string]Character, len(people)+len(followers)),
		descs:  make(map[string]string, len(people)+len(followers)),
	}
	for _, group := range [][]Character{people, followers} {
		for _, c := range group {
			key := normalizeKey(c.Name)
			if key == "" {
				continue
			}
			if _, exists := r.byName[key]; !exists {
				r.order = append(r.order, key)
			}
			r.byName[key] = c
			r.descs[key] = " " + normalizePhrase(c.Description) + " "
		}
	}
	return r
}

// Len returns the number of indexed characters.
func (r *Roster) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}

// Characters returns the characters in roster order.
func (r *Roster) Characters() []Character {
	if r == nil {
		return nil
	}
	out := make([]Character, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.byName[key])
	}
	return out
}

// Names returns the character names in roster order.
func (r *Roster) Names() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.byName[key].Name)
	}
	return out
}

// Lookup finds a character by name, ignoring case.
func (r *Roster) Lookup(name string) (Character, bool) {
	if r == nil {
		return Character{}, false
	}
	c, ok := r.byName[normalizeKey(name)]
	return c, ok
}

// FirstOfGender returns the first character whose description yields g.
func (r *Roster) FirstOfGender(g Gender) (Character, bool) {
	if r == nil || g == GenderNone {
		return Character{}, false
	}
	for _, key := range r.order {
		c := r.byName[key]
		if c.Gender() == g {
			return c, true
		}
	}
	return Character{}, false
}

// LookupTitle extracts descriptive noun phrases such as "the old merchant"
// from text and returns the first character whose description contains one
// of them. Longer phrases are tried before shorter ones; within a phrase,
// characters are tried in roster order.
func (r *Roster) LookupTitle(text string) (Character, bool) {
	if r.Len() == 0 {
		return Character{}, false
	}
	for _, phrase := range TitlePhrases(text) {
		needle := " " + phrase + " "
		for _, key := range r.order {
			if strings.Contains(r.descs[key], needle) {
				return r.byName[key], true
			}
		}
	}
	return Character{}, false
}

// LookupFuzzy matches phrase against roster names with m. It is only
// consulted after exact and title lookups fail.
func (r *Roster) LookupFuzzy(phrase string, m NameMatcher) (Character, bool) {
	if m == nil || r.Len() == 0 || isStopword(normalizeKey(phrase)) {
		return Character{}, false
	}
	name, ok := m.Match(phrase, r.Names())
	if !ok {
		return Character{}, false
	}
	return r.Lookup(name)
}

var (
	titleClauseBreak = regexp.MustCompile(`[,.;:!?"()\n]+`)
	titleWord        = regexp.MustCompile(`[\p{L}][\p{L}'’-]*`)
)

var determiners = map[string]bool{
	"the": true, "a": true, "an": true, "this": true, "that": true,
	"his": true, "her": true, "their": true, "its": true,
	"my": true, "your": true, "our": true,
}

// TitlePhrases returns candidate descriptive phrases found in text, in the
// order they should be tried. Each phrase is lower-cased, stripped of its
// determiner and never ends in a stopword.
func TitlePhrases(text string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(words []string) {
		p := strings.Join(words, " ")
		if seen[p] {
			return
		}
		if len(words) == 1 && (len(p) < 3 || isStopword(p)) {
			return
		}
		seen[p] = true
		out = append(out, p)
	}

	for _, clause := range titleClauseBreak.Split(text, -1) {
		words := titleWord.FindAllString(strings.ToLower(clause), -1)
		for i, w := range words {
			if !determiners[w] && !isPossessive(w) {
				continue
			}
			run := titleRun(words[i+1:])
			// Candidate phrases end at the noun; try every end position,
			// longest first, and every suffix ending there.
			for end := len(run); end > 0; end-- {
				for start := 0; start < end; start++ {
					add(run[start:end])
				}
			}
		}
	}
	return out
}

// titleRun collects up to maxTitleWords words following a determiner,
// stopping at the first stopword.
func titleRun(words []string) []string {
	var run []string
	for _, w := range words {
		if len(run) == maxTitleWords || isStopword(w) || determiners[w] {
			break
		}
		run = append(run, strings.TrimSuffix(strings.TrimSuffix(w, "'s"), "’s"))
	}
	return run
}

func isPossessive(w string) bool {
	return len(w) > 2 && (strings.HasSuffix(w, "'s") || strings.HasSuffix(w, "’s"))
}

var stopwords = func() map[string]bool {
	m := map[string]bool{}
	for _, w := range strings.Fields(`
		and or but then while before after as so because if when where
		with to at in on of from for by into onto toward towards over under
		is was were are be been being has had have do does did
		who whom whose which what
		he him his she her hers they them their it its you your i me my we us our
		not no yes very just still again also
		continue continues continued continuing add adds added adding
		resume resumes resumed resuming go goes went going on
		softly quietly loudly slowly quickly gently firmly`) {
		m[w] = true
	}
	for _, f := range speechVerbForms {
		m[f] = true
	}
	return m
}()

func isStopword(w string) bool {
	return stopwords[w]
}

// normalizeKey lower-cases and trims a name for map lookup.
func normalizeKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// normalizePhrase lower-cases s and replaces everything but letters, digits
// and apostrophes with single spaces, so phrases can be matched on word
// boundaries by plain containment.
func normalizePhrase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' || r == '’' || r == '-' {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

package narrative

import (
	"regexp"
	"strings"
)

// Well-known speakers that are not roster characters.
const (
	SpeakerNarrator = "narrator"
	SpeakerPlayer   = "player"
	SpeakerUnknown  = "unknown"
)

// UnknownSpeaker returns the tag used for a speaker whose gender is known
// but who matches no roster character, e.g. "unknown_female".
func UnknownSpeaker(g Gender) string {
	if g == GenderNone {
		return SpeakerUnknown
	}
	return SpeakerUnknown + "_" + string(g)
}

// Rule names the attribution rule that produced a speaker.
type Rule string

// Attribution rules in priority order.
const (
	RulePlayer           Rule = "player"
	RuleExplicitBefore   Rule = "explicit_before"
	RuleExplicitAfter    Rule = "explicit_after"
	RuleContinuation     Rule = "continuation"
	RuleTitle            Rule = "title"
	RuleGenderContinuity Rule = "gender_continuity"
	RuleGenderFallback   Rule = "gender_fallback"
	RuleFallback         Rule = "fallback"
)

// Quote is one quoted span together with the narration around it.
type Quote struct {
	// Text is the quoted speech without its quote marks.
	Text string
	// Before is the narration piece immediately preceding the quote.
	Before string
	// After is the narration piece immediately following the quote.
	After string
	// FollowsQuote reports whether Before sits between this quote and an
	// earlier one, in which case its first sentence tags the earlier quote.
	FollowsQuote bool
}

// Attribution is the resolved speaker of a quote.
type Attribution struct {
	Speaker string
	Voice   string
	Gender  Gender
	Rule    Rule
}

// NameMatcher finds the roster name closest to a phrase.
type NameMatcher interface {
	Match(phrase string, names []string) (string, bool)
}

// speechVerbForms are the inflections of say, reply, ask, shout, whisper,
// speak, mutter, call and murmur.
var speechVerbForms = []string{
	"say", "says", "said",
	"reply", "replies", "replied",
	"ask", "asks", "asked",
	"shout", "shouts", "shouted",
	"whisper", "whispers", "whispered",
	"speak", "speaks", "spoke",
	"mutter", "mutters", "muttered",
	"call", "calls", "called",
	"murmur", "murmurs", "murmured",
}

const (
	phraseWord = `[\p{L}][\p{L}'’-]*`
	connective = `(?:(?:and|then|while|before)\s+)?`

	// playerLead allows "you turn to Mira and whisper" as well as
	// "you quietly whisper": a short run of words, then a connective.
	playerLead = `(?:(?:[^.!?,"]{0,40}?\s+)?(?:and|then|while|before)\s+)?(?:\p{L}+ly\s+)?`

	// speechTail ends a clause after its speech verb: an optional adverb,
	// an optional "to the guard", then at most a comma or colon.
	speechTail = `\b(?:\s+\p{L}+ly)?(?:\s+(?:to|at|toward|towards|with|from)\b(?:\s+` + phraseWord + `){0,3})?\s*[,:]?\s*$`
)

var (
	verbAlt = `(?:` + strings.Join(speechVerbForms, "|") + `)`

	// "you" must open the clause or follow a comma or "and"/"then", so
	// "Mira turns to you and whispers" stays with Mira.
	playerBeforePattern = regexp.MustCompile(`(?i)(?:^|[,;]\s*|\b(?:and|then)\s+)you\s+` + playerLead + verbAlt + speechTail)
	playerAfterPattern  = regexp.MustCompile(`(?i)^[\s,]*you\s+` + connective + verbAlt + `\b`)

	// "<phrase> said [to the guard][,:]" at the end of the preceding clause.
	explicitBeforePattern = regexp.MustCompile(`(?i)(` + phraseWord + `(?:\s+` + phraseWord + `){0,4})\s+` +
		verbAlt + speechTail)

	// "said [the] <phrase>" at the start of the following clause.
	explicitAfterVerbFirst = regexp.MustCompile(`(?i)^[\s,]*(?:\p{L}+ly\s+)?` + verbAlt +
		`\s+((?:(?:the|his|her|their)\s+)?` + phraseWord + `(?:\s+` + phraseWord + `){0,3})`)

	// "<phrase> said" at the start of the following clause.
	explicitAfterNameFirst = regexp.MustCompile(`(?i)^[\s,]*(` + phraseWord + `(?:\s+` + phraseWord + `){0,4}?)\s+` + verbAlt + `\b`)

	continuationPattern = regexp.MustCompile(`(?i)\b(?:continue[sd]?|continuing|adds?|added|adding|resume[sd]?|resuming|go(?:es)?\s+on|went\s+on|going\s+on)\b`)

	clauseBreak = regexp.MustCompile(`[.!?\n]`)
)

// Resolver attributes quotes to speakers using an ordered chain of rules.
// The first rule that matches wins; the chain always ends in a fallback so
// resolution never fails.
type Resolver struct {
	voices  Voices
	matcher NameMatcher
	rules   []rule
}

type rule struct {
	name  Rule
	match func(*Resolver, *resolution) (Attribution, bool)
}

// resolution is the per-quote context shared by the rules.
type resolution struct {
	quote     Quote
	roster    *Roster
	last      Snapshot
	preceding string
	following string
}

// NewResolver creates a resolver. matcher may be nil to disable fuzzy name
// lookup.
func NewResolver(voices Voices, matcher NameMatcher) *Resolver {
	return &Resolver{
		voices:  voices,
		matcher: matcher,
		rules: []rule{
			{RulePlayer, (*Resolver).matchPlayer},
			{RuleExplicitBefore, (*Resolver).matchExplicitBefore},
			{RuleExplicitAfter, (*Resolver).matchExplicitAfter},
			{RuleContinuation, (*Resolver).matchContinuation},
			{RuleTitle, (*Resolver).matchTitle},
			{RuleGenderContinuity, (*Resolver).matchGenderContinuity},
			{RuleGenderFallback, (*Resolver).matchGenderFallback},
		},
	}
}

// Resolve attributes q and records the result in state.
func (r *Resolver) Resolve(q Quote, roster *Roster, state *State) Attribution {
	res := &resolution{
		quote:     q,
		roster:    roster,
		last:      state.Snapshot(),
		preceding: precedingClause(q.Before, q.FollowsQuote),
		following: followingClause(q.After),
	}

	attr, ok := Attribution{}, false
	for _, rl := range r.rules {
		if attr, ok = rl.match(r, res); ok {
			attr.Rule = rl.name
			break
		}
	}
	if !ok {
		attr = Attribution{Speaker: SpeakerUnknown, Voice: r.voices.Male, Rule: RuleFallback}
	}

	state.record(attr)
	return attr
}

func (r *Resolver) character(c Character) Attribution {
	return Attribution{Speaker: c.Name, Voice: r.voices.ForCharacter(c), Gender: c.Gender()}
}

func (r *Resolver) matchPlayer(res *resolution) (Attribution, bool) {
	// A finished sentence before the quote is never the player's tag line.
	before := !endsSentence(res.quote.Before) && playerBeforePattern.MatchString(res.preceding)
	if before || playerAfterPattern.MatchString(res.quote.After) {
		return Attribution{Speaker: SpeakerPlayer, Voice: r.voices.Player}, true
	}
	return Attribution{}, false
}

func (r *Resolver) matchExplicitBefore(res *resolution) (Attribution, bool) {
	m := explicitBeforePattern.FindStringSubmatch(res.preceding)
	if m == nil {
		return Attribution{}, false
	}
	return r.explicit(res, m[1], suffixes(phraseWords(m[1])))
}

func (r *Resolver) matchExplicitAfter(res *resolution) (Attribution, bool) {
	if m := explicitAfterVerbFirst.FindStringSubmatch(res.following); m != nil {
		words := phraseWords(m[1])
		if len(words) > 0 && determiners[strings.ToLower(words[0])] {
			words = words[1:]
		}
		if a, ok := r.explicit(res, m[1], prefixes(words)); ok {
			return a, true
		}
	}
	if m := explicitAfterNameFirst.FindStringSubmatch(res.following); m != nil {
		return r.explicit(res, m[1], suffixes(phraseWords(m[1])))
	}
	return Attribution{}, false
}

// explicit resolves a captured attribution phrase by name, then by
// descriptive title, then fuzzily. A speaker who is merely addressed inside
// the quote is rejected.
func (r *Resolver) explicit(res *resolution, phrase string, candidates []string) (Attribution, bool) {
	accept := func(c Character) (Attribution, bool) {
		if addressedInQuote(c.Name, res.quote.Text) {
			return Attribution{}, false
		}
		return r.character(c), true
	}

	for _, cand := range candidates {
		if c, ok := res.roster.Lookup(cand); ok {
			return accept(c)
		}
	}
	if c, ok := res.roster.LookupTitle(phrase); ok {
		return accept(c)
	}
	if r.matcher != nil {
		for _, cand := range candidates {
			if c, ok := res.roster.LookupFuzzy(cand, r.matcher); ok {
				return accept(c)
			}
		}
	}
	return Attribution{}, false
}

func (r *Resolver) matchContinuation(res *resolution) (Attribution, bool) {
	if !continuationPattern.MatchString(res.preceding + " " + res.following) {
		return Attribution{}, false
	}
	c, ok := res.roster.Lookup(res.last.LastSpeaker)
	if res.last.LastSpeaker == "" || !ok {
		return Attribution{}, false
	}
	return r.character(c), true
}

func (r *Resolver) matchTitle(res *resolution) (Attribution, bool) {
	for _, clause := range []string{res.preceding, res.following} {
		if c, ok := res.roster.LookupTitle(clause); ok {
			return r.character(c), true
		}
	}
	return Attribution{}, false
}

func (r *Resolver) matchGenderContinuity(res *resolution) (Attribution, bool) {
	if res.last.LastSpeaker == "" {
		return Attribution{}, false
	}
	c, ok := res.roster.Lookup(res.last.LastSpeaker)
	if !ok {
		return Attribution{}, false
	}
	g := InferGender(res.preceding + " " + res.following)
	if g != GenderNone && g != c.Gender() {
		return Attribution{}, false
	}
	return r.character(c), true
}

func (r *Resolver) matchGenderFallback(res *resolution) (Attribution, bool) {
	g := InferGender(res.preceding + " " + res.following)
	if g == GenderNone {
		return Attribution{}, false
	}
	if c, ok := res.roster.FirstOfGender(g); ok {
		return r.character(c), true
	}
	return Attribution{Speaker: UnknownSpeaker(g), Voice: r.voices.ForGender(g), Gender: g}, true
}

// precedingClause returns the sentence fragment right before a quote. When
// the narration ends on a sentence break, the last full sentence is used
// instead, unless it is the only sentence between two quotes and therefore
// belongs to the earlier one.
func precedingClause(before string, followsQuote bool) string {
	parts := clauseBreak.Split(before, -1)
	if last := parts[len(parts)-1]; strings.TrimSpace(last) != "" {
		return strings.TrimSpace(last)
	}
	var nonBlank []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			nonBlank = append(nonBlank, strings.TrimSpace(p))
		}
	}
	if len(nonBlank) == 0 || (followsQuote && len(nonBlank) == 1) {
		return ""
	}
	return nonBlank[len(nonBlank)-1]
}

// endsSentence reports whether text ends on a sentence terminator.
func endsSentence(text string) bool {
	text = strings.TrimRight(text, " \t\r\n")
	return text != "" && strings.ContainsAny(text[len(text)-1:], ".!?")
}

// followingClause returns the sentence fragment right after a quote.
func followingClause(after string) string {
	if loc := clauseBreak.FindStringIndex(after); loc != nil {
		after = after[:loc[0]]
	}
	return strings.TrimSpace(after)
}

// phraseWords splits a captured phrase into words, dropping trailing
// lower-case adverbs ("quietly") and connectives ("and") that sit between a
// name and its verb.
func phraseWords(phrase string) []string {
	words := strings.Fields(phrase)
	for len(words) > 1 {
		w := words[len(words)-1]
		lw := strings.ToLower(w)
		if !(lw == w && strings.HasSuffix(lw, "ly")) && lw != "and" && lw != "then" {
			break
		}
		words = words[:len(words)-1]
	}
	return words
}

// suffixes returns "a b c", "b c", "c".
func suffixes(words []string) []string {
	out := make([]string, 0, len(words))
	for i := range words {
		out = append(out, strings.Join(words[i:], " "))
	}
	return out
}

// prefixes returns "a b c", "a b", "a".
func prefixes(words []string) []string {
	out := make([]string, 0, len(words))
	for i := len(words); i > 0; i-- {
		out = append(out, strings.Join(words[:i], " "))
	}
	return out
}

// addressedInQuote reports whether name appears in the quote other than as
// "is NAME" or "NAME's", which suggests the quote talks to or about that
// character rather than being spoken by them.
func addressedInQuote(name, quote string) bool {
	if name == "" {
		return false
	}
	lq := strings.ToLower(quote)
	ln := strings.ToLower(name)
	for from := 0; ; {
		i := strings.Index(lq[from:], ln)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(ln)
		from = end
		if !wordBoundary(lq, start, end) {
			continue
		}
		if strings.HasSuffix(strings.TrimRight(lq[:start], " "), " is") || strings.TrimRight(lq[:start], " ") == "is" {
			continue
		}
		if strings.HasPrefix(lq[end:], "'s") || strings.HasPrefix(lq[end:], "’s") {
			continue
		}
		return true
	}
}

func wordBoundary(s string, start, end int) bool {
	isWord := func(b byte) bool {
		return b == '_' || b == '\'' || (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9') || b >= 0x80
	}
	if start > 0 && isWord(s[start-1]) {
		return false
	}
	if end < len(s) && isWord(s[end]) && !strings.HasPrefix(s[end:], "'s") {
		return false
	}
	return true
}

package narrative

import (
	"regexp"
	"strings"
)

// Kind distinguishes narration from quoted dialogue.
type Kind string

const (
	KindNarration Kind = "narration"
	KindQuote     Kind = "quote"
)

// Segment is one contiguous unit of narration or dialogue with its speaker
// and voice.
type Segment struct {
	Text    string `json:"text"`
	Kind    Kind   `json:"kind"`
	Speaker string `json:"speaker"`
	Voice   string `json:"voice"`
	// Rule is the attribution rule for quotes; empty for narration.
	Rule Rule `json:"rule,omitempty"`
}

var (
	curlyQuotes = strings.NewReplacer("“", `"`, "”", `"`, "„", `"`, "‟", `"`)

	horizontalSpace = regexp.MustCompile(`[ \t]+`)
)

// Segmenter turns narrative prose into an ordered list of attributed
// segments. It is safe for concurrent use; calls sharing a State are
// serialized.
type Segmenter struct {
	voices    Voices
	maxLength int
	resolver  *Resolver
	onAttr    func(Attribution)
}

// NewSegmenter creates a segmenter. maxLength is the longest segment, in
// characters, handed to the synthesizer; values below 1 disable chunking.
// matcher may be nil.
func NewSegmenter(voices Voices, maxLength int, matcher NameMatcher) *Segmenter {
	return &Segmenter{
		voices:    voices,
		maxLength: maxLength,
		resolver:  NewResolver(voices, matcher),
	}
}

// SetAttributionHook registers fn to be called for every resolved quote.
// It must be set before the segmenter is used.
func (s *Segmenter) SetAttributionHook(fn func(Attribution)) {
	s.onAttr = fn
}

// Segment splits text, attributes every quote, merges neighbours that share
// a speaker and breaks oversized segments into synthesizer-sized chunks.
func (s *Segmenter) Segment(text string, roster *Roster, state *State) []Segment {
	segs := mergeSegments(s.Attribute(text, roster, state))
	if s.maxLength < 1 {
		return segs
	}

	out := make([]Segment, 0, len(segs))
	for _, seg := range segs {
		if runeLen(seg.Text) <= s.maxLength {
			out = append(out, seg)
			continue
		}
		for _, chunk := range ChunkText(seg.Text, s.maxLength) {
			c := seg
			c.Text = chunk
			out = append(out, c)
		}
	}
	return out
}

// Attribute returns the segments before merging and chunking, one per
// non-blank piece of text. Quotes are resolved left to right and state is
// updated as they are.
func (s *Segmenter) Attribute(text string, roster *Roster, state *State) []Segment {
	state.call.Lock()
	defer state.call.Unlock()

	// After trimming, the text splits so that quoted pieces always sit at odd
	// indices: a leading quote yields an empty narration piece first.
	pieces := strings.Split(strings.TrimSpace(normalizeQuotes(text)), `"`)

	var segs []Segment
	for i, piece := range pieces {
		if strings.TrimSpace(piece) == "" {
			continue
		}
		body := strings.Trim(piece, " \t")

		if i%2 == 0 {
			segs = append(segs, Segment{
				Text:    body,
				Kind:    KindNarration,
				Speaker: SpeakerNarrator,
				Voice:   s.voices.Narrator,
			})
			continue
		}

		q := Quote{Text: body, FollowsQuote: i >= 2}
		q.Before = pieces[i-1]
		if i+1 < len(pieces) {
			q.After = pieces[i+1]
		}
		attr := s.resolver.Resolve(q, roster, state)
		if s.onAttr != nil {
			s.onAttr(attr)
		}
		segs = append(segs, Segment{
			Text:    `"` + body + `"`,
			Kind:    KindQuote,
			Speaker: attr.Speaker,
			Voice:   attr.Voice,
			Rule:    attr.Rule,
		})
	}
	return segs
}

// normalizeQuotes straightens curly quotes, collapses runs of spaces and
// removes the spaces just inside each pair of quote marks, so `“ Hi. ”`
// becomes `"Hi."`.
func normalizeQuotes(text string) string {
	text = curlyQuotes.Replace(text)
	text = horizontalSpace.ReplaceAllString(text, " ")
	pieces := strings.Split(text, `"`)
	for i := 1; i < len(pieces); i += 2 {
		pieces[i] = strings.Trim(pieces[i], " \t")
	}
	return strings.Join(pieces, `"`)
}

// mergeSegments joins consecutive segments of the same kind and speaker.
func mergeSegments(segs []Segment) []Segment {
	var out []Segment
	for _, seg := range segs {
		n := len(out)
		if n == 0 || out[n-1].Kind != seg.Kind || out[n-1].Speaker != seg.Speaker {
			out = append(out, seg)
			continue
		}
		sep := " "
		if seg.Kind == KindQuote && strings.HasSuffix(out[n-1].Text, "\n") {
			sep = ""
		}
		out[n-1].Text += sep + seg.Text
	}
	return out
}

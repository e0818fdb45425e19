package narrative

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// sentencePattern matches a run of text up to and including its terminal
// punctuation and any closing quotes, or the unterminated remainder.
var sentencePattern = regexp.MustCompile(`[^.!?]*[.!?]+["”')\]]*\s*|[^.!?]+$`)

// ChunkText splits text into pieces of at most max characters. It breaks on
// sentence boundaries first, then on commas, then on whitespace, and only
// cuts inside a word when a single word is longer than max. Pieces are
// trimmed; joining them with spaces restores the original words in order.
func ChunkText(text string, max int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if max < 1 || runeLen(text) <= max {
		return []string{text}
	}
	return pack(sentencePattern.FindAllString(text, -1), max, splitClauses)
}

func splitClauses(sentence string, max int) []string {
	return pack(strings.SplitAfter(sentence, ","), max, splitWords)
}

func splitWords(clause string, max int) []string {
	return pack(strings.Fields(clause), max, cutRunes)
}

func cutRunes(word string, max int) []string {
	var out []string
	runes := []rune(word)
	for len(runes) > max {
		out = append(out, string(runes[:max]))
		runes = runes[max:]
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}

// pack greedily joins consecutive units with single spaces while the result
// fits in max. A unit that alone exceeds max is handed to finer.
func pack(units []string, max int, finer func(string, int) []string) []string {
	var chunks []string
	var cur strings.Builder
	curLen := 0

	flush := func() {
		if curLen > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curLen = 0
		}
	}

	for _, u := range units {
		u = strings.TrimSpace(u)
		n := runeLen(u)
		switch {
		case n == 0:
			continue
		case n > max:
			flush()
			chunks = append(chunks, finer(u, max)...)
		case curLen == 0:
			cur.WriteString(u)
			curLen = n
		case curLen+1+n <= max:
			cur.WriteByte(' ')
			cur.WriteString(u)
			curLen += 1 + n
		default:
			flush()
			cur.WriteString(u)
			curLen = n
		}
	}
	flush()
	return chunks
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

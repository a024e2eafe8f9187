package extract

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// TruncationMarker is appended whenever Truncate shortens a text.
const TruncationMarker = "…"

// sentenceEnds lists the sentence terminators Truncate recognizes, covering
// both ASCII and CJK punctuation.
const sentenceEnds = ".!?。！？"

// Truncate caps s at max runes without splitting a word. It prefers to cut
// at a paragraph break, then at a sentence end, when one lands in the back
// half of the window; failing that it cuts at the last whitespace wherever
// it sits. Only boundary-free text is cut hard. A truncated result always
// ends with TruncationMarker.
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	cut := string(runes[:max])
	half := len(cut) / 2

	if i := strings.LastIndex(cut, "\n\n"); i >= half {
		return strings.TrimRight(cut[:i], " \t\n") + TruncationMarker
	}
	if i := lastSentenceEnd(cut); i >= half {
		return strings.TrimRight(cut[:i], " \t\n") + TruncationMarker
	}
	if i := strings.LastIndexFunc(cut, unicode.IsSpace); i >= 0 {
		return strings.TrimRight(cut[:i], " \t\n") + TruncationMarker
	}
	return cut + TruncationMarker
}

// lastSentenceEnd returns the byte offset just past the last sentence
// terminator in s, or -1.
func lastSentenceEnd(s string) int {
	i := strings.LastIndexAny(s, sentenceEnds)
	if i < 0 {
		return -1
	}
	_, w := utf8.DecodeRuneInString(s[i:])
	return i + w
}

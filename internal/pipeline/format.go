package pipeline

import "strings"

// DefaultMinSentenceLength rejects terminators found too early, e.g. inside
// an abbreviation like "N.B." at the start of an answer.
const DefaultMinSentenceLength = 50

const ellipsis = "..."

// Format trims raw to at most maxLength characters, preferring to end on a
// sentence boundary.
func Format(raw string, maxLength int) string {
	return FormatWithThreshold(raw, maxLength, DefaultMinSentenceLength)
}

// FormatWithThreshold is Format with an explicit minimum sentence length.
// Lengths are counted in runes. It never panics and never returns more than
// maxLength runes.
func FormatWithThreshold(raw string, maxLength, minSentence int) string {
	if maxLength <= 0 {
		return ""
	}
	runes := []rune(raw)
	if len(runes) <= maxLength {
		return raw
	}

	prefix := runes[:maxLength]
	if cut := lastTerminator(prefix); cut > minSentence {
		return string(prefix[:cut+1])
	}

	if maxLength <= len(ellipsis) {
		return string(prefix)
	}
	return string(runes[:maxLength-len(ellipsis)]) + ellipsis
}

func lastTerminator(rs []rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if strings.ContainsRune(".!?", rs[i]) {
			return i
		}
	}
	return -1
}

package generation

import (
	"strings"
	"unicode/utf8"
)

// sentenceDelimiter marks the end of the first complete sentence in a continuation.
const sentenceDelimiter = ". "

// ExtractSentence reduces a decoded continuation to a single sentence that can
// be appended to the passage as-is. A leading copy of context is removed, the
// text is cut after the first ". ", and a period is added when the remainder
// lacks terminal punctuation. An empty continuation stays empty.
func ExtractSentence(context, text string) string {
	s := text
	if strings.HasPrefix(s, context) {
		s = s[len(context):]
	}
	s = strings.TrimSpace(s)

	if i := strings.Index(s, sentenceDelimiter); i >= 0 {
		return strings.TrimSpace(s[:i] + ".")
	}
	if s == "" {
		return s
	}
	if last, _ := utf8.DecodeLastRuneInString(s); !strings.ContainsRune(".!?", last) {
		s += "."
	}
	return s
}

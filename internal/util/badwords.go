package util

import (
	"strings"
	"unicode"
)

// WordFilter rejects nicknames containing any configured word. Matching is
// case-insensitive and ignores characters that are not letters or digits, so
// "b.a.d" still matches "bad".
type WordFilter struct {
	words []string
}

func NewWordFilter(words []string) *WordFilter {
	filter := &WordFilter{}
	for _, word := range words {
		folded := fold(word)
		if folded != "" {
			filter.words = append(filter.words, folded)
		}
	}
	return filter
}

func (f *WordFilter) Contains(text string) bool {
	if f == nil || len(f.words) == 0 {
		return false
	}

	folded := fold(text)
	for _, word := range f.words {
		if strings.Contains(folded, word) {
			return true
		}
	}
	return false
}

func fold(text string) string {
	builder := strings.Builder{}
	for _, char := range strings.ToLower(text) {
		if unicode.IsLetter(char) || unicode.IsDigit(char) {
			builder.WriteRune(char)
		}
	}
	return builder.String()
}

// Package fallback implements the local, network-independent responder used
// when the remote model cannot be reached: text normalization, keyword
// severity scoring and tiered canned replies.
package fallback

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Normalize lowercases text, strips punctuation and symbols, and drops stop
// words and single-character tokens.
func Normalize(text string) []string {
	if text == "" {
		return nil
	}

	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, text)

	fields := strings.Fields(cleaned)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if utf8.RuneCountInString(f) <= 1 {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

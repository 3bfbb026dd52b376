package usecase

import (
	"strings"
	"unicode"
)

const minTermRunes = 3

// TermExtractor turns free text into significant full-text terms.
type TermExtractor struct {
	stopWords map[string]struct{}
}

func NewTermExtractor(stopWords ...[]string) *TermExtractor {
	set := make(map[string]struct{}, 256)
	for _, list := range stopWords {
		for _, w := range list {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" {
				set[w] = struct{}{}
			}
		}
	}
	return &TermExtractor{stopWords: set}
}

// Extract lower-cases the text, drops everything except letters, digits,
// whitespace and hyphens, splits on whitespace and hyphens, and removes short
// tokens and stop words. Order of first occurrence is kept; duplicates are dropped.
func (e *TermExtractor) Extract(text string) []string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '-' || unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}

	fields := strings.Fields(b.String())
	out := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < minTermRunes {
			continue
		}
		if _, stop := e.stopWords[f]; stop {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// substringTokens splits the raw query for the last-resort scan.
func substringTokens(query string) []string {
	fields := strings.Fields(query)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) > 2 {
			out = append(out, f)
		}
	}
	return out
}

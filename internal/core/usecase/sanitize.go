package usecase

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/catalog-search/internal/core/domain"
)

const (
	handlePrefix     = "Doc "
	minRedactedRunes = 3
)

var urlPattern = regexp.MustCompile(`(?i)\b(?:https?://|ftp://|www\.)\S+`)

// Sanitize reduces records to their free-text fields and assigns sequential
// anonymous handles. Records without free text are skipped. The returned map
// resolves handles back to record ids and must not outlive the rerank call.
func Sanitize(records []domain.Record) ([]domain.SanitizedDocument, map[string]int64) {
	docs := make([]domain.SanitizedDocument, 0, len(records))
	handles := make(map[string]int64, len(records))
	for _, record := range records {
		text := sanitizedText(record)
		if text == "" {
			continue
		}
		handle := fmt.Sprintf("%s%d", handlePrefix, len(docs)+1)
		docs = append(docs, domain.SanitizedDocument{Handle: handle, Text: text})
		handles[handle] = record.ID
	}
	return docs, handles
}

// sanitizedText is the only place record content is turned into text for
// external models. Only descriptions are read; URLs and any mention of the
// record's title, owner, partner or data source inside them are dropped.
func sanitizedText(record domain.Record) string {
	names := namePattern(record.Title, record.Owner, record.Partner, record.DataSource)
	parts := make([]string, 0, 2)
	for _, field := range []string{record.ShortDescription, record.LongDescription} {
		field = strings.TrimSpace(stripURLs(redact(field, names)))
		if field != "" {
			parts = append(parts, field)
		}
	}
	return strings.Join(parts, "\n\n")
}

// namePattern matches any of the names as a whole word, ignoring case.
// Longer names are tried first. It returns nil when no name is long enough.
func namePattern(names ...string) *regexp.Regexp {
	quoted := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if utf8.RuneCountInString(name) < minRedactedRunes {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(name))
	}
	if len(quoted) == 0 {
		return nil
	}
	sort.SliceStable(quoted, func(i, j int) bool {
		return len(quoted[i]) > len(quoted[j])
	})
	return regexp.MustCompile(`(?i)(^|[^\p{L}\p{N}_])(?:` + strings.Join(quoted, "|") + `)([^\p{L}\p{N}_]|$)`)
}

// redact removes every whole-word match of names. A match consumes the
// separator after it, so the pass repeats until adjacent mentions are gone.
func redact(s string, names *regexp.Regexp) string {
	if names == nil || s == "" {
		return s
	}
	for {
		next := names.ReplaceAllString(s, "${1}${2}")
		if next == s {
			return s
		}
		s = next
	}
}

func stripURLs(s string) string {
	if s == "" {
		return s
	}
	return strings.Join(strings.Fields(urlPattern.ReplaceAllString(s, "")), " ")
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/catalog-search/internal/core/ports"
)

const (
	latinShareThreshold = 0.7
	minSpellcheckRunes  = 4
)

// QueryNormalizer translates non-English queries and fixes typos. Both steps
// are best-effort: any failure keeps the text it was given.
type QueryNormalizer struct {
	generator      ports.TextGenerator
	targetLanguage string
	observer       ports.SearchObserver
}

func NewQueryNormalizer(generator ports.TextGenerator, targetLanguage string, observer ports.SearchObserver) *QueryNormalizer {
	if strings.TrimSpace(targetLanguage) == "" {
		targetLanguage = "English"
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &QueryNormalizer{
		generator:      generator,
		targetLanguage: targetLanguage,
		observer:       observer,
	}
}

func (n *QueryNormalizer) Normalize(ctx context.Context, raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" || n.generator == nil {
		return text
	}
	text = n.translate(ctx, text)
	return n.correctSpelling(ctx, text)
}

func (n *QueryNormalizer) translate(ctx context.Context, text string) string {
	if latinShare(text) > latinShareThreshold {
		return text
	}
	instruction := fmt.Sprintf(
		"Translate the user's text to %s. Return only the translation, without quotes, notes or explanations.",
		n.targetLanguage,
	)
	out, ok := n.call(ctx, "translate", instruction, text)
	if !ok {
		return text
	}
	return out
}

func (n *QueryNormalizer) correctSpelling(ctx context.Context, text string) string {
	if utf8.RuneCountInString(text) < minSpellcheckRunes {
		return text
	}
	instruction := "Correct spelling mistakes and typos in the user's search query. " +
		"Keep domain vocabulary, acronyms, crop and technology names unchanged. " +
		"Do not rephrase or add words. Return only the corrected query."
	out, ok := n.call(ctx, "spellcheck", instruction, text)
	if !ok {
		return text
	}
	return out
}

func (n *QueryNormalizer) call(ctx context.Context, step, instruction, text string) (string, bool) {
	out, err := n.generator.Generate(ctx, instruction, text)
	if err != nil {
		slog.Warn("normalize_step_failed", "step", step, "error", err)
		n.observer.ObserveNormalization(step, true)
		return "", false
	}
	out = cleanModelText(out)
	if out == "" {
		slog.Warn("normalize_step_empty", "step", step)
		n.observer.ObserveNormalization(step, true)
		return "", false
	}
	n.observer.ObserveNormalization(step, false)
	return out, true
}

// latinShare is the fraction of all runes in text, whitespace and digits
// included, that are ASCII letters.
func latinShare(text string) float64 {
	total, letters := 0, 0
	for _, r := range text {
		total++
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			letters++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(letters) / float64(total)
}

func cleanModelText(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	return strings.Trim(s, "\"'`“”")
}

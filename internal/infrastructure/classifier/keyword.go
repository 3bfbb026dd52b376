package classifier

import (
	"strings"
	"unicode"

	"github.com/kirillkom/catalog-search/internal/core/domain"
)

var (
	highCostCues = []string{
		"expensive", "costly", "capital intensive", "high cost", "machinery", "tractor", "infrastructure",
		"greenhouse", "drone", "satellite", "laboratory", "construction", "equipment", "investment",
	}
	lowCostCues = []string{
		"low cost", "low-cost", "affordable", "cheap", "inexpensive", "free", "no cost", "locally available",
		"local materials", "homemade", "recycled", "manual", "simple tools",
	}
	highComplexityCues = []string{
		"technical expertise", "specialist", "engineering", "software", "sensor", "calibration", "certification",
		"laboratory", "genetic", "biotechnology", "advanced", "complex", "training required", "automation",
	}
	lowComplexityCues = []string{
		"simple", "easy", "no training", "basic", "straightforward", "hand", "manual", "traditional",
		"low maintenance", "community-led", "diy",
	}
)

// Keyword derives cost and complexity labels from cue phrases in a record's
// text and tags. It is deterministic and does no I/O.
type Keyword struct{}

func NewKeyword() Keyword {
	return Keyword{}
}

func (Keyword) Classify(rec domain.Record) domain.Labels {
	text := signalText(rec)

	cost := levelFromCues(countCues(text, highCostCues), countCues(text, lowCostCues))
	if rec.Grassroots && cost == domain.LevelMedium {
		cost = domain.LevelLow
	}

	complexity := levelFromCues(countCues(text, highComplexityCues), countCues(text, lowComplexityCues))
	if complexity == domain.LevelMedium && rec.AdoptionLevel >= 4 {
		complexity = domain.LevelLow
	}

	return domain.Labels{Cost: cost, Complexity: complexity}
}

func levelFromCues(high, low int) domain.Level {
	switch {
	case high > low:
		return domain.LevelHigh
	case low > high:
		return domain.LevelLow
	default:
		return domain.LevelMedium
	}
}

func countCues(text string, cues []string) int {
	n := 0
	for _, cue := range cues {
		if containsPhrase(text, cue) {
			n++
		}
	}
	return n
}

// containsPhrase matches cue on word boundaries so "hand" does not hit "handle".
func containsPhrase(text, phrase string) bool {
	for start := 0; start < len(text); {
		idx := strings.Index(text[start:], phrase)
		if idx < 0 {
			return false
		}
		idx += start
		end := idx + len(phrase)
		if boundary(text, idx-1) && boundary(text, end) {
			return true
		}
		start = idx + 1
	}
	return false
}

func boundary(text string, i int) bool {
	if i < 0 || i >= len(text) {
		return true
	}
	r := rune(text[i])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func signalText(rec domain.Record) string {
	var b strings.Builder
	b.WriteString(rec.Title)
	b.WriteByte(' ')
	b.WriteString(rec.ShortDescription)
	b.WriteByte(' ')
	b.WriteString(rec.LongDescription)
	for _, tag := range rec.TypeTags {
		b.WriteByte(' ')
		b.WriteString(tag)
	}
	for _, tag := range rec.UseCaseTags {
		b.WriteByte(' ')
		b.WriteString(tag)
	}
	return strings.ToLower(b.String())
}

package domain

import "strings"

const (
	MinScore     = 0
	MaxScore     = 100
	DefaultScore = 50
)

// SanitizedDocument is the only view of a record that leaves the process
// towards a ranking model. Handle is valid within a single rerank call.
type SanitizedDocument struct {
	Handle string
	Text   string
}

// ScoredResult is one entry of a final ranking.
type ScoredResult struct {
	RecordID int64 `json:"id"`
	Score    int   `json:"score"`
}

// VectorHit is a nearest neighbour returned by the vector index.
type VectorHit struct {
	RecordID int64
	Score    float64
}

type MatchMode string

const (
	MatchAll MatchMode = "all"
	MatchAny MatchMode = "any"
)

type RetrievalStage string

const (
	StageVector      RetrievalStage = "vector"
	StageFullTextAll RetrievalStage = "fulltext_all"
	StageFullTextAny RetrievalStage = "fulltext_any"
	StageSubstring   RetrievalStage = "substring"
	StageNone        RetrievalStage = "none"
)

// CandidateSet is the ordered output of retrieval. Order reflects retrieval
// relevance only.
type CandidateSet struct {
	Records []Record
	Stage   RetrievalStage
}

func (c CandidateSet) IDs() []int64 {
	out := make([]int64, 0, len(c.Records))
	for _, r := range c.Records {
		out = append(out, r.ID)
	}
	return out
}

type SearchRequest struct {
	Query  string `json:"query"`
	Offset int    `json:"offset"`
	Limit  int    `json:"limit"`
}

type SearchPage struct {
	Query   string           `json:"query"`
	Results []EnrichedRecord `json:"results"`
	HasMore bool             `json:"hasMore"`
	Total   int              `json:"total"`
}

// CacheKey returns the ranked-result cache key for a normalized query.
func CacheKey(normalizedQuery string) string {
	return strings.ToLower(strings.TrimSpace(normalizedQuery))
}

func ClampScore(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

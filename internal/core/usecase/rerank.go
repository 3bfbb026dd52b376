package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/kirillkom/catalog-search/internal/core/domain"
	"github.com/kirillkom/catalog-search/internal/core/ports"
)

const (
	rerankOutcomeModel    = "model"
	rerankOutcomeFallback = "fallback"
	rerankOutcomeEmpty    = "empty"
)

const rerankInstruction = `You rank catalog solutions for a person describing a problem.
Each document is an anonymous solution description labelled "Doc N".

Score every relevant document from 0 to 100 using this rubric:
- Relevance to the problem: 50%
- Affordability: 25%
- Simplicity of adoption: 25%

Score bands:
- 85-100: directly solves the problem and is affordable and simple to adopt
- 65-84: solves the problem with moderate cost or effort
- 40-64: partially relevant, or relevant but expensive or complex
- 0-39: barely related

Adjustments:
- Penalise documents that mention high capital cost, specialised equipment, laboratories, or expert operation.
- Boost documents that mention low cost, local materials, smallholder or community use, or no special skills.
- Prefer diversity: when two documents describe nearly the same solution, rank the weaker one clearly lower.

Return ONLY a JSON array sorted by score descending, for example:
[{"id": "Doc 3", "score": 92}, {"id": "Doc 1", "score": 71}]
Omit documents that are not related to the problem at all.`

type RerankConfig struct {
	DocChars   int
	MaxResults int
}

func DefaultRerankConfig() RerankConfig {
	return RerankConfig{
		DocChars:   600,
		MaxResults: 50,
	}
}

func (c RerankConfig) normalize() RerankConfig {
	def := DefaultRerankConfig()
	if c.DocChars <= 0 {
		c.DocChars = def.DocChars
	}
	if c.MaxResults <= 0 {
		c.MaxResults = def.MaxResults
	}
	return c
}

// Reranker scores sanitized candidates with a language model. It never fails:
// when the model is unavailable or its answer cannot be decoded, candidates
// keep retrieval order with a flat default score and Rerank reports false.
type Reranker struct {
	generator ports.TextGenerator
	cfg       RerankConfig
	observer  ports.SearchObserver
}

func NewReranker(generator ports.TextGenerator, cfg RerankConfig, observer ports.SearchObserver) *Reranker {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Reranker{
		generator: generator,
		cfg:       cfg.normalize(),
		observer:  observer,
	}
}

// Rerank returns the ranking and whether the model produced it. A false
// second value marks a degraded ranking that is good for this request only.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []domain.Record) ([]domain.ScoredResult, bool) {
	start := time.Now()

	docs, handles := Sanitize(candidates)
	if len(docs) == 0 {
		r.observer.ObserveRerank(rerankOutcomeEmpty, time.Since(start))
		return []domain.ScoredResult{}, false
	}

	results, err := r.rankWithModel(ctx, query, docs, handles)
	if err != nil {
		slog.Warn("rerank_fallback", "candidates", len(candidates), "error", err)
		r.observer.ObserveRerank(rerankOutcomeFallback, time.Since(start))
		return defaultRanking(candidates, r.cfg.MaxResults), false
	}

	r.observer.ObserveRerank(rerankOutcomeModel, time.Since(start))
	return results, true
}

func (r *Reranker) rankWithModel(
	ctx context.Context,
	query string,
	docs []domain.SanitizedDocument,
	handles map[string]int64,
) ([]domain.ScoredResult, error) {
	if r.generator == nil {
		return nil, fmt.Errorf("no ranking model configured")
	}

	raw, err := r.generator.GenerateJSON(ctx, rerankInstruction, buildRerankInput(query, docs, r.cfg.DocChars))
	if err != nil {
		return nil, fmt.Errorf("ranking model call: %w", err)
	}

	entries, err := decodeRanking(raw)
	if err != nil {
		return nil, err
	}

	results := resolveRanking(entries, handles)
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: no entry resolved to a candidate", errMalformedRanking)
	}
	return results, nil
}

func buildRerankInput(query string, docs []domain.SanitizedDocument, docChars int) string {
	var b strings.Builder
	b.WriteString("Problem description:\n")
	b.WriteString(strings.TrimSpace(query))
	b.WriteString("\n\nDocuments:\n")
	for _, doc := range docs {
		fmt.Fprintf(&b, "\n[%s]\n%s\n", doc.Handle, truncateRunes(doc.Text, docChars))
	}
	return b.String()
}

// resolveRanking maps handles back to record ids. Unknown handles are
// dropped, the first occurrence of an id wins, scores are clamped and a
// missing score becomes the default.
func resolveRanking(entries []rankEntry, handles map[string]int64) []domain.ScoredResult {
	lookup := make(map[string]int64, len(handles))
	for handle, id := range handles {
		lookup[handleKey(handle)] = id
	}

	seen := make(map[int64]struct{}, len(entries))
	out := make([]domain.ScoredResult, 0, len(entries))
	for _, entry := range entries {
		id, ok := lookup[handleKey(entry.Handle)]
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		out = append(out, domain.ScoredResult{RecordID: id, Score: entryScore(entry)})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// entryScore clamps a scored entry to the score range. Bare handles and
// scored entries without a usable score get the default.
func entryScore(entry rankEntry) int {
	if entry.Kind != rankEntryScored || entry.Score == nil || math.IsNaN(*entry.Score) {
		return domain.DefaultScore
	}
	return domain.ClampScore(int(math.Round(math.Max(-1, math.Min(*entry.Score, 101)))))
}

func defaultRanking(candidates []domain.Record, maxResults int) []domain.ScoredResult {
	out := make([]domain.ScoredResult, 0, min(len(candidates), maxResults))
	seen := make(map[int64]struct{}, len(candidates))
	for _, c := range candidates {
		if len(out) == maxResults {
			break
		}
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, domain.ScoredResult{RecordID: c.ID, Score: domain.DefaultScore})
	}
	return out
}

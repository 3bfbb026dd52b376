package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/kirillkom/catalog-search/internal/core/domain"
	"github.com/kirillkom/catalog-search/internal/core/ports"
)

var errStageTimeout = errors.New("retrieval stage timed out")

type RetrievalConfig struct {
	CandidateLimit   int
	VectorMaxResults int
	VectorTimeout    time.Duration
	MinAllHits       int
	SubstringLimit   int
}

func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		CandidateLimit:   200,
		VectorMaxResults: 100,
		VectorTimeout:    15 * time.Second,
		MinAllHits:       5,
		SubstringLimit:   50,
	}
}

func (c RetrievalConfig) normalize() RetrievalConfig {
	def := DefaultRetrievalConfig()
	if c.CandidateLimit <= 0 {
		c.CandidateLimit = def.CandidateLimit
	}
	if c.VectorMaxResults <= 0 {
		c.VectorMaxResults = def.VectorMaxResults
	}
	if c.VectorTimeout <= 0 {
		c.VectorTimeout = def.VectorTimeout
	}
	if c.MinAllHits <= 0 {
		c.MinAllHits = def.MinAllHits
	}
	if c.SubstringLimit <= 0 {
		c.SubstringLimit = def.SubstringLimit
	}
	return c
}

// CandidateRetriever walks the retrieval chain: vector similarity, then
// full-text (all terms, then any term), then a substring scan when the
// full-text index is failing. It never returns an error; an empty set means
// no results.
type CandidateRetriever struct {
	embedder ports.Embedder
	vectors  ports.VectorIndex
	catalog  ports.CatalogStore
	fullText ports.FullTextIndex
	terms    *TermExtractor
	cfg      RetrievalConfig
	observer ports.SearchObserver
}

// NewCandidateRetriever builds a retriever. embedder and vectors may be nil,
// in which case the vector stage is skipped.
func NewCandidateRetriever(
	embedder ports.Embedder,
	vectors ports.VectorIndex,
	catalog ports.CatalogStore,
	fullText ports.FullTextIndex,
	terms *TermExtractor,
	cfg RetrievalConfig,
	observer ports.SearchObserver,
) *CandidateRetriever {
	if terms == nil {
		terms = NewTermExtractor()
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &CandidateRetriever{
		embedder: embedder,
		vectors:  vectors,
		catalog:  catalog,
		fullText: fullText,
		terms:    terms,
		cfg:      cfg.normalize(),
		observer: observer,
	}
}

func (r *CandidateRetriever) Retrieve(ctx context.Context, query string, limit int) domain.CandidateSet {
	if limit <= 0 || limit > r.cfg.CandidateLimit {
		limit = r.cfg.CandidateLimit
	}

	set := r.retrieve(ctx, query, limit)
	if len(set.Records) > limit {
		set.Records = set.Records[:limit]
	}
	r.observer.ObserveRetrieval(set.Stage, len(set.Records))
	return set
}

func (r *CandidateRetriever) retrieve(ctx context.Context, query string, limit int) domain.CandidateSet {
	if records, ok := r.vectorStage(ctx, query, limit); ok {
		return domain.CandidateSet{Records: records, Stage: domain.StageVector}
	}

	if r.fullText == nil {
		return domain.CandidateSet{Stage: domain.StageNone}
	}

	terms := r.terms.Extract(query)
	if len(terms) > 0 {
		records, stage, err := r.fullTextStage(ctx, terms, limit)
		if err == nil {
			return domain.CandidateSet{Records: records, Stage: stage}
		}
		slog.Warn("retrieval_stage_failed", "stage", "fulltext", "error", err)
	}

	return r.substringStage(ctx, query)
}

func (r *CandidateRetriever) vectorStage(ctx context.Context, query string, limit int) ([]domain.Record, bool) {
	if r.embedder == nil || r.vectors == nil || r.catalog == nil {
		return nil, false
	}

	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		slog.Warn("retrieval_stage_failed", "stage", "embed", "error", err)
		return nil, false
	}

	k := min(limit, r.cfg.VectorMaxResults)
	hits, err := raceTimeout(ctx, r.cfg.VectorTimeout, func(callCtx context.Context) ([]domain.VectorHit, error) {
		return r.vectors.Search(callCtx, vector, k)
	})
	if err != nil {
		slog.Warn("retrieval_stage_failed", "stage", "vector", "error", err)
		return nil, false
	}
	if len(hits) == 0 {
		return nil, false
	}

	ids := make([]int64, 0, len(hits))
	for _, hit := range hits {
		ids = append(ids, hit.RecordID)
	}
	records, err := r.catalog.GetByIDs(ctx, ids)
	if err != nil {
		slog.Warn("retrieval_stage_failed", "stage", "vector_resolve", "error", err)
		return nil, false
	}
	if len(records) == 0 {
		return nil, false
	}
	return records, true
}

// fullTextStage returns an error only when the index itself failed on the
// disjunctive query; a failing conjunctive query degrades to the disjunctive one.
func (r *CandidateRetriever) fullTextStage(ctx context.Context, terms []string, limit int) ([]domain.Record, domain.RetrievalStage, error) {
	if len(terms) >= 2 {
		records, err := r.fullText.SearchFullText(ctx, terms, domain.MatchAll, limit)
		switch {
		case err != nil:
			slog.Warn("retrieval_stage_failed", "stage", "fulltext_all", "error", err)
		case len(records) >= r.cfg.MinAllHits:
			return records, domain.StageFullTextAll, nil
		}
	}

	records, err := r.fullText.SearchFullText(ctx, terms, domain.MatchAny, limit)
	if err != nil {
		return nil, domain.StageNone, err
	}
	if len(records) == 0 {
		return nil, domain.StageNone, nil
	}
	return records, domain.StageFullTextAny, nil
}

func (r *CandidateRetriever) substringStage(ctx context.Context, query string) domain.CandidateSet {
	tokens := substringTokens(query)
	if len(tokens) == 0 {
		return domain.CandidateSet{Stage: domain.StageNone}
	}
	records, err := r.fullText.SearchSubstring(ctx, tokens, r.cfg.SubstringLimit)
	if err != nil {
		slog.Error("retrieval_exhausted", "stage", "substring", "error", err)
		return domain.CandidateSet{Stage: domain.StageNone}
	}
	if len(records) == 0 {
		return domain.CandidateSet{Stage: domain.StageNone}
	}
	return domain.CandidateSet{Records: records, Stage: domain.StageSubstring}
}

// raceTimeout returns whichever settles first: fn or the timeout. On timeout
// the call's context is cancelled and its result discarded.
func raceTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		value, err := fn(callCtx)
		done <- outcome{value: value, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var zero T
	select {
	case res := <-done:
		return res.value, res.err
	case <-timer.C:
		return zero, errStageTimeout
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

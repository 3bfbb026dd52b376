package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kirillkom/catalog-search/internal/core/domain"
	"github.com/kirillkom/catalog-search/internal/core/ports"
)

type SearchConfig struct {
	DefaultLimit   int
	MaxLimit       int
	CandidateLimit int
}

func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		DefaultLimit:   5,
		MaxLimit:       50,
		CandidateLimit: 200,
	}
}

func (c SearchConfig) normalize() SearchConfig {
	def := DefaultSearchConfig()
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = def.DefaultLimit
	}
	if c.MaxLimit <= 0 {
		c.MaxLimit = def.MaxLimit
	}
	if c.DefaultLimit > c.MaxLimit {
		c.DefaultLimit = c.MaxLimit
	}
	if c.CandidateLimit <= 0 {
		c.CandidateLimit = def.CandidateLimit
	}
	return c
}

// SearchUseCase runs the search pipeline: normalize, look up the ranked
// cache, and on a miss retrieve, rerank and cache before assembling the
// requested page. Concurrent misses for the same key share one ranking.
type SearchUseCase struct {
	normalizer *QueryNormalizer
	retriever  *CandidateRetriever
	reranker   *Reranker
	cache      ports.RankedResultCache
	assembler  *ResultAssembler
	cfg        SearchConfig
	observer   ports.SearchObserver

	group singleflight.Group
}

func NewSearchUseCase(
	normalizer *QueryNormalizer,
	retriever *CandidateRetriever,
	reranker *Reranker,
	cache ports.RankedResultCache,
	assembler *ResultAssembler,
	cfg SearchConfig,
	observer ports.SearchObserver,
) *SearchUseCase {
	if observer == nil {
		observer = nopObserver{}
	}
	return &SearchUseCase{
		normalizer: normalizer,
		retriever:  retriever,
		reranker:   reranker,
		cache:      cache,
		assembler:  assembler,
		cfg:        cfg.normalize(),
		observer:   observer,
	}
}

func (uc *SearchUseCase) Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchPage, error) {
	start := time.Now()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search", errors.New("query is required"))
	}
	if req.Offset < 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search", fmt.Errorf("offset must be >= 0, got %d", req.Offset))
	}
	limit := req.Limit
	if limit <= 0 {
		limit = uc.cfg.DefaultLimit
	}
	if limit > uc.cfg.MaxLimit {
		limit = uc.cfg.MaxLimit
	}

	normalized := uc.normalizer.Normalize(ctx, query)
	if normalized == "" {
		normalized = query
	}

	ranked, err := uc.ranking(ctx, normalized)
	if err != nil {
		return nil, err
	}

	results, hasMore, err := uc.assembler.Assemble(ctx, ranked, req.Offset, limit)
	if err != nil {
		return nil, fmt.Errorf("assemble page: %w", err)
	}

	uc.observer.ObserveSearch(time.Since(start), len(ranked))
	slog.Info("search_request",
		"normalized_query", normalized,
		"offset", req.Offset,
		"limit", limit,
		"total", len(ranked),
		"returned", len(results),
		"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
	)

	return &domain.SearchPage{
		Query:   req.Query,
		Results: results,
		HasMore: hasMore,
		Total:   len(ranked),
	}, nil
}

func (uc *SearchUseCase) ranking(ctx context.Context, normalized string) ([]domain.ScoredResult, error) {
	key := domain.CacheKey(normalized)
	if ranked, ok := uc.cache.Get(key); ok {
		uc.observer.ObserveCache(true)
		return ranked, nil
	}
	uc.observer.ObserveCache(false)

	v, err, _ := uc.group.Do(key, func() (any, error) {
		if ranked, ok := uc.cache.Get(key); ok {
			return ranked, nil
		}

		candidates := uc.retriever.Retrieve(ctx, normalized, uc.cfg.CandidateLimit)
		if len(candidates.Records) == 0 {
			return []domain.ScoredResult{}, nil
		}

		ranked, fromModel := uc.reranker.Rerank(ctx, normalized, candidates.Records)
		if fromModel && len(ranked) > 0 {
			uc.cache.Put(key, ranked)
		}
		return ranked, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.ScoredResult), nil
}

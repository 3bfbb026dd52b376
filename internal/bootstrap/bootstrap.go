package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/catalog-search/internal/config"
	"github.com/kirillkom/catalog-search/internal/core/ports"
	"github.com/kirillkom/catalog-search/internal/core/usecase"
	"github.com/kirillkom/catalog-search/internal/infrastructure/cache"
	"github.com/kirillkom/catalog-search/internal/infrastructure/classifier"
	"github.com/kirillkom/catalog-search/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/catalog-search/internal/infrastructure/queue/nats"
	"github.com/kirillkom/catalog-search/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/catalog-search/internal/infrastructure/resilience"
	"github.com/kirillkom/catalog-search/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/catalog-search/internal/observability/metrics"
)

const commonTagTermsTimeout = 10 * time.Second

type App struct {
	Config config.Config

	Events      ports.EventBus
	Catalog     ports.CatalogStore
	Cache       *cache.RankedCache
	Invalidator ports.CacheInvalidator
	SearchUC    ports.SearchService
	ChangesUC   ports.RecordChangeNotifier
	IndexUC     ports.RecordIndexer // nil without a vector index
	HTTPMetrics *metrics.HTTPServerMetrics

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, service string) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	catalog := postgres.NewCatalogRepository(db)
	if err := catalog.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	policy := resilience.Config{
		Breaker: resilience.BreakerPolicy{
			Enabled:      cfg.BreakerEnabled,
			MinRequests:  uint32(max(cfg.BreakerMinRequests, 0)),
			FailureRatio: cfg.BreakerFailureRatio,
			OpenTimeout:  cfg.BreakerOpenTimeout,
		},
	}
	if service == "worker" {
		policy.Retries = resilience.IndexingRetries(cfg.IndexRetryMaxAttempts)
	}
	executor := resilience.NewExecutor(policy)

	bus, err := nats.NewWithOptions(cfg.NATSURL, nats.Subjects{
		RecordChanged:    cfg.NATSRecordSubject,
		CacheInvalidated: cfg.NATSInvalidateSubject,
	}, nats.Options{
		ResilienceExecutor: executor,
		ClientName:         service,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init event bus: %w", err)
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel,
		ollama.WithTimeout(cfg.LLMRequestTimeout),
		ollama.WithExecutor(executor),
	)
	generator := ollama.NewGenerator(ollamaClient)

	var (
		embedder ports.Embedder
		vectors  ports.VectorIndex
	)
	if cfg.QdrantURL != "" {
		embedder = ollama.NewEmbedder(ollamaClient)
		vectors = qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, executor)
	} else {
		slog.Warn("vector_stage_disabled", "reason", "QDRANT_URL is empty")
	}

	terms, err := newTermExtractor(ctx, cfg, catalog)
	if err != nil {
		bus.Close()
		_ = db.Close()
		return nil, err
	}

	httpMetrics := metrics.NewHTTPServerMetrics(service)
	rankedCache := cache.NewRankedCache(cache.Config{
		TTL:        cfg.CacheTTL,
		Capacity:   cfg.CacheCapacity,
		EvictBatch: cfg.CacheEvictBatch,
	})

	normalizer := usecase.NewQueryNormalizer(generator, cfg.TargetLanguage, httpMetrics)
	retriever := usecase.NewCandidateRetriever(embedder, vectors, catalog, catalog, terms, usecase.RetrievalConfig{
		CandidateLimit:   cfg.SearchCandidateLimit,
		VectorMaxResults: cfg.VectorMaxResults,
		VectorTimeout:    cfg.VectorSearchTimeout,
		MinAllHits:       cfg.FullTextMinAllHits,
		SubstringLimit:   cfg.SubstringLimit,
	}, httpMetrics)
	reranker := usecase.NewReranker(generator, usecase.RerankConfig{
		DocChars:   cfg.RerankDocChars,
		MaxResults: cfg.RerankMaxResults,
	}, httpMetrics)
	assembler := usecase.NewResultAssembler(catalog, classifier.NewKeyword())
	searchUC := usecase.NewSearchUseCase(normalizer, retriever, reranker, rankedCache, assembler, usecase.SearchConfig{
		DefaultLimit:   cfg.SearchDefaultLimit,
		MaxLimit:       cfg.SearchMaxLimit,
		CandidateLimit: cfg.SearchCandidateLimit,
	}, httpMetrics)

	var indexUC ports.RecordIndexer
	if vectors != nil {
		indexUC = usecase.NewIndexRecordUseCase(catalog, embedder, vectors, bus)
	}

	return &App{
		Config: cfg,

		Events:      bus,
		Catalog:     catalog,
		Cache:       rankedCache,
		Invalidator: rankedCache,
		SearchUC:    searchUC,
		ChangesUC:   usecase.NewRecordChangeUseCase(bus),
		IndexUC:     indexUC,
		HTTPMetrics: httpMetrics,

		closeFn: func() {
			bus.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// newTermExtractor merges the stop-word resource with catalog tag words that
// are too common to discriminate between records.
func newTermExtractor(ctx context.Context, cfg config.Config, catalog ports.CatalogStore) (*usecase.TermExtractor, error) {
	stopWords, err := config.LoadStopWords(cfg.StopWordsPath)
	if err != nil {
		return nil, fmt.Errorf("load stop words: %w", err)
	}

	tagCtx, cancel := context.WithTimeout(ctx, commonTagTermsTimeout)
	defer cancel()
	common, err := catalog.CommonTagTerms(tagCtx, cfg.CommonTagShare)
	if err != nil {
		slog.Warn("common_tag_terms_failed", "error", err)
		common = nil
	}
	slog.Info("term_extractor_ready", "stop_words", len(stopWords), "common_tag_terms", len(common))
	return usecase.NewTermExtractor(stopWords, common), nil
}

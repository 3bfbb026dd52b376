package ports

import (
	"context"
	"time"

	"github.com/kirillkom/catalog-search/internal/core/domain"
)

// CatalogStore is the read-only catalog of records.
type CatalogStore interface {
	GetByID(ctx context.Context, id int64) (*domain.Record, error)
	// GetByIDs returns the found records in the order of ids. Unknown ids are skipped.
	GetByIDs(ctx context.Context, ids []int64) ([]domain.Record, error)
	ListIDs(ctx context.Context) ([]int64, error)
	// CommonTagTerms returns lower-cased tag words present on at least minShare of records.
	CommonTagTerms(ctx context.Context, minShare float64) ([]string, error)
}

// FullTextIndex performs keyword retrieval over the catalog.
type FullTextIndex interface {
	SearchFullText(ctx context.Context, terms []string, mode domain.MatchMode, limit int) ([]domain.Record, error)
	SearchSubstring(ctx context.Context, tokens []string, limit int) ([]domain.Record, error)
}

// Embedder turns text into fixed-length vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex stores record vectors and answers nearest-neighbour queries.
type VectorIndex interface {
	Search(ctx context.Context, queryVector []float32, limit int) ([]domain.VectorHit, error)
	UpsertRecord(ctx context.Context, recordID int64, vector []float32) error
	DeleteRecord(ctx context.Context, recordID int64) error
}

// TextGenerator calls an external text-generation model.
type TextGenerator interface {
	Generate(ctx context.Context, instruction, input string) (string, error)
	GenerateJSON(ctx context.Context, instruction, input string) (string, error)
}

// AttributeClassifier derives descriptive labels from record signals. Pure, no I/O.
type AttributeClassifier interface {
	Classify(record domain.Record) domain.Labels
}

// RankedResultCache holds final rankings keyed by normalized query.
type RankedResultCache interface {
	Get(key string) ([]domain.ScoredResult, bool)
	Put(key string, results []domain.ScoredResult)
	Purge()
}

// EventBus carries catalog change and cache invalidation events.
type EventBus interface {
	PublishRecordChanged(ctx context.Context, recordID int64) error
	SubscribeRecordChanged(ctx context.Context, handler func(context.Context, int64) error) error
	PublishCacheInvalidated(ctx context.Context) error
	SubscribeCacheInvalidated(ctx context.Context, handler func(context.Context) error) error
}

// SearchObserver receives pipeline telemetry.
type SearchObserver interface {
	ObserveNormalization(step string, fellBack bool)
	ObserveCache(hit bool)
	ObserveRetrieval(stage domain.RetrievalStage, candidates int)
	ObserveRerank(outcome string, duration time.Duration)
	ObserveSearch(duration time.Duration, total int)
}

package ports

import (
	"context"

	"github.com/kirillkom/catalog-search/internal/core/domain"
)

// SearchService is the inbound contract for paginated, reranked search.
type SearchService interface {
	Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchPage, error)
}

// RecordIndexer is the inbound contract for keeping the vector index in sync
// with the catalog.
type RecordIndexer interface {
	IndexByID(ctx context.Context, recordID int64) error
	ReindexAll(ctx context.Context) (int, error)
}

// RecordChangeNotifier announces that a catalog record was created, edited
// or deleted.
type RecordChangeNotifier interface {
	NotifyRecordChanged(ctx context.Context, recordID int64) error
}

// CacheInvalidator drops every cached ranking.
type CacheInvalidator interface {
	Purge()
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kirillkom/catalog-search/internal/core/domain"
	"github.com/kirillkom/catalog-search/internal/core/ports"
)

// IndexRecordUseCase keeps the vector index in sync with catalog records.
// Vectors are computed from the sanitized text only, so the embedding
// service sees exactly what the ranking model sees.
type IndexRecordUseCase struct {
	catalog  ports.CatalogStore
	embedder ports.Embedder
	vectors  ports.VectorIndex
	events   ports.EventBus
}

func NewIndexRecordUseCase(
	catalog ports.CatalogStore,
	embedder ports.Embedder,
	vectors ports.VectorIndex,
	events ports.EventBus,
) *IndexRecordUseCase {
	return &IndexRecordUseCase{
		catalog:  catalog,
		embedder: embedder,
		vectors:  vectors,
		events:   events,
	}
}

func (uc *IndexRecordUseCase) IndexByID(ctx context.Context, recordID int64) error {
	if err := uc.index(ctx, recordID); err != nil {
		return err
	}
	if uc.events != nil {
		if err := uc.events.PublishCacheInvalidated(ctx); err != nil {
			slog.Warn("cache_invalidation_publish_failed", "record_id", recordID, "error", err)
		}
	}
	return nil
}

func (uc *IndexRecordUseCase) ReindexAll(ctx context.Context) (int, error) {
	ids, err := uc.catalog.ListIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list record ids: %w", err)
	}

	indexed := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return indexed, err
		}
		if err := uc.index(ctx, id); err != nil {
			slog.Warn("reindex_record_failed", "record_id", id, "error", err)
			continue
		}
		indexed++
	}

	if uc.events != nil && indexed > 0 {
		if err := uc.events.PublishCacheInvalidated(ctx); err != nil {
			slog.Warn("cache_invalidation_publish_failed", "error", err)
		}
	}
	return indexed, nil
}

func (uc *IndexRecordUseCase) index(ctx context.Context, recordID int64) error {
	record, err := uc.catalog.GetByID(ctx, recordID)
	if err != nil {
		if domain.IsKind(err, domain.ErrRecordNotFound) {
			return uc.remove(ctx, recordID)
		}
		return fmt.Errorf("fetch record by id: %w", err)
	}

	docs, _ := Sanitize([]domain.Record{*record})
	if len(docs) == 0 {
		return uc.remove(ctx, recordID)
	}

	vectors, err := uc.embedder.Embed(ctx, []string{docs[0].Text})
	if err != nil {
		return fmt.Errorf("embed record: %w", err)
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "embed record", errors.New("embedding result is empty"))
	}

	if err := uc.vectors.UpsertRecord(ctx, record.ID, vectors[0]); err != nil {
		return fmt.Errorf("upsert record vector: %w", err)
	}
	return nil
}

func (uc *IndexRecordUseCase) remove(ctx context.Context, recordID int64) error {
	if err := uc.vectors.DeleteRecord(ctx, recordID); err != nil {
		return fmt.Errorf("delete record vector: %w", err)
	}
	return nil
}

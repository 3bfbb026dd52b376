package usecase

import (
	"context"
	"fmt"

	"github.com/kirillkom/catalog-search/internal/core/domain"
	"github.com/kirillkom/catalog-search/internal/core/ports"
)

// RecordChangeUseCase queues a record for re-indexing. The record may no
// longer exist; the indexer then drops its vector.
type RecordChangeUseCase struct {
	events ports.EventBus
}

func NewRecordChangeUseCase(events ports.EventBus) *RecordChangeUseCase {
	return &RecordChangeUseCase{events: events}
}

func (uc *RecordChangeUseCase) NotifyRecordChanged(ctx context.Context, recordID int64) error {
	if recordID <= 0 {
		return domain.WrapError(domain.ErrInvalidInput, "notify record changed", fmt.Errorf("record id must be positive, got %d", recordID))
	}
	if err := uc.events.PublishRecordChanged(ctx, recordID); err != nil {
		return fmt.Errorf("publish record changed: %w", err)
	}
	return nil
}

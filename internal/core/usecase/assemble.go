package usecase

import (
	"context"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/catalog-search/internal/core/domain"
	"github.com/kirillkom/catalog-search/internal/core/ports"
)

const enrichConcurrency = 8

// ResultAssembler turns a slice of a cached ranking into enriched records.
type ResultAssembler struct {
	catalog    ports.CatalogStore
	classifier ports.AttributeClassifier
}

func NewResultAssembler(catalog ports.CatalogStore, classifier ports.AttributeClassifier) *ResultAssembler {
	return &ResultAssembler{
		catalog:    catalog,
		classifier: classifier,
	}
}

// Assemble resolves ranked[offset:offset+limit] and reports whether more
// ranked results exist past the page. Records that cannot be resolved are
// left out of the page.
func (a *ResultAssembler) Assemble(
	ctx context.Context,
	ranked []domain.ScoredResult,
	offset int,
	limit int,
) ([]domain.EnrichedRecord, bool, error) {
	hasMore := offset+limit < len(ranked)
	if offset >= len(ranked) || limit <= 0 {
		return []domain.EnrichedRecord{}, hasMore, nil
	}
	window := ranked[offset:min(offset+limit, len(ranked))]

	scores := make(map[int64]int, len(window))
	for _, r := range window {
		if _, ok := scores[r.RecordID]; !ok {
			scores[r.RecordID] = r.Score
		}
	}

	resolved := make([]*domain.Record, len(window))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichConcurrency)
	for i, r := range window {
		g.Go(func() error {
			record, err := a.catalog.GetByID(gctx, r.RecordID)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				slog.Warn("assemble_record_unresolved", "record_id", r.RecordID, "error", err)
				return nil
			}
			resolved[i] = record
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, false, err
	}

	page := make([]domain.EnrichedRecord, 0, len(window))
	for _, record := range resolved {
		if record == nil {
			continue
		}
		score, ok := scores[record.ID]
		if !ok {
			score = domain.DefaultScore
		}
		item := domain.EnrichedRecord{Record: *record, MatchScore: domain.ClampScore(score)}
		if a.classifier != nil {
			labels := a.classifier.Classify(*record)
			item.CostLabel = labels.Cost
			item.ComplexityLabel = labels.Complexity
		}
		page = append(page, item)
	}

	sort.SliceStable(page, func(i, j int) bool {
		return page[i].MatchScore > page[j].MatchScore
	})
	return page, hasMore, nil
}

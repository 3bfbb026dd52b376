package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kirillkom/catalog-search/internal/core/domain"
)

type generatorFake struct {
	mu           sync.Mutex
	generate     func(instruction, input string) (string, error)
	generateJSON func(instruction, input string) (string, error)
	calls        []string
	jsonCalls    int
	lastJSON     string
}

func (f *generatorFake) Generate(_ context.Context, instruction, input string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, instruction)
	f.mu.Unlock()
	if f.generate == nil {
		return input, nil
	}
	return f.generate(instruction, input)
}

func (f *generatorFake) GenerateJSON(_ context.Context, instruction, input string) (string, error) {
	f.mu.Lock()
	f.jsonCalls++
	f.lastJSON = input
	f.mu.Unlock()
	if f.generateJSON == nil {
		return "", errors.New("not configured")
	}
	return f.generateJSON(instruction, input)
}

func (f *generatorFake) JSONCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jsonCalls
}

type catalogFake struct {
	records map[int64]domain.Record
	err     error
	getErr  map[int64]error
}

func newCatalogFake(records ...domain.Record) *catalogFake {
	f := &catalogFake{records: make(map[int64]domain.Record, len(records))}
	for _, r := range records {
		f.records[r.ID] = r
	}
	return f
}

func (f *catalogFake) GetByID(_ context.Context, id int64) (*domain.Record, error) {
	if err := f.getErr[id]; err != nil {
		return nil, err
	}
	r, ok := f.records[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrRecordNotFound, "get record", errors.New("missing"))
	}
	return &r, nil
}

func (f *catalogFake) GetByIDs(_ context.Context, ids []int64) ([]domain.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.Record, 0, len(ids))
	for _, id := range ids {
		if r, ok := f.records[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *catalogFake) ListIDs(context.Context) ([]int64, error) {
	out := make([]int64, 0, len(f.records))
	for id := range f.records {
		out = append(out, id)
	}
	return out, nil
}

func (f *catalogFake) CommonTagTerms(context.Context, float64) ([]string, error) { return nil, nil }

type fullTextCall struct {
	terms []string
	mode  domain.MatchMode
	limit int
}

type fullTextFake struct {
	byMode       map[domain.MatchMode][]domain.Record
	errByMode    map[domain.MatchMode]error
	substring    []domain.Record
	substringErr error

	calls          []fullTextCall
	substringCalls [][]string
}

func (f *fullTextFake) SearchFullText(_ context.Context, terms []string, mode domain.MatchMode, limit int) ([]domain.Record, error) {
	f.calls = append(f.calls, fullTextCall{terms: terms, mode: mode, limit: limit})
	if err := f.errByMode[mode]; err != nil {
		return nil, err
	}
	return f.byMode[mode], nil
}

func (f *fullTextFake) SearchSubstring(_ context.Context, tokens []string, _ int) ([]domain.Record, error) {
	f.substringCalls = append(f.substringCalls, tokens)
	if f.substringErr != nil {
		return nil, f.substringErr
	}
	return f.substring, nil
}

type embedderFake struct {
	vectors [][]float32
	err     error
	texts   []string
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.texts = append(f.texts, texts...)
	if f.err != nil {
		return nil, f.err
	}
	return f.vectors, nil
}

func (f *embedderFake) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.texts = append(f.texts, text)
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type vectorFake struct {
	hits      []domain.VectorHit
	err       error
	delay     time.Duration
	lastLimit int

	upserted map[int64][]float32
	deleted  []int64
}

func (f *vectorFake) Search(ctx context.Context, _ []float32, limit int) ([]domain.VectorHit, error) {
	f.lastLimit = limit
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

func (f *vectorFake) UpsertRecord(_ context.Context, id int64, vector []float32) error {
	if f.err != nil {
		return f.err
	}
	if f.upserted == nil {
		f.upserted = make(map[int64][]float32)
	}
	f.upserted[id] = vector
	return nil
}

func (f *vectorFake) DeleteRecord(_ context.Context, id int64) error {
	f.deleted = append(f.deleted, id)
	return f.err
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string][]domain.ScoredResult
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string][]domain.ScoredResult)}
}

func (c *mapCache) Get(key string) ([]domain.ScoredResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok
}

func (c *mapCache) Put(key string, results []domain.ScoredResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = results
}

func (c *mapCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string][]domain.ScoredResult)
}

type labelsFake struct{}

func (labelsFake) Classify(domain.Record) domain.Labels {
	return domain.Labels{Cost: domain.LevelLow, Complexity: domain.LevelMedium}
}

type eventsFake struct {
	invalidations int
	changed       []int64
	err           error
}

func (f *eventsFake) PublishRecordChanged(_ context.Context, recordID int64) error {
	if f.err != nil {
		return f.err
	}
	f.changed = append(f.changed, recordID)
	return nil
}
func (f *eventsFake) SubscribeRecordChanged(context.Context, func(context.Context, int64) error) error {
	return nil
}
func (f *eventsFake) PublishCacheInvalidated(context.Context) error {
	f.invalidations++
	return f.err
}
func (f *eventsFake) SubscribeCacheInvalidated(context.Context, func(context.Context) error) error {
	return nil
}

func recordsWithIDs(from, to int64) []domain.Record {
	out := make([]domain.Record, 0, to-from+1)
	for id := from; id <= to; id++ {
		out = append(out, domain.Record{
			ID:               id,
			Title:            "Title",
			ShortDescription: "short description",
			LongDescription:  "long description",
		})
	}
	return out
}

package cache

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/kirillkom/catalog-search/internal/core/domain"
)

type Config struct {
	TTL        time.Duration
	Capacity   int
	EvictBatch int
}

func DefaultConfig() Config {
	return Config{
		TTL:        5 * time.Minute,
		Capacity:   200,
		EvictBatch: 50,
	}
}

func (c Config) normalize() Config {
	def := DefaultConfig()
	if c.TTL <= 0 {
		c.TTL = def.TTL
	}
	if c.Capacity <= 0 {
		c.Capacity = def.Capacity
	}
	if c.EvictBatch <= 0 {
		c.EvictBatch = def.EvictBatch
	}
	if c.EvictBatch > c.Capacity {
		c.EvictBatch = c.Capacity
	}
	return c
}

type entry struct {
	results   []domain.ScoredResult
	createdAt time.Time
}

// RankedCache keeps final rankings per normalized query for a fixed TTL.
// When full, the oldest EvictBatch entries are dropped at once.
type RankedCache struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	entries map[string]entry
}

func NewRankedCache(cfg Config) *RankedCache {
	return &RankedCache{
		cfg:     cfg.normalize(),
		now:     time.Now,
		entries: make(map[string]entry),
	}
}

func (c *RankedCache) Get(key string) ([]domain.ScoredResult, bool) {
	key = domain.CacheKey(key)
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.createdAt) > c.cfg.TTL {
		delete(c.entries, key)
		return nil, false
	}
	return e.results, true
}

func (c *RankedCache) Put(key string, results []domain.ScoredResult) {
	key = domain.CacheKey(key)
	stored := make([]domain.ScoredResult, len(results))
	copy(stored, results)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.cfg.Capacity {
		c.evictOldestLocked(c.cfg.EvictBatch)
	}
	c.entries[key] = entry{results: stored, createdAt: c.now()}
}

func (c *RankedCache) Purge() {
	c.mu.Lock()
	n := len(c.entries)
	c.entries = make(map[string]entry)
	c.mu.Unlock()
	slog.Info("ranked_cache_purged", "entries", n)
}

func (c *RankedCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Sweep drops expired entries and returns how many were removed.
func (c *RankedCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if now.Sub(e.createdAt) > c.cfg.TTL {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Run sweeps expired entries every interval until ctx is done.
func (c *RankedCache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := c.Sweep(); removed > 0 {
				slog.Debug("ranked_cache_sweep", "removed", removed)
			}
		}
	}
}

func (c *RankedCache) evictOldestLocked(n int) {
	type aged struct {
		key       string
		createdAt time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for key, e := range c.entries {
		all = append(all, aged{key: key, createdAt: e.createdAt})
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].createdAt.Before(all[j].createdAt)
	})
	if n > len(all) {
		n = len(all)
	}
	for _, a := range all[:n] {
		delete(c.entries, a.key)
	}
	slog.Debug("ranked_cache_evicted", "evicted", n, "remaining", len(c.entries))
}

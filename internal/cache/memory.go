package cache

import (
	"context"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
)

// memoryCache keeps entries in process memory. The single-binary CLI
// path runs on this backend; no serialization, entries are shared
// pointers.
type memoryCache struct {
	store *gocache.Cache
	log   zerolog.Logger

	hits   atomic.Int64
	misses atomic.Int64
	sets   atomic.Int64
}

// NewMemory creates the in-process backend. Expired entries are swept
// every five minutes.
func NewMemory(cfg Config, logger zerolog.Logger) Cache {
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &memoryCache{
		store: gocache.New(ttl, 5*time.Minute),
		log:   logger.With().Str("component", "cache").Str("backend", "memory").Logger(),
	}
}

func (c *memoryCache) Get(_ context.Context, term, niche string, revision uint64) (*Entry, bool) {
	v, ok := c.store.Get(Key(term, niche, revision))
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return v.(*Entry), true
}

func (c *memoryCache) Set(_ context.Context, entry *Entry, revision uint64, ttl time.Duration) {
	if entry == nil {
		return
	}
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	c.store.Set(Key(entry.Enriched.Term, entry.Enriched.Niche, revision), entry, ttl)
	c.sets.Add(1)
}

func (c *memoryCache) Stats(context.Context) Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	return Stats{
		Backend: "memory",
		Hits:    hits,
		Misses:  misses,
		Sets:    c.sets.Load(),
		HitRate: hitRate(hits, misses),
		Entries: int64(c.store.ItemCount()),
	}
}

func (c *memoryCache) Close() error { return nil }

func hitRate(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

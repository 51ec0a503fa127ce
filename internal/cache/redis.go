package cache

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// redisCache shares entries across processes. Every operation carries a
// short timeout so a slow Redis degrades runs to cache misses instead of
// stalling them.
type redisCache struct {
	client    *redis.Client
	opTimeout time.Duration
	log       zerolog.Logger

	hits   atomic.Int64
	misses atomic.Int64
	sets   atomic.Int64
	errors atomic.Int64
}

// NewRedis creates the Redis backend from the config.
func NewRedis(cfg Config, logger zerolog.Logger) Cache {
	opTimeout := cfg.OpTimeout
	if opTimeout <= 0 {
		opTimeout = 500 * time.Millisecond
	}
	return &redisCache{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		opTimeout: opTimeout,
		log:       logger.With().Str("component", "cache").Str("backend", "redis").Logger(),
	}
}

func (c *redisCache) Get(ctx context.Context, term, niche string, revision uint64) (*Entry, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	data, err := c.client.Get(ctx, Key(term, niche, revision)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.errors.Add(1)
			c.log.Warn().Err(err).Msg("cache read failed")
		}
		c.misses.Add(1)
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.errors.Add(1)
		c.misses.Add(1)
		c.log.Warn().Err(err).Msg("cache entry undecodable")
		return nil, false
	}

	c.hits.Add(1)
	return &entry, true
}

func (c *redisCache) Set(ctx context.Context, entry *Entry, revision uint64, ttl time.Duration) {
	if entry == nil {
		return
	}

	data, err := json.Marshal(entry)
	if err != nil {
		c.errors.Add(1)
		c.log.Warn().Err(err).Msg("cache entry unencodable")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	key := Key(entry.Enriched.Term, entry.Enriched.Niche, revision)
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.errors.Add(1)
		c.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
		return
	}
	c.sets.Add(1)
}

func (c *redisCache) Stats(ctx context.Context) Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	stats := Stats{
		Backend: "redis",
		Hits:    hits,
		Misses:  misses,
		Sets:    c.sets.Load(),
		Errors:  c.errors.Load(),
		HitRate: hitRate(hits, misses),
	}

	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	if n, err := c.client.DBSize(ctx).Result(); err == nil {
		stats.Entries = n
	}
	return stats
}

func (c *redisCache) Close() error {
	return c.client.Close()
}

// Package cache holds enriched keyword results between runs so repeat
// candidates skip the scoring stages. Keys embed the niche's config
// revision: a parameter swap orphans everything cached under the old
// vector without any explicit invalidation.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/seoscope/keywordrun/internal/domain"
	"github.com/seoscope/keywordrun/internal/validate"
)

// Entry is the cached enrichment for one keyword: the scored keyword and
// its validation verdict. Entries are shared between callers; treat them
// as immutable.
type Entry struct {
	Enriched   domain.EnrichedKeyword `json:"enriched"`
	Validation validate.Result        `json:"validation"`
	CachedAt   time.Time              `json:"cached_at"`
}

// Stats counts cache traffic since process start.
type Stats struct {
	Backend string  `json:"backend"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Sets    int64   `json:"sets"`
	Errors  int64   `json:"errors"`
	HitRate float64 `json:"hit_rate"`
	Entries int64   `json:"entries"`
}

// Cache is the enriched-result store. Get returns a miss, never an
// error: a broken backend degrades to recomputing, not to failing runs.
type Cache interface {
	// Get returns the entry cached for a term under a niche's current
	// config revision.
	Get(ctx context.Context, term, niche string, revision uint64) (*Entry, bool)

	// Set stores an entry under the given revision for ttl. The key is
	// derived from the entry's own term and niche.
	Set(ctx context.Context, entry *Entry, revision uint64, ttl time.Duration)

	// Stats reports traffic counters and the live entry count.
	Stats(ctx context.Context) Stats

	// Close releases backend connections.
	Close() error
}

// Config selects and tunes the backend. An empty Addr keeps results in
// process memory; setting it switches to Redis.
type Config struct {
	Addr       string        `yaml:"addr" json:"addr" env:"REDIS_ADDR"`
	Password   string        `yaml:"password" json:"password" env:"REDIS_PASSWORD"`
	DB         int           `yaml:"db" json:"db" env:"REDIS_DB"`
	OpTimeout  time.Duration `yaml:"op_timeout" json:"op_timeout"`
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl"`
}

// DefaultConfig returns the in-memory backend with a 15 minute fallback
// TTL, matching the generic niche's cache window.
func DefaultConfig() Config {
	return Config{
		OpTimeout:  500 * time.Millisecond,
		DefaultTTL: 15 * time.Minute,
	}
}

// New picks the backend from the config: Redis when an address is set,
// otherwise in-process memory.
func New(cfg Config, logger zerolog.Logger) Cache {
	if cfg.Addr != "" {
		return NewRedis(cfg, logger)
	}
	return NewMemory(cfg, logger)
}

// Key builds the cache key for a term under one niche config revision.
// The term is trimmed and lowercased so input casing cannot split
// identical keywords across entries.
func Key(term, niche string, revision uint64) string {
	return fmt.Sprintf("kw:%s:%d:%s", niche, revision, strings.ToLower(strings.TrimSpace(term)))
}

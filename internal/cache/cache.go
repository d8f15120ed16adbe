// Package cache implements the content-addressed validation cache:
// memoized validation verdicts keyed by bundle digest and verdict kind.
package cache

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Kind identifies which validator produced a Verdict.
type Kind string

const (
	KindManifest  Kind = "manifest"
	KindStructure Kind = "structure"
	KindSecurity  Kind = "security"
	// KindFull satisfies a lookup for any kind.
	KindFull Kind = "full"
)

// Verdict is the cached outcome of a validation step.
type Verdict struct {
	IsValid  bool
	Errors   []string
	Warnings []string
	Kind     Kind
}

type entry struct {
	verdict        Verdict
	insertedAt     time.Time
	lastAccessedAt time.Time
	hitCount       int64
}

func cacheKey(digest string, kind Kind) string {
	return fmt.Sprintf("%s|%s", digest, kind)
}

func fullKey(digest string) string {
	return cacheKey(digest, KindFull)
}

// Config controls TTL and size bounds for the cache.
type Config struct {
	TTL          time.Duration
	MaxSize      int
	SweepPeriod  time.Duration
}

// DefaultConfig mirrors the validation cache's documented defaults.
func DefaultConfig() Config {
	return Config{
		TTL:         24 * time.Hour,
		MaxSize:     1000,
		SweepPeriod: 5 * time.Minute,
	}
}

// Cache is the process-wide validation cache. It is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	backing *lru.Cache[string, *entry]
	ttl     time.Duration

	logger  *slog.Logger
	metrics *Metrics

	hits   int64
	misses int64

	stopCh chan struct{}
	doneCh chan struct{}
	period time.Duration
}

// New constructs a Cache and starts its background sweep worker.
func New(cfg Config, logger *slog.Logger, metrics *Metrics) (*Cache, error) {
	if cfg.MaxSize <= 0 {
		return nil, fmt.Errorf("cache: max size must be positive")
	}
	backing, err := lru.New[string, *entry](cfg.MaxSize)
	if err != nil {
		return nil, fmt.Errorf("cache: construct LRU: %w", err)
	}
	c := &Cache{
		backing: backing,
		ttl:     cfg.TTL,
		logger:  logger.With("component", "validation_cache"),
		metrics: metrics,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		period:  cfg.SweepPeriod,
	}
	go c.sweepWorker()
	return c, nil
}

// Get looks up (digest, kind). A kind=full entry satisfies any kind.
func (c *Cache) Get(digest string, kind Kind) (Verdict, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.lookupLocked(cacheKey(digest, kind)); ok {
		return e.verdict, true
	}
	if kind != KindFull {
		if e, ok := c.lookupLocked(fullKey(digest)); ok {
			return e.verdict, true
		}
	}
	c.misses++
	if c.metrics != nil {
		c.metrics.Misses.Inc()
	}
	return Verdict{}, false
}

// lookupLocked must be called with c.mu held.
func (c *Cache) lookupLocked(key string) (*entry, bool) {
	e, ok := c.backing.Get(key)
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && time.Since(e.insertedAt) > c.ttl {
		c.backing.Remove(key)
		return nil, false
	}
	e.lastAccessedAt = time.Now()
	e.hitCount++
	c.hits++
	if c.metrics != nil {
		c.metrics.Hits.Inc()
	}
	return e, true
}

// Set records a verdict for (digest, kind), including negative verdicts.
func (c *Cache) Set(digest string, kind Kind, verdict Verdict) {
	verdict.Kind = kind
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backing.Add(cacheKey(digest, kind), &entry{
		verdict:        verdict,
		insertedAt:     now,
		lastAccessedAt: now,
	})
	if c.metrics != nil {
		c.metrics.Size.Set(float64(c.backing.Len()))
	}
}

// Stats is a point-in-time snapshot of the cache's counters.
type Stats struct {
	Size           int
	Hits           int64
	Misses         int64
	HitRate        float64
	OldestInserted time.Time
}

// Stats returns a point-in-time snapshot of cache effectiveness.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{Size: c.backing.Len(), Hits: c.hits, Misses: c.misses}
	total := c.hits + c.misses
	if total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}
	for _, key := range c.backing.Keys() {
		if e, ok := c.backing.Peek(key); ok {
			if stats.OldestInserted.IsZero() || e.insertedAt.Before(stats.OldestInserted) {
				stats.OldestInserted = e.insertedAt
			}
		}
	}
	return stats
}

// sweepWorker periodically evicts expired entries, mirroring the teacher's
// ticker-driven GC worker shape.
func (c *Cache) sweepWorker() {
	defer close(c.doneCh)
	if c.period <= 0 {
		return
	}
	ticker := time.NewTicker(c.period)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ttl <= 0 {
		return
	}
	removed := 0
	for _, key := range c.backing.Keys() {
		e, ok := c.backing.Peek(key)
		if !ok {
			continue
		}
		if time.Since(e.insertedAt) > c.ttl {
			c.backing.Remove(key)
			removed++
		}
	}
	if removed > 0 {
		c.logger.Debug("swept expired cache entries", "removed", removed, "remaining", c.backing.Len())
	}
	if c.metrics != nil {
		c.metrics.Size.Set(float64(c.backing.Len()))
	}
}

// Close stops the sweep worker.
func (c *Cache) Close() {
	close(c.stopCh)
	<-c.doneCh
}

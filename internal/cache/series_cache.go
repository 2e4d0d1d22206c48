package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/whynot231455/mmm-sol-dashboard/internal/transform"
)

// DefaultSeriesTTL bounds how long a derived series stays memoized
const DefaultSeriesTTL = 10 * time.Minute

// RedisSeriesCache memoizes pipeline results in Redis keyed on the pipeline Key
type RedisSeriesCache struct {
	client redis.Cmdable
	ttl    time.Duration
	prefix string
	stats  *statsRecorder
	logger *logrus.Logger
}

// NewRedisSeriesCache creates a new Redis-based series cache
func NewRedisSeriesCache(client redis.Cmdable, ttl time.Duration, logger *logrus.Logger) *RedisSeriesCache {
	if ttl <= 0 {
		ttl = DefaultSeriesTTL
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &RedisSeriesCache{
		client: client,
		ttl:    ttl,
		prefix: "series:",
		stats:  &statsRecorder{},
		logger: logger,
	}
}

// Get returns the cached result for key
func (c *RedisSeriesCache) Get(ctx context.Context, key string) (*transform.Result, bool) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WithError(err).WithField("key", key).Warn("Redis error reading series cache")
		}
		c.stats.miss()
		return nil, false
	}

	var result transform.Result
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Failed to decode cached series")
		c.stats.miss()
		return nil, false
	}

	c.stats.hit()
	return &result, true
}

// Set stores result under key with the cache TTL. Failures are logged, not returned.
func (c *RedisSeriesCache) Set(ctx context.Context, key string, result *transform.Result) {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Failed to encode series")
		return
	}
	if err := c.client.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Redis error writing series cache")
		return
	}
	c.stats.set()
}

// Clear removes every memoized series
func (c *RedisSeriesCache) Clear(ctx context.Context) error {
	var keys []string
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("error scanning series keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("error clearing series cache: %w", err)
	}
	c.logger.WithField("entries", len(keys)).Debug("Cleared series cache")
	return nil
}

// Stats returns current cache statistics
func (c *RedisSeriesCache) Stats() Stats {
	return c.stats.snapshot()
}

type seriesEntry struct {
	result    *transform.Result
	expiresAt time.Time
}

// InMemorySeriesCache is the process-local twin of RedisSeriesCache
type InMemorySeriesCache struct {
	mu      sync.RWMutex
	entries map[string]seriesEntry
	ttl     time.Duration
	stats   *statsRecorder
	now     func() time.Time
}

// NewInMemorySeriesCache creates an empty in-memory series cache
func NewInMemorySeriesCache(ttl time.Duration) *InMemorySeriesCache {
	if ttl <= 0 {
		ttl = DefaultSeriesTTL
	}
	return &InMemorySeriesCache{
		entries: make(map[string]seriesEntry),
		ttl:     ttl,
		stats:   &statsRecorder{},
		now:     time.Now,
	}
}

func (c *InMemorySeriesCache) Get(_ context.Context, key string) (*transform.Result, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || c.now().After(entry.expiresAt) {
		if ok {
			c.mu.Lock()
			delete(c.entries, key)
			c.mu.Unlock()
		}
		c.stats.miss()
		return nil, false
	}
	c.stats.hit()
	return entry.result, true
}

func (c *InMemorySeriesCache) Set(_ context.Context, key string, result *transform.Result) {
	c.mu.Lock()
	c.entries[key] = seriesEntry{result: result, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
	c.stats.set()
}

func (c *InMemorySeriesCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]seriesEntry)
	return nil
}

func (c *InMemorySeriesCache) Stats() Stats {
	return c.stats.snapshot()
}

// Len returns the number of live entries
func (c *InMemorySeriesCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

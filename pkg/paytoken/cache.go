package paytoken

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache remembers tokens that passed the remote check.
// Keys are already hashed.
type Cache interface {
	Has(ctx context.Context, key string) (bool, error)
	Set(ctx context.Context, key string, ttl time.Duration) error
}

const (
	defaultMaxEntries    = 10000
	defaultSweepInterval = time.Minute
)

// MemoryCache is a process-local Cache. Expired entries are dropped at most
// once per minute on Set; when the cache is full, the entry closest to
// expiry makes room for the new one.
type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string]time.Time
	now        func() time.Time
	lastSweep  time.Time
	maxEntries int
}

// MemoryOption configures a MemoryCache.
type MemoryOption func(*MemoryCache)

// WithMaxEntries caps the number of cached verdicts. Defaults to 10000.
func WithMaxEntries(n int) MemoryOption {
	return func(c *MemoryCache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// NewMemoryCache creates an empty memory cache.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	c := &MemoryCache{
		entries:    make(map[string]time.Time),
		now:        time.Now,
		maxEntries: defaultMaxEntries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *MemoryCache) Has(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	exp, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	if !c.now().Before(exp) {
		delete(c.entries, key)
		return false, nil
	}
	return true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if now.Sub(c.lastSweep) >= defaultSweepInterval {
		c.deleteExpired(now)
		c.lastSweep = now
	}
	if _, ok := c.entries[key]; !ok && len(c.entries) >= c.maxEntries {
		c.deleteExpired(now)
		if len(c.entries) >= c.maxEntries {
			c.evictSoonest()
		}
	}
	c.entries[key] = now.Add(ttl)
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MemoryCache) deleteExpired(now time.Time) {
	for k, exp := range c.entries {
		if !now.Before(exp) {
			delete(c.entries, k)
		}
	}
}

func (c *MemoryCache) evictSoonest() {
	var (
		victim string
		first  time.Time
	)
	for k, exp := range c.entries {
		if victim == "" || exp.Before(first) {
			victim, first = k, exp
		}
	}
	delete(c.entries, victim)
}

const redisKeyPrefix = "paytoken:"

// RedisCache shares verdicts between worker processes.
type RedisCache struct {
	client redis.UniversalClient
}

// NewRedisCache creates a Redis-backed cache.
func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Has(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, ttl time.Duration) error {
	return c.client.Set(ctx, redisKeyPrefix+key, "valid", ttl).Err()
}

var (
	_ Cache = (*MemoryCache)(nil)
	_ Cache = (*RedisCache)(nil)
)

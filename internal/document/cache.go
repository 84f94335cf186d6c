package document

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "field-builder:geometry:"

// DefaultCacheEntries bounds the in-memory geometry cache
const DefaultCacheEntries = 256

// Cache stores page geometry keyed by document source
type Cache interface {
	Get(ctx context.Context, key string) (Geometry, bool, error)
	Set(ctx context.Context, key string, g Geometry) error
}

// CacheKey derives the cache key for a document source URL
func CacheKey(source string) string {
	sum := sha256.Sum256([]byte(source))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// CacheStats provides cache performance statistics
type CacheStats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Entries   int   `json:"entries"`
}

type memoryEntry struct {
	key     string
	value   Geometry
	expires time.Time
}

// MemoryCache is an LRU cache with optional expiry
type MemoryCache struct {
	mu       sync.Mutex
	ll       *list.List
	items    map[string]*list.Element
	capacity int
	ttl      time.Duration
	stats    CacheStats
	now      func() time.Time
}

// NewMemoryCache creates an LRU cache. ttl <= 0 keeps entries until evicted.
func NewMemoryCache(capacity int, ttl time.Duration) *MemoryCache {
	if capacity <= 0 {
		capacity = DefaultCacheEntries
	}
	return &MemoryCache{
		ll:       list.New(),
		items:    make(map[string]*list.Element),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Get implements Cache
func (c *MemoryCache) Get(_ context.Context, key string) (Geometry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		return Geometry{}, false, nil
	}
	e := el.Value.(*memoryEntry)
	if !e.expires.IsZero() && c.now().After(e.expires) {
		c.remove(el)
		c.stats.Misses++
		return Geometry{}, false, nil
	}
	c.ll.MoveToFront(el)
	c.stats.Hits++
	return e.value, true, nil
}

// Set implements Cache
func (c *MemoryCache) Set(_ context.Context, key string, g Geometry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expires time.Time
	if c.ttl > 0 {
		expires = c.now().Add(c.ttl)
	}

	if el, ok := c.items[key]; ok {
		e := el.Value.(*memoryEntry)
		e.value, e.expires = g, expires
		c.ll.MoveToFront(el)
		return nil
	}

	c.items[key] = c.ll.PushFront(&memoryEntry{key: key, value: g, expires: expires})
	for c.ll.Len() > c.capacity {
		c.remove(c.ll.Back())
		c.stats.Evictions++
	}
	return nil
}

func (c *MemoryCache) remove(el *list.Element) {
	c.ll.Remove(el)
	delete(c.items, el.Value.(*memoryEntry).key)
}

// Stats returns the cache counters
func (c *MemoryCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = c.ll.Len()
	return s
}

// RedisCache shares geometry between instances through redis
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCache wraps a redis client. ttl <= 0 stores without expiry.
func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

// Get implements Cache
func (c *RedisCache) Get(ctx context.Context, key string) (Geometry, bool, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Geometry{}, false, nil
	}
	if err != nil {
		return Geometry{}, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	var g Geometry
	if err := json.Unmarshal(raw, &g); err != nil {
		return Geometry{}, false, fmt.Errorf("decode cached geometry: %w", err)
	}
	return g, true, nil
}

// Set implements Cache
func (c *RedisCache) Set(ctx context.Context, key string, g Geometry) error {
	raw, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("encode geometry: %w", err)
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

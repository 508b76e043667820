// Package cache provides an in-process, size-bounded, TTL-expiring cache
// for tool-call results, so the same vector/cross-repo/config-impact/
// knowledge-graph query issued twice in quick succession does not redo the
// underlying work.
//
// Entries are evicted least-recently-used once the cache exceeds its
// configured byte budget, and lazily expired on access once their TTL has
// elapsed; there is no background sweep.
package cache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"
)

// Cache defines the interface for caching operations.
type Cache interface {
	// Get retrieves a cached value by key.
	Get(ctx context.Context, key string) (interface{}, bool, error)

	// Set stores a value with given key and TTL. ttlSeconds 0 uses the
	// cache's default TTL (Config.TTLSeconds); the entry never expires only
	// when that default is also 0 (still subject to size-based eviction).
	Set(ctx context.Context, key string, value interface{}, ttlSeconds int) error

	// Delete removes a key from cache.
	Delete(ctx context.Context, key string) error

	// Clear removes all entries from cache.
	Clear(ctx context.Context) error

	// Invalidate removes every key matching a "prefix*" glob pattern.
	Invalidate(ctx context.Context, pattern string) error

	// GetStats returns cache hit/miss/size/entry-count statistics.
	GetStats(ctx context.Context) (Stats, error)

	// Has checks if key exists and is not expired.
	Has(ctx context.Context, key string) (bool, error)
}

// Stats is a snapshot of cache performance counters.
type Stats struct {
	Hits       int64
	Misses     int64
	EntryCount int
	SizeBytes  int64
}

// Config sizes the cache (mirrors config.Config.Cache).
type Config struct {
	MaxSizeMB  int
	TTLSeconds int
}

const defaultMaxSizeMB = 100
const bytesPerMB = 1 << 20

type entry struct {
	key       string
	value     interface{}
	size      int64
	expiresAt time.Time // zero means no expiry
}

func (e *entry) expired() bool {
	return !e.expiresAt.IsZero() && time.Now().After(e.expiresAt)
}

// lruCache is an LRU-evicting, TTL-expiring cache backed by a doubly
// linked list (most-recently-used at the front) and a key index.
type lruCache struct {
	mu         sync.Mutex
	maxBytes   int64
	defaultTTL time.Duration
	curBytes   int64
	order      *list.List
	index      map[string]*list.Element
	hits       int64
	misses     int64
}

// NewCache constructs an in-process LRU+TTL cache sized per cfg.
func NewCache(cfg Config) Cache {
	maxMB := cfg.MaxSizeMB
	if maxMB <= 0 {
		maxMB = defaultMaxSizeMB
	}
	return &lruCache{
		maxBytes:   int64(maxMB) * bytesPerMB,
		defaultTTL: time.Duration(cfg.TTLSeconds) * time.Second,
		order:      list.New(),
		index:      make(map[string]*list.Element),
	}
}

func (c *lruCache) Get(_ context.Context, key string) (interface{}, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	if !ok {
		c.misses++
		return nil, false, nil
	}
	e := el.Value.(*entry)
	if e.expired() {
		c.removeElementLocked(el)
		c.misses++
		return nil, false, nil
	}

	c.order.MoveToFront(el)
	c.hits++
	return e.value, true, nil
}

func (c *lruCache) Set(_ context.Context, key string, value interface{}, ttlSeconds int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ttl := c.defaultTTL
	if ttlSeconds > 0 {
		ttl = time.Duration(ttlSeconds) * time.Second
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	size := estimateSize(value)

	if el, ok := c.index[key]; ok {
		old := el.Value.(*entry)
		c.curBytes += size - old.size
		el.Value = &entry{key: key, value: value, size: size, expiresAt: expiresAt}
		c.order.MoveToFront(el)
	} else {
		el := c.order.PushFront(&entry{key: key, value: value, size: size, expiresAt: expiresAt})
		c.index[key] = el
		c.curBytes += size
	}

	c.evictLocked()
	return nil
}

func (c *lruCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[key]; ok {
		c.removeElementLocked(el)
	}
	return nil
}

func (c *lruCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.index = make(map[string]*list.Element)
	c.curBytes = 0
	return nil
}

func (c *lruCache) Invalidate(_ context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")

	c.mu.Lock()
	defer c.mu.Unlock()
	for key, el := range c.index {
		if strings.HasPrefix(key, prefix) {
			c.removeElementLocked(el)
		}
	}
	return nil
}

func (c *lruCache) GetStats(_ context.Context) (Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:       c.hits,
		Misses:     c.misses,
		EntryCount: c.order.Len(),
		SizeBytes:  c.curBytes,
	}, nil
}

func (c *lruCache) Has(ctx context.Context, key string) (bool, error) {
	_, found, err := c.Get(ctx, key)
	return found, err
}

// removeElementLocked unlinks el from both the list and the index; caller
// must hold c.mu.
func (c *lruCache) removeElementLocked(el *list.Element) {
	e := el.Value.(*entry)
	c.order.Remove(el)
	delete(c.index, e.key)
	c.curBytes -= e.size
}

// evictLocked drops least-recently-used entries until the cache is back
// under budget; caller must hold c.mu.
func (c *lruCache) evictLocked() {
	for c.curBytes > c.maxBytes {
		back := c.order.Back()
		if back == nil {
			return
		}
		c.removeElementLocked(back)
	}
}

// estimateSize is a coarse byte-size estimate used only for the eviction
// budget, not for exact accounting.
func estimateSize(value interface{}) int64 {
	switch v := value.(type) {
	case string:
		return int64(len(v))
	case []byte:
		return int64(len(v))
	default:
		return 256
	}
}

package cache

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

// memoryCache keeps entries in process.
type memoryCache struct {
	mu         sync.RWMutex
	items      map[string]cacheItem
	prefix     string
	defaultTTL time.Duration
	maxItems   int
	now        func() time.Time
}

type cacheItem struct {
	value      []byte
	expiration time.Time
}

func newMemoryCache(o *Options) *memoryCache {
	return &memoryCache{
		items:      make(map[string]cacheItem),
		prefix:     o.KeyPrefix,
		defaultTTL: o.DefaultTTL,
		maxItems:   o.MaxItems,
		now:        time.Now,
	}
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, found := c.items[c.prefix+key]
	if !found || c.expired(item) {
		return nil, false, nil
	}
	return slices.Clone(item.value), true, nil
}

func (c *memoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key = c.prefix + key
	if _, exists := c.items[key]; !exists && c.maxItems > 0 && len(c.items) >= c.maxItems {
		return ErrCacheFull
	}
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	var exp time.Time
	if ttl > 0 {
		exp = c.now().Add(ttl)
	}
	c.items[key] = cacheItem{value: slices.Clone(value), expiration: exp}
	return nil
}

func (c *memoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, c.prefix+key)
	return nil
}

func (c *memoryCache) Flush(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.items {
		if strings.HasPrefix(key, c.prefix) {
			delete(c.items, key)
		}
	}
	return nil
}

func (c *memoryCache) expired(item cacheItem) bool {
	return !item.expiration.IsZero() && c.now().After(item.expiration)
}

// cleanup evicts expired entries and returns how many were removed.
func (c *memoryCache) cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for key, item := range c.items {
		if c.expired(item) {
			delete(c.items, key)
			n++
		}
	}
	return n
}

// runCleanup evicts expired entries every interval until ctx is cancelled.
func (c *memoryCache) runCleanup(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

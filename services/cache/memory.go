package cachesvc

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/kikundi/core"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time // zero: never
}

// memoryCache stores JSON copies so callers never share state with the cache.
type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

var _ core.Cache = (*memoryCache)(nil)

func NewMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *memoryCache) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || (!e.expiresAt.IsZero() && !c.now().Before(e.expiresAt)) {
		return core.ErrCacheMiss
	}
	return errors.Wrap(json.Unmarshal(e.data, dest), "decoding cached value")
}

func (c *memoryCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "encoding cached value")
	}
	e := memoryEntry{data: data}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	return nil
}

func (c *memoryCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	for _, k := range keys {
		delete(c.entries, k)
	}
	c.mu.Unlock()
	return nil
}

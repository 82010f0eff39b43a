package classify

import (
	"context"
	"sync"
	"time"
)

// Cache keeps the most recent classification per key for a single
// downstream consumer. Take removes what it returns.
type Cache interface {
	Put(ctx context.Context, key string, r Result) error
	Take(ctx context.Context, key string) (*Result, bool, error)
}

type memoryEntry struct {
	result  Result
	expires time.Time
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

// NewMemoryCache creates a cache whose entries expire after ttl (0 = never).
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
}

func (c *MemoryCache) Put(_ context.Context, key string, r Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := memoryEntry{result: r}
	if c.ttl > 0 {
		e.expires = c.now().Add(c.ttl)
	}
	c.entries[key] = e
	return nil
}

func (c *MemoryCache) Take(_ context.Context, key string) (*Result, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	delete(c.entries, key)
	if !e.expires.IsZero() && c.now().After(e.expires) {
		return nil, false, nil
	}
	r := e.result
	return &r, true, nil
}

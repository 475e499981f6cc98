package dedupe

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"
)

// CacheConfig is the configuration for the dedupe cache.
type CacheConfig struct {
	TTL             time.Duration
	MaxSize         int
	CleanupInterval time.Duration
}

func (c *CacheConfig) defaults() error {
	if c.TTL <= 0 {
		c.TTL = 10 * time.Minute
	}
	if c.MaxSize <= 0 {
		c.MaxSize = 10000
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = time.Minute
	}
	return nil
}

type entry struct {
	markedAt time.Time
	element  *list.Element
}

// Cache tracks seen keys (e.g message ids) for a TTL, bounded by size. When full,
// the oldest key is evicted.
type Cache struct {
	mu              sync.Mutex
	seen            map[string]*entry
	order           *list.List // Oldest at front.
	ttl             time.Duration
	maxSize         int
	cleanupInterval time.Duration
	timeNowFn       func() time.Time
}

// NewCache returns a new dedupe cache.
func NewCache(cfg CacheConfig) (*Cache, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Cache{
		seen:            map[string]*entry{},
		order:           list.New(),
		ttl:             cfg.TTL,
		maxSize:         cfg.MaxSize,
		cleanupInterval: cfg.CleanupInterval,
		timeNowFn:       time.Now,
	}, nil
}

// CheckAndMark returns true if the key was already seen and is not expired.
// Otherwise marks it and returns false. Empty keys are never duplicates.
func (c *Cache) CheckAndMark(key string) bool {
	if key == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.timeNowFn()
	if e, ok := c.seen[key]; ok {
		if now.Sub(e.markedAt) < c.ttl {
			return true
		}
		e.markedAt = now
		c.order.MoveToBack(e.element)
		return false
	}

	if len(c.seen) >= c.maxSize {
		if front := c.order.Front(); front != nil {
			c.order.Remove(front)
			delete(c.seen, front.Value.(string))
		}
	}

	c.seen[key] = &entry{markedAt: now, element: c.order.PushBack(key)}
	return false
}

// Forget unmarks a key, used when the marked message could not be handled and
// a redelivery must be accepted.
func (c *Cache) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.seen[key]
	if !ok {
		return
	}
	c.order.Remove(e.element)
	delete(c.seen, key)
}

// Len returns the number of tracked keys.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// Run removes expired keys periodically until the context is done.
func (c *Cache) Run(ctx context.Context) error {
	t := time.NewTicker(c.cleanupInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			c.cleanup()
		}
	}
}

func (c *Cache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.timeNowFn()
	for key, e := range c.seen {
		if now.Sub(e.markedAt) >= c.ttl {
			c.order.Remove(e.element)
			delete(c.seen, key)
		}
	}
}

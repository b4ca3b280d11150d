package cache

import (
	"container/list"
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type item struct {
	key          string
	value        []byte
	createdAt    time.Time
	ttl          time.Duration
	lastAccessed time.Time
	// touched orders accesses that share a lastAccessed instant.
	touched uint64
}

func (it *item) expired(now time.Time) bool {
	return now.Sub(it.createdAt) > it.ttl
}

// Memory is an in-process LRU cache with per-entry TTL. One mutex guards
// the entry map and the recency list together; the sweeper takes the same
// lock.
type Memory struct {
	mu         sync.Mutex
	items      map[string]*list.Element
	lru        *list.List // front is most recently used
	maxSize    int
	defaultTTL time.Duration
	stats      Stats

	opts    options
	logger  *slog.Logger
	janitor *janitor
}

// NewMemory returns a cache holding at most maxSize entries. A maxSize below
// one is treated as one.
func NewMemory(maxSize int, defaultTTL time.Duration, opts ...Option) *Memory {
	if maxSize < 1 {
		maxSize = 1
	}
	o := buildOptions("memory", opts)
	if o.seq == nil {
		o.seq = new(atomic.Uint64)
	}
	c := &Memory{
		items:      make(map[string]*list.Element, maxSize),
		lru:        list.New(),
		maxSize:    maxSize,
		defaultTTL: defaultTTL,
		opts:       o,
		logger:     slog.Default().With("component", "result-cache", "strategy", o.label),
	}
	c.janitor = startJanitor(o.sweepInterval, c.logger, c.Sweep)
	return c
}

func (c *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		c.opts.metrics.CacheMiss(c.opts.label)
		return nil, false
	}
	it := elem.Value.(*item)
	now := c.opts.clock()
	if it.expired(now) {
		c.removeElement(elem)
		c.stats.Misses++
		c.stats.Expirations++
		c.opts.metrics.CacheMiss(c.opts.label)
		c.opts.metrics.CacheExpired(c.opts.label, 1)
		return nil, false
	}
	it.lastAccessed = now
	it.touched = c.opts.seq.Add(1)
	c.lru.MoveToFront(elem)
	c.stats.Hits++
	c.opts.metrics.CacheHit(c.opts.label)
	return clone(it.value), true
}

func (c *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.opts.clock()
	if elem, ok := c.items[key]; ok {
		it := elem.Value.(*item)
		it.value = clone(value)
		it.createdAt = now
		it.ttl = ttl
		it.lastAccessed = now
		it.touched = c.opts.seq.Add(1)
		c.lru.MoveToFront(elem)
		return
	}

	if c.lru.Len() >= c.maxSize {
		c.evict()
	}
	elem := c.lru.PushFront(&item{
		key:          key,
		value:        clone(value),
		createdAt:    now,
		ttl:          ttl,
		lastAccessed: now,
		touched:      c.opts.seq.Add(1),
	})
	c.items[key] = elem
	c.opts.metrics.SetCacheSize(c.opts.label, c.lru.Len())
}

// evict removes the least recently used entry.
func (c *Memory) evict() {
	if victim := c.victim(); victim != nil {
		c.evictElement(victim)
	}
}

// victim returns the least recently used entry. Entries at the back that
// share its access time are candidates too, and the oldest of them by
// creation goes first. mu must be held.
func (c *Memory) victim() *list.Element {
	victim := c.lru.Back()
	if victim == nil {
		return nil
	}
	oldest := victim.Value.(*item)
	for e := victim.Prev(); e != nil; e = e.Prev() {
		it := e.Value.(*item)
		if !it.lastAccessed.Equal(oldest.lastAccessed) {
			break
		}
		if it.createdAt.Before(victim.Value.(*item).createdAt) {
			victim = e
		}
	}
	return victim
}

// evictElement must be called with mu held.
func (c *Memory) evictElement(elem *list.Element) {
	c.removeElement(elem)
	c.stats.Evictions++
	c.opts.metrics.CacheEvicted(c.opts.label, 1)
}

// contains reports whether key is held, expired or not.
func (c *Memory) contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[key]
	return ok
}

func (c *Memory) Invalidate(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
}

// InvalidatePattern removes every key containing substr. An empty substr
// matches, and removes, everything.
func (c *Memory) InvalidatePattern(_ context.Context, substr string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, elem := range c.items {
		if strings.Contains(key, substr) {
			c.removeElement(elem)
			removed++
		}
	}
	return removed
}

// Sweep purges every expired entry and returns how many were removed.
func (c *Memory) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.opts.clock()
	removed := 0
	for elem := c.lru.Back(); elem != nil; {
		prev := elem.Prev()
		if elem.Value.(*item).expired(now) {
			c.removeElement(elem)
			removed++
		}
		elem = prev
	}
	c.stats.Expirations += int64(removed)
	c.opts.metrics.CacheExpired(c.opts.label, removed)
	return removed
}

// Peek returns the entry for key without touching its recency or expiring
// it.
func (c *Memory) Peek(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.items[key]
	if !ok {
		return Entry{}, false
	}
	it := elem.Value.(*item)
	return Entry{
		Key:          it.key,
		Value:        clone(it.value),
		CreatedAt:    it.createdAt,
		TTL:          it.ttl,
		LastAccessed: it.lastAccessed,
	}, true
}

// Keys returns the cached keys from most to least recently used.
func (c *Memory) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, c.lru.Len())
	for e := c.lru.Front(); e != nil; e = e.Next() {
		keys = append(keys, e.Value.(*item).key)
	}
	return keys
}

// Len counts entries still held, including expired ones not yet purged.
func (c *Memory) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func (c *Memory) Cap() int { return c.maxSize }

func (c *Memory) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Close stops the sweeper and drops every entry.
func (c *Memory) Close() error {
	c.janitor.close()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.lru.Init()
	c.opts.metrics.SetCacheSize(c.opts.label, 0)
	return nil
}

// removeElement must be called with mu held.
func (c *Memory) removeElement(elem *list.Element) {
	c.lru.Remove(elem)
	delete(c.items, elem.Value.(*item).key)
	c.opts.metrics.SetCacheSize(c.opts.label, c.lru.Len())
}

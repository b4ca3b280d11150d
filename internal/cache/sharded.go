package cache

import (
	"container/list"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spaolacci/murmur3"
)

// Sharded spreads keys over several Memory shards by murmur3 hash so that
// reads of unrelated keys do not contend on one lock. Capacity and LRU order
// are global: inserts are serialized, and a full cache evicts the least
// recently used entry across all shards.
type Sharded struct {
	shards  []*Memory
	maxSize int
	admit   sync.Mutex
	janitor *janitor
}

// NewSharded spreads at most maxSize entries over n shards. n is clamped to
// [1, maxSize].
func NewSharded(maxSize, n int, defaultTTL time.Duration, opts ...Option) *Sharded {
	if maxSize < 1 {
		maxSize = 1
	}
	if n < 1 {
		n = 1
	}
	if n > maxSize {
		n = maxSize
	}
	o := buildOptions("sharded", opts)
	s := &Sharded{shards: make([]*Memory, n), maxSize: maxSize}
	seq := new(atomic.Uint64)
	for i := range s.shards {
		// Any shard may hold the whole cache; eviction happens here, not in
		// the shard.
		s.shards[i] = NewMemory(maxSize, defaultTTL,
			WithClock(o.clock),
			WithMetrics(o.metrics),
			withLabel(fmt.Sprintf("%s-%d", o.label, i)),
			withSequence(seq),
		)
	}
	logger := slog.Default().With("component", "result-cache", "strategy", o.label)
	s.janitor = startJanitor(o.sweepInterval, logger, s.Sweep)
	return s
}

func (s *Sharded) shard(key string) *Memory {
	return s.shards[murmur3.Sum32([]byte(key))%uint32(len(s.shards))]
}

func (s *Sharded) Get(ctx context.Context, key string) ([]byte, bool) {
	return s.shard(key).Get(ctx, key)
}

func (s *Sharded) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	sh := s.shard(key)
	s.admit.Lock()
	defer s.admit.Unlock()
	// Only admit adds entries, so the total cannot grow between the check and
	// the insert.
	if !sh.contains(key) && s.Len() >= s.maxSize {
		s.evictOldest()
	}
	sh.Set(ctx, key, value, ttl)
}

// evictOldest removes the least recently used entry of the whole cache,
// breaking access-time ties by creation time. It holds every shard lock so
// the choice cannot go stale; admit must be held.
func (s *Sharded) evictOldest() {
	for _, sh := range s.shards {
		sh.mu.Lock()
	}
	defer func() {
		for _, sh := range s.shards {
			sh.mu.Unlock()
		}
	}()
	var owner *Memory
	var victim *list.Element
	for _, sh := range s.shards {
		e := sh.victim()
		if e == nil {
			continue
		}
		if victim == nil || lessRecent(e.Value.(*item), victim.Value.(*item)) {
			owner, victim = sh, e
		}
	}
	if victim != nil {
		owner.evictElement(victim)
	}
}

func lessRecent(a, b *item) bool {
	if !a.lastAccessed.Equal(b.lastAccessed) {
		return a.lastAccessed.Before(b.lastAccessed)
	}
	if !a.createdAt.Equal(b.createdAt) {
		return a.createdAt.Before(b.createdAt)
	}
	return a.touched < b.touched
}

func (s *Sharded) Invalidate(ctx context.Context, key string) {
	s.shard(key).Invalidate(ctx, key)
}

func (s *Sharded) InvalidatePattern(ctx context.Context, substr string) int {
	removed := 0
	for _, sh := range s.shards {
		removed += sh.InvalidatePattern(ctx, substr)
	}
	return removed
}

// Sweep purges expired entries from every shard.
func (s *Sharded) Sweep() int {
	removed := 0
	for _, sh := range s.shards {
		removed += sh.Sweep()
	}
	return removed
}

func (s *Sharded) Len() int {
	n := 0
	for _, sh := range s.shards {
		n += sh.Len()
	}
	return n
}

func (s *Sharded) Cap() int { return s.maxSize }

func (s *Sharded) Stats() Stats {
	var total Stats
	for _, sh := range s.shards {
		total = total.add(sh.Stats())
	}
	return total
}

func (s *Sharded) ShardCount() int { return len(s.shards) }

func (s *Sharded) Close() error {
	s.janitor.close()
	for _, sh := range s.shards {
		_ = sh.Close()
	}
	return nil
}

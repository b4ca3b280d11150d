// Package cache holds the result cache: a byte-payload store with per-entry
// TTL and LRU-bounded capacity. Three strategies share the ResultCache
// interface (in-process memory, murmur3-sharded memory, and Redis) and one
// is chosen from configuration at startup.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/metrics"
)

// ResultCache is the contract shared by every strategy. A miss is a normal
// outcome, not an error; backend failures are logged and read as misses.
// Values passed to Set and returned by Get are copies.
type ResultCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	// Set stores value for ttl; ttl <= 0 uses the cache's default TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Invalidate(ctx context.Context, key string)
	// InvalidatePattern removes every key containing substr and returns how
	// many were removed.
	InvalidatePattern(ctx context.Context, substr string) int
	Len() int
	Cap() int
	Stats() Stats
	Close() error
}

// Stats are cumulative counters since the cache was created.
type Stats struct {
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Evictions   int64 `json:"evictions"`
	Expirations int64 `json:"expirations"`
}

func (s Stats) add(o Stats) Stats {
	return Stats{
		Hits:        s.Hits + o.Hits,
		Misses:      s.Misses + o.Misses,
		Evictions:   s.Evictions + o.Evictions,
		Expirations: s.Expirations + o.Expirations,
	}
}

// Entry is a read-only view of one cached item.
type Entry struct {
	Key          string        `json:"key"`
	Value        []byte        `json:"-"`
	CreatedAt    time.Time     `json:"createdAt"`
	TTL          time.Duration `json:"ttl"`
	LastAccessed time.Time     `json:"lastAccessed"`
}

// Valid reports whether the entry is still within its TTL at now.
func (e Entry) Valid(now time.Time) bool {
	return now.Sub(e.CreatedAt) <= e.TTL
}

type options struct {
	clock         func() time.Time
	sweepInterval time.Duration
	metrics       *metrics.Metrics
	label         string
	seq           *atomic.Uint64
}

// Option configures a cache strategy.
type Option func(*options)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// WithSweepInterval starts a background sweeper that purges expired entries
// every d. Zero disables it.
func WithSweepInterval(d time.Duration) Option {
	return func(o *options) { o.sweepInterval = d }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// withLabel overrides the strategy label reported to metrics.
func withLabel(label string) Option {
	return func(o *options) { o.label = label }
}

// withSequence shares one access counter between caches, so recency can be
// compared across them.
func withSequence(seq *atomic.Uint64) Option {
	return func(o *options) { o.seq = seq }
}

func buildOptions(label string, opts []Option) options {
	o := options{clock: time.Now, label: label}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// janitor runs sweep on a fixed period until stop is closed.
type janitor struct {
	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func startJanitor(interval time.Duration, logger *slog.Logger, sweep func() int) *janitor {
	j := &janitor{stop: make(chan struct{})}
	if interval <= 0 {
		return j
	}
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := sweep(); n > 0 {
					logger.Debug("swept expired entries", "removed", n)
				}
			case <-j.stop:
				return
			}
		}
	}()
	return j
}

func (j *janitor) close() {
	j.once.Do(func() { close(j.stop) })
	j.wg.Wait()
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/golang/snappy"

	pkgredis "github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/redis"
)

// redisBackend is the subset of *pkgredis.Client the Redis strategy uses.
type redisBackend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	MGet(ctx context.Context, keys ...string) ([][]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	Touch(ctx context.Context, zkey, member string, score float64) error
	Card(ctx context.Context, zkey string) (int64, error)
	Lowest(ctx context.Context, zkey string) ([]string, error)
	Members(ctx context.Context, zkey string) ([]string, error)
	Untrack(ctx context.Context, zkey string, members ...string) error
	ScanKeys(ctx context.Context, pattern string) ([]string, error)
}

var _ redisBackend = (*pkgredis.Client)(nil)

// envelope is what is stored under an entry key, snappy-compressed.
type envelope struct {
	CreatedAt int64  `json:"c"` // unix microseconds
	TTL       int64  `json:"t"` // microseconds
	Payload   []byte `json:"p"`
}

func (e envelope) expired(now time.Time) bool {
	return now.UnixMicro()-e.CreatedAt > e.TTL
}

const (
	entryNamespace = "rc:"
	lruSuffix      = "rc-lru"
	backendTimeout = 2 * time.Second
	sweepBatch     = 256
)

// Redis keeps entries in Redis so several API processes can share them.
// Each entry is a key with a PX expiry; recency lives in a sorted set scored
// by last access in microseconds. Capacity is enforced by this process
// before each insert, so with several writers it is best effort.
type Redis struct {
	mu         sync.Mutex
	client     redisBackend
	prefix     string
	lruKey     string
	maxSize    int
	defaultTTL time.Duration
	stats      Stats

	opts    options
	logger  *slog.Logger
	janitor *janitor
}

// NewRedis builds the Redis strategy on an already connected client.
func NewRedis(client *pkgredis.Client, keyPrefix string, maxSize int, defaultTTL time.Duration, opts ...Option) *Redis {
	return newRedis(client, keyPrefix, maxSize, defaultTTL, opts...)
}

func newRedis(client redisBackend, keyPrefix string, maxSize int, defaultTTL time.Duration, opts ...Option) *Redis {
	if maxSize < 1 {
		maxSize = 1
	}
	o := buildOptions("redis", opts)
	c := &Redis{
		client:     client,
		prefix:     keyPrefix + entryNamespace,
		lruKey:     keyPrefix + lruSuffix,
		maxSize:    maxSize,
		defaultTTL: defaultTTL,
		opts:       o,
		logger:     slog.Default().With("component", "result-cache", "strategy", o.label),
	}
	c.janitor = startJanitor(o.sweepInterval, c.logger, c.Sweep)
	return c
}

func (c *Redis) entryKey(key string) string { return c.prefix + key }

func (c *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, backendTimeout)
	defer cancel()
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := c.client.Get(ctx, c.entryKey(key))
	if err != nil {
		if pkgredis.IsNilError(err) {
			// Expired by Redis itself; drop the recency record too.
			c.untrack(ctx, key)
		} else {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		return c.miss()
	}
	env, err := decodeEnvelope(raw)
	if err != nil {
		c.logger.Error("cache entry corrupt, dropping", "key", key, "error", err)
		c.remove(ctx, key)
		return c.miss()
	}
	now := c.opts.clock()
	if env.expired(now) {
		c.remove(ctx, key)
		c.stats.Expirations++
		c.opts.metrics.CacheExpired(c.opts.label, 1)
		return c.miss()
	}
	if err := c.client.Touch(ctx, c.lruKey, key, float64(now.UnixMicro())); err != nil {
		c.logger.Warn("recording access failed", "key", key, "error", err)
	}
	c.stats.Hits++
	c.opts.metrics.CacheHit(c.opts.label)
	return env.Payload, true
}

func (c *Redis) miss() ([]byte, bool) {
	c.stats.Misses++
	c.opts.metrics.CacheMiss(c.opts.label)
	return nil, false
}

func (c *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	ctx, cancel := context.WithTimeout(ctx, backendTimeout)
	defer cancel()
	c.mu.Lock()
	defer c.mu.Unlock()

	exists, err := c.client.Exists(ctx, c.entryKey(key))
	if err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
		return
	}
	if !exists {
		if err := c.makeRoom(ctx); err != nil {
			c.logger.Error("cache eviction failed", "key", key, "error", err)
			return
		}
	}

	now := c.opts.clock()
	raw, err := encodeEnvelope(envelope{
		CreatedAt: now.UnixMicro(),
		TTL:       ttl.Microseconds(),
		Payload:   value,
	})
	if err != nil {
		c.logger.Error("cache encode failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, c.entryKey(key), raw, ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
		return
	}
	if err := c.client.Touch(ctx, c.lruKey, key, float64(now.UnixMicro())); err != nil {
		c.logger.Error("recording access failed", "key", key, "error", err)
	}
	c.refreshSize(ctx)
}

// makeRoom evicts until a new key fits. Recency records whose entry Redis
// already expired are dropped without counting as evictions.
func (c *Redis) makeRoom(ctx context.Context) error {
	for {
		n, err := c.client.Card(ctx, c.lruKey)
		if err != nil {
			return err
		}
		if int(n) < c.maxSize {
			return nil
		}
		members, err := c.client.Lowest(ctx, c.lruKey)
		if err != nil {
			return err
		}
		if len(members) == 0 {
			return nil
		}
		victim, ghosts, err := c.pickVictim(ctx, members)
		if err != nil {
			return err
		}
		if len(ghosts) > 0 {
			if err := c.client.Untrack(ctx, c.lruKey, ghosts...); err != nil {
				return err
			}
			c.stats.Expirations += int64(len(ghosts))
			c.opts.metrics.CacheExpired(c.opts.label, len(ghosts))
			continue
		}
		c.remove(ctx, victim)
		c.stats.Evictions++
		c.opts.metrics.CacheEvicted(c.opts.label, 1)
	}
}

// pickVictim returns the member created earliest among members, which all
// share the lowest access score, or the members whose entry is gone.
func (c *Redis) pickVictim(ctx context.Context, members []string) (string, []string, error) {
	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = c.entryKey(m)
	}
	raws, err := c.client.MGet(ctx, keys...)
	if err != nil {
		return "", nil, err
	}
	var ghosts []string
	victim := ""
	var oldest int64
	for i, raw := range raws {
		if raw == nil {
			ghosts = append(ghosts, members[i])
			continue
		}
		env, err := decodeEnvelope(raw)
		if err != nil {
			ghosts = append(ghosts, members[i])
			continue
		}
		if victim == "" || env.CreatedAt < oldest {
			victim, oldest = members[i], env.CreatedAt
		}
	}
	return victim, ghosts, nil
}

func (c *Redis) Invalidate(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(ctx, backendTimeout)
	defer cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remove(ctx, key)
	c.refreshSize(ctx)
}

func (c *Redis) InvalidatePattern(ctx context.Context, substr string) int {
	ctx, cancel := context.WithTimeout(ctx, backendTimeout)
	defer cancel()
	c.mu.Lock()
	defer c.mu.Unlock()

	keys, err := c.client.ScanKeys(ctx, c.prefix+"*"+globEscape(substr)+"*")
	if err != nil {
		c.logger.Error("pattern invalidation scan failed", "pattern", substr, "error", err)
	}
	if len(keys) == 0 {
		return 0
	}
	members := make([]string, len(keys))
	for i, k := range keys {
		members[i] = strings.TrimPrefix(k, c.prefix)
	}
	if err := c.client.Del(ctx, keys...); err != nil {
		c.logger.Error("pattern invalidation failed", "pattern", substr, "error", err)
		return 0
	}
	if err := c.client.Untrack(ctx, c.lruKey, members...); err != nil {
		c.logger.Warn("untracking invalidated keys failed", "error", err)
	}
	c.refreshSize(ctx)
	return len(keys)
}

// Sweep drops recency records for entries Redis has expired and removes
// entries whose TTL has elapsed by this process's clock.
func (c *Redis) Sweep() int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*backendTimeout)
	defer cancel()
	c.mu.Lock()
	defer c.mu.Unlock()

	members, err := c.client.Members(ctx, c.lruKey)
	if err != nil {
		c.logger.Error("sweep failed", "error", err)
		return 0
	}
	now := c.opts.clock()
	removed := 0
	for start := 0; start < len(members); start += sweepBatch {
		batch := members[start:min(start+sweepBatch, len(members))]
		keys := make([]string, len(batch))
		for i, m := range batch {
			keys[i] = c.entryKey(m)
		}
		raws, err := c.client.MGet(ctx, keys...)
		if err != nil {
			c.logger.Error("sweep failed", "error", err)
			break
		}
		for i, raw := range raws {
			if raw != nil {
				env, err := decodeEnvelope(raw)
				if err == nil && !env.expired(now) {
					continue
				}
			}
			c.remove(ctx, batch[i])
			removed++
		}
	}
	c.stats.Expirations += int64(removed)
	c.opts.metrics.CacheExpired(c.opts.label, removed)
	c.refreshSize(ctx)
	return removed
}

// Len is the number of tracked entries, which may include entries Redis has
// expired since the last sweep.
func (c *Redis) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), backendTimeout)
	defer cancel()
	n, err := c.client.Card(ctx, c.lruKey)
	if err != nil {
		c.logger.Error("reading cache size failed", "error", err)
		return 0
	}
	return int(n)
}

func (c *Redis) Cap() int { return c.maxSize }

func (c *Redis) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Close stops the sweeper. Entries stay in Redis for other processes; the
// client is owned and closed by the caller.
func (c *Redis) Close() error {
	c.janitor.close()
	return nil
}

// remove must be called with mu held.
func (c *Redis) remove(ctx context.Context, key string) {
	if err := c.client.Del(ctx, c.entryKey(key)); err != nil {
		c.logger.Warn("deleting cache entry failed", "key", key, "error", err)
	}
	c.untrack(ctx, key)
}

func (c *Redis) untrack(ctx context.Context, key string) {
	if err := c.client.Untrack(ctx, c.lruKey, key); err != nil {
		c.logger.Warn("untracking cache entry failed", "key", key, "error", err)
	}
}

func (c *Redis) refreshSize(ctx context.Context) {
	if c.opts.metrics == nil {
		return
	}
	if n, err := c.client.Card(ctx, c.lruKey); err == nil {
		c.opts.metrics.SetCacheSize(c.opts.label, int(n))
	}
}

func encodeEnvelope(e envelope) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, data), nil
}

func decodeEnvelope(raw []byte) (envelope, error) {
	var e envelope
	data, err := snappy.Decode(nil, raw)
	if err != nil {
		return e, fmt.Errorf("decompressing entry: %w", err)
	}
	if err := json.Unmarshal(data, &e); err != nil {
		return e, fmt.Errorf("decoding entry: %w", err)
	}
	return e, nil
}

// globEscape quotes the characters SCAN MATCH treats as wildcards.
func globEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

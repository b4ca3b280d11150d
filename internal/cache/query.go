package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Key builds the canonical signature of a request: the query name followed
// by its parameters sorted by name, each as "name=value;". Values are
// query-escaped so that a parameter can be matched exactly by substring.
func Key(query string, params map[string]string) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	b.WriteString(query)
	b.WriteByte(':')
	for _, name := range names {
		b.WriteString(Param(name, params[name]))
	}
	return b.String()
}

// Param renders one parameter the way Key does. Passing it to
// InvalidatePattern removes every cached view filtered on that value.
func Param(name, value string) string {
	return name + "=" + url.QueryEscape(value) + ";"
}

const defaultComputeTimeout = 30 * time.Second

// QueryCache memoizes serialized query results in a ResultCache and makes
// concurrent misses for the same key share one computation.
type QueryCache struct {
	cache          ResultCache
	ttl            time.Duration
	computeTimeout time.Duration
	group          singleflight.Group
	logger         *slog.Logger
	hits           atomic.Int64
	misses         atomic.Int64
}

// QueryOption configures a QueryCache.
type QueryOption func(*QueryCache)

// WithComputeTimeout bounds a shared computation. It runs detached from the
// caller that started it, so this is its only deadline.
func WithComputeTimeout(d time.Duration) QueryOption {
	return func(q *QueryCache) {
		if d > 0 {
			q.computeTimeout = d
		}
	}
}

// NewQueryCache stores results for ttl; zero uses the cache default.
func NewQueryCache(c ResultCache, ttl time.Duration, opts ...QueryOption) *QueryCache {
	q := &QueryCache{
		cache:          c,
		ttl:            ttl,
		computeTimeout: defaultComputeTimeout,
		logger:         slog.Default().With("component", "query-cache"),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *QueryCache) Cache() ResultCache { return q.cache }

// GetOrCompute returns the cached payload for key, or runs compute, stores
// its result and returns it. The bool reports a cache hit. Errors from
// compute are returned as is and nothing is cached.
//
// Callers missing on the same key share one compute call. It keeps the
// values of the first caller's ctx but not its cancellation, so one client
// going away does not fail the others; a caller whose own ctx ends gets
// ctx.Err() without waiting.
func (q *QueryCache) GetOrCompute(
	ctx context.Context,
	key string,
	compute func(ctx context.Context) ([]byte, error),
) ([]byte, bool, error) {
	if data, ok := q.cache.Get(ctx, key); ok {
		q.hits.Add(1)
		q.logger.Debug("cache hit", "key", key)
		return data, true, nil
	}
	q.misses.Add(1)
	ch := q.group.DoChan(key, func() (_ any, err error) {
		// DoChan re-panics on a goroutine nobody can recover.
		defer func() {
			if p := recover(); p != nil {
				q.logger.Error("query computation panicked", "key", key, "panic", p)
				err = fmt.Errorf("computing %s: panic: %v", key, p)
			}
		}()
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), q.computeTimeout)
		defer cancel()
		if data, ok := q.cache.Get(cctx, key); ok {
			return data, nil
		}
		data, err := compute(cctx)
		if err != nil {
			return nil, err
		}
		q.cache.Set(cctx, key, data, q.ttl)
		return data, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return clone(res.Val.([]byte)), false, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// GetOrComputeJSON is GetOrCompute for a JSON-encoded T.
func GetOrComputeJSON[T any](
	ctx context.Context,
	q *QueryCache,
	key string,
	compute func(ctx context.Context) (T, error),
) (T, bool, error) {
	var out T
	data, hit, err := q.GetOrCompute(ctx, key, func(ctx context.Context) ([]byte, error) {
		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	})
	if err != nil {
		return out, false, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		q.cache.Invalidate(ctx, key)
		return out, false, fmt.Errorf("decoding cached %s: %w", key, err)
	}
	return out, hit, nil
}

// InvalidateEntity drops every cached view filtered on kind=name.
func (q *QueryCache) InvalidateEntity(ctx context.Context, kind, name string) int {
	n := q.cache.InvalidatePattern(ctx, Param(kind, name))
	q.logger.Info("cache invalidate", "kind", kind, "name", name, "keys_deleted", n)
	return n
}

// InvalidateQuery drops every cached result of one query.
func (q *QueryCache) InvalidateQuery(ctx context.Context, query string) int {
	n := q.cache.InvalidatePattern(ctx, query+":")
	q.logger.Info("cache invalidate", "query", query, "keys_deleted", n)
	return n
}

// InvalidateAll empties the cache.
func (q *QueryCache) InvalidateAll(ctx context.Context) int {
	n := q.cache.InvalidatePattern(ctx, "")
	q.logger.Info("cache invalidate", "keys_deleted", n)
	return n
}

func (q *QueryCache) Stats() (hits, misses int64) {
	return q.hits.Load(), q.misses.Load()
}

// Package redis provides a thin wrapper around go-redis/v9 with connection
// pooling, byte-value get/set with TTL, sorted-set helpers used for recency
// tracking, and pattern-based key invalidation.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/config"
	"github.com/redis/go-redis/v9"
)

// Client wraps a go-redis client.
type Client struct {
	rdb *redis.Client
}

// NewClient creates a Redis client and verifies the connection with a PING.
func NewClient(cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

// Get returns the raw bytes stored at key.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	return c.rdb.Get(ctx, key).Bytes()
}

// MGet returns the values for keys; missing keys yield nil entries.
func (c *Client) MGet(ctx context.Context, keys ...string) ([][]byte, error) {
	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[i] = []byte(s)
		}
	}
	return out, nil
}

// Set stores a value with the given TTL.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// Del deletes one or more keys.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// Exists reports whether key is present.
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key).Result()
	return n > 0, err
}

// Touch records member in the sorted set at zkey with the given score.
func (c *Client) Touch(ctx context.Context, zkey, member string, score float64) error {
	return c.rdb.ZAdd(ctx, zkey, redis.Z{Score: score, Member: member}).Err()
}

// Card returns the number of members in the sorted set.
func (c *Client) Card(ctx context.Context, zkey string) (int64, error) {
	return c.rdb.ZCard(ctx, zkey).Result()
}

// Lowest returns the members sharing the lowest score in the sorted set.
func (c *Client) Lowest(ctx context.Context, zkey string) ([]string, error) {
	head, err := c.rdb.ZRangeWithScores(ctx, zkey, 0, 0).Result()
	if err != nil {
		return nil, err
	}
	if len(head) == 0 {
		return nil, nil
	}
	score := strconv.FormatFloat(head[0].Score, 'f', -1, 64)
	return c.rdb.ZRangeByScore(ctx, zkey, &redis.ZRangeBy{Min: score, Max: score}).Result()
}

// Members returns every member of the sorted set, lowest score first.
func (c *Client) Members(ctx context.Context, zkey string) ([]string, error) {
	return c.rdb.ZRange(ctx, zkey, 0, -1).Result()
}

// Untrack removes members from the sorted set.
func (c *Client) Untrack(ctx context.Context, zkey string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return c.rdb.ZRem(ctx, zkey, args...).Err()
}

// ScanKeys returns every key matching the glob pattern.
func (c *Client) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return keys, fmt.Errorf("scanning pattern %s: %w", pattern, err)
	}
	return keys, nil
}

// IsNilError reports whether err is a Redis nil (key-not-found) error.
func IsNilError(err error) bool {
	return errors.Is(err, redis.Nil)
}

// Close closes the underlying Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping sends a PING to Redis and returns any error.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

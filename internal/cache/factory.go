package cache

import (
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/redis"
)

// New builds the strategy named by cfg.Strategy. The redis strategy needs a
// connected client; there is no fallback to memory when it is missing.
func New(cfg config.CacheConfig, redisCfg config.RedisConfig, client *pkgredis.Client, m *metrics.Metrics) (ResultCache, error) {
	opts := []Option{WithSweepInterval(cfg.SweepInterval), WithMetrics(m)}
	var c ResultCache
	switch cfg.Strategy {
	case config.CacheStrategyMemory, "":
		c = NewMemory(cfg.MaxSize, cfg.DefaultTTL, opts...)
	case config.CacheStrategySharded:
		c = NewSharded(cfg.MaxSize, cfg.Shards, cfg.DefaultTTL, opts...)
	case config.CacheStrategyRedis:
		if client == nil {
			return nil, fmt.Errorf("cache strategy %q: %w", cfg.Strategy, apperrors.ErrCacheUnconfigured)
		}
		c = NewRedis(client, redisCfg.KeyPrefix, cfg.MaxSize, cfg.DefaultTTL, opts...)
	default:
		return nil, fmt.Errorf("unknown cache strategy %q: %w", cfg.Strategy, apperrors.ErrInvalidInput)
	}
	slog.Default().With("component", "result-cache").Info("result cache ready",
		"strategy", cfg.Strategy,
		"max_size", cfg.MaxSize,
		"default_ttl", cfg.DefaultTTL,
		"sweep_interval", cfg.SweepInterval,
	)
	return c, nil
}

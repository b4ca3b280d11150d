package store

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/resilience"
)

// Backend is a durable match store as returned by Open.
type Backend interface {
	DocumentStore
	Writer
	TopKSource
	Count(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
	Close() error
}

// OptionsFromConfig maps the store section onto Options. MaxRetries counts
// retries, so the first attempt comes on top.
func OptionsFromConfig(cfg config.StoreConfig, m *metrics.Metrics) Options {
	return Options{
		FetchTimeout: cfg.FetchTimeout,
		Retry:        resilience.RetryConfig{MaxAttempts: cfg.MaxRetries + 1},
		Metrics:      m,
	}
}

// Open connects to the store named by cfg.Store.Driver and makes sure the
// matches table exists.
func Open(ctx context.Context, cfg config.Config, m *metrics.Metrics) (Backend, error) {
	opts := OptionsFromConfig(cfg.Store, m)
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		client, err := postgres.New(ctx, cfg.Postgres, opts.Retry)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", apperrors.ErrStoreUnavailable, err)
		}
		pg := NewPostgres(client, opts)
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		return pg, nil
	case config.StoreDriverSQLite:
		s, err := OpenSQLite(ctx, cfg.SQLite.Path, opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q: %w", cfg.Store.Driver, apperrors.ErrInvalidInput)
	}
}

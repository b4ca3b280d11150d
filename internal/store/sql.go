package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/internal/aggregate"
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/internal/match"
	apperrors "github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/resilience"
)

// Options tunes how a SQL store talks to its database.
type Options struct {
	// FetchTimeout bounds each attempt; zero means no limit.
	FetchTimeout time.Duration
	Retry        resilience.RetryConfig
	Breaker      resilience.CircuitBreakerConfig
	Metrics      *metrics.Metrics
}

// SQL is a match store over a "matches" table holding one JSON document per
// row. It is shared by the PostgreSQL and SQLite stores, which differ only in
// their schema and dialect.
type SQL struct {
	db      *sql.DB
	dialect dialect
	opts    Options
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

func newSQL(db *sql.DB, d dialect, opts Options) *SQL {
	cbCfg := opts.Breaker
	m := opts.Metrics
	cbCfg.OnStateChange = func(name string, to resilience.State) {
		m.SetBreakerState(name, int(to))
	}
	// A caller giving up says nothing about the database.
	cbCfg.IsFailure = func(err error) bool {
		return !errors.Is(err, context.Canceled)
	}
	return &SQL{
		db:      db,
		dialect: d,
		opts:    opts,
		breaker: resilience.NewCircuitBreaker(d.name+"-store", cbCfg),
		logger:  slog.Default().With("component", "match-store", "driver", d.name),
	}
}

// guard runs fn behind the circuit breaker with retries and a per-attempt
// timeout. Failures are reported as ErrStoreUnavailable wrapping the cause.
func (s *SQL) guard(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	name := s.dialect.name + "." + op
	retry := s.opts.Retry
	retry.Retryable = retryable
	retry.OnRetry = func(int, error) { s.opts.Metrics.StoreRetried(op) }
	err := s.breaker.Execute(func() error {
		return resilience.Retry(ctx, name, retry, func() error {
			return resilience.WithTimeout(ctx, s.opts.FetchTimeout, name, fn)
		})
	})
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", name, apperrors.ErrStoreUnavailable, err)
}

// retryable rejects failures another attempt cannot fix: the caller went
// away, or the rows no longer scan.
func retryable(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, errScan)
}

var errScan = errors.New("scan failed")

func (s *SQL) FetchAll(ctx context.Context) ([]match.Record, error) {
	var out []match.Record
	err := s.guard(ctx, "fetch-all", func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, `SELECT doc FROM matches ORDER BY seq`)
		if err != nil {
			return fmt.Errorf("querying matches: %w", err)
		}
		out, err = s.scanDocs(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("fetched all matches", "count", len(out))
	return out, nil
}

func (s *SQL) FetchByIDs(ctx context.Context, ids []string) ([]match.Record, error) {
	if len(ids) == 0 {
		return []match.Record{}, nil
	}
	var found []match.Record
	err := s.guard(ctx, "fetch-by-ids", func(ctx context.Context) error {
		query, args := s.dialect.byIDs(ids)
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("querying matches by id: %w", err)
		}
		found, err = s.scanDocs(rows)
		return err
	})
	if err != nil {
		return nil, err
	}

	byID := make(map[string]int, len(found))
	for i := range found {
		byID[found[i].ID] = i
	}
	out := make([]match.Record, 0, len(found))
	for _, id := range ids {
		if i, ok := byID[id]; ok {
			out = append(out, found[i])
			delete(byID, id)
		}
	}
	return out, nil
}

// scanDocs decodes one JSON document per row. Documents that no longer
// decode are logged and skipped.
func (s *SQL) scanDocs(rows *sql.Rows) ([]match.Record, error) {
	defer rows.Close()
	var out []match.Record
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("%w: match row: %w", errScan, err)
		}
		var r match.Record
		if err := json.Unmarshal(doc, &r); err != nil {
			s.logger.Warn("skipping corrupt match document", "error", err)
			continue
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating match rows: %w", err)
	}
	return out, nil
}

// Save inserts records in one transaction, ignoring matchIds already stored.
func (s *SQL) Save(ctx context.Context, records ...match.Record) (int, error) {
	docs := make([][]byte, len(records))
	for i := range records {
		if err := records[i].Validate(); err != nil {
			return 0, apperrors.Newf(apperrors.ErrInvalidInput, 400, "record %d: %v", i, err)
		}
		doc, err := json.Marshal(records[i])
		if err != nil {
			return 0, fmt.Errorf("marshaling match %s: %w", records[i].ID, err)
		}
		docs[i] = doc
	}

	insert := fmt.Sprintf(
		`INSERT INTO matches (match_id, game_creation, doc) VALUES (%s, %s, %s) ON CONFLICT (match_id) DO NOTHING`,
		s.dialect.placeholder(1), s.dialect.placeholder(2), s.dialect.placeholder(3),
	)
	inserted := 0
	err := s.guard(ctx, "save", func(ctx context.Context) error {
		inserted = 0
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning transaction: %w", err)
		}
		for i := range records {
			res, err := tx.ExecContext(ctx, insert, records[i].ID, records[i].CreatedAt.UTC(), string(docs[i]))
			if err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("inserting match %s: %w", records[i].ID, err)
			}
			if n, err := res.RowsAffected(); err == nil {
				inserted += int(n)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("matches saved", "received", len(records), "inserted", inserted)
	return inserted, nil
}

// ChampionTopK runs the champion ranking inside the database.
func (s *SQL) ChampionTopK(ctx context.Context, q ChampionQuery) ([]aggregate.Group, error) {
	query, args, err := championTopKQuery(s.dialect, q)
	if err != nil {
		return nil, err
	}
	var out []aggregate.Group
	err = s.guard(ctx, "champion-topk", func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("querying champion ranking: %w", err)
		}
		defer rows.Close()
		out = out[:0]
		for rows.Next() {
			var champion string
			values := make([]float64, len(championSelectOrder))
			dest := make([]any, 0, len(values)+1)
			dest = append(dest, &champion)
			for i := range values {
				dest = append(dest, &values[i])
			}
			if err := rows.Scan(dest...); err != nil {
				return fmt.Errorf("%w: champion ranking: %w", errScan, err)
			}
			byName := make(map[string]float64, len(values))
			for i, name := range championSelectOrder {
				byName[name] = values[i]
			}
			out = append(out, aggregate.Group{
				GroupKey:    champion,
				SampleCount: int(byName[match.MetricTotalGames]),
				Metrics:     byName,
			})
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []aggregate.Group{}
	}
	return out, nil
}

// Count reports the number of stored matches.
func (s *SQL) Count(ctx context.Context) (int, error) {
	var n int
	err := s.guard(ctx, "count", func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM matches`).Scan(&n)
	})
	return n, err
}

// Ping checks the connection; used by health checks.
func (s *SQL) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

package index

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/internal/match"
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/tracing"
)

// Fetcher is the part of the document store a rebuild needs.
type Fetcher interface {
	FetchAll(ctx context.Context) ([]match.Record, error)
}

// RebuildResult describes one completed rebuild of both indexes.
type RebuildResult struct {
	ID        string        `json:"rebuildId"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
	Records   int           `json:"records"`
	Reports   []BuildReport `json:"reports"`
}

// Manager owns the player and champion indexes and is the only thing that
// rebuilds them. Concurrent Rebuild calls share one in-flight rebuild.
type Manager struct {
	source    Fetcher
	players   *Index
	champions *Index
	cfg       config.IndexConfig
	limiter   *rate.Limiter
	group     singleflight.Group
	metrics   *metrics.Metrics
	logger    *slog.Logger

	last atomic.Pointer[RebuildResult]

	listenersMu sync.RWMutex
	listeners   []func(RebuildResult)

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewManager(source Fetcher, cfg config.IndexConfig, m *metrics.Metrics) *Manager {
	limit := rate.Inf
	if cfg.MinManualInterval > 0 {
		limit = rate.Every(cfg.MinManualInterval)
	}
	return &Manager{
		source:    source,
		players:   NewPlayers(),
		champions: NewChampions(),
		cfg:       cfg,
		limiter:   rate.NewLimiter(limit, 1),
		metrics:   m,
		logger:    slog.Default().With("component", "index-manager"),
		stopCh:    make(chan struct{}),
	}
}

func (m *Manager) Players() *Index   { return m.players }
func (m *Manager) Champions() *Index { return m.champions }

// ByKind returns the index for match.KindPlayer or match.KindChampion.
func (m *Manager) ByKind(kind string) (*Index, bool) {
	switch kind {
	case match.KindPlayer:
		return m.players, true
	case match.KindChampion:
		return m.champions, true
	}
	return nil, false
}

// OnRebuild registers fn to run after every successful rebuild.
func (m *Manager) OnRebuild(fn func(RebuildResult)) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Ready reports whether both indexes have been built at least once.
func (m *Manager) Ready() bool {
	return m.players.Ready() && m.champions.Ready()
}

// EntityCount is the number of distinct players plus champions.
func (m *Manager) EntityCount() int {
	return m.players.EntityCount() + m.champions.EntityCount()
}

// LastRebuild returns the most recent successful rebuild.
func (m *Manager) LastRebuild() (RebuildResult, bool) {
	r := m.last.Load()
	if r == nil {
		return RebuildResult{}, false
	}
	return *r, true
}

// Rebuild fetches every record and rebuilds both indexes, then swaps them in
// together. A call made while a rebuild is running waits for that rebuild
// and shares its result, including a failure caused by the first caller's
// context.
func (m *Manager) Rebuild(ctx context.Context) (RebuildResult, error) {
	ch := m.group.DoChan("rebuild", func() (any, error) {
		return m.rebuild(ctx)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return RebuildResult{}, res.Err
		}
		if res.Shared {
			m.logger.Debug("joined in-flight rebuild")
		}
		return res.Val.(RebuildResult), nil
	case <-ctx.Done():
		return RebuildResult{}, fmt.Errorf("waiting for rebuild: %w", ctx.Err())
	}
}

// Trigger is Rebuild for externally requested rebuilds. Requests arriving
// faster than MinManualInterval are rejected with ErrRebuildThrottled.
func (m *Manager) Trigger(ctx context.Context) (RebuildResult, error) {
	if !m.limiter.Allow() {
		m.metrics.ObserveRebuild("throttled", 0)
		return RebuildResult{}, apperrors.Newf(apperrors.ErrRebuildThrottled, http.StatusTooManyRequests,
			"at most one manual rebuild per %v", m.cfg.MinManualInterval)
	}
	return m.Rebuild(ctx)
}

func (m *Manager) rebuild(ctx context.Context) (RebuildResult, error) {
	id := uuid.NewString()
	logger := m.logger.With("rebuild_id", id)
	start := time.Now()
	logger.Info("index rebuild started")
	ctx, span := tracing.StartSpan(ctx, "index.rebuild", id)
	defer func() {
		span.End()
		span.Log(logger)
	}()

	var result RebuildResult
	err := resilience.WithTimeout(ctx, m.cfg.RebuildTimeout, "index rebuild", func(ctx context.Context) error {
		_, fetch := tracing.StartChildSpan(ctx, "fetch")
		records, err := m.source.FetchAll(ctx)
		fetch.SetAttr("records", len(records))
		fetch.End()
		if err != nil {
			return fmt.Errorf("fetching records: %w", err)
		}

		targets := []*Index{m.players, m.champions}
		snaps := make([]*Snapshot, len(targets))
		reports := make([]BuildReport, len(targets))
		g, gctx := errgroup.WithContext(ctx)
		for i, ix := range targets {
			g.Go(func() error {
				bctx, build := tracing.StartChildSpan(gctx, "build."+ix.kind)
				defer build.End()
				snap, report, err := Build(bctx, ix.kind, records, ix.extract)
				snaps[i], reports[i] = snap, report
				build.SetAttr("entities", report.Entities)
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		for i, ix := range targets {
			ix.current.Store(snaps[i])
		}
		result = RebuildResult{
			ID:        id,
			StartedAt: start,
			Duration:  time.Since(start),
			Records:   len(records),
			Reports:   reports,
		}
		return nil
	})
	if err != nil {
		m.metrics.ObserveRebuild("error", time.Since(start))
		logger.Error("index rebuild failed", "error", err, "elapsed", time.Since(start))
		return RebuildResult{}, err
	}

	m.last.Store(&result)
	m.metrics.ObserveRebuild("ok", result.Duration)
	for _, r := range result.Reports {
		m.metrics.SetIndexEntities(r.Kind, r.Entities, r.Skipped)
		logger.Info("index rebuilt",
			"kind", r.Kind,
			"entities", r.Entities,
			"indexed", r.Indexed,
			"skipped", r.Skipped,
		)
	}
	logger.Info("index rebuild finished", "records", result.Records, "duration", result.Duration)

	m.listenersMu.RLock()
	listeners := slices.Clone(m.listeners)
	m.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(result)
	}
	return result, nil
}

// Start runs the periodic rebuild loop when the trigger is scheduled. It is a
// no-op for manual triggering.
func (m *Manager) Start(ctx context.Context) {
	if m.cfg.RebuildTrigger != config.RebuildScheduled || m.cfg.RebuildInterval <= 0 {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.cfg.RebuildInterval)
		defer ticker.Stop()
		m.logger.Info("scheduled rebuilds enabled", "interval", m.cfg.RebuildInterval)
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				if _, err := m.Rebuild(ctx); err != nil {
					m.logger.Error("scheduled rebuild failed", "error", err)
				}
			}
		}
	}()
}

// Stop ends the scheduled loop and waits for it to exit.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

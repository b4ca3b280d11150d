// Package accel is the query-acceleration service the API handlers call. It
// ties the entity indexes, the result cache and the top-K aggregator to the
// match store: a request becomes a canonical cache key, a miss is answered by
// narrowing records through the index and aggregating them, and the result is
// cached for its TTL.
package accel

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/internal/index"
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/internal/store"
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/metrics"
)

// Publisher sends an event to the other instances. *kafka.Producer
// satisfies it.
type Publisher interface {
	Publish(ctx context.Context, key string, value any) error
}

// Runner is a background loop owned by the service, such as a Kafka
// consumer. Start blocks until ctx is cancelled.
type Runner interface {
	Start(ctx context.Context) error
}

// Deps are the collaborators built by the caller. Store and Cache are
// required; the rest are optional.
type Deps struct {
	Store   store.DocumentStore
	Cache   cache.ResultCache
	Metrics *metrics.Metrics
	// IngestPublisher announces saved matches; InvalidatePublisher fans out
	// explicit invalidations.
	IngestPublisher     Publisher
	InvalidatePublisher Publisher
}

// Stats is a point-in-time view of the acceleration layer.
type Stats struct {
	CacheSize        int         `json:"cacheSize"`
	CacheMaxSize     int         `json:"cacheMaxSize"`
	IndexEntityCount int         `json:"indexEntityCount"`
	LastRebuildTime  *time.Time  `json:"lastRebuildTime"`
	IndexReady       bool        `json:"indexReady"`
	Cache            cache.Stats `json:"cache"`
	QueryHits        int64       `json:"queryHits"`
	QueryMisses      int64       `json:"queryMisses"`
}

// Service answers the dashboard's statistics and match-list queries.
type Service struct {
	id      string
	cfg     config.Config
	store   store.DocumentStore
	writer  store.Writer
	topk    store.TopKSource
	index   *index.Manager
	queries *cache.QueryCache
	metrics *metrics.Metrics
	ingest  Publisher
	inval   Publisher
	runners []Runner
	logger  *slog.Logger

	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	lifeMu         sync.Mutex // orders wg.Add against Close
	closed         bool
	rebuildPending atomic.Bool
	startOnce      sync.Once
	closeOnce      sync.Once
	closeErr       error
}

// New wires the service. Nothing runs in the background until Start.
func New(cfg config.Config, deps Deps) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		id:      uuid.NewString(),
		cfg:     cfg,
		store:   deps.Store,
		index:   index.NewManager(deps.Store, cfg.Index, deps.Metrics),
		queries: cache.NewQueryCache(deps.Cache, cfg.Cache.DefaultTTL, cache.WithComputeTimeout(cfg.Server.RequestTimeout)),
		metrics: deps.Metrics,
		ingest:  deps.IngestPublisher,
		inval:   deps.InvalidatePublisher,
		logger:  slog.Default().With("component", "accel"),
		ctx:     ctx,
		cancel:  cancel,
	}
	if w, ok := deps.Store.(store.Writer); ok {
		s.writer = w
	}
	if src, ok := deps.Store.(store.TopKSource); ok {
		s.topk = src
	}
	// Cached results were computed against the previous snapshot.
	s.index.OnRebuild(func(res index.RebuildResult) {
		n := s.queries.InvalidateAll(context.Background())
		s.logger.Info("cache cleared after rebuild", "rebuild_id", res.ID, "keys_deleted", n)
	})
	return s
}

// AddRunner registers a background loop started by Start and stopped by
// Close. It must be called before Start.
func (s *Service) AddRunner(r Runner) {
	s.runners = append(s.runners, r)
}

// ID identifies this instance in published events.
func (s *Service) ID() string { return s.id }

func (s *Service) Index() *index.Manager { return s.index }

func (s *Service) Queries() *cache.QueryCache { return s.queries }

// Start builds the indexes if configured, then starts the rebuild schedule
// and the registered runners. A failed initial build is logged; queries fall
// back to scanning the store until a rebuild succeeds.
func (s *Service) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		if s.cfg.Index.BuildOnStart {
			if _, err := s.index.Rebuild(ctx); err != nil {
				s.logger.Warn("initial index build failed, serving from store scans", "error", err)
			}
		}
		s.lifeMu.Lock()
		defer s.lifeMu.Unlock()
		if s.closed {
			return
		}
		s.index.Start(s.ctx)
		for _, r := range s.runners {
			s.wg.Add(1)
			go func(r Runner) {
				defer s.wg.Done()
				if err := r.Start(s.ctx); err != nil {
					s.logger.Error("background runner stopped", "error", err)
				}
			}(r)
		}
		s.logger.Info("acceleration service started",
			"instance", s.id,
			"rebuild_trigger", s.cfg.Index.RebuildTrigger,
			"runners", len(s.runners),
			"pushdown", s.topk != nil,
		)
	})
}

// Close stops background work and closes the result cache. It is safe to
// call more than once.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		s.lifeMu.Lock()
		s.closed = true
		s.cancel()
		s.lifeMu.Unlock()
		s.index.Stop()
		s.wg.Wait()
		s.closeErr = s.queries.Cache().Close()
		s.logger.Info("acceleration service stopped")
	})
	return s.closeErr
}

func (s *Service) Stats() Stats {
	c := s.queries.Cache()
	hits, misses := s.queries.Stats()
	st := Stats{
		CacheSize:        c.Len(),
		CacheMaxSize:     c.Cap(),
		IndexEntityCount: s.index.EntityCount(),
		IndexReady:       s.index.Ready(),
		Cache:            c.Stats(),
		QueryHits:        hits,
		QueryMisses:      misses,
	}
	if last, ok := s.index.LastRebuild(); ok {
		t := last.StartedAt.Add(last.Duration)
		st.LastRebuildTime = &t
	}
	return st
}

// Rebuild rebuilds both indexes now, joining one already in flight.
func (s *Service) Rebuild(ctx context.Context) (index.RebuildResult, error) {
	return s.index.Rebuild(ctx)
}

// Trigger is Rebuild for external callers; it is rate limited.
func (s *Service) Trigger(ctx context.Context) (index.RebuildResult, error) {
	return s.index.Trigger(ctx)
}

// rebuildSoon schedules one rebuild after the manual rebuild interval, so a
// burst of ingest events costs a single rebuild.
func (s *Service) rebuildSoon() {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.closed || !s.rebuildPending.CompareAndSwap(false, true) {
		return
	}
	delay := s.cfg.Index.MinManualInterval
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-time.After(delay):
		case <-s.ctx.Done():
			return
		}
		s.rebuildPending.Store(false)
		if _, err := s.index.Rebuild(s.ctx); err != nil {
			s.logger.Error("rebuild after ingest failed", "error", err)
		}
	}()
}

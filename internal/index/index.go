package index

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/internal/match"
)

// Index is a named inverted index whose current snapshot can be replaced
// while readers keep using the one they loaded.
type Index struct {
	kind    string
	extract Extractor
	current atomic.Pointer[Snapshot]
	buildMu sync.Mutex
	logger  *slog.Logger
}

func New(kind string, extract Extractor) *Index {
	ix := &Index{
		kind:    kind,
		extract: extract,
		logger:  slog.Default().With("component", "index", "kind", kind),
	}
	ix.current.Store(emptySnapshot(kind))
	return ix
}

// NewPlayers indexes matches by riotIdGameName.
func NewPlayers() *Index { return New(match.KindPlayer, match.PlayerNames) }

// NewChampions indexes matches by champion name.
func NewChampions() *Index { return New(match.KindChampion, match.ChampionNames) }

func (ix *Index) Kind() string { return ix.kind }

// Snapshot returns the current snapshot. Callers that issue several reads
// should hold on to one snapshot so the reads agree with each other.
func (ix *Index) Snapshot() *Snapshot { return ix.current.Load() }

func (ix *Index) Lookup(key string) []string         { return ix.Snapshot().Lookup(key) }
func (ix *Index) Count(key string) int               { return ix.Snapshot().Count(key) }
func (ix *Index) Top(n int) []Entry                  { return ix.Snapshot().Top(n) }
func (ix *Index) Intersect(keys ...string) []string  { return ix.Snapshot().Intersect(keys...) }
func (ix *Index) Contains(key, recordID string) bool { return ix.Snapshot().Contains(key, recordID) }
func (ix *Index) EntityCount() int                   { return ix.Snapshot().EntityCount() }
func (ix *Index) BuiltAt() time.Time                 { return ix.Snapshot().BuiltAt() }
func (ix *Index) Ready() bool                        { return !ix.BuiltAt().IsZero() }

// Rebuild builds a snapshot from records and swaps it in. Rebuilds of the
// same index are serialised; on error the previous snapshot stays current.
func (ix *Index) Rebuild(ctx context.Context, records []match.Record) (BuildReport, error) {
	ix.buildMu.Lock()
	defer ix.buildMu.Unlock()

	snap, report, err := Build(ctx, ix.kind, records, ix.extract)
	if err != nil {
		return report, err
	}
	ix.current.Store(snap)
	ix.logger.Info("index swapped",
		"entities", report.Entities,
		"indexed", report.Indexed,
		"skipped", report.Skipped,
		"duration", report.Duration,
	)
	return report, nil
}

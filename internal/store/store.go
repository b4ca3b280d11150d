// Package store holds the match document collection the acceleration layer
// reads from: an in-memory store for tests and seeding, and SQL stores on
// PostgreSQL and SQLite that can also push champion rankings down to the
// database.
package store

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/internal/aggregate"
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/internal/match"
)

// DocumentStore is the read side every store implements. FetchByIDs returns
// the records it finds in the order of ids; unknown IDs are left out.
type DocumentStore interface {
	FetchAll(ctx context.Context) ([]match.Record, error)
	FetchByIDs(ctx context.Context, ids []string) ([]match.Record, error)
}

// Writer persists new records. Records whose matchId is already stored are
// ignored; the result is the number actually inserted.
type Writer interface {
	Save(ctx context.Context, records ...match.Record) (int, error)
}

// ChampionQuery is a champion ranking request. An empty Champion ranks every
// champion. A zero Limit returns every group.
type ChampionQuery struct {
	Champion string
	RankBy   string
	Limit    int
}

// TopKSource is implemented by stores that can compute champion rankings
// themselves. Results must match what aggregate.Aggregate produces with
// match.ChampionStatsSpec over the same records.
type TopKSource interface {
	ChampionTopK(ctx context.Context, q ChampionQuery) ([]aggregate.Group, error)
}

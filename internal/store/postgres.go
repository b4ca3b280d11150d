package store

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/postgres"
)

// postgresSchema creates the match collection.
//
//	seq           insertion order, also the ranking tie-break
//	match_id      the record's matchId
//	game_creation copied out of the document for listing newest first
//	doc           the full match document
const postgresSchema = `
CREATE TABLE IF NOT EXISTS matches (
    seq           BIGSERIAL PRIMARY KEY,
    match_id      TEXT NOT NULL UNIQUE,
    game_creation TIMESTAMPTZ,
    doc           JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS matches_game_creation_idx ON matches (game_creation DESC);
`

// Postgres is the primary match store.
type Postgres struct {
	*SQL
	client *postgres.Client
}

// NewPostgres wraps an open client. Call EnsureSchema before first use on a
// fresh database.
func NewPostgres(client *postgres.Client, opts Options) *Postgres {
	return &Postgres{
		SQL:    newSQL(client.DB, postgresDialect, opts),
		client: client,
	}
}

func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.client.DB.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("creating matches table: %w", err)
	}
	return nil
}

func (p *Postgres) Close() error {
	return p.client.Close()
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS matches (
    seq           INTEGER PRIMARY KEY AUTOINCREMENT,
    match_id      TEXT NOT NULL UNIQUE,
    game_creation TIMESTAMP,
    doc           TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS matches_game_creation_idx ON matches (game_creation DESC);
`

// SQLite is a file-backed match store for local development and tests.
type SQLite struct {
	*SQL
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and ensures the
// schema exists.
func OpenSQLite(ctx context.Context, path string, opts Options) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating sqlite directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY on concurrent saves.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging sqlite database: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating matches table: %w", err)
	}
	return &SQLite{SQL: newSQL(db, sqliteDialect, opts), db: db}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

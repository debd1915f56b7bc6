// Package sqlite persists the audit trail of rooms: confirmed events, wheel
// spins and historical punishment usage.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested audit record does not exist.
var ErrNotFound = errors.New("audit record not found")

const schemaV1 = `
CREATE TABLE IF NOT EXISTS confirmed_events (
	id              TEXT PRIMARY KEY,
	room_id         TEXT NOT NULL,
	round_id        TEXT NOT NULL,
	normalized_text TEXT NOT NULL,
	t_video_sec     REAL NOT NULL,
	source          TEXT NOT NULL,
	callers_json    TEXT NOT NULL DEFAULT '[]',
	awarded_json    TEXT NOT NULL DEFAULT '[]',
	first_caller    TEXT NOT NULL DEFAULT '',
	created_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_room_round ON confirmed_events(room_id, round_id);

CREATE TABLE IF NOT EXISTS punishment_spins (
	id                TEXT PRIMARY KEY,
	room_id           TEXT NOT NULL,
	round_id          TEXT NOT NULL,
	loser_player_id   TEXT NOT NULL,
	selected_entry_id TEXT NOT NULL,
	seed              TEXT NOT NULL,
	entries_json      TEXT NOT NULL,
	created_at        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_spins_room ON punishment_spins(room_id);

CREATE TABLE IF NOT EXISTS punishment_usage (
	normalized_text TEXT PRIMARY KEY,
	hits            INTEGER NOT NULL DEFAULT 0
);
`

// NewDB opens a SQLite database at path with WAL pragmas and runs the schema migration.
func NewDB(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// single writer
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return db, nil
}

func migrate(db *sql.DB) error {
	_, err := db.ExecContext(context.Background(), schemaV1)
	return err
}

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/okian/callout/internal/domain/model"
	"github.com/okian/callout/internal/domain/text"
	"github.com/okian/callout/internal/domain/wheel"
)

// Store is the audit repository. It owns its *sql.DB.
type Store struct {
	db *sql.DB
}

// Open creates or opens the audit database at path.
func Open(path string) (*Store, error) {
	db, err := NewDB(path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveEvent inserts a confirmed event. Saving it again refreshes its callers
// and awards, which grow when late speed calls join the event.
func (s *Store) SaveEvent(ctx context.Context, roomID string, ev model.ConfirmedEvent) error {
	callers, err := json.Marshal(nonNil(ev.Callers))
	if err != nil {
		return fmt.Errorf("encode callers: %w", err)
	}
	awarded, err := json.Marshal(nonNil(ev.AwardedTo))
	if err != nil {
		return fmt.Errorf("encode awarded: %w", err)
	}

	const q = `INSERT INTO confirmed_events
(id, room_id, round_id, normalized_text, t_video_sec, source, callers_json, awarded_json, first_caller, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET callers_json = excluded.callers_json, awarded_json = excluded.awarded_json`
	_, err = s.db.ExecContext(ctx, q,
		ev.ID,
		roomID,
		ev.RoundID,
		ev.NormalizedText,
		ev.TVideoSec,
		string(ev.Source),
		string(callers),
		string(awarded),
		ev.FirstCaller,
		ev.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save event: %w", err)
	}
	return nil
}

// ListEvents returns a round's confirmed events ordered by video time.
func (s *Store) ListEvents(ctx context.Context, roomID, roundID string) ([]model.ConfirmedEvent, error) {
	const q = `SELECT id, round_id, normalized_text, t_video_sec, source, callers_json, awarded_json, first_caller, created_at
FROM confirmed_events
WHERE room_id = ? AND round_id = ?
ORDER BY t_video_sec ASC, created_at ASC`

	rows, err := s.db.QueryContext(ctx, q, roomID, roundID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.ConfirmedEvent
	for rows.Next() {
		var (
			ev               model.ConfirmedEvent
			source           string
			callers, awarded string
			created          int64
		)
		if err := rows.Scan(&ev.ID, &ev.RoundID, &ev.NormalizedText, &ev.TVideoSec, &source,
			&callers, &awarded, &ev.FirstCaller, &created); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Source = model.Source(source)
		ev.CreatedAt = time.UnixMilli(created).UTC()
		if err := json.Unmarshal([]byte(callers), &ev.Callers); err != nil {
			return nil, fmt.Errorf("decode callers: %w", err)
		}
		if err := json.Unmarshal([]byte(awarded), &ev.AwardedTo); err != nil {
			return nil, fmt.Errorf("decode awarded: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// SaveSpin stores a spin and counts the selected punishment text in one transaction.
func (s *Store) SaveSpin(ctx context.Context, roomID string, spin model.PunishmentSpin, selectedText string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const insertSpin = `INSERT INTO punishment_spins
(id, room_id, round_id, loser_player_id, selected_entry_id, seed, entries_json, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, insertSpin,
		spin.ID,
		roomID,
		spin.RoundID,
		spin.LoserPlayerID,
		spin.SelectedEntryID,
		spin.Seed,
		spin.EntriesJSON,
		spin.CreatedAt.UnixMilli(),
	); err != nil {
		return fmt.Errorf("save spin: %w", err)
	}

	const bumpUsage = `INSERT INTO punishment_usage (normalized_text, hits) VALUES (?, 1)
ON CONFLICT(normalized_text) DO UPDATE SET hits = hits + 1`
	if _, err := tx.ExecContext(ctx, bumpUsage, text.Normalize(selectedText)); err != nil {
		return fmt.Errorf("record usage: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit spin: %w", err)
	}
	return nil
}

// GetSpin loads one spin by ID.
func (s *Store) GetSpin(ctx context.Context, id string) (model.PunishmentSpin, error) {
	const q = `SELECT id, round_id, loser_player_id, selected_entry_id, seed, entries_json, created_at
FROM punishment_spins WHERE id = ?`

	var (
		spin    model.PunishmentSpin
		created int64
	)
	err := s.db.QueryRowContext(ctx, q, id).Scan(&spin.ID, &spin.RoundID, &spin.LoserPlayerID,
		&spin.SelectedEntryID, &spin.Seed, &spin.EntriesJSON, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PunishmentSpin{}, ErrNotFound
	}
	if err != nil {
		return model.PunishmentSpin{}, fmt.Errorf("get spin: %w", err)
	}
	spin.CreatedAt = time.UnixMilli(created).UTC()
	return spin, nil
}

// PunishmentUsage returns historical selection counts for wheel weighting.
func (s *Store) PunishmentUsage(ctx context.Context) (wheel.Usage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT normalized_text, hits FROM punishment_usage`)
	if err != nil {
		return wheel.Usage{}, fmt.Errorf("load usage: %w", err)
	}
	defer rows.Close()

	usage := wheel.Usage{ByText: make(map[string]int)}
	for rows.Next() {
		var (
			key  string
			hits int
		)
		if err := rows.Scan(&key, &hits); err != nil {
			return wheel.Usage{}, fmt.Errorf("scan usage: %w", err)
		}
		usage.ByText[key] = hits
		usage.Total += hits
	}
	return usage, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

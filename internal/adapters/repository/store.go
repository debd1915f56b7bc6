// Package repository holds the ranked scoreboard of a room.
package repository

import (
	"context"

	"github.com/okian/callout/internal/domain/types"
)

// Entry is a ranked scoreboard row.
type Entry = types.Entry

// Store provides read/write access to a room's ranking state.
type Store interface {
	// Set replaces a player's running total.
	Set(ctx context.Context, playerID, name string, score float64) error

	// Remove forgets a player.
	Remove(ctx context.Context, playerID string) bool

	// Rank returns the current rank and score for a player.
	// Returns ErrNotFound if the player is unknown.
	Rank(ctx context.Context, playerID string) (Entry, error)

	// TopN returns the top-N entries ordered by score desc, then player ID.
	TopN(ctx context.Context, n int) ([]Entry, error)

	Count(ctx context.Context) int
}

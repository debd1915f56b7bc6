package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/callout/internal/domain/model"
	"github.com/okian/callout/internal/domain/text"
	"github.com/okian/callout/internal/domain/wheel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_Events(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	now := time.UnixMilli(1_700_000_000_000).UTC()

	late := model.ConfirmedEvent{
		ID: "ev-2", RoundID: "r1", NormalizedText: "goal", TVideoSec: 40,
		Source: model.SourceHostReview, CreatedAt: now,
	}
	early := model.ConfirmedEvent{
		ID: "ev-1", RoundID: "r1", NormalizedText: "red card", TVideoSec: 5.5,
		Source: model.SourceConsensus, Callers: []string{"p1", "p2"}, AwardedTo: []string{"p3"},
		FirstCaller: "p1", CreatedAt: now,
	}
	require.NoError(t, s.SaveEvent(ctx, "ROOM1", late))
	require.NoError(t, s.SaveEvent(ctx, "ROOM1", early))
	early.Callers = append(early.Callers, "p4")
	require.NoError(t, s.SaveEvent(ctx, "ROOM1", early), "saving again updates callers")
	require.NoError(t, s.SaveEvent(ctx, "ROOM2", model.ConfirmedEvent{ID: "ev-3", RoundID: "r1", CreatedAt: now}))

	got, err := s.ListEvents(ctx, "ROOM1", "r1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, early, got[0])
	assert.Equal(t, "ev-2", got[1].ID)
	assert.Empty(t, got[1].Callers)
	assert.Equal(t, model.SourceHostReview, got[1].Source)
}

func TestStore_SpinsAndUsage(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	usage, err := s.PunishmentUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, usage.Total)

	res, err := wheel.Spin(wheel.Request{
		RoundID: "r1",
		LoserID: "p2",
		Seed:    "seed-A",
		Entries: []model.WheelEntry{
			{ID: "e1", Text: "Ten Pushups", Status: model.WheelApproved},
			{ID: "e2", Text: "Sing", Status: model.WheelApproved},
		},
		Usage: usage,
		Now:   time.UnixMilli(1_700_000_000_000).UTC(),
	})
	require.NoError(t, err)

	require.NoError(t, s.SaveSpin(ctx, "ROOM1", res.Spin, res.Selected.Text))

	stored, err := s.GetSpin(ctx, res.Spin.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Spin, stored)

	replayed, err := wheel.Replay(stored)
	require.NoError(t, err)
	assert.Equal(t, res.Selected.ID, replayed.ID)

	usage, err = s.PunishmentUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, usage.Total)
	assert.Equal(t, 1, usage.ByText[text.Normalize(res.Selected.Text)])
}

func TestStore_GetSpinMissing(t *testing.T) {
	s := openStore(t)
	_, err := s.GetSpin(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_UsageAccumulates(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	for i, txt := range []string{"Sing", "  sing ", "Dance"} {
		spin := model.PunishmentSpin{
			ID:          "spin-" + string(rune('a'+i)),
			RoundID:     "r1",
			Seed:        "s",
			EntriesJSON: "[]",
			CreatedAt:   time.Now(),
		}
		require.NoError(t, s.SaveSpin(ctx, "ROOM1", spin, txt))
	}

	usage, err := s.PunishmentUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, usage.Total)
	assert.Equal(t, 2, usage.ByText["sing"])
	assert.Equal(t, 1, usage.ByText["dance"])
}

// Package wheel picks a punishment with reproducible, auditable randomness.
package wheel

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/okian/callout/internal/domain/model"
	"github.com/okian/callout/internal/domain/rarity"
	"github.com/okian/callout/internal/domain/selector"
	"github.com/okian/callout/internal/domain/text"
)

var (
	// ErrNoEntries is returned when no approved entry exists.
	ErrNoEntries = errors.New("no approved wheel entries")
	// ErrReplayMismatch is returned when a stored spin does not reproduce.
	ErrReplayMismatch = errors.New("spin replay mismatch")
)

// Usage counts how often each punishment text has been selected historically.
type Usage struct {
	Total  int            `json:"total"`
	ByText map[string]int `json:"by_text"`
}

// Record counts one selection of raw text.
func (u *Usage) Record(raw string) {
	if u.ByText == nil {
		u.ByText = make(map[string]int)
	}
	u.Total++
	u.ByText[text.Normalize(raw)]++
}

// Weight returns the floored rarity weight of raw text.
func (u Usage) Weight(raw string) float64 {
	return rarity.Floor(rarity.Weight(u.Total, u.ByText[text.Normalize(raw)], rarity.DefaultK))
}

// SnapshotEntry is one row of a spin's entries_json.
type SnapshotEntry struct {
	ID     string  `json:"id"`
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
	Order  int     `json:"order"`
}

func (s SnapshotEntry) SelectionWeight() float64 { return s.Weight }

// Request is the input of one spin.
type Request struct {
	RoundID string
	LoserID string
	Seed    string
	Entries []model.WheelEntry
	Usage   Usage
	Now     time.Time
}

// Result is the outcome of one spin.
type Result struct {
	Selected model.WheelEntry
	Spin     model.PunishmentSpin
}

// Spin weights the approved entries and selects one with the seeded selector.
func Spin(req Request) (Result, error) {
	approved := make([]model.WheelEntry, 0, len(req.Entries))
	for _, e := range req.Entries {
		if e.Status == model.WheelApproved {
			e.Weight = req.Usage.Weight(e.Text)
			approved = append(approved, e)
		}
	}
	if len(approved) == 0 {
		return Result{}, ErrNoEntries
	}

	snapshot := make([]SnapshotEntry, len(approved))
	for i, e := range approved {
		snapshot[i] = SnapshotEntry{ID: e.ID, Text: e.Text, Weight: e.Weight, Order: i}
	}
	picked, _ := selector.Select(snapshot, req.Seed)

	raw, err := json.Marshal(snapshot)
	if err != nil {
		return Result{}, fmt.Errorf("encode wheel snapshot: %w", err)
	}

	return Result{
		Selected: approved[picked.Order],
		Spin: model.PunishmentSpin{
			ID:              uuid.NewString(),
			RoundID:         req.RoundID,
			LoserPlayerID:   req.LoserID,
			SelectedEntryID: picked.ID,
			Seed:            req.Seed,
			EntriesJSON:     string(raw),
			CreatedAt:       req.Now,
		},
	}, nil
}

// Replay re-derives the selection of a stored spin and checks it matches.
func Replay(spin model.PunishmentSpin) (SnapshotEntry, error) {
	var snapshot []SnapshotEntry
	if err := json.Unmarshal([]byte(spin.EntriesJSON), &snapshot); err != nil {
		return SnapshotEntry{}, fmt.Errorf("decode wheel snapshot: %w", err)
	}
	sort.SliceStable(snapshot, func(i, j int) bool { return snapshot[i].Order < snapshot[j].Order })
	picked, ok := selector.Select(snapshot, spin.Seed)
	if !ok {
		return SnapshotEntry{}, ErrNoEntries
	}
	if picked.ID != spin.SelectedEntryID {
		return picked, fmt.Errorf("%w: stored %s, derived %s", ErrReplayMismatch, spin.SelectedEntryID, picked.ID)
	}
	return picked, nil
}

type candidate string

func (candidate) SelectionWeight() float64 { return 1 }

// PickLoser returns the player with the lowest total. Ties are broken by the
// seeded selector over the tied IDs in sorted order using seed + ":loser".
func PickLoser(totals map[string]float64, seed string) (string, bool) {
	if len(totals) == 0 {
		return "", false
	}
	low := math.Inf(1)
	for _, v := range totals {
		low = math.Min(low, v)
	}
	var tied []candidate
	for id, v := range totals {
		if v == low {
			tied = append(tied, candidate(id))
		}
	}
	sort.Slice(tied, func(i, j int) bool { return tied[i] < tied[j] })
	picked, _ := selector.Select(tied, seed+":loser")
	return string(picked), true
}

// Package model contains domain records passed between layers.
package model

import (
	"time"
)

// Frequency controls how often a parlay may score.
type Frequency string

const (
	FrequencyOnce     Frequency = "once"
	FrequencyMultiple Frequency = "multiple"
)

// Valid reports whether f is a known frequency.
func (f Frequency) Valid() bool {
	return f == FrequencyOnce || f == FrequencyMultiple
}

// Source records who made an event authoritative.
type Source string

const (
	SourceConsensus  Source = "consensus"
	SourceHostReview Source = "host_review"
)

// WheelStatus is the moderation state of a wheel entry.
type WheelStatus string

const (
	WheelPending  WheelStatus = "pending"
	WheelApproved WheelStatus = "approved"
	WheelRejected WheelStatus = "rejected"
)

// Parlay is a player's locked prediction for a round.
// Text is immutable once locked; score fields are mutated only by scoring.
type Parlay struct {
	ID             string     `json:"id"`
	RoundID        string     `json:"round_id"`
	PlayerID       string     `json:"player_id"`
	Text           string     `json:"text"`
	NormalizedText string     `json:"normalized_text"`
	Punishment     string     `json:"punishment,omitempty"`
	Frequency      Frequency  `json:"frequency"`
	IsUsed         bool       `json:"is_used"`
	LockedAt       time.Time  `json:"locked_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	ScoreRaw       float64    `json:"score_raw"`
	ScoreFinal     float64    `json:"score_final"`
	LegsHit        int        `json:"legs_hit"`
	Accuracy       float64    `json:"accuracy"`
}

// Eligible reports whether the parlay may still score on text.
func (p *Parlay) Eligible(normalizedText string) bool {
	if p.NormalizedText != normalizedText {
		return false
	}
	return p.Frequency == FrequencyMultiple || !p.IsUsed
}

// Vote is a single call from one player. Votes are history and never mutate.
type Vote struct {
	ID             string    `json:"id"`
	RoundID        string    `json:"round_id"`
	PlayerID       string    `json:"player_id"`
	NormalizedText string    `json:"normalized_text"`
	TVideoSec      float64   `json:"t_video_sec"`
	CreatedAt      time.Time `json:"created_at"`
}

// VoteCluster is a read-only view of a provisional grouping of calls.
type VoteCluster struct {
	ID             string   `json:"id"`
	NormalizedText string   `json:"normalized_text"`
	Voters         []string `json:"voters"`
	TCenter        float64  `json:"t_center"`
	TMin           float64  `json:"t_min"`
	TMax           float64  `json:"t_max"`
	Count          int      `json:"count"`
	State          string   `json:"state"`
}

// ConfirmedEvent is an authoritative record that a predicted happening occurred.
type ConfirmedEvent struct {
	ID             string    `json:"id"`
	RoundID        string    `json:"round_id"`
	NormalizedText string    `json:"normalized_text"`
	TVideoSec      float64   `json:"t_video_sec"`
	Source         Source    `json:"source"`
	Callers        []string  `json:"callers"`
	AwardedTo      []string  `json:"awarded_to"`
	FirstCaller    string    `json:"first_caller,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// WheelEntry is a punishment submitted for the round's wheel.
type WheelEntry struct {
	ID                  string      `json:"id"`
	RoundID             string      `json:"round_id"`
	SubmittedByPlayerID string      `json:"submitted_by_player_id"`
	Text                string      `json:"text"`
	Status              WheelStatus `json:"status"`
	Weight              float64     `json:"weight"`
	CreatedAt           time.Time   `json:"created_at"`
}

// PunishmentSpin is the immutable audit record of one wheel spin.
type PunishmentSpin struct {
	ID              string    `json:"id"`
	RoundID         string    `json:"round_id"`
	LoserPlayerID   string    `json:"loser_player_id"`
	SelectedEntryID string    `json:"selected_entry_id"`
	Seed            string    `json:"seed"`
	EntriesJSON     string    `json:"entries_json"`
	CreatedAt       time.Time `json:"created_at"`
}

// ScoreUpdate is emitted once per parlay touched by an award.
type ScoreUpdate struct {
	PlayerID string  `json:"player_id"`
	ParlayID string  `json:"parlay_id"`
	Delta    float64 `json:"delta"`
	NewTotal float64 `json:"new_total"`
	Reason   string  `json:"reason"`
}

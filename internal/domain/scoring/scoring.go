// Package scoring turns confirmed events into parlay score updates.
package scoring

import (
	"time"

	"github.com/okian/callout/internal/domain/model"
	"github.com/okian/callout/internal/domain/rarity"
)

// Default scoring constants.
const (
	defaultFastTapBonus = 0.25

	ReasonHit       = "parlay_hit"
	ReasonFastTap   = "parlay_hit_fast_tap"
	ReasonSecondary = "secondary_match"
)

// Weigher returns the rarity weight for a text given round hit counts.
type Weigher func(totalHits, textHits int) float64

// Option configures an Engine.
type Option func(*Engine)

// WithWeigher replaces the rarity function.
func WithWeigher(w Weigher) Option {
	return func(e *Engine) {
		if w != nil {
			e.weigh = w
		}
	}
}

// WithFastTapBonus sets the flat bonus for quick callers.
func WithFastTapBonus(bonus float64) Option {
	return func(e *Engine) {
		if bonus >= 0 {
			e.fastTapBonus = bonus
		}
	}
}

// Input carries the round context for one award.
type Input struct {
	Event    model.ConfirmedEvent
	Parlays  []*model.Parlay // every parlay of the round; mutated in place
	Settings model.RoomSettings

	// TotalHits and TextHits are the round's confirmed counts before this event.
	TotalHits int
	TextHits  int

	// Calls maps each caller in the resolving cluster to their video time.
	Calls      map[string]float64
	FirstCallT float64

	// OnlyPlayer restricts the award to one player's parlays (secondary match).
	OnlyPlayer string

	// Credited holds parlay IDs already scored for this event. They are skipped.
	Credited map[string]bool

	// PriorTotals holds each player's score from earlier rounds.
	PriorTotals map[string]float64
	Now         time.Time
}

// Engine computes awards. It holds no round state.
type Engine struct {
	weigh        Weigher
	fastTapBonus float64
}

// NewEngine creates an engine with the default rarity weigher.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		weigh: func(total, text int) float64 {
			return rarity.Weight(total, text, rarity.DefaultK)
		},
		fastTapBonus: defaultFastTapBonus,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Award scores every eligible parlay matching the event and returns one update
// per parlay touched. No match yields an empty result.
func (e *Engine) Award(in Input) []model.ScoreUpdate {
	var updates []model.ScoreUpdate
	weight := e.weigh(in.TotalHits, in.TextHits)

	for _, p := range in.Parlays {
		if in.OnlyPlayer != "" && p.PlayerID != in.OnlyPlayer {
			continue
		}
		if in.Credited[p.ID] || !p.Eligible(in.Event.NormalizedText) {
			continue
		}

		legs := p.LegsHit + 1
		base := weight * float64(legs)
		completion := base * (in.Settings.ScoreMultiplier - 1)
		reason := ReasonHit
		if in.OnlyPlayer != "" {
			reason = ReasonSecondary
		}
		fast := 0.0
		if t, ok := in.Calls[p.PlayerID]; ok && t-in.FirstCallT <= in.Settings.FastTapWindow {
			fast = e.fastTapBonus
			if in.OnlyPlayer == "" {
				reason = ReasonFastTap
			}
		}
		delta := base + completion + fast

		p.ScoreRaw += base
		p.ScoreFinal += delta
		p.LegsHit = legs
		if p.Frequency == model.FrequencyOnce {
			p.IsUsed = true
		}
		if p.CompletedAt == nil {
			now := in.Now
			p.CompletedAt = &now
		}
		p.Accuracy = 1

		updates = append(updates, model.ScoreUpdate{
			PlayerID: p.PlayerID,
			ParlayID: p.ID,
			Delta:    delta,
			Reason:   reason,
		})
	}

	for i := range updates {
		updates[i].NewTotal = PlayerTotal(updates[i].PlayerID, in.Parlays, in.PriorTotals)
	}
	return updates
}

// PlayerTotal sums a player's prior total and the scoreFinal of their round parlays.
func PlayerTotal(playerID string, parlays []*model.Parlay, prior map[string]float64) float64 {
	total := prior[playerID]
	for _, p := range parlays {
		if p.PlayerID == playerID {
			total += p.ScoreFinal
		}
	}
	return total
}

// Finalize marks parlays that never hit with zero accuracy at round end.
func Finalize(parlays []*model.Parlay) {
	for _, p := range parlays {
		if p.LegsHit == 0 {
			p.Accuracy = 0
		}
	}
}

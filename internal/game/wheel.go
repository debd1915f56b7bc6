package game

import (
	"context"
	"errors"
	"strings"

	"github.com/okian/callout/internal/domain/message"
	"github.com/okian/callout/internal/domain/model"
	"github.com/okian/callout/internal/domain/text"
	"github.com/okian/callout/internal/domain/wheel"
	"github.com/okian/callout/pkg/logger"
	"github.com/okian/callout/pkg/metrics"
)

func (r *Room) addWheelEntry(playerID, raw string) *model.WheelEntry {
	e := &model.WheelEntry{
		ID:                  r.newID(),
		RoundID:             r.round.id,
		SubmittedByPlayerID: playerID,
		Text:                strings.TrimSpace(raw),
		Status:              model.WheelPending,
		CreatedAt:           r.now(),
	}
	r.round.entries = append(r.round.entries, e)
	return e
}

func (r *Room) submitWheelEntry(c message.SubmitWheelEntry) []message.Outbound {
	p, ok := r.players[c.PlayerID]
	if !ok || !p.Active {
		return r.reject(c, message.ReasonUnknownPlayer)
	}
	if reason := r.checkRound(c.RoundID, message.PhaseParlay, message.PhaseLive, message.PhaseEnded); reason != "" {
		return r.reject(c, reason)
	}
	if r.round.spin != nil {
		return r.reject(c, message.ReasonAlreadySpun)
	}
	if !text.Valid(c.Text) {
		return r.reject(c, message.ReasonEmptyText)
	}
	e := r.addWheelEntry(p.ID, c.Text)
	return []message.Outbound{message.WheelEntryUpdated{Entry: *e}}
}

func (r *Room) moderateWheelEntry(c message.ModerateWheelEntry) []message.Outbound {
	if !r.isHost(c.PlayerID) {
		return r.reject(c, message.ReasonNotHost)
	}
	if reason := r.checkRound(c.RoundID, message.PhaseParlay, message.PhaseLive, message.PhaseEnded); reason != "" {
		return r.reject(c, reason)
	}
	if r.round.spin != nil {
		return r.reject(c, message.ReasonAlreadySpun)
	}
	for _, e := range r.round.entries {
		if e.ID != c.EntryID {
			continue
		}
		if e.Status != model.WheelPending {
			return r.reject(c, message.ReasonUnknownEntry)
		}
		e.Status = model.WheelRejected
		if c.Approved {
			e.Status = model.WheelApproved
		}
		return []message.Outbound{message.WheelEntryUpdated{Entry: *e}}
	}
	return r.reject(c, message.ReasonUnknownEntry)
}

// spinWheel picks the round's loser and punishment once the round has ended.
func (r *Room) spinWheel(ctx context.Context, c message.SpinWheel) []message.Outbound {
	if !r.isHost(c.PlayerID) {
		return r.reject(c, message.ReasonNotHost)
	}
	if reason := r.checkRound(c.RoundID, message.PhaseEnded); reason != "" {
		return r.reject(c, reason)
	}
	rd := r.round
	if rd.spin != nil {
		return r.reject(c, message.ReasonAlreadySpun)
	}

	seed := c.Seed
	if seed == "" {
		seed = r.id + ":" + rd.id
	}
	totals := make(map[string]float64)
	for _, id := range r.activeCallers() {
		totals[id] = r.totals[id]
	}
	loser, _ := wheel.PickLoser(totals, seed)

	entries := make([]model.WheelEntry, len(rd.entries))
	for i, e := range rd.entries {
		entries[i] = *e
	}
	res, err := wheel.Spin(wheel.Request{
		RoundID: rd.id,
		LoserID: loser,
		Seed:    seed,
		Entries: entries,
		Usage:   r.usage,
		Now:     r.now(),
	})
	if errors.Is(err, wheel.ErrNoEntries) {
		return r.reject(c, message.ReasonNoEntries)
	}
	if err != nil {
		r.log.Error(ctx, "wheel spin failed", logger.Error(err))
		return r.reject(c, message.ReasonNoEntries)
	}

	res.Spin.ID = r.newID()
	rd.spin = &res.Spin
	for _, e := range rd.entries {
		if e.Status == model.WheelApproved {
			e.Weight = r.usage.Weight(e.Text)
		}
	}
	r.usage.Record(res.Selected.Text)
	metrics.RecordWheelSpin()
	r.log.Info(ctx, "wheel spun",
		logger.String("round_id", rd.id),
		logger.String("loser", loser),
		logger.String("entry_id", res.Selected.ID))

	return []message.Outbound{message.WheelSpun{Spin: res.Spin, Entry: res.Selected}}
}

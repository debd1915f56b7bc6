package game

import (
	"context"

	"github.com/okian/callout/internal/domain/cluster"
	"github.com/okian/callout/internal/domain/consensus"
	"github.com/okian/callout/internal/domain/message"
	"github.com/okian/callout/internal/domain/model"
	"github.com/okian/callout/internal/domain/rarity"
	"github.com/okian/callout/internal/domain/scoring"
	"github.com/okian/callout/internal/domain/text"
	"github.com/okian/callout/pkg/logger"
)

func (r *Room) startRound(ctx context.Context, c message.StartRound) []message.Outbound {
	if !r.isHost(c.PlayerID) {
		return r.reject(c, message.ReasonNotHost)
	}
	if r.round != nil && r.round.phase != message.PhaseEnded {
		return r.reject(c, message.ReasonWrongPhase)
	}
	settings := r.settings
	if c.Settings != nil {
		settings = *c.Settings
	}
	if err := settings.Validate(); err != nil {
		return r.reject(c, message.ReasonInvalidSettings)
	}

	r.rounds++
	r.round = &round{
		id:       r.newID(),
		number:   r.rounds,
		phase:    message.PhaseParlay,
		settings: settings,
		policy:   consensus.ForMode(settings.EffectiveMode()),
		byPlayer: make(map[string]*model.Parlay),
		clusters: cluster.New(cluster.WithIDFunc(r.newID)),
		timers:   make(map[string]Handle),
		counter:  rarity.NewCounter(),
		last:     make(map[string]lastEvent),
	}
	r.log.Info(ctx, "round started",
		logger.String("round_id", r.round.id),
		logger.Int("number", r.round.number),
		logger.String("mode", string(r.round.policy.Mode())))

	return []message.Outbound{message.RoundStarted{RoundID: r.round.id, Number: r.round.number, Settings: settings}}
}

func (r *Room) lockParlay(c message.LockParlay) []message.Outbound {
	p, ok := r.players[c.PlayerID]
	if !ok || !p.Active {
		return r.reject(c, message.ReasonUnknownPlayer)
	}
	if p.Host {
		return r.reject(c, message.ReasonHostCannotCall)
	}
	if reason := r.checkRound(c.RoundID, message.PhaseParlay); reason != "" {
		return r.reject(c, reason)
	}
	normalized := text.Normalize(c.Text)
	if normalized == "" {
		return r.reject(c, message.ReasonEmptyText)
	}
	freq := c.Frequency
	if freq == "" {
		freq = model.FrequencyOnce
	}
	if !freq.Valid() {
		return r.reject(c, message.ReasonBadFrequency)
	}
	if _, locked := r.round.byPlayer[p.ID]; locked {
		return r.reject(c, message.ReasonAlreadyLocked)
	}

	parlay := &model.Parlay{
		ID:             r.newID(),
		RoundID:        r.round.id,
		PlayerID:       p.ID,
		Text:           c.Text,
		NormalizedText: normalized,
		Punishment:     c.Punishment,
		Frequency:      freq,
		LockedAt:       r.now(),
	}
	r.round.parlays = append(r.round.parlays, parlay)
	r.round.byPlayer[p.ID] = parlay

	out := []message.Outbound{message.ParlayLocked{RoundID: r.round.id, PlayerID: p.ID, ParlayID: parlay.ID}}
	if text.Valid(c.Punishment) {
		entry := r.addWheelEntry(p.ID, c.Punishment)
		out = append(out, message.WheelEntryUpdated{Entry: *entry})
	}
	return out
}

func (r *Room) startPlayback(c message.StartPlayback) []message.Outbound {
	if !r.isHost(c.PlayerID) {
		return r.reject(c, message.ReasonNotHost)
	}
	if reason := r.checkRound(c.RoundID, message.PhaseParlay); reason != "" {
		return r.reject(c, reason)
	}
	r.round.phase = message.PhaseLive
	return []message.Outbound{message.PhaseChanged{RoundID: r.round.id, Phase: message.PhaseLive}}
}

func (r *Room) endRound(ctx context.Context, c message.EndRound) []message.Outbound {
	if !r.isHost(c.PlayerID) {
		return r.reject(c, message.ReasonNotHost)
	}
	if reason := r.checkRound(c.RoundID, message.PhaseParlay, message.PhaseLive); reason != "" {
		return r.reject(c, reason)
	}
	return r.finishRound(ctx)
}

// finishRound folds the round into the running totals and, as its last step,
// discards every open cluster and cancels every timer of the round.
func (r *Room) finishRound(ctx context.Context) []message.Outbound {
	rd := r.round
	scoring.Finalize(rd.parlays)
	for _, p := range rd.parlays {
		r.totals[p.PlayerID] += p.ScoreFinal
	}
	rd.phase = message.PhaseEnded

	var out []message.Outbound
	for id, h := range rd.timers {
		h.Cancel()
		delete(rd.timers, id)
	}
	for _, cl := range rd.clusters.Flush() {
		recordClusterResolved(rd.policy.Mode(), cluster.StateDiscarded)
		out = append(out, message.ClusterDiscarded{Cluster: cl.View(), Reason: "round_ended"})
	}

	parlays := make([]model.Parlay, len(rd.parlays))
	for i, p := range rd.parlays {
		parlays[i] = *p
	}
	r.log.Info(ctx, "round ended",
		logger.String("round_id", rd.id),
		logger.Int("events", len(rd.events)),
		logger.Int("discarded", len(out)))

	return append(out, message.RoundEnded{
		RoundID:    rd.id,
		Discarded:  len(out),
		Scoreboard: r.Scoreboard(),
		Parlays:    parlays,
	})
}

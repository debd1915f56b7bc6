package game

import (
	"context"
	"math"
	"slices"
	"sort"

	"github.com/okian/callout/internal/domain/cluster"
	"github.com/okian/callout/internal/domain/consensus"
	"github.com/okian/callout/internal/domain/message"
	"github.com/okian/callout/internal/domain/model"
	"github.com/okian/callout/internal/domain/scoring"
	"github.com/okian/callout/internal/domain/text"
	"github.com/okian/callout/pkg/logger"
	"github.com/okian/callout/pkg/metrics"
)

const (
	discardTimeout   = "timeout"
	discardDismissed = "host_dismissed"
)

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func (r *Room) submitVote(ctx context.Context, c message.SubmitVote) []message.Outbound {
	p, ok := r.players[c.PlayerID]
	if !ok || !p.Active {
		return r.reject(c, message.ReasonUnknownPlayer)
	}
	if p.Host {
		return r.reject(c, message.ReasonHostCannotCall)
	}
	if reason := r.checkRound(c.RoundID, message.PhaseLive); reason != "" {
		return r.reject(c, reason)
	}
	if !finite(c.TVideoSec) || c.TVideoSec < 0 {
		return r.reject(c, message.ReasonBadTimestamp)
	}
	normalized := text.Normalize(c.Text)
	if normalized == "" {
		return r.reject(c, message.ReasonEmptyText)
	}
	if !p.limiter.AllowN(r.now(), 1) {
		return r.reject(c, message.ReasonRateLimited)
	}

	rd := r.round
	vote := model.Vote{
		ID:             r.newID(),
		RoundID:        rd.id,
		PlayerID:       p.ID,
		NormalizedText: normalized,
		TVideoSec:      c.TVideoSec,
		CreatedAt:      r.now(),
	}

	if last, ok := rd.last[normalized]; ok && math.Abs(vote.TVideoSec-last.event.TVideoSec) < rd.settings.CooldownPerTextSec {
		if rd.policy.Mode() == model.ModeSpeedCall && consensus.WithinSecondary(last.event.TVideoSec, vote.TVideoSec) && !slices.Contains(last.event.Callers, p.ID) {
			return r.secondary(ctx, last, vote)
		}
		return r.reject(c, message.ReasonCooldown)
	}

	res := rd.clusters.Add(vote, rd.policy.Window(rd.settings))
	if res.Duplicate {
		return r.reject(c, message.ReasonDuplicateVote)
	}
	metrics.RecordVoteReceived(string(rd.policy.Mode()))
	if res.Created {
		metrics.RecordClusterOpened(string(rd.policy.Mode()))
		r.arm(res.Cluster)
	}
	return r.evaluate(ctx, res.Cluster)
}

// arm schedules the policy's timer for a newly opened cluster.
func (r *Room) arm(cl *cluster.Cluster) {
	rd := r.round
	d, kind := rd.policy.Deadline(rd.settings)
	if kind == consensus.TimeoutNone {
		return
	}
	cl.Generation++
	rd.timers[cl.ID] = r.sched.Schedule(d, message.TimerFired{
		RoundID:    rd.id,
		ClusterID:  cl.ID,
		Generation: cl.Generation,
		Timeout:    string(kind),
	})
}

func (r *Room) disarm(id string) {
	if h, ok := r.round.timers[id]; ok {
		h.Cancel()
		delete(r.round.timers, id)
	}
}

func (r *Room) evaluate(ctx context.Context, cl *cluster.Cluster) []message.Outbound {
	rd := r.round
	switch rd.policy.Evaluate(cl, consensus.Env{Active: r.activeCallers(), Settings: rd.settings}) {
	case consensus.Confirm:
		return r.confirm(ctx, cl, model.SourceConsensus)
	case consensus.AwaitHost:
		if cl.State == cluster.StatePendingHost {
			return []message.Outbound{message.ClusterUpdated{Cluster: cl.View()}}
		}
		cl.State = cluster.StatePendingHost
		r.disarm(cl.ID)
		return []message.Outbound{message.ClusterPending{Cluster: cl.View()}}
	case consensus.Discard:
		return r.discard(ctx, cl, discardTimeout)
	default:
		return []message.Outbound{message.ClusterUpdated{Cluster: cl.View()}}
	}
}

// confirm resolves a cluster into an event and scores it. A nil cluster records
// a host-declared event with no callers.
func (r *Room) confirm(ctx context.Context, cl *cluster.Cluster, source model.Source) []message.Outbound {
	rd := r.round
	ev := &model.ConfirmedEvent{
		ID:        r.newID(),
		RoundID:   rd.id,
		Source:    source,
		CreatedAt: r.now(),
	}
	calls := map[string]float64{}
	firstT := 0.0
	if cl != nil {
		r.disarm(cl.ID)
		rd.clusters.Remove(cl.ID, cluster.StateConfirmed)
		recordClusterResolved(rd.policy.Mode(), cluster.StateConfirmed)
		ev.NormalizedText = cl.NormalizedText
		ev.TVideoSec = cl.TCenter
		ev.Callers = cl.Voters()
		ev.FirstCaller = cl.Earliest().PlayerID
		for _, m := range cl.Members {
			calls[m.PlayerID] = m.TVideoSec
		}
		firstT = cl.TMin
	}
	return r.record(ctx, ev, calls, firstT)
}

func (r *Room) record(ctx context.Context, ev *model.ConfirmedEvent, calls map[string]float64, firstT float64) []message.Outbound {
	rd := r.round
	total, hits := rd.counter.Total(), rd.counter.Hits(ev.NormalizedText)
	rd.counter.Record(ev.NormalizedText)

	updates := r.engine.Award(scoring.Input{
		Event:       *ev,
		Parlays:     rd.parlays,
		Settings:    rd.settings,
		TotalHits:   total,
		TextHits:    hits,
		Calls:       calls,
		FirstCallT:  firstT,
		PriorTotals: r.totals,
		Now:         ev.CreatedAt,
	})
	ev.AwardedTo = awarded(updates)
	rd.events = append(rd.events, ev)
	credited := make(map[string]bool, len(updates))
	for _, u := range updates {
		credited[u.ParlayID] = true
	}
	rd.last[ev.NormalizedText] = lastEvent{event: ev, totalHits: total, textHits: hits, credited: credited}

	metrics.RecordEventConfirmed(string(ev.Source))
	r.log.Debug(ctx, "event confirmed",
		logger.String("event_id", ev.ID),
		logger.String("text", ev.NormalizedText),
		logger.Float64("t_video_sec", ev.TVideoSec),
		logger.Int("awards", len(updates)))

	out := []message.Outbound{message.EventConfirmed{Event: snapshotEvent(ev), PauseSec: rd.settings.PauseDurationSec}}
	return append(out, r.scores(ev.ID, updates)...)
}

// secondary scores a late speed-call against an already confirmed event. Only
// parlays the event has not credited yet can score.
func (r *Room) secondary(ctx context.Context, last lastEvent, vote model.Vote) []message.Outbound {
	rd := r.round
	ev := last.event
	metrics.RecordVoteReceived(string(rd.policy.Mode()))
	updates := r.engine.Award(scoring.Input{
		Event:       *ev,
		Parlays:     rd.parlays,
		Settings:    rd.settings,
		TotalHits:   last.totalHits,
		TextHits:    last.textHits,
		OnlyPlayer:  vote.PlayerID,
		Credited:    last.credited,
		PriorTotals: r.totals,
		Now:         vote.CreatedAt,
	})
	for _, u := range updates {
		last.credited[u.ParlayID] = true
	}
	ev.Callers = append(ev.Callers, vote.PlayerID)
	if len(updates) > 0 && !slices.Contains(ev.AwardedTo, vote.PlayerID) {
		ev.AwardedTo = append(ev.AwardedTo, vote.PlayerID)
	}
	r.log.Debug(ctx, "secondary match",
		logger.String("event_id", ev.ID),
		logger.String("player_id", vote.PlayerID))

	out := []message.Outbound{message.EventConfirmed{Event: snapshotEvent(ev), Secondary: true, PauseSec: 0}}
	return append(out, r.scores(ev.ID, updates)...)
}

func (r *Room) scores(eventID string, updates []model.ScoreUpdate) []message.Outbound {
	if len(updates) == 0 {
		return nil
	}
	for _, u := range updates {
		metrics.RecordScoreAward(u.Delta)
	}
	return []message.Outbound{message.ScoresUpdated{RoundID: r.round.id, EventID: eventID, Updates: updates}}
}

func (r *Room) discard(ctx context.Context, cl *cluster.Cluster, reason string) []message.Outbound {
	rd := r.round
	r.disarm(cl.ID)
	rd.clusters.Remove(cl.ID, cluster.StateDiscarded)
	recordClusterResolved(rd.policy.Mode(), cluster.StateDiscarded)
	r.log.Debug(ctx, "cluster discarded",
		logger.String("cluster_id", cl.ID),
		logger.String("text", cl.NormalizedText),
		logger.String("reason", reason))
	return []message.Outbound{message.ClusterDiscarded{Cluster: cl.View(), Reason: reason}}
}

// timerFired acts only if the cluster still exists in the same round, is still
// open, and the timer generation matches. Anything else is a stale timer.
func (r *Room) timerFired(ctx context.Context, c message.TimerFired) []message.Outbound {
	rd := r.round
	if rd == nil || rd.id != c.RoundID || rd.phase != message.PhaseLive {
		return nil
	}
	cl, ok := rd.clusters.Get(c.ClusterID)
	if !ok || cl.State != cluster.StateOpen || cl.Generation != c.Generation {
		return nil
	}
	delete(rd.timers, cl.ID)
	return r.discard(ctx, cl, c.Timeout)
}

func (r *Room) hostDecision(c message.Command, roundID, raw string, tCenter float64) (*cluster.Cluster, string, []message.Outbound) {
	if !r.isHost(c.Header().PlayerID) {
		return nil, "", r.reject(c, message.ReasonNotHost)
	}
	if reason := r.checkRound(roundID, message.PhaseLive); reason != "" {
		return nil, "", r.reject(c, reason)
	}
	if !finite(tCenter) || tCenter < 0 {
		return nil, "", r.reject(c, message.ReasonBadTimestamp)
	}
	normalized := text.Normalize(raw)
	if normalized == "" {
		return nil, "", r.reject(c, message.ReasonEmptyText)
	}
	window := math.Max(r.round.settings.VoteWindowSec, consensus.VerifyWindowSec)
	cl, _ := r.round.clusters.FindNear(normalized, tCenter, window)
	return cl, normalized, nil
}

// hostConfirm accepts the nearest open cluster, or records a host-declared event
// when no cluster exists near tCenter.
func (r *Room) hostConfirm(ctx context.Context, c message.HostConfirmEvent) []message.Outbound {
	cl, normalized, rejected := r.hostDecision(c, c.RoundID, c.Text, c.TCenter)
	if rejected != nil {
		return rejected
	}
	if cl != nil {
		return r.confirm(ctx, cl, model.SourceHostReview)
	}
	if last, ok := r.round.last[normalized]; ok && math.Abs(c.TCenter-last.event.TVideoSec) < r.round.settings.CooldownPerTextSec {
		return r.reject(c, message.ReasonCooldown)
	}
	ev := &model.ConfirmedEvent{
		ID:             r.newID(),
		RoundID:        r.round.id,
		NormalizedText: normalized,
		TVideoSec:      c.TCenter,
		Source:         model.SourceHostReview,
		CreatedAt:      r.now(),
	}
	return r.record(ctx, ev, nil, 0)
}

func (r *Room) hostDismiss(ctx context.Context, c message.HostDismissEvent) []message.Outbound {
	cl, _, rejected := r.hostDecision(c, c.RoundID, c.Text, c.TCenter)
	if rejected != nil {
		return rejected
	}
	if cl == nil {
		return r.reject(c, message.ReasonNoCluster)
	}
	return r.discard(ctx, cl, discardDismissed)
}

func awarded(updates []model.ScoreUpdate) []string {
	seen := make(map[string]struct{}, len(updates))
	out := make([]string, 0, len(updates))
	for _, u := range updates {
		if _, ok := seen[u.PlayerID]; ok {
			continue
		}
		seen[u.PlayerID] = struct{}{}
		out = append(out, u.PlayerID)
	}
	sort.Strings(out)
	return out
}

func snapshotEvent(ev *model.ConfirmedEvent) model.ConfirmedEvent {
	out := *ev
	out.Callers = slices.Clone(ev.Callers)
	out.AwardedTo = slices.Clone(ev.AwardedTo)
	return out
}

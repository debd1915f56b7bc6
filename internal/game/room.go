// Package game implements the per-room session that drives the consensus and
// scoring engine. A Room is a synchronous state machine: every command is
// handled to completion before the next, so the room needs no locks as long as
// a single goroutine owns it.
package game

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/okian/callout/internal/domain/cluster"
	"github.com/okian/callout/internal/domain/consensus"
	"github.com/okian/callout/internal/domain/dedupe"
	"github.com/okian/callout/internal/domain/message"
	"github.com/okian/callout/internal/domain/model"
	"github.com/okian/callout/internal/domain/rarity"
	"github.com/okian/callout/internal/domain/scoring"
	"github.com/okian/callout/internal/domain/types"
	"github.com/okian/callout/internal/domain/wheel"
	"github.com/okian/callout/pkg/logger"
	"golang.org/x/time/rate"
)

// Player is a room member.
type Player struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Host     bool      `json:"host"`
	Active   bool      `json:"active"`
	JoinedAt time.Time `json:"joined_at"`

	limiter *rate.Limiter
}

// Snapshot is a copy of room state safe to hand to other goroutines.
type Snapshot struct {
	ID           string             `json:"id"`
	HostID       string             `json:"host_id"`
	Phase        message.Phase      `json:"phase"`
	RoundID      string             `json:"round_id,omitempty"`
	RoundNumber  int                `json:"round_number"`
	Players      []Player           `json:"players"`
	Settings     model.RoomSettings `json:"settings"`
	OpenClusters int                `json:"open_clusters"`
	WheelEntries int                `json:"wheel_entries"`
	Scoreboard   []types.Entry      `json:"scoreboard"`
}

type lastEvent struct {
	event     *model.ConfirmedEvent
	totalHits int
	textHits  int
	credited  map[string]bool // parlay IDs scored for event
}

type round struct {
	id       string
	number   int
	phase    message.Phase
	settings model.RoomSettings
	policy   consensus.Policy

	parlays  []*model.Parlay
	byPlayer map[string]*model.Parlay

	clusters *cluster.Clusterer
	timers   map[string]Handle
	counter  *rarity.Counter
	events   []*model.ConfirmedEvent
	last     map[string]lastEvent

	entries []*model.WheelEntry
	spin    *model.PunishmentSpin
}

// Room owns all state of one game room.
type Room struct {
	id       string
	hostID   string
	players  map[string]*Player
	order    []string
	settings model.RoomSettings
	round    *round
	rounds   int
	totals   map[string]float64 // completed rounds only
	usage    wheel.Usage

	log       logger.Logger
	sched     Scheduler
	now       func() time.Time
	newID     func() string
	voteRate  rate.Limit
	voteBurst int
	dedupe    dedupe.Deduper
	engine    *scoring.Engine
}

// NewRoom creates a room in the lobby with its host already joined.
func NewRoom(id, hostID, hostName string, opts ...Option) (*Room, error) {
	if id == "" || hostID == "" {
		return nil, fmt.Errorf("%w: room and host IDs are required", ErrInvalidRoom)
	}
	r := &Room{
		id:      id,
		hostID:  hostID,
		players: make(map[string]*Player),
		totals:  make(map[string]float64),
	}
	defaults(r)
	for _, opt := range opts {
		opt(r)
	}
	if err := r.settings.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRoom, err)
	}
	r.log = r.log.With(logger.String("room_id", id))
	r.addPlayer(hostID, hostName, true)
	return r, nil
}

// ID returns the room code.
func (r *Room) ID() string { return r.id }

// HostID returns the host's player ID.
func (r *Room) HostID() string { return r.hostID }

// Phase returns the current round phase.
func (r *Room) Phase() message.Phase {
	if r.round == nil {
		return message.PhaseLobby
	}
	return r.round.phase
}

// Handle applies one command and returns the resulting outputs in order.
func (r *Room) Handle(ctx context.Context, cmd message.Command) []message.Outbound {
	h := cmd.Header()
	if h.MessageID != "" && r.dedupe.SeenAndRecord(ctx, h.PlayerID+":"+h.MessageID) {
		return r.reject(cmd, message.ReasonDuplicateMessage)
	}

	switch c := cmd.(type) {
	case message.Join:
		return r.join(c)
	case message.Leave:
		return r.leave(ctx, c)
	case message.StartRound:
		return r.startRound(ctx, c)
	case message.LockParlay:
		return r.lockParlay(c)
	case message.StartPlayback:
		return r.startPlayback(c)
	case message.SubmitVote:
		return r.submitVote(ctx, c)
	case message.HostConfirmEvent:
		return r.hostConfirm(ctx, c)
	case message.HostDismissEvent:
		return r.hostDismiss(ctx, c)
	case message.SubmitWheelEntry:
		return r.submitWheelEntry(c)
	case message.ModerateWheelEntry:
		return r.moderateWheelEntry(c)
	case message.SpinWheel:
		return r.spinWheel(ctx, c)
	case message.EndRound:
		return r.endRound(ctx, c)
	case message.TimerFired:
		return r.timerFired(ctx, c)
	default:
		return nil
	}
}

func (r *Room) reject(cmd message.Command, reason string) []message.Outbound {
	h := cmd.Header()
	if cmd.Kind() == message.KindSubmitVote {
		recordVoteRejected(reason)
	}
	return []message.Outbound{message.Rejected{
		MessageID: h.MessageID,
		PlayerID:  h.PlayerID,
		Command:   cmd.Kind(),
		Reason:    reason,
	}}
}

// checkRound validates the round ID and phase shared by most round commands.
func (r *Room) checkRound(roundID string, phases ...message.Phase) string {
	if r.round == nil {
		return message.ReasonWrongPhase
	}
	if roundID != r.round.id {
		return message.ReasonWrongRound
	}
	for _, p := range phases {
		if r.round.phase == p {
			return ""
		}
	}
	return message.ReasonWrongPhase
}

func (r *Room) isHost(playerID string) bool { return playerID == r.hostID }

// activeCallers returns active non-host players in join order.
func (r *Room) activeCallers() []string {
	out := make([]string, 0, len(r.order))
	for _, id := range r.order {
		if p := r.players[id]; p.Active && !p.Host {
			out = append(out, id)
		}
	}
	return out
}

// total returns a player's running score including the current round.
func (r *Room) total(playerID string) float64 {
	if r.round == nil || r.round.phase == message.PhaseEnded {
		return r.totals[playerID]
	}
	return scoring.PlayerTotal(playerID, r.round.parlays, r.totals)
}

// Scoreboard ranks non-host players by running total, then by ID. Equal
// totals share a rank.
func (r *Room) Scoreboard() []types.Entry {
	entries := make([]types.Entry, 0, len(r.order))
	for _, id := range r.order {
		p := r.players[id]
		if p.Host {
			continue
		}
		entries = append(entries, types.Entry{PlayerID: id, Name: p.Name, Score: r.total(id)})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].PlayerID < entries[j].PlayerID
	})
	for i := range entries {
		entries[i].Rank = i + 1
		if i > 0 && entries[i].Score == entries[i-1].Score {
			entries[i].Rank = entries[i-1].Rank
		}
	}
	return entries
}

// Snapshot copies the room state.
func (r *Room) Snapshot() Snapshot {
	s := Snapshot{
		ID:          r.id,
		HostID:      r.hostID,
		Phase:       r.Phase(),
		RoundNumber: r.rounds,
		Settings:    r.settings,
		Scoreboard:  r.Scoreboard(),
	}
	for _, id := range r.order {
		s.Players = append(s.Players, *r.players[id])
	}
	if r.round != nil {
		s.RoundID = r.round.id
		s.Settings = r.round.settings
		s.OpenClusters = r.round.clusters.Len()
		s.WheelEntries = len(r.round.entries)
	}
	return s
}

// Close ends any live round so that no timer outlives the room.
func (r *Room) Close(ctx context.Context) []message.Outbound {
	if r.round == nil || r.round.phase == message.PhaseEnded {
		return nil
	}
	return r.finishRound(ctx)
}

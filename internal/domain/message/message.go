// Package message defines the closed set of room commands and room outputs.
package message

import (
	"github.com/okian/callout/internal/domain/model"
	"github.com/okian/callout/internal/domain/types"
)

// Kind is the wire tag of a message.
type Kind string

// Inbound kinds.
const (
	KindJoin               Kind = "join"
	KindLeave              Kind = "leave"
	KindStartRound         Kind = "start_round"
	KindLockParlay         Kind = "lock_parlay"
	KindStartPlayback      Kind = "start_playback"
	KindSubmitVote         Kind = "submit_vote"
	KindHostConfirmEvent   Kind = "host_confirm_event"
	KindHostDismissEvent   Kind = "host_dismiss_event"
	KindSubmitWheelEntry   Kind = "submit_wheel_entry"
	KindModerateWheelEntry Kind = "moderate_wheel_entry"
	KindSpinWheel          Kind = "spin_wheel"
	KindEndRound           Kind = "end_round"
	KindTimerFired         Kind = "timer_fired"
)

// Outbound kinds.
const (
	KindRejected          Kind = "rejected"
	KindPlayerJoined      Kind = "player_joined"
	KindPlayerLeft        Kind = "player_left"
	KindRoundStarted      Kind = "round_started"
	KindPhaseChanged      Kind = "phase_changed"
	KindParlayLocked      Kind = "parlay_locked"
	KindClusterUpdated    Kind = "cluster_updated"
	KindClusterPending    Kind = "cluster_pending"
	KindClusterDiscarded  Kind = "cluster_discarded"
	KindEventConfirmed    Kind = "event_confirmed"
	KindScoresUpdated     Kind = "scores_updated"
	KindWheelEntryUpdated Kind = "wheel_entry_updated"
	KindWheelSpun         Kind = "wheel_spun"
	KindRoundEnded        Kind = "round_ended"
)

// Rejection reasons.
const (
	ReasonEmptyText        = "empty_text"
	ReasonBadTimestamp     = "bad_timestamp"
	ReasonUnknownPlayer    = "unknown_player"
	ReasonHostCannotCall   = "host_cannot_call"
	ReasonNotHost          = "not_host"
	ReasonWrongRound       = "wrong_round"
	ReasonWrongPhase       = "wrong_phase"
	ReasonRateLimited      = "rate_limited"
	ReasonDuplicateMessage = "duplicate_message"
	ReasonDuplicateVote    = "duplicate_vote"
	ReasonCooldown         = "cooldown"
	ReasonAlreadyLocked    = "already_locked"
	ReasonBadFrequency     = "bad_frequency"
	ReasonInvalidSettings  = "invalid_settings"
	ReasonNoCluster        = "no_cluster"
	ReasonUnknownEntry     = "unknown_entry"
	ReasonNoEntries        = "no_entries"
	ReasonAlreadySpun      = "already_spun"
	ReasonDuplicatePlayer  = "duplicate_player"
	ReasonMalformed        = "malformed"
	ReasonBackpressure     = "backpressure"
	ReasonRoomNotFound     = "room_not_found"
)

// Phase is the round lifecycle.
type Phase string

const (
	PhaseLobby  Phase = "lobby"
	PhaseParlay Phase = "parlay"
	PhaseLive   Phase = "live"
	PhaseEnded  Phase = "ended"
)

// Meta is carried by every client command.
type Meta struct {
	MessageID string `json:"message_id,omitempty"`
	PlayerID  string `json:"player_id"`
}

// Command is an inbound room message.
type Command interface {
	Kind() Kind
	Header() Meta
	isCommand()
}

func (m Meta) Header() Meta { return m }
func (Meta) isCommand()     {}

type Join struct {
	Meta
	Name string `json:"name"`
}

type Leave struct {
	Meta
}

type StartRound struct {
	Meta
	Settings *model.RoomSettings `json:"settings,omitempty"`
}

type LockParlay struct {
	Meta
	RoundID    string          `json:"round_id"`
	Text       string          `json:"text"`
	Punishment string          `json:"punishment,omitempty"`
	Frequency  model.Frequency `json:"frequency"`
}

type StartPlayback struct {
	Meta
	RoundID string `json:"round_id"`
}

type SubmitVote struct {
	Meta
	RoundID   string  `json:"round_id"`
	TVideoSec float64 `json:"t_video_sec"`
	Text      string  `json:"text"`
}

type HostConfirmEvent struct {
	Meta
	RoundID string  `json:"round_id"`
	TCenter float64 `json:"t_center"`
	Text    string  `json:"text"`
}

type HostDismissEvent struct {
	Meta
	RoundID string  `json:"round_id"`
	TCenter float64 `json:"t_center"`
	Text    string  `json:"text"`
}

type SubmitWheelEntry struct {
	Meta
	RoundID string `json:"round_id"`
	Text    string `json:"text"`
}

type ModerateWheelEntry struct {
	Meta
	RoundID  string `json:"round_id"`
	EntryID  string `json:"entry_id"`
	Approved bool   `json:"approved"`
}

type SpinWheel struct {
	Meta
	RoundID string `json:"round_id"`
	Seed    string `json:"seed,omitempty"`
}

type EndRound struct {
	Meta
	RoundID string `json:"round_id"`
}

// TimerFired is produced by the scheduler, never decoded from clients.
type TimerFired struct {
	Meta
	RoundID    string `json:"round_id"`
	ClusterID  string `json:"cluster_id"`
	Generation int    `json:"generation"`
	Timeout    string `json:"timeout"`
}

func (Join) Kind() Kind               { return KindJoin }
func (Leave) Kind() Kind              { return KindLeave }
func (StartRound) Kind() Kind         { return KindStartRound }
func (LockParlay) Kind() Kind         { return KindLockParlay }
func (StartPlayback) Kind() Kind      { return KindStartPlayback }
func (SubmitVote) Kind() Kind         { return KindSubmitVote }
func (HostConfirmEvent) Kind() Kind   { return KindHostConfirmEvent }
func (HostDismissEvent) Kind() Kind   { return KindHostDismissEvent }
func (SubmitWheelEntry) Kind() Kind   { return KindSubmitWheelEntry }
func (ModerateWheelEntry) Kind() Kind { return KindModerateWheelEntry }
func (SpinWheel) Kind() Kind          { return KindSpinWheel }
func (EndRound) Kind() Kind           { return KindEndRound }
func (TimerFired) Kind() Kind         { return KindTimerFired }

// Outbound is a room output.
type Outbound interface {
	Kind() Kind
	isOutbound()
}

// Directed is implemented by outputs meant for a single player.
type Directed interface {
	Recipient() string
}

type Rejected struct {
	MessageID string `json:"message_id,omitempty"`
	PlayerID  string `json:"player_id"`
	Command   Kind   `json:"command"`
	Reason    string `json:"reason"`
}

func (r Rejected) Recipient() string { return r.PlayerID }

type PlayerJoined struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
	Host     bool   `json:"host"`
}

type PlayerLeft struct {
	PlayerID string `json:"player_id"`
}

type RoundStarted struct {
	RoundID  string             `json:"round_id"`
	Number   int                `json:"number"`
	Settings model.RoomSettings `json:"settings"`
}

type PhaseChanged struct {
	RoundID string `json:"round_id"`
	Phase   Phase  `json:"phase"`
}

type ParlayLocked struct {
	RoundID  string `json:"round_id"`
	PlayerID string `json:"player_id"`
	ParlayID string `json:"parlay_id"`
}

type ClusterUpdated struct {
	Cluster model.VoteCluster `json:"cluster"`
}

type ClusterPending struct {
	Cluster model.VoteCluster `json:"cluster"`
}

type ClusterDiscarded struct {
	Cluster model.VoteCluster `json:"cluster"`
	Reason  string            `json:"reason"`
}

type EventConfirmed struct {
	Event     model.ConfirmedEvent `json:"event"`
	Secondary bool                 `json:"secondary,omitempty"`
	PauseSec  float64              `json:"pause_sec"`
}

type ScoresUpdated struct {
	RoundID string              `json:"round_id"`
	EventID string              `json:"event_id"`
	Updates []model.ScoreUpdate `json:"updates"`
}

type WheelEntryUpdated struct {
	Entry model.WheelEntry `json:"entry"`
}

type WheelSpun struct {
	Spin  model.PunishmentSpin `json:"spin"`
	Entry model.WheelEntry     `json:"entry"`
}

type RoundEnded struct {
	RoundID    string         `json:"round_id"`
	Discarded  int            `json:"discarded_clusters"`
	Scoreboard []types.Entry  `json:"scoreboard"`
	Parlays    []model.Parlay `json:"parlays"`
}

func (Rejected) Kind() Kind          { return KindRejected }
func (PlayerJoined) Kind() Kind      { return KindPlayerJoined }
func (PlayerLeft) Kind() Kind        { return KindPlayerLeft }
func (RoundStarted) Kind() Kind      { return KindRoundStarted }
func (PhaseChanged) Kind() Kind      { return KindPhaseChanged }
func (ParlayLocked) Kind() Kind      { return KindParlayLocked }
func (ClusterUpdated) Kind() Kind    { return KindClusterUpdated }
func (ClusterPending) Kind() Kind    { return KindClusterPending }
func (ClusterDiscarded) Kind() Kind  { return KindClusterDiscarded }
func (EventConfirmed) Kind() Kind    { return KindEventConfirmed }
func (ScoresUpdated) Kind() Kind     { return KindScoresUpdated }
func (WheelEntryUpdated) Kind() Kind { return KindWheelEntryUpdated }
func (WheelSpun) Kind() Kind         { return KindWheelSpun }
func (RoundEnded) Kind() Kind        { return KindRoundEnded }

func (Rejected) isOutbound()          {}
func (PlayerJoined) isOutbound()      {}
func (PlayerLeft) isOutbound()        {}
func (RoundStarted) isOutbound()      {}
func (PhaseChanged) isOutbound()      {}
func (ParlayLocked) isOutbound()      {}
func (ClusterUpdated) isOutbound()    {}
func (ClusterPending) isOutbound()    {}
func (ClusterDiscarded) isOutbound()  {}
func (EventConfirmed) isOutbound()    {}
func (ScoresUpdated) isOutbound()     {}
func (WheelEntryUpdated) isOutbound() {}
func (WheelSpun) isOutbound()         {}
func (RoundEnded) isOutbound()        {}

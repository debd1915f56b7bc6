// Package consensus decides when a vote cluster becomes a confirmed event.
package consensus

import (
	"time"

	"github.com/okian/callout/internal/domain/cluster"
	"github.com/okian/callout/internal/domain/model"
)

const (
	// VerifyWindowSec is how long a single call waits for a second caller.
	VerifyWindowSec = 2.0
	// SecondaryWindowSec is how late a speed-call can still join a confirmed event.
	SecondaryWindowSec = 3.0
)

// Decision is the outcome of evaluating a cluster.
type Decision int

const (
	Pending Decision = iota
	Confirm
	AwaitHost
	Discard
)

func (d Decision) String() string {
	switch d {
	case Confirm:
		return "confirm"
	case AwaitHost:
		return "await_host"
	case Discard:
		return "discard"
	default:
		return "pending"
	}
}

// TimeoutKind names the timer armed when a cluster opens.
type TimeoutKind string

const (
	TimeoutNone     TimeoutKind = ""
	TimeoutCooldown TimeoutKind = "cooldown"
	TimeoutVerify   TimeoutKind = "verify"
)

// Env is the room state a policy reads. Active excludes the host.
type Env struct {
	Active   []string
	Settings model.RoomSettings
}

// Policy is a mode-specific resolution rule.
type Policy interface {
	Mode() model.Mode
	Evaluate(c *cluster.Cluster, env Env) Decision
	// Deadline returns the timer to arm when a cluster opens. A zero duration
	// with TimeoutNone means no timer.
	Deadline(s model.RoomSettings) (time.Duration, TimeoutKind)
	// Window is how far apart, in video seconds, calls may be and still share
	// a cluster.
	Window(s model.RoomSettings) float64
}

// ForMode returns the policy for m; unknown or empty modes use the threshold rule.
func ForMode(m model.Mode) Policy {
	switch m {
	case model.ModeUnanimous:
		return unanimous{}
	case model.ModeSingleCallerVerify:
		return verify{}
	case model.ModeJudge:
		return judge{}
	case model.ModeSpeedCall:
		return speedCall{}
	default:
		return threshold{}
	}
}

// MeetsThreshold is the shared percentage rule.
func MeetsThreshold(voters, active int, pct float64, minVotes int) bool {
	if active <= 0 || voters < minVotes {
		return false
	}
	return float64(voters)/float64(active) >= pct
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

type threshold struct{}

func (threshold) Mode() model.Mode { return model.ModeThreshold }

func (threshold) Evaluate(c *cluster.Cluster, env Env) Decision {
	if MeetsThreshold(c.Count(), len(env.Active), env.Settings.ConsensusThresholdPct, env.Settings.MinVotes) {
		return Confirm
	}
	return Pending
}

func (threshold) Window(s model.RoomSettings) float64 { return s.VoteWindowSec }

func (threshold) Deadline(s model.RoomSettings) (time.Duration, TimeoutKind) {
	return seconds(s.CooldownPerTextSec), TimeoutCooldown
}

// unanimous needs every active player inside the fast-tap spread.
type unanimous struct{}

func (unanimous) Mode() model.Mode { return model.ModeUnanimous }

func (unanimous) Evaluate(c *cluster.Cluster, env Env) Decision {
	if len(env.Active) == 0 {
		return Pending
	}
	for _, p := range env.Active {
		if !c.HasVoter(p) {
			return Pending
		}
	}
	if c.TMax-c.TMin > env.Settings.FastTapWindow {
		return Pending
	}
	return Confirm
}

func (unanimous) Window(s model.RoomSettings) float64 { return s.VoteWindowSec }

func (unanimous) Deadline(s model.RoomSettings) (time.Duration, TimeoutKind) {
	return seconds(s.CooldownPerTextSec), TimeoutCooldown
}

// verify confirms when a second player calls within the window of the first call.
type verify struct{}

func (verify) Mode() model.Mode { return model.ModeSingleCallerVerify }

func (verify) Evaluate(c *cluster.Cluster, _ Env) Decision {
	if c.Count() < 2 {
		return Pending
	}
	first := c.Members[0]
	for _, m := range c.Members[1:] {
		d := m.TVideoSec - first.TVideoSec
		if d < 0 {
			d = -d
		}
		if d <= VerifyWindowSec {
			return Confirm
		}
	}
	return Pending
}

// Window never drops below the verification window, so a second call that can
// confirm always lands in the first call's cluster.
func (verify) Window(s model.RoomSettings) float64 {
	return max(s.VoteWindowSec, VerifyWindowSec)
}

func (verify) Deadline(model.RoomSettings) (time.Duration, TimeoutKind) {
	return seconds(VerifyWindowSec), TimeoutVerify
}

// judge hands every cluster to the host.
type judge struct{}

func (judge) Mode() model.Mode { return model.ModeJudge }

func (judge) Evaluate(*cluster.Cluster, Env) Decision { return AwaitHost }

func (judge) Window(s model.RoomSettings) float64 { return s.VoteWindowSec }

func (judge) Deadline(model.RoomSettings) (time.Duration, TimeoutKind) {
	return 0, TimeoutNone
}

type speedCall struct{}

func (speedCall) Mode() model.Mode { return model.ModeSpeedCall }

func (speedCall) Evaluate(c *cluster.Cluster, env Env) Decision {
	if c.Count() >= env.Settings.MinVotes {
		return Confirm
	}
	return Pending
}

func (speedCall) Window(s model.RoomSettings) float64 { return s.VoteWindowSec }

func (speedCall) Deadline(s model.RoomSettings) (time.Duration, TimeoutKind) {
	return seconds(s.CooldownPerTextSec), TimeoutCooldown
}

// WithinSecondary reports whether a call at t may join an event confirmed at eventT.
func WithinSecondary(eventT, t float64) bool {
	d := t - eventT
	return d >= 0 && d <= SecondaryWindowSec
}

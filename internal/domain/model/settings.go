package model

import (
	"errors"
	"fmt"
	"math"
)

// Mode selects the consensus policy applied to vote clusters.
type Mode string

const (
	ModeThreshold          Mode = "threshold"
	ModeUnanimous          Mode = "unanimous"
	ModeSingleCallerVerify Mode = "single_caller_verify"
	ModeJudge              Mode = "judge_mode"
	ModeSpeedCall          Mode = "speed_call"
)

// ErrInvalidSettings is returned by RoomSettings.Validate.
var ErrInvalidSettings = errors.New("invalid room settings")

// RoomSettings is read-only configuration consumed by the core.
// Durations are seconds on the video timeline unless noted.
type RoomSettings struct {
	VoteWindowSec         float64 `json:"vote_window_sec" koanf:"vote_window_sec"`
	ConsensusThresholdPct float64 `json:"consensus_threshold_pct" koanf:"consensus_threshold_pct"`
	MinVotes              int     `json:"min_votes" koanf:"min_votes"`
	CooldownPerTextSec    float64 `json:"cooldown_per_text_sec" koanf:"cooldown_per_text_sec"`
	FastTapWindow         float64 `json:"fast_tap_window" koanf:"fast_tap_window_sec"`
	TwoPlayerMode         Mode    `json:"two_player_mode" koanf:"two_player_mode"`
	ScoreMultiplier       float64 `json:"score_multiplier" koanf:"score_multiplier"`
	PauseDurationSec      float64 `json:"pause_duration_sec" koanf:"pause_duration_sec"`
}

// DefaultRoomSettings returns the settings used when a room supplies none.
func DefaultRoomSettings() RoomSettings {
	return RoomSettings{
		VoteWindowSec:         2,
		ConsensusThresholdPct: 0.5,
		MinVotes:              2,
		CooldownPerTextSec:    10,
		FastTapWindow:         1,
		TwoPlayerMode:         ModeThreshold,
		ScoreMultiplier:       1,
		PauseDurationSec:      3,
	}
}

// EffectiveMode maps an empty mode to the threshold rule.
func (s RoomSettings) EffectiveMode() Mode {
	if s.TwoPlayerMode == "" {
		return ModeThreshold
	}
	return s.TwoPlayerMode
}

// Validate checks ranges. It does not mutate s.
func (s RoomSettings) Validate() error {
	finite := func(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
	switch {
	case !finite(s.VoteWindowSec) || s.VoteWindowSec < 0:
		return fmt.Errorf("%w: vote_window_sec must be >= 0", ErrInvalidSettings)
	case !finite(s.ConsensusThresholdPct) || s.ConsensusThresholdPct < 0 || s.ConsensusThresholdPct > 1:
		return fmt.Errorf("%w: consensus_threshold_pct must be within [0,1]", ErrInvalidSettings)
	case s.MinVotes < 1:
		return fmt.Errorf("%w: min_votes must be >= 1", ErrInvalidSettings)
	case !finite(s.CooldownPerTextSec) || s.CooldownPerTextSec <= 0:
		return fmt.Errorf("%w: cooldown_per_text_sec must be > 0", ErrInvalidSettings)
	case !finite(s.FastTapWindow) || s.FastTapWindow < 0:
		return fmt.Errorf("%w: fast_tap_window must be >= 0", ErrInvalidSettings)
	case !finite(s.ScoreMultiplier) || s.ScoreMultiplier <= 0:
		return fmt.Errorf("%w: score_multiplier must be > 0", ErrInvalidSettings)
	case !finite(s.PauseDurationSec) || s.PauseDurationSec < 0:
		return fmt.Errorf("%w: pause_duration_sec must be >= 0", ErrInvalidSettings)
	}
	switch s.EffectiveMode() {
	case ModeThreshold, ModeUnanimous, ModeSingleCallerVerify, ModeJudge, ModeSpeedCall:
		return nil
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidSettings, s.TwoPlayerMode)
	}
}

// Package simulate drives a scripted party against a running server over its
// public HTTP and websocket surface, then checks the resulting scoreboard.
package simulate

import (
	"errors"
	"time"

	"github.com/okian/callout/internal/domain/model"
	"github.com/okian/callout/pkg/logger"
)

// Config holds configuration for a simulated party.
type Config struct {
	BaseURL    string        // Base URL of the service
	Players    int           // Callers, not counting the host
	Moments    int           // Scripted on-screen moments
	VoteProb   float64       // Chance each caller reacts to a moment
	Seed       uint64        // Script seed; equal seeds give equal scripts
	Pace       time.Duration // Wall-clock gap between moments
	Settle     time.Duration // How long to wait for open clusters to resolve
	Timeout    time.Duration // HTTP request and await timeout
	OutputFile string        // Optional JSON report path
	Verbose    bool

	// Settings override the server's room defaults when set.
	Settings *model.RoomSettings

	Logger logger.Logger
}

// Defaults for a small local run.
const (
	DefaultPlayers  = 6
	DefaultMoments  = 12
	DefaultVoteProb = 0.7
	DefaultPace     = 250 * time.Millisecond
	DefaultSettle   = 5 * time.Second
	DefaultTimeout  = 10 * time.Second
)

var (
	ErrInvalidConfig = errors.New("invalid simulation config")
	ErrUnhealthy     = errors.New("service unhealthy")
	ErrInconsistent  = errors.New("inconsistent results")
)

func (c *Config) withDefaults() Config {
	out := *c
	if out.Players == 0 {
		out.Players = DefaultPlayers
	}
	if out.Moments == 0 {
		out.Moments = DefaultMoments
	}
	if out.VoteProb == 0 {
		out.VoteProb = DefaultVoteProb
	}
	if out.Pace == 0 {
		out.Pace = DefaultPace
	}
	if out.Settle == 0 {
		out.Settle = DefaultSettle
	}
	if out.Timeout == 0 {
		out.Timeout = DefaultTimeout
	}
	if out.Logger == nil {
		out.Logger = logger.Discard()
	}
	return out
}

func (c Config) validate() error {
	switch {
	case c.BaseURL == "":
		return errors.Join(ErrInvalidConfig, errors.New("missing base url"))
	case c.Players < 2:
		return errors.Join(ErrInvalidConfig, errors.New("need at least two players"))
	case c.Moments < 1:
		return errors.Join(ErrInvalidConfig, errors.New("need at least one moment"))
	case c.VoteProb <= 0 || c.VoteProb > 1:
		return errors.Join(ErrInvalidConfig, errors.New("vote probability must be within (0,1]"))
	}
	if c.Settings != nil {
		if err := c.Settings.Validate(); err != nil {
			return errors.Join(ErrInvalidConfig, err)
		}
	}
	return nil
}

// Stats holds run statistics.
type Stats struct {
	VotesSent         int            `json:"votes_sent"`
	VotesFailed       int            `json:"votes_failed"`
	Rejections        map[string]int `json:"rejections"`
	ClustersDiscarded int            `json:"clusters_discarded"`
	EventsConfirmed   int            `json:"events_confirmed"`
	StartTime         time.Time      `json:"start_time"`
	EndTime           time.Time      `json:"end_time"`
	Duration          time.Duration  `json:"duration"`
}

// Package config defines service configuration and how it is loaded.
package config

import (
	"fmt"
	"time"

	"github.com/okian/callout/internal/domain/model"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// PublicURL is the base URL encoded in join links and QR codes.
	PublicURL string `koanf:"public_url"`

	// QueueSize bounds each room's mailbox.
	QueueSize int `koanf:"queue_size"`

	// DedupeSize bounds each room's message-id cache.
	DedupeSize int `koanf:"dedupe_size"`

	// RoomIdleTimeoutSec closes rooms with no traffic. Zero disables reaping.
	RoomIdleTimeoutSec int `koanf:"room_idle_timeout_sec"`

	// VoteRatePerSec and VoteBurst shape the per-player vote limiter.
	VoteRatePerSec float64 `koanf:"vote_rate_per_sec"`
	VoteBurst      int     `koanf:"vote_burst"`

	// MaxScoreboardLimit caps GET /rooms/:room/scoreboard?limit.
	MaxScoreboardLimit int `koanf:"max_scoreboard_limit"`

	// LeaveGraceSec is how long a dropped socket may reconnect before the
	// player is marked as left. Zero keeps players until they leave.
	LeaveGraceSec int `koanf:"leave_grace_sec"`

	// ShutdownTimeoutSec bounds graceful HTTP shutdown.
	ShutdownTimeoutSec int `koanf:"shutdown_timeout_sec"`

	// AuditDBPath is the SQLite file for confirmed events and spins.
	// Empty disables the audit store.
	AuditDBPath string `koanf:"audit_db_path"`

	// RedisAddr enables fan-out across instances when set.
	RedisAddr string `koanf:"redis_addr"`

	// RedisChannelPrefix prefixes the per-room pub/sub channel.
	RedisChannelPrefix string `koanf:"redis_channel_prefix"`

	// Room holds the settings applied to rooms created without their own.
	Room model.RoomSettings `koanf:"room"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		Addr:               ":8080",
		QueueSize:          1024,
		DedupeSize:         4096,
		RoomIdleTimeoutSec: 1800,
		VoteRatePerSec:     5,
		VoteBurst:          5,
		MaxScoreboardLimit: 100,
		LeaveGraceSec:      0,
		ShutdownTimeoutSec: 10,
		AuditDBPath:        "callout.db",
		RedisChannelPrefix: "callout:room:",
		Room:               model.DefaultRoomSettings(),
	}
}

// IdleTimeout returns RoomIdleTimeoutSec as a duration.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.RoomIdleTimeoutSec) * time.Second
}

// LeaveGrace returns LeaveGraceSec as a duration.
func (c *Config) LeaveGrace() time.Duration {
	return time.Duration(c.LeaveGraceSec) * time.Second
}

// ShutdownTimeout returns ShutdownTimeoutSec as a duration.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSec) * time.Second
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.QueueSize < 1:
		return fmt.Errorf("%w: queue_size must be >= 1", ErrInvalidConfig)
	case c.DedupeSize < 1:
		return fmt.Errorf("%w: dedupe_size must be >= 1", ErrInvalidConfig)
	case c.RoomIdleTimeoutSec < 0:
		return fmt.Errorf("%w: room_idle_timeout_sec must be >= 0", ErrInvalidConfig)
	case c.VoteRatePerSec <= 0 || c.VoteBurst < 1:
		return fmt.Errorf("%w: vote rate and burst must be positive", ErrInvalidConfig)
	case c.MaxScoreboardLimit < 1:
		return fmt.Errorf("%w: max_scoreboard_limit must be >= 1", ErrInvalidConfig)
	case c.LeaveGraceSec < 0 || c.ShutdownTimeoutSec < 0:
		return fmt.Errorf("%w: durations must be >= 0", ErrInvalidConfig)
	}
	if err := c.Room.Validate(); err != nil {
		return fmt.Errorf("%w: room: %w", ErrInvalidConfig, err)
	}
	return nil
}

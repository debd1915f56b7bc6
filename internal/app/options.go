package service

import (
	"context"
	"time"

	"github.com/okian/callout/internal/adapters/pubsub"
	"github.com/okian/callout/internal/domain/model"
	"github.com/okian/callout/internal/domain/wheel"
	"github.com/okian/callout/pkg/logger"
)

// AuditStore persists confirmed events and wheel spins.
type AuditStore interface {
	SaveEvent(ctx context.Context, roomID string, ev model.ConfirmedEvent) error
	SaveSpin(ctx context.Context, roomID string, spin model.PunishmentSpin, selectedText string) error
	GetSpin(ctx context.Context, id string) (model.PunishmentSpin, error)
	PunishmentUsage(ctx context.Context) (wheel.Usage, error)
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithQueueSize sets each room's mailbox capacity.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize bounds the client message IDs each room remembers.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithIdleTimeout reaps rooms that receive no command for d. Zero disables reaping.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.idleTimeout = d
		}
	}
}

// WithDefaultSettings sets the settings of rooms created without their own.
func WithDefaultSettings(settings model.RoomSettings) Option {
	return func(s *Service) {
		s.defaults = settings
	}
}

// WithPublisher sets where outbound room messages go.
func WithPublisher(p pubsub.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithAuditStore enables persistence of events and spins.
func WithAuditStore(a AuditStore) Option {
	return func(s *Service) {
		if a != nil {
			s.audit = a
		}
	}
}

// WithVoteRate limits calls per player per second.
func WithVoteRate(limit float64, burst int) Option {
	return func(s *Service) {
		s.voteRate = limit
		s.voteBurst = burst
	}
}

// WithClock overrides the wall clock handed to rooms.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

package game

import (
	"time"

	"github.com/google/uuid"
	"github.com/okian/callout/internal/domain/dedupe"
	"github.com/okian/callout/internal/domain/model"
	"github.com/okian/callout/internal/domain/scoring"
	"github.com/okian/callout/internal/domain/wheel"
	"github.com/okian/callout/pkg/logger"
	"golang.org/x/time/rate"
)

// Default per-player call rate.
const (
	defaultVoteRate  = 5
	defaultVoteBurst = 5
)

// Option configures a Room.
type Option func(*Room)

func WithLogger(l logger.Logger) Option {
	return func(r *Room) {
		if l != nil {
			r.log = l
		}
	}
}

// WithSettings sets the room's default settings used when StartRound omits them.
func WithSettings(s model.RoomSettings) Option {
	return func(r *Room) { r.settings = s }
}

func WithScheduler(s Scheduler) Option {
	return func(r *Room) {
		if s != nil {
			r.sched = s
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Room) {
		if now != nil {
			r.now = now
		}
	}
}

func WithIDFunc(fn func() string) Option {
	return func(r *Room) {
		if fn != nil {
			r.newID = fn
		}
	}
}

// WithVoteRate limits calls per player. A non-positive limit disables limiting.
func WithVoteRate(limit float64, burst int) Option {
	return func(r *Room) {
		if limit <= 0 {
			r.voteRate = rate.Inf
		} else {
			r.voteRate = rate.Limit(limit)
		}
		if burst > 0 {
			r.voteBurst = burst
		}
	}
}

// WithDedupeSize bounds the remembered client message IDs.
func WithDedupeSize(n int) Option {
	return func(r *Room) { r.dedupe = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(n)) }
}

// WithUsage seeds historical punishment usage for wheel weighting.
func WithUsage(u wheel.Usage) Option {
	return func(r *Room) { r.usage = u }
}

func WithScoringEngine(e *scoring.Engine) Option {
	return func(r *Room) {
		if e != nil {
			r.engine = e
		}
	}
}

func defaults(r *Room) {
	r.log = logger.Discard()
	r.settings = model.DefaultRoomSettings()
	r.sched = noopScheduler{}
	r.now = time.Now
	r.newID = uuid.NewString
	r.voteRate = defaultVoteRate
	r.voteBurst = defaultVoteBurst
	r.dedupe = dedupe.NewInMemoryDeduper()
	r.engine = scoring.NewEngine()
}

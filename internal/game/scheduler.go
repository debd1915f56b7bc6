package game

import (
	"sync"
	"time"

	"github.com/okian/callout/internal/domain/message"
)

// Handle cancels a scheduled timer. Cancel is idempotent.
type Handle interface {
	Cancel()
}

// Scheduler arms timers whose expiry is delivered back to the room as a
// TimerFired command through the room's mailbox.
type Scheduler interface {
	Schedule(d time.Duration, cmd message.TimerFired) Handle
}

// TimerScheduler delivers expired timers through deliver.
type TimerScheduler struct {
	deliver func(message.TimerFired)
}

// NewTimerScheduler creates a wall-clock scheduler.
func NewTimerScheduler(deliver func(message.TimerFired)) *TimerScheduler {
	return &TimerScheduler{deliver: deliver}
}

func (s *TimerScheduler) Schedule(d time.Duration, cmd message.TimerFired) Handle {
	h := &timerHandle{}
	h.t = time.AfterFunc(d, func() {
		h.mu.Lock()
		cancelled := h.cancelled
		h.mu.Unlock()
		if !cancelled {
			s.deliver(cmd)
		}
	})
	return h
}

type timerHandle struct {
	mu        sync.Mutex
	t         *time.Timer
	cancelled bool
}

func (h *timerHandle) Cancel() {
	h.mu.Lock()
	h.cancelled = true
	h.mu.Unlock()
	h.t.Stop()
}

type noopScheduler struct{}

func (noopScheduler) Schedule(time.Duration, message.TimerFired) Handle { return noopHandle{} }

type noopHandle struct{}

func (noopHandle) Cancel() {}

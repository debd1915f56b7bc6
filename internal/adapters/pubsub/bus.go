package pubsub

import (
	"context"
	"sync"

	"github.com/okian/callout/pkg/logger"
	"github.com/okian/callout/pkg/metrics"
)

const defaultSubscriberBuffer = 64

// Subscription receives the messages of one room.
type Subscription struct {
	roomID string
	ch     chan Message
	bus    *Bus
	once   sync.Once
}

// C returns the delivery channel. It is closed when the subscription ends.
func (s *Subscription) C() <-chan Message { return s.ch }

// Close unsubscribes. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() { s.bus.remove(s) })
}

// Bus is an in-process Publisher with per-room subscriptions.
// Slow subscribers lose messages rather than stall the room.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	buffer int
	closed bool
	logger logger.Logger
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithBuffer sets each subscriber's channel capacity.
func WithBuffer(n int) BusOption {
	return func(b *Bus) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// WithBusLogger sets the logger used to report dropped messages.
func WithBusLogger(l logger.Logger) BusOption {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBus creates an empty bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		subs:   make(map[string]map[*Subscription]struct{}),
		buffer: defaultSubscriberBuffer,
		logger: logger.Discard(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers interest in roomID.
func (b *Bus) Subscribe(roomID string) *Subscription {
	s := &Subscription{roomID: roomID, ch: make(chan Message, b.buffer), bus: b}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(s.ch)
		return s
	}
	set, ok := b.subs[roomID]
	if !ok {
		set = make(map[*Subscription]struct{})
		b.subs[roomID] = set
	}
	set[s] = struct{}{}
	return s
}

// Publish delivers msg to every subscriber of its room without blocking.
func (b *Bus) Publish(ctx context.Context, msg Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	for s := range b.subs[msg.RoomID] {
		select {
		case s.ch <- msg:
		default:
			metrics.RecordPublishError()
			b.logger.Warn(ctx, "subscriber buffer full, message dropped",
				logger.String("room_id", msg.RoomID),
				logger.String("kind", msg.Kind))
		}
	}
	return nil
}

// Subscribers returns the number of live subscriptions for roomID.
func (b *Bus) Subscribers(roomID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[roomID])
}

// Close ends every subscription.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, set := range b.subs {
		for s := range set {
			close(s.ch)
		}
	}
	b.subs = nil
	return nil
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	set := b.subs[s.roomID]
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	close(s.ch)
	if len(set) == 0 {
		delete(b.subs, s.roomID)
	}
}

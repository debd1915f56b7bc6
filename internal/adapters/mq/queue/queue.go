// Package queue provides the bounded mailbox that serializes commands for a room.
package queue

import (
	"context"
	"sync"

	"github.com/okian/callout/internal/domain/message"
	"github.com/okian/callout/pkg/metrics"
)

const defaultCapacity = 1024

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds cmd without blocking. It returns false when the queue is
	// full, closed, or ctx is done.
	Enqueue(ctx context.Context, cmd message.Command) bool

	// Dequeue returns the receive side. It is closed after Close once drained.
	Dequeue() <-chan message.Command

	Len() int

	// Close stops accepting commands. Queued commands remain readable.
	Close() error

	IsClosed() bool
}

// InMemoryQueue implements Queue with a buffered channel.
type InMemoryQueue struct {
	commands chan message.Command
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a mailbox.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.commands = make(chan message.Command, q.capacity)
	return q
}

func (q *InMemoryQueue) Enqueue(ctx context.Context, cmd message.Command) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordMailboxReject()
		return false
	}
	select {
	case <-ctx.Done():
		metrics.RecordMailboxReject()
		return false
	default:
	}

	select {
	case q.commands <- cmd:
		return true
	default:
		metrics.RecordMailboxReject()
		return false
	}
}

func (q *InMemoryQueue) Dequeue() <-chan message.Command {
	return q.commands
}

func (q *InMemoryQueue) Len() int {
	return len(q.commands)
}

// Capacity returns the configured bound.
func (q *InMemoryQueue) Capacity() int {
	return q.capacity
}

func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.commands)
	q.closed = true
	return nil
}

func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

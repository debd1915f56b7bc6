// Package worker runs the single consumer that drains one room's mailbox.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/callout/internal/domain/message"
	"github.com/okian/callout/pkg/logger"
	"github.com/okian/callout/pkg/metrics"
)

// Handler applies one command. Room implements it.
type Handler interface {
	Handle(ctx context.Context, cmd message.Command) []message.Outbound
}

// Emitter receives the outputs of each handled command, in handling order.
type Emitter interface {
	Emit(ctx context.Context, cmd message.Command, out []message.Outbound)
}

// Queue defines how the worker receives commands.
type Queue interface {
	Dequeue() <-chan message.Command
}

// Worker processes commands strictly one at a time.
type Worker interface {
	// Run consumes until ctx is done, Shutdown is called, or the queue closes.
	Run(ctx context.Context)

	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue   Queue
	handler Handler
	emitter Emitter
	name    string

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker for one room.
func NewInMemoryWorker(queue Queue, handler Handler, emitter Emitter, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    queue,
		handler:  handler,
		emitter:  emitter,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Discard(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	commands := w.queue.Dequeue()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case cmd, ok := <-commands:
			if !ok {
				return
			}
			if err := w.process(ctx, cmd); err != nil {
				w.logger.Error(ctx, "error handling command", logger.Error(err))
			}
		}
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) process(ctx context.Context, cmd message.Command) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic handling %s: %v", cmd.Kind(), r)
		}
		metrics.RecordHandleLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	out := w.handler.Handle(ctx, cmd)
	if w.emitter != nil {
		w.emitter.Emit(ctx, cmd, out)
	}
	return nil
}

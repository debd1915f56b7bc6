package worker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/okian/callout/internal/adapters/mq/worker"
	"github.com/okian/callout/internal/domain/message"
	"github.com/smartystreets/goconvey/convey"
)

type mockQueue struct {
	commands chan message.Command
}

func newMockQueue() *mockQueue {
	return &mockQueue{commands: make(chan message.Command, 10)}
}

func (q *mockQueue) Dequeue() <-chan message.Command { return q.commands }

// recorder handles commands and records emitted outputs in order.
type recorder struct {
	mu      sync.Mutex
	handled []string
	emitted []message.Kind
	panicOn string
}

func (r *recorder) Handle(_ context.Context, cmd message.Command) []message.Outbound {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := cmd.Header().MessageID
	if id == r.panicOn {
		panic("boom")
	}
	r.handled = append(r.handled, id)
	return []message.Outbound{message.PlayerLeft{PlayerID: cmd.Header().PlayerID}}
}

func (r *recorder) Emit(_ context.Context, _ message.Command, out []message.Outbound) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range out {
		r.emitted = append(r.emitted, o.Kind())
	}
}

func (r *recorder) snapshot() ([]string, []message.Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.handled...), append([]message.Kind(nil), r.emitted...)
}

func leave(id string) message.Command {
	return message.Leave{Meta: message.Meta{MessageID: id, PlayerID: "p-" + id}}
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker over a room mailbox", t, func() {
		q := newMockQueue()
		rec := &recorder{}
		w := worker.NewInMemoryWorker(q, rec, rec, worker.WithName("room-test"))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("Commands are handled in arrival order and their outputs emitted", func() {
			for _, id := range []string{"1", "2", "3"} {
				q.commands <- leave(id)
			}
			ok := waitFor(func() bool {
				h, _ := rec.snapshot()
				return len(h) == 3
			})
			convey.So(ok, convey.ShouldBeTrue)
			handled, emitted := rec.snapshot()
			convey.So(handled, convey.ShouldResemble, []string{"1", "2", "3"})
			convey.So(emitted, convey.ShouldHaveLength, 3)
		})

		convey.Convey("A panicking command does not stop the worker", func() {
			rec.panicOn = "bad"
			q.commands <- leave("bad")
			q.commands <- leave("good")
			ok := waitFor(func() bool {
				h, _ := rec.snapshot()
				return len(h) == 1
			})
			convey.So(ok, convey.ShouldBeTrue)
			handled, _ := rec.snapshot()
			convey.So(handled, convey.ShouldResemble, []string{"good"})
		})

		convey.Convey("Shutdown stops the loop", func() {
			sctx, scancel := context.WithTimeout(context.Background(), time.Second)
			defer scancel()
			convey.So(w.Shutdown(sctx), convey.ShouldBeNil)
			convey.So(w.Shutdown(sctx), convey.ShouldBeNil)
		})
	})

	convey.Convey("Given a closed mailbox", t, func() {
		q := newMockQueue()
		rec := &recorder{}
		w := worker.NewInMemoryWorker(q, rec, nil)
		close(q.commands)

		convey.Convey("Run returns on its own", func() {
			go w.Run(context.Background())
			select {
			case <-w.Done():
			case <-time.After(time.Second):
			}
			_, open := <-w.Done()
			convey.So(open, convey.ShouldBeFalse)
		})
	})
}

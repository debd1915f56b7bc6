package service

import (
	"context"
	"errors"

	"github.com/okian/callout/internal/adapters/pubsub"
	"github.com/okian/callout/internal/adapters/repository"
	"github.com/okian/callout/internal/domain/message"
	"github.com/okian/callout/pkg/logger"
	"github.com/okian/callout/pkg/metrics"
)

// emitter runs on the room's worker goroutine after each command. It is the
// only place outside the room that observes room state, so the snapshot is
// taken here.
type emitter struct {
	svc   *Service
	entry *roomEntry
}

func (em *emitter) Emit(ctx context.Context, _ message.Command, out []message.Outbound) {
	for _, o := range out {
		em.project(ctx, o)
		em.persist(ctx, o)
		em.publish(ctx, o)
	}
	snap := em.entry.room.Snapshot()
	em.entry.snapshot.Store(&snap)
}

// project keeps the treap scoreboard in step with the room's totals.
func (em *emitter) project(ctx context.Context, o message.Outbound) {
	board := em.entry.board
	switch m := o.(type) {
	case message.PlayerJoined:
		if m.Host {
			return
		}
		if _, err := board.Rank(ctx, m.PlayerID); errors.Is(err, repository.ErrNotFound) {
			_ = board.Set(ctx, m.PlayerID, m.Name, 0)
		}
	case message.ScoresUpdated:
		for _, u := range m.Updates {
			_ = board.Set(ctx, u.PlayerID, "", u.NewTotal)
		}
	case message.RoundEnded:
		for _, row := range m.Scoreboard {
			_ = board.Set(ctx, row.PlayerID, row.Name, row.Score)
		}
	}
}

func (em *emitter) persist(ctx context.Context, o message.Outbound) {
	audit := em.svc.audit
	if audit == nil {
		return
	}
	var err error
	switch m := o.(type) {
	case message.EventConfirmed:
		err = audit.SaveEvent(ctx, em.entry.id, m.Event)
	case message.WheelSpun:
		err = audit.SaveSpin(ctx, em.entry.id, m.Spin, m.Entry.Text)
	default:
		return
	}
	if err != nil {
		metrics.RecordAuditWriteError()
		em.svc.logger.Error(ctx, "audit write failed",
			logger.String("room_id", em.entry.id),
			logger.String("kind", string(o.Kind())),
			logger.Error(err))
	}
}

func (em *emitter) publish(ctx context.Context, o message.Outbound) {
	raw, err := message.Encode(o)
	if err != nil {
		em.svc.logger.Error(ctx, "encode outbound failed", logger.Error(err))
		return
	}
	msg := pubsub.Message{RoomID: em.entry.id, Kind: string(o.Kind()), Payload: raw}
	if d, ok := o.(message.Directed); ok {
		msg.Recipient = d.Recipient()
	}
	if err := em.svc.publisher.Publish(ctx, msg); err != nil {
		metrics.RecordPublishError()
		em.svc.logger.Warn(ctx, "publish failed",
			logger.String("room_id", em.entry.id),
			logger.String("kind", msg.Kind),
			logger.Error(err))
	}
}

package simulate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/okian/callout/internal/domain/message"
	"github.com/okian/callout/internal/domain/model"
)

const seatBuffer = 4096

var errSeatClosed = errors.New("seat closed")

// seat is one player's websocket. A reader goroutine tallies what it sees
// and forwards frames for awaiting.
type seat struct {
	playerID string
	conn     *websocket.Conn
	frames   chan message.Envelope

	writeMu sync.Mutex
	tally   *tally
	done    chan struct{}
}

func dial(ctx context.Context, c *httpClient, room, player string, t *tally) (*seat, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.socketURL(room, player), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", player, err)
	}
	s := &seat{
		playerID: player,
		conn:     conn,
		frames:   make(chan message.Envelope, seatBuffer),
		tally:    t,
		done:     make(chan struct{}),
	}
	go s.read()
	return s, nil
}

func (s *seat) read() {
	defer close(s.done)
	defer close(s.frames)
	for {
		var env message.Envelope
		if err := s.conn.ReadJSON(&env); err != nil {
			return
		}
		s.tally.observe(s.playerID, env)
		select {
		case s.frames <- env:
		default:
		}
	}
}

// send writes one command envelope. The server stamps the player id.
func (s *seat) send(kind message.Kind, cmd any) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return s.conn.WriteJSON(message.Envelope{Type: kind, Payload: payload})
}

// await reads frames until one of kind satisfies match. Rejections of
// reject are returned as errors.
func (s *seat) await(ctx context.Context, kind message.Kind, reject message.Kind, match func(json.RawMessage) bool) (json.RawMessage, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("awaiting %s: %w", kind, ctx.Err())
		case env, ok := <-s.frames:
			if !ok {
				return nil, errSeatClosed
			}
			if reject != "" && env.Type == message.KindRejected {
				var r message.Rejected
				if json.Unmarshal(env.Payload, &r) == nil && r.Command == reject {
					return nil, fmt.Errorf("%s rejected: %s", reject, r.Reason)
				}
				continue
			}
			if env.Type == kind && (match == nil || match(env.Payload)) {
				return env.Payload, nil
			}
		}
	}
}

func (s *seat) close() {
	s.writeMu.Lock()
	_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()
	_ = s.conn.Close()
	<-s.done
}

func newMeta(player string) message.Meta {
	return message.Meta{MessageID: uuid.NewString(), PlayerID: player}
}

// tally counts outputs seen by the host seat and rejections seen by any seat.
type tally struct {
	mu       sync.Mutex
	observer string
	stats    *Stats
	onEntry  func(model.WheelEntry)
}

func (t *tally) observe(seatID string, env message.Envelope) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if env.Type == message.KindRejected {
		var r message.Rejected
		if json.Unmarshal(env.Payload, &r) == nil && r.Command == message.KindSubmitVote {
			t.stats.Rejections[r.Reason]++
		}
		return
	}
	if seatID != t.observer {
		return
	}
	switch env.Type {
	case message.KindEventConfirmed:
		t.stats.EventsConfirmed++
	case message.KindClusterDiscarded:
		t.stats.ClustersDiscarded++
	case message.KindWheelEntryUpdated:
		var u message.WheelEntryUpdated
		if t.onEntry != nil && json.Unmarshal(env.Payload, &u) == nil {
			t.onEntry(u.Entry)
		}
	}
}

// Package ws carries room commands and outputs over websockets.
package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/okian/callout/internal/adapters/pubsub"
	"github.com/okian/callout/internal/domain/message"
	"github.com/okian/callout/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 << 10
)

// Submitter enqueues a command on a room's mailbox.
type Submitter interface {
	Submit(ctx context.Context, roomID string, cmd message.Command) error
}

// Subscriber provides a room's outbound stream.
type Subscriber interface {
	Subscribe(roomID string) *pubsub.Subscription
}

// Hub upgrades connections and tracks which players are connected to which rooms.
type Hub struct {
	upgrader   websocket.Upgrader
	submitter  Submitter
	subscriber Subscriber
	logger     logger.Logger
	leaveGrace time.Duration

	mu    sync.Mutex
	conns map[string]map[string]int // roomID -> playerID -> open connections
}

// NewHub creates a hub that submits to s and streams from sub.
func NewHub(s Submitter, sub Subscriber, opts ...Option) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		submitter:  s,
		subscriber: sub,
		logger:     logger.Discard(),
		conns:      make(map[string]map[string]int),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Connected reports how many sockets playerID has open in roomID.
func (h *Hub) Connected(roomID, playerID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conns[roomID][playerID]
}

// Serve upgrades the request and runs the connection until it closes.
// The caller has already resolved roomID and playerID.
// The subscription is taken before the handshake completes so a client never
// misses outputs caused by its first command.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, roomID, playerID string) {
	sub := h.subscriber.Subscribe(roomID)
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		sub.Close()
		h.logger.Warn(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}

	c := &client{
		hub:      h,
		conn:     conn,
		roomID:   roomID,
		playerID: playerID,
		sub:      sub,
		direct:   make(chan []byte, 8),
	}
	h.register(c)

	go c.writePump()
	c.readPump()
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	players, ok := h.conns[c.roomID]
	if !ok {
		players = make(map[string]int)
		h.conns[c.roomID] = players
	}
	players[c.playerID]++
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	players := h.conns[c.roomID]
	players[c.playerID]--
	if players[c.playerID] <= 0 {
		delete(players, c.playerID)
	}
	if len(players) == 0 {
		delete(h.conns, c.roomID)
	}
	h.mu.Unlock()

	if h.leaveGrace > 0 {
		go h.scheduleLeave(c.roomID, c.playerID)
	}
}

// scheduleLeave submits a Leave once the grace period passes without the
// player reconnecting.
func (h *Hub) scheduleLeave(roomID, playerID string) {
	time.Sleep(h.leaveGrace)
	if h.Connected(roomID, playerID) > 0 {
		return
	}
	ctx := context.Background()
	cmd := message.Leave{Meta: message.Meta{PlayerID: playerID}}
	if err := h.submitter.Submit(ctx, roomID, cmd); err != nil {
		h.logger.Debug(ctx, "leave after disconnect not delivered",
			logger.String("room_id", roomID),
			logger.String("player_id", playerID),
			logger.Error(err))
	}
}

type client struct {
	hub      *Hub
	conn     *websocket.Conn
	roomID   string
	playerID string
	sub      *pubsub.Subscription
	direct   chan []byte
	once     sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		c.sub.Close()
		close(c.direct)
		c.hub.unregister(c)
	})
}

func (c *client) readPump() {
	defer func() {
		c.close()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	ctx := context.Background()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		cmd, err := message.DecodeCommand(data)
		if err != nil {
			c.reject("", message.ReasonMalformed)
			continue
		}
		cmd = message.WithPlayer(cmd, c.playerID)

		if err := c.hub.submitter.Submit(ctx, c.roomID, cmd); err != nil {
			c.hub.logger.Debug(ctx, "command not accepted",
				logger.String("room_id", c.roomID),
				logger.String("player_id", c.playerID),
				logger.Error(err))
			c.reject(cmd.Kind(), rejectReason(err))
		}
	}
}

// reject answers the sending socket directly. The room never saw the command.
func (c *client) reject(kind message.Kind, reason string) {
	raw, err := message.Encode(message.Rejected{PlayerID: c.playerID, Command: kind, Reason: reason})
	if err != nil {
		return
	}
	select {
	case c.direct <- raw:
	default:
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.sub.C():
			if !ok {
				c.closeFrame()
				return
			}
			if !msg.For(c.playerID) {
				continue
			}
			if err := c.write(websocket.TextMessage, msg.Payload); err != nil {
				return
			}
		case raw, ok := <-c.direct:
			if !ok {
				return
			}
			if err := c.write(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) write(kind int, data []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(kind, data)
}

func (c *client) closeFrame() {
	_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "room closed"))
}

// ErrorReasoner lets a Submitter classify its errors as rejection reasons.
type ErrorReasoner interface {
	error
	Reason() string
}

func rejectReason(err error) string {
	var r ErrorReasoner
	if errors.As(err, &r) {
		return r.Reason()
	}
	return message.ReasonBackpressure
}

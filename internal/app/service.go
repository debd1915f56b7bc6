// Package service owns the room registry: one mailbox, one worker and one
// scoreboard per room, with outputs fanned out to publishers and the audit store.
package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/okian/callout/internal/adapters/mq/queue"
	"github.com/okian/callout/internal/adapters/mq/worker"
	"github.com/okian/callout/internal/adapters/pubsub"
	"github.com/okian/callout/internal/adapters/repository"
	"github.com/okian/callout/internal/domain/message"
	"github.com/okian/callout/internal/domain/model"
	"github.com/okian/callout/internal/domain/types"
	"github.com/okian/callout/internal/domain/wheel"
	"github.com/okian/callout/internal/game"
	"github.com/okian/callout/pkg/logger"
	"github.com/okian/callout/pkg/metrics"
)

const (
	roomCodeLength   = 6
	roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	roomCodeAttempts = 32

	timerRetryDelay = 50 * time.Millisecond
	shutdownTimeout = 5 * time.Second
)

// RoomInfo is returned when a room is created.
type RoomInfo = types.RoomInfo

type roomEntry struct {
	id     string
	room   *game.Room
	queue  *queue.InMemoryQueue
	worker *worker.InMemoryWorker
	board  *repository.TreapStore

	snapshot   atomic.Pointer[game.Snapshot]
	lastActive atomic.Int64
}

// Service implements the dependencies of the HTTP and websocket adapters.
type Service struct {
	mu    sync.RWMutex
	rooms map[string]*roomEntry

	// Configuration
	queueSize   int
	dedupeSize  int
	idleTimeout time.Duration
	defaults    model.RoomSettings
	voteRate    float64
	voteBurst   int
	now         func() time.Time

	publisher pubsub.Publisher
	audit     AuditStore

	// State
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	reaped  chan struct{}

	logger logger.Logger
}

// New constructs a Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		rooms:       make(map[string]*roomEntry),
		queueSize:   1024,
		dedupeSize:  4096,
		idleTimeout: 30 * time.Minute,
		defaults:    model.DefaultRoomSettings(),
		voteRate:    5,
		voteBurst:   5,
		now:         time.Now,
		publisher:   pubsub.NewBus(),
		logger:      logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins background maintenance. Rooms can only be created once started.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.reaped = make(chan struct{})
	s.started = true

	if s.idleTimeout > 0 {
		go s.reaperLoop()
	} else {
		close(s.reaped)
	}

	s.logger.Info(ctx, "room service started",
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Duration("idleTimeout", s.idleTimeout),
	)
	return nil
}

// Stop ends every live round and shuts all rooms down.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.cancel()
	rooms := s.rooms
	s.rooms = make(map[string]*roomEntry)
	s.mu.Unlock()

	<-s.reaped

	ctx := context.Background()
	s.logger.Info(ctx, "stopping room service", logger.Int("rooms", len(rooms)))
	for _, e := range rooms {
		s.closeRoom(ctx, e)
	}
	metrics.UpdateRoomsActive(0)
	metrics.UpdateMailboxDepth(0)
	s.logger.Info(ctx, "room service stopped")
}

// CreateRoom opens a room in the lobby with hostName as its host.
func (s *Service) CreateRoom(ctx context.Context, hostName string, settings *model.RoomSettings) (RoomInfo, error) {
	cfg := s.defaults
	if settings != nil {
		cfg = *settings
	}

	usage := wheel.Usage{}
	if s.audit != nil {
		u, err := s.audit.PunishmentUsage(ctx)
		if err != nil {
			s.logger.Warn(ctx, "punishment usage unavailable, wheel starts unweighted", logger.Error(err))
		} else {
			usage = u
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return RoomInfo{}, ErrNotStarted
	}

	code, err := s.newRoomCodeLocked()
	if err != nil {
		return RoomInfo{}, err
	}
	hostID := uuid.NewString()

	e := &roomEntry{
		id:    code,
		queue: queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize)),
		board: repository.NewTreapStore(),
	}
	room, err := game.NewRoom(code, hostID, hostName,
		game.WithLogger(s.logger.Named("room")),
		game.WithSettings(cfg),
		game.WithScheduler(game.NewTimerScheduler(func(cmd message.TimerFired) { s.deliverTimer(code, cmd) })),
		game.WithClock(s.now),
		game.WithVoteRate(s.voteRate, s.voteBurst),
		game.WithDedupeSize(s.dedupeSize),
		game.WithUsage(usage),
	)
	if err != nil {
		return RoomInfo{}, err
	}
	e.room = room
	snap := room.Snapshot()
	e.snapshot.Store(&snap)
	e.lastActive.Store(s.now().UnixNano())
	e.worker = worker.NewInMemoryWorker(e.queue, room, &emitter{svc: s, entry: e},
		worker.WithName("room-"+code),
		worker.WithLogger(s.logger),
	)

	s.rooms[code] = e
	go e.worker.Run(s.ctx)

	metrics.UpdateRoomsActive(len(s.rooms))
	s.logger.Info(ctx, "room created", logger.String("room_id", code), logger.String("host_id", hostID))
	return RoomInfo{RoomID: code, HostID: hostID}, nil
}

// newRoomCodeLocked draws a code from an alphabet without look-alike characters.
func (s *Service) newRoomCodeLocked() (string, error) {
	buf := make([]byte, roomCodeLength)
	for range roomCodeAttempts {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("room code: %w", err)
		}
		for i := range buf {
			buf[i] = roomCodeAlphabet[int(buf[i])%len(roomCodeAlphabet)]
		}
		code := string(buf)
		if _, exists := s.rooms[code]; !exists {
			return code, nil
		}
	}
	return "", ErrRoomCodes
}

// Join submits a Join for a new player ID and returns that ID.
func (s *Service) Join(ctx context.Context, roomID, name string) (string, error) {
	playerID := uuid.NewString()
	cmd := message.Join{Meta: message.Meta{PlayerID: playerID}, Name: name}
	if err := s.Submit(ctx, roomID, cmd); err != nil {
		return "", err
	}
	return playerID, nil
}

// Submit enqueues cmd on the room's mailbox without blocking.
func (s *Service) Submit(ctx context.Context, roomID string, cmd message.Command) error {
	e, ok := s.room(roomID)
	if !ok {
		return ErrRoomNotFound
	}
	if !e.queue.Enqueue(ctx, cmd) {
		return ErrBackpressure
	}
	e.lastActive.Store(s.now().UnixNano())
	return nil
}

// deliverTimer routes an expired timer through the mailbox, retrying while
// the mailbox is full so no cluster is left without a resolution.
func (s *Service) deliverTimer(roomID string, cmd message.TimerFired) {
	err := s.Submit(context.Background(), roomID, cmd)
	if errors.Is(err, ErrBackpressure) {
		time.AfterFunc(timerRetryDelay, func() { s.deliverTimer(roomID, cmd) })
	}
}

func (s *Service) room(roomID string) (*roomEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.rooms[roomID]
	return e, ok
}

// Room returns the latest snapshot of a room.
func (s *Service) Room(_ context.Context, roomID string) (game.Snapshot, error) {
	e, ok := s.room(roomID)
	if !ok {
		return game.Snapshot{}, ErrRoomNotFound
	}
	return *e.snapshot.Load(), nil
}

// Scoreboard returns the top limit players of a room.
func (s *Service) Scoreboard(ctx context.Context, roomID string, limit int) ([]types.Entry, error) {
	e, ok := s.room(roomID)
	if !ok {
		return nil, ErrRoomNotFound
	}
	return e.board.TopN(ctx, limit)
}

// Rank returns one player's scoreboard row.
func (s *Service) Rank(ctx context.Context, roomID, playerID string) (types.Entry, error) {
	e, ok := s.room(roomID)
	if !ok {
		return types.Entry{}, ErrRoomNotFound
	}
	return e.board.Rank(ctx, playerID)
}

// Spin loads an audited wheel spin.
func (s *Service) Spin(ctx context.Context, id string) (model.PunishmentSpin, error) {
	if s.audit == nil {
		return model.PunishmentSpin{}, ErrAuditDisabled
	}
	return s.audit.GetSpin(ctx, id)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	depth := 0
	players := 0
	for _, e := range s.rooms {
		depth += e.queue.Len()
		players += len(e.snapshot.Load().Players)
	}
	metrics.UpdateRoomsActive(len(s.rooms))
	metrics.UpdateMailboxDepth(depth)

	return map[string]any{
		"started":      s.started,
		"rooms":        len(s.rooms),
		"players":      players,
		"mailboxDepth": depth,
		"queueSize":    s.queueSize,
		"dedupeSize":   s.dedupeSize,
		"idleTimeout":  s.idleTimeout.String(),
		"auditEnabled": s.audit != nil,
	}
}

func (s *Service) reaperLoop() {
	defer close(s.reaped)
	ticker := time.NewTicker(s.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.reapIdle()
		}
	}
}

// reapIdle removes rooms idle longer than the idle timeout.
func (s *Service) reapIdle() {
	cutoff := s.now().Add(-s.idleTimeout).UnixNano()

	s.mu.Lock()
	var idle []*roomEntry
	depth := 0
	for id, e := range s.rooms {
		if e.lastActive.Load() < cutoff {
			idle = append(idle, e)
			delete(s.rooms, id)
			continue
		}
		depth += e.queue.Len()
	}
	metrics.UpdateRoomsActive(len(s.rooms))
	metrics.UpdateMailboxDepth(depth)
	s.mu.Unlock()

	ctx := context.Background()
	for _, e := range idle {
		s.logger.Info(ctx, "reaping idle room", logger.String("room_id", e.id))
		s.closeRoom(ctx, e)
	}
}

// closeRoom stops the worker first so the room is no longer driven
// concurrently, then finishes any live round and emits its outputs.
func (s *Service) closeRoom(ctx context.Context, e *roomEntry) {
	sctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := e.worker.Shutdown(sctx); err != nil {
		s.logger.Warn(ctx, "room worker did not stop", logger.String("room_id", e.id), logger.Error(err))
		return
	}
	_ = e.queue.Close()

	out := e.room.Close(ctx)
	(&emitter{svc: s, entry: e}).Emit(ctx, nil, out)
}

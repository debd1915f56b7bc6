// Package api serves the REST and websocket surface of the game service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/okian/callout/internal/domain/message"
	"github.com/okian/callout/internal/domain/model"
	"github.com/okian/callout/internal/domain/types"
	"github.com/okian/callout/internal/game"
	"github.com/okian/callout/pkg/logger"
)

// Dependencies required by HTTP handlers.
type Dependencies interface {
	CreateRoom(ctx context.Context, hostName string, settings *model.RoomSettings) (types.RoomInfo, error)
	Join(ctx context.Context, roomID, name string) (string, error)
	Submit(ctx context.Context, roomID string, cmd message.Command) error

	Room(ctx context.Context, roomID string) (game.Snapshot, error)
	Scoreboard(ctx context.Context, roomID string, limit int) ([]Entry, error)
	Rank(ctx context.Context, roomID, playerID string) (Entry, error)
	Spin(ctx context.Context, id string) (model.PunishmentSpin, error)
}

// SocketServer upgrades a player connection for one room.
type SocketServer interface {
	Serve(w http.ResponseWriter, r *http.Request, roomID, playerID string)
}

// Entry mirrors the read shape returned by scoreboard queries.
type Entry = types.Entry

// Server wires HTTP routes for the business API.
type Server struct {
	deps      Dependencies
	stats     StatsProvider
	sockets   SocketServer
	publicURL string
	maxLimit  int
	logger    logger.Logger
}

// NewServer creates a new API server.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		deps:     deps,
		maxLimit: defaultMaxLimit,
		logger:   logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all HTTP routes to router.
func (s *Server) Register(router *httprouter.Router) {
	router.GET("/healthz", MetricsMiddleware(s.handleHealth, "healthz"))
	router.Handler(http.MethodGet, "/metrics", metricsHandler())
	if s.stats != nil {
		router.GET("/stats", MetricsMiddleware(s.handleStats, "stats"))
	}

	router.POST("/rooms", MetricsMiddleware(s.handleCreateRoom, "create_room"))
	router.GET("/rooms/:room", MetricsMiddleware(s.handleGetRoom, "room"))
	router.POST("/rooms/:room/players", MetricsMiddleware(s.handleJoin, "join"))
	router.GET("/rooms/:room/players/:player/rank", MetricsMiddleware(s.handleRank, "rank"))
	router.POST("/rooms/:room/commands", MetricsMiddleware(s.handleCommand, "commands"))
	router.GET("/rooms/:room/scoreboard", MetricsMiddleware(s.handleScoreboard, "scoreboard"))
	router.GET("/rooms/:room/qr", MetricsMiddleware(s.handleQR, "qr"))
	if s.sockets != nil {
		router.GET("/rooms/:room/ws", s.handleSocket)
	}

	router.GET("/spins/:id", MetricsMiddleware(s.handleGetSpin, "spin"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError maps an error returned by Dependencies to a response.
func (s *Server) writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBadRequest):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case reasonOf(err) == message.ReasonBackpressure, errors.Is(err, ErrBackpressure):
		writeError(w, http.StatusTooManyRequests, message.ReasonBackpressure, err)
	case isNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", err)
	case reasonOf(err) == "unavailable", errors.Is(err, ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	default:
		s.logger.Error(ctx, "request failed", logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", err)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return WrapKind("decode body", ErrBadRequest, err)
	}
	return nil
}

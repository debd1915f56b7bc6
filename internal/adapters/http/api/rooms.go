package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/okian/callout/internal/domain/message"
	"github.com/okian/callout/internal/domain/model"
)

type createRoomRequest struct {
	HostName string              `json:"host_name"`
	Settings *model.RoomSettings `json:"settings,omitempty"`
}

type createRoomResponse struct {
	RoomID  string `json:"room_id"`
	HostID  string `json:"host_id"`
	JoinURL string `json:"join_url"`
}

type joinRequest struct {
	Name string `json:"name"`
}

type joinResponse struct {
	PlayerID string `json:"player_id"`
}

type ackResponse struct {
	Status string `json:"status"`
}

// handleCreateRoom handles POST /rooms.
func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req createRoomRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, message.ReasonMalformed, err)
		return
	}
	if strings.TrimSpace(req.HostName) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("missing host_name"))
		return
	}
	if req.Settings != nil {
		if err := req.Settings.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, message.ReasonInvalidSettings, err)
			return
		}
	}

	info, err := s.deps.CreateRoom(r.Context(), req.HostName, req.Settings)
	if err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createRoomResponse{
		RoomID:  info.RoomID,
		HostID:  info.HostID,
		JoinURL: s.joinURL(r, info.RoomID),
	})
}

// handleGetRoom handles GET /rooms/:room.
func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	snap, err := s.deps.Room(r.Context(), ps.ByName("room"))
	if err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleJoin handles POST /rooms/:room/players. The join is queued on the
// room mailbox; the assigned id is returned before the room applies it.
func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req joinRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, message.ReasonMalformed, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("missing name"))
		return
	}
	id, err := s.deps.Join(r.Context(), ps.ByName("room"), req.Name)
	if err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, joinResponse{PlayerID: id})
}

// handleCommand handles POST /rooms/:room/commands?player=ID with a command
// envelope body. Outcomes arrive on the room's websocket stream.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	player := r.URL.Query().Get("player")
	if player == "" {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("missing player"))
		return
	}
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, message.ReasonMalformed, err)
		return
	}
	cmd, err := message.DecodeCommand(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, message.ReasonMalformed, err)
		return
	}
	if err := s.deps.Submit(r.Context(), ps.ByName("room"), message.WithPlayer(cmd, player)); err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
}

// handleScoreboard handles GET /rooms/:room/scoreboard?limit=N.
func (s *Server) handleScoreboard(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid_limit", errors.New("limit must be a positive integer"))
			return
		}
		if n > s.maxLimit {
			writeError(w, http.StatusBadRequest, "limit_exceeded", errors.New("limit exceeds maximum of "+strconv.Itoa(s.maxLimit)))
			return
		}
		limit = n
	}
	entries, err := s.deps.Scoreboard(r.Context(), ps.ByName("room"), limit)
	if err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleRank handles GET /rooms/:room/players/:player/rank.
func (s *Server) handleRank(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	entry, err := s.deps.Rank(r.Context(), ps.ByName("room"), ps.ByName("player"))
	if err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// handleSocket handles GET /rooms/:room/ws?player=ID.
func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	room := ps.ByName("room")
	player := r.URL.Query().Get("player")
	if player == "" {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("missing player"))
		return
	}
	if _, err := s.deps.Room(r.Context(), room); err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}
	s.sockets.Serve(w, r, room, player)
}

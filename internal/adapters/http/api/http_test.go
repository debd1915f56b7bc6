package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/okian/callout/internal/adapters/http/api"
	"github.com/okian/callout/internal/domain/message"
	"github.com/okian/callout/internal/domain/model"
	"github.com/okian/callout/internal/domain/types"
	"github.com/okian/callout/internal/domain/wheel"
	"github.com/okian/callout/internal/game"
	. "github.com/smartystreets/goconvey/convey"
)

type reasonError struct{ reason string }

func (e reasonError) Error() string  { return e.reason }
func (e reasonError) Reason() string { return e.reason }

var (
	errNoRoom = reasonError{reason: "room_not_found"}
	errFull   = reasonError{reason: "backpressure"}
)

type mockDeps struct {
	mu        sync.Mutex
	rooms     map[string]game.Snapshot
	submitted []message.Command
	submitErr error
	settings  *model.RoomSettings
	board     []types.Entry
	limit     int
	spins     map[string]model.PunishmentSpin
}

func newMockDeps() *mockDeps {
	return &mockDeps{
		rooms: map[string]game.Snapshot{"ABC123": {ID: "ABC123", HostID: "host", Phase: message.PhaseLobby}},
		spins: map[string]model.PunishmentSpin{},
	}
}

func (m *mockDeps) CreateRoom(_ context.Context, _ string, settings *model.RoomSettings) (types.RoomInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = settings
	m.rooms["NEW234"] = game.Snapshot{ID: "NEW234", HostID: "host-2"}
	return types.RoomInfo{RoomID: "NEW234", HostID: "host-2"}, nil
}

func (m *mockDeps) Join(_ context.Context, roomID, _ string) (string, error) {
	if _, ok := m.rooms[roomID]; !ok {
		return "", errNoRoom
	}
	return "player-1", nil
}

func (m *mockDeps) Submit(_ context.Context, roomID string, cmd message.Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[roomID]; !ok {
		return errNoRoom
	}
	if m.submitErr != nil {
		return m.submitErr
	}
	m.submitted = append(m.submitted, cmd)
	return nil
}

func (m *mockDeps) Room(_ context.Context, roomID string) (game.Snapshot, error) {
	snap, ok := m.rooms[roomID]
	if !ok {
		return game.Snapshot{}, errNoRoom
	}
	return snap, nil
}

func (m *mockDeps) Scoreboard(_ context.Context, roomID string, limit int) ([]types.Entry, error) {
	if _, ok := m.rooms[roomID]; !ok {
		return nil, errNoRoom
	}
	m.limit = limit
	return m.board, nil
}

func (m *mockDeps) Rank(_ context.Context, roomID, playerID string) (types.Entry, error) {
	for _, e := range m.board {
		if e.PlayerID == playerID {
			return e, nil
		}
	}
	return types.Entry{}, errors.New("player not found")
}

func (m *mockDeps) Spin(_ context.Context, id string) (model.PunishmentSpin, error) {
	spin, ok := m.spins[id]
	if !ok {
		return model.PunishmentSpin{}, errors.New("audit record not found")
	}
	return spin, nil
}

type mockStats struct{}

func (mockStats) GetStats() map[string]any { return map[string]any{"rooms": 1} }

type mockSockets struct {
	room, player string
}

func (m *mockSockets) Serve(w http.ResponseWriter, _ *http.Request, roomID, playerID string) {
	m.room, m.player = roomID, playerID
	w.WriteHeader(http.StatusSwitchingProtocols)
}

func newRouter(deps api.Dependencies, opts ...api.Option) *httprouter.Router {
	router := httprouter.New()
	api.NewServer(deps, opts...).Register(router)
	return router
}

func do(router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](w *httptest.ResponseRecorder) T {
	var v T
	_ = json.NewDecoder(bytes.NewReader(w.Body.Bytes())).Decode(&v)
	return v
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		deps := newMockDeps()
		router := newRouter(deps, api.WithStats(mockStats{}))

		Convey("health reports ok", func() {
			w := do(router, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode[map[string]string](w)["status"], ShouldEqual, "ok")
		})

		Convey("metrics are exposed in Prometheus format", func() {
			w := do(router, http.MethodGet, "/metrics", "")
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("stats come from the provider", func() {
			w := do(router, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode[map[string]any](w)["rooms"], ShouldEqual, float64(1))
		})

		Convey("unknown paths are 404", func() {
			So(do(router, http.MethodGet, "/unknown", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("the socket route is absent without a socket server", func() {
			So(do(router, http.MethodGet, "/rooms/ABC123/ws?player=p", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestRooms(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		deps := newMockDeps()
		router := newRouter(deps, api.WithPublicURL("https://party.example/"))

		Convey("creating a room returns ids and a join url", func() {
			w := do(router, http.MethodPost, "/rooms", `{"host_name":"Hana"}`)
			So(w.Code, ShouldEqual, http.StatusCreated)
			resp := decode[map[string]string](w)
			So(resp["room_id"], ShouldEqual, "NEW234")
			So(resp["host_id"], ShouldEqual, "host-2")
			So(resp["join_url"], ShouldEqual, "https://party.example/rooms/NEW234")
			So(deps.settings, ShouldBeNil)
		})

		Convey("creating a room passes explicit settings", func() {
			s := model.DefaultRoomSettings()
			s.TwoPlayerMode = model.ModeUnanimous
			raw, _ := json.Marshal(map[string]any{"host_name": "Hana", "settings": s})
			w := do(router, http.MethodPost, "/rooms", string(raw))
			So(w.Code, ShouldEqual, http.StatusCreated)
			So(deps.settings, ShouldNotBeNil)
			So(deps.settings.TwoPlayerMode, ShouldEqual, model.ModeUnanimous)
		})

		Convey("creating a room rejects invalid settings", func() {
			s := model.DefaultRoomSettings()
			s.VoteWindowSec = -1
			raw, _ := json.Marshal(map[string]any{"host_name": "Hana", "settings": s})
			w := do(router, http.MethodPost, "/rooms", string(raw))
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decode[map[string]string](w)["code"], ShouldEqual, message.ReasonInvalidSettings)
		})

		Convey("creating a room needs a host name", func() {
			So(do(router, http.MethodPost, "/rooms", `{}`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(router, http.MethodPost, "/rooms", `{"host_name":`).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("a room snapshot is served", func() {
			w := do(router, http.MethodGet, "/rooms/ABC123", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode[game.Snapshot](w).HostID, ShouldEqual, "host")
		})

		Convey("a missing room is 404", func() {
			w := do(router, http.MethodGet, "/rooms/NOPE99", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("joining returns the player id", func() {
			w := do(router, http.MethodPost, "/rooms/ABC123/players", `{"name":"Ana"}`)
			So(w.Code, ShouldEqual, http.StatusAccepted)
			So(decode[map[string]string](w)["player_id"], ShouldEqual, "player-1")
			So(do(router, http.MethodPost, "/rooms/ABC123/players", `{"name":" "}`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(router, http.MethodPost, "/rooms/NOPE99/players", `{"name":"Ana"}`).Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("the QR code is a PNG", func() {
			w := do(router, http.MethodGet, "/rooms/ABC123/qr", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldEqual, "image/png")
			So(bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")), ShouldBeTrue)
			So(do(router, http.MethodGet, "/rooms/NOPE99/qr", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestCommands(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		deps := newMockDeps()
		router := newRouter(deps)
		vote := `{"type":"submit_vote","payload":{"round_id":"r1","t_video_sec":12.5,"text":"Goal"}}`

		Convey("a command is submitted as the query player", func() {
			w := do(router, http.MethodPost, "/rooms/ABC123/commands?player=p1", vote)
			So(w.Code, ShouldEqual, http.StatusAccepted)
			So(deps.submitted, ShouldHaveLength, 1)
			cmd, ok := deps.submitted[0].(message.SubmitVote)
			So(ok, ShouldBeTrue)
			So(cmd.PlayerID, ShouldEqual, "p1")
			So(cmd.TVideoSec, ShouldEqual, 12.5)
		})

		Convey("a command without a player is refused", func() {
			So(do(router, http.MethodPost, "/rooms/ABC123/commands", vote).Code, ShouldEqual, http.StatusBadRequest)
			So(deps.submitted, ShouldBeEmpty)
		})

		Convey("a malformed command is refused", func() {
			w := do(router, http.MethodPost, "/rooms/ABC123/commands?player=p1", `{"type":"timer_fired","payload":{}}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decode[map[string]string](w)["code"], ShouldEqual, message.ReasonMalformed)
		})

		Convey("a full mailbox is 429", func() {
			deps.submitErr = errFull
			w := do(router, http.MethodPost, "/rooms/ABC123/commands?player=p1", vote)
			So(w.Code, ShouldEqual, http.StatusTooManyRequests)
			So(decode[map[string]string](w)["code"], ShouldEqual, message.ReasonBackpressure)
		})

		Convey("an unknown room is 404", func() {
			So(do(router, http.MethodPost, "/rooms/NOPE99/commands?player=p1", vote).Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("an unclassified failure is 500", func() {
			deps.submitErr = errors.New("boom")
			So(do(router, http.MethodPost, "/rooms/ABC123/commands?player=p1", vote).Code, ShouldEqual, http.StatusInternalServerError)
		})
	})
}

func TestScoreboard(t *testing.T) {
	Convey("Given a room with scores", t, func() {
		deps := newMockDeps()
		deps.board = []types.Entry{
			{Rank: 1, PlayerID: "a", Name: "Ana", Score: 7},
			{Rank: 1, PlayerID: "b", Name: "Ben", Score: 7},
		}
		router := newRouter(deps, api.WithMaxLimit(50))

		Convey("the default limit is 10", func() {
			w := do(router, http.MethodGet, "/rooms/ABC123/scoreboard", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.limit, ShouldEqual, 10)
			So(decode[[]types.Entry](w), ShouldHaveLength, 2)
		})

		Convey("limits are validated", func() {
			So(do(router, http.MethodGet, "/rooms/ABC123/scoreboard?limit=5", "").Code, ShouldEqual, http.StatusOK)
			So(deps.limit, ShouldEqual, 5)
			So(do(router, http.MethodGet, "/rooms/ABC123/scoreboard?limit=0", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(router, http.MethodGet, "/rooms/ABC123/scoreboard?limit=x", "").Code, ShouldEqual, http.StatusBadRequest)
			w := do(router, http.MethodGet, "/rooms/ABC123/scoreboard?limit=51", "")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decode[map[string]string](w)["code"], ShouldEqual, "limit_exceeded")
		})

		Convey("an empty board is an empty array", func() {
			deps.board = nil
			w := do(router, http.MethodGet, "/rooms/ABC123/scoreboard", "")
			So(strings.TrimSpace(w.Body.String()), ShouldEqual, "[]")
		})

		Convey("rank is served per player", func() {
			w := do(router, http.MethodGet, "/rooms/ABC123/players/b/rank", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode[types.Entry](w).Rank, ShouldEqual, 1)
			So(do(router, http.MethodGet, "/rooms/ABC123/players/zed/rank", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestSpins(t *testing.T) {
	Convey("Given a stored spin", t, func() {
		deps := newMockDeps()
		res, err := wheel.Spin(wheel.Request{
			RoundID: "r1",
			LoserID: "ben",
			Seed:    "seed-A",
			Entries: []model.WheelEntry{
				{ID: "e1", RoundID: "r1", Text: "Ten pushups", Status: model.WheelApproved},
				{ID: "e2", RoundID: "r1", Text: "Sing", Status: model.WheelApproved},
			},
			Now: time.Unix(0, 0),
		})
		So(err, ShouldBeNil)
		deps.spins[res.Spin.ID] = res.Spin
		router := newRouter(deps)

		Convey("it is served with a verified replay", func() {
			w := do(router, http.MethodGet, "/spins/"+res.Spin.ID, "")
			So(w.Code, ShouldEqual, http.StatusOK)
			body := decode[map[string]any](w)
			So(body["verified"], ShouldBeTrue)
			So(body["text"], ShouldEqual, res.Selected.Text)
		})

		Convey("a tampered spin is reported as unverified", func() {
			tampered := res.Spin
			tampered.ID = "tampered"
			if tampered.SelectedEntryID == "e1" {
				tampered.SelectedEntryID = "e2"
			} else {
				tampered.SelectedEntryID = "e1"
			}
			deps.spins["tampered"] = tampered
			w := do(router, http.MethodGet, "/spins/tampered", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			body := decode[map[string]any](w)
			So(body["verified"], ShouldBeFalse)
			So(body["mismatch"], ShouldNotBeEmpty)
		})

		Convey("a missing spin is 404", func() {
			So(do(router, http.MethodGet, "/spins/nope", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestSockets(t *testing.T) {
	Convey("Given a server with a socket server", t, func() {
		deps := newMockDeps()
		sockets := &mockSockets{}
		router := newRouter(deps, api.WithSockets(sockets))

		Convey("the upgrade is handed the room and player", func() {
			w := do(router, http.MethodGet, "/rooms/ABC123/ws?player=p1", "")
			So(w.Code, ShouldEqual, http.StatusSwitchingProtocols)
			So(sockets.room, ShouldEqual, "ABC123")
			So(sockets.player, ShouldEqual, "p1")
		})

		Convey("a player id is required", func() {
			So(do(router, http.MethodGet, "/rooms/ABC123/ws", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("an unknown room is 404", func() {
			So(do(router, http.MethodGet, "/rooms/NOPE99/ws?player=p1", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestErrors(t *testing.T) {
	Convey("Wrapped errors keep both kind and cause", t, func() {
		cause := errors.New("eof")
		err := api.WrapKind("decode body", api.ErrBadRequest, cause)
		So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
		So(errors.Is(err, cause), ShouldBeTrue)
		So(err.Error(), ShouldEqual, "decode body: bad request: eof")
		So(api.Wrap("op", nil), ShouldBeNil)
		So(api.NewKind("op", api.ErrNotFound).Error(), ShouldEqual, "op: not found")
	})
}

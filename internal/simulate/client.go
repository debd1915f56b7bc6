package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/okian/callout/internal/domain/model"
	"github.com/okian/callout/internal/domain/types"
	"github.com/okian/callout/internal/game"
)

// statusError is a non-2xx reply.
type statusError struct {
	Status int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Status, strings.TrimSpace(e.Body))
}

// httpClient wraps http.Client with the service's routes.
type httpClient struct {
	base   string
	client *http.Client
}

func newHTTPClient(base string, timeout time.Duration) *httpClient {
	return &httpClient{
		base:   strings.TrimSuffix(base, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

func (c *httpClient) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &statusError{Status: resp.StatusCode, Body: string(raw)}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func (c *httpClient) health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

type createdRoom struct {
	RoomID  string `json:"room_id"`
	HostID  string `json:"host_id"`
	JoinURL string `json:"join_url"`
}

func (c *httpClient) createRoom(ctx context.Context, host string, settings *model.RoomSettings) (createdRoom, error) {
	var out createdRoom
	err := c.do(ctx, http.MethodPost, "/rooms", map[string]any{"host_name": host, "settings": settings}, &out)
	return out, err
}

func (c *httpClient) join(ctx context.Context, room, name string) (string, error) {
	var out struct {
		PlayerID string `json:"player_id"`
	}
	err := c.do(ctx, http.MethodPost, "/rooms/"+url.PathEscape(room)+"/players", map[string]string{"name": name}, &out)
	return out.PlayerID, err
}

func (c *httpClient) room(ctx context.Context, room string) (game.Snapshot, error) {
	var out game.Snapshot
	err := c.do(ctx, http.MethodGet, "/rooms/"+url.PathEscape(room), nil, &out)
	return out, err
}

func (c *httpClient) scoreboard(ctx context.Context, room string, limit int) ([]types.Entry, error) {
	var out []types.Entry
	err := c.do(ctx, http.MethodGet, "/rooms/"+url.PathEscape(room)+"/scoreboard?limit="+strconv.Itoa(limit), nil, &out)
	return out, err
}

func (c *httpClient) rank(ctx context.Context, room, player string) (types.Entry, error) {
	var out types.Entry
	err := c.do(ctx, http.MethodGet, "/rooms/"+url.PathEscape(room)+"/players/"+url.PathEscape(player)+"/rank", nil, &out)
	return out, err
}

// SpinCheck is the server's replay verdict for a spin.
type SpinCheck struct {
	Spin     model.PunishmentSpin `json:"spin"`
	Text     string               `json:"text"`
	Verified bool                 `json:"verified"`
	Mismatch string               `json:"mismatch,omitempty"`
}

func (c *httpClient) spin(ctx context.Context, id string) (SpinCheck, error) {
	var out SpinCheck
	err := c.do(ctx, http.MethodGet, "/spins/"+url.PathEscape(id), nil, &out)
	return out, err
}

// socketURL maps the base URL onto the room websocket route.
func (c *httpClient) socketURL(room, player string) string {
	u := c.base
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/rooms/" + url.PathEscape(room) + "/ws?player=" + url.QueryEscape(player)
}

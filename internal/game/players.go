package game

import (
	"context"
	"strings"

	"github.com/okian/callout/internal/domain/message"
	"golang.org/x/time/rate"
)

func (r *Room) addPlayer(id, name string, host bool) *Player {
	p := &Player{
		ID:       id,
		Name:     strings.TrimSpace(name),
		Host:     host,
		Active:   true,
		JoinedAt: r.now(),
		limiter:  rate.NewLimiter(r.voteRate, r.voteBurst),
	}
	r.players[id] = p
	r.order = append(r.order, id)
	return p
}

func (r *Room) join(c message.Join) []message.Outbound {
	if c.PlayerID == "" {
		return r.reject(c, message.ReasonUnknownPlayer)
	}
	if p, ok := r.players[c.PlayerID]; ok {
		if p.Active {
			return r.reject(c, message.ReasonDuplicatePlayer)
		}
		p.Active = true
		if name := strings.TrimSpace(c.Name); name != "" {
			p.Name = name
		}
		return []message.Outbound{message.PlayerJoined{PlayerID: p.ID, Name: p.Name, Host: p.Host}}
	}
	p := r.addPlayer(c.PlayerID, c.Name, false)
	return []message.Outbound{message.PlayerJoined{PlayerID: p.ID, Name: p.Name}}
}

// leave deactivates a player. Their parlays and score stay; open clusters are
// re-evaluated because unanimity is measured against active players.
func (r *Room) leave(ctx context.Context, c message.Leave) []message.Outbound {
	p, ok := r.players[c.PlayerID]
	if !ok || !p.Active {
		return r.reject(c, message.ReasonUnknownPlayer)
	}
	p.Active = false
	out := []message.Outbound{message.PlayerLeft{PlayerID: p.ID}}
	if r.round != nil && r.round.phase == message.PhaseLive {
		for _, cl := range r.round.clusters.Open() {
			out = append(out, r.evaluate(ctx, cl)...)
		}
	}
	return out
}

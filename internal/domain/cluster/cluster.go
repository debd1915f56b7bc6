// Package cluster groups timestamped calls for the same text into candidate events.
package cluster

import (
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/okian/callout/internal/domain/model"
)

// State is the lifecycle of a cluster.
type State string

const (
	StateOpen        State = "open"
	StatePendingHost State = "pending_host"
	StateConfirmed   State = "confirmed"
	StateDiscarded   State = "discarded"
)

// Member is one accepted call inside a cluster.
type Member struct {
	VoteID    string
	PlayerID  string
	TVideoSec float64
}

// Cluster is a provisional grouping of calls. It is owned by one Clusterer.
type Cluster struct {
	ID             string
	RoundID        string
	NormalizedText string
	Members        []Member // arrival order
	TMin           float64
	TMax           float64
	TCenter        float64
	State          State
	// Generation increments whenever the cluster's timer is re-armed.
	Generation int

	seq    uint64
	voters map[string]int
}

// Count returns the number of distinct voters.
func (c *Cluster) Count() int { return len(c.Members) }

// HasVoter reports whether playerID already called into this cluster.
func (c *Cluster) HasVoter(playerID string) bool {
	_, ok := c.voters[playerID]
	return ok
}

// CallTime returns the video timestamp of playerID's call.
func (c *Cluster) CallTime(playerID string) (float64, bool) {
	i, ok := c.voters[playerID]
	if !ok {
		return 0, false
	}
	return c.Members[i].TVideoSec, true
}

// Voters returns player IDs in arrival order.
func (c *Cluster) Voters() []string {
	out := make([]string, len(c.Members))
	for i, m := range c.Members {
		out[i] = m.PlayerID
	}
	return out
}

// Earliest returns the member with the lowest timestamp; arrival order breaks ties.
func (c *Cluster) Earliest() Member {
	best := c.Members[0]
	for _, m := range c.Members[1:] {
		if m.TVideoSec < best.TVideoSec {
			best = m
		}
	}
	return best
}

// Resolved reports whether the cluster reached a terminal state.
func (c *Cluster) Resolved() bool {
	return c.State == StateConfirmed || c.State == StateDiscarded
}

// View returns the read-only projection sent to clients.
func (c *Cluster) View() model.VoteCluster {
	return model.VoteCluster{
		ID:             c.ID,
		NormalizedText: c.NormalizedText,
		Voters:         c.Voters(),
		TCenter:        c.TCenter,
		TMin:           c.TMin,
		TMax:           c.TMax,
		Count:          c.Count(),
		State:          string(c.State),
	}
}

func (c *Cluster) near(t, window float64) bool {
	for _, m := range c.Members {
		if math.Abs(t-m.TVideoSec) <= window {
			return true
		}
	}
	return false
}

func (c *Cluster) add(v model.Vote) {
	c.voters[v.PlayerID] = len(c.Members)
	c.Members = append(c.Members, Member{VoteID: v.ID, PlayerID: v.PlayerID, TVideoSec: v.TVideoSec})
	sum := 0.0
	c.TMin, c.TMax = c.Members[0].TVideoSec, c.Members[0].TVideoSec
	for _, m := range c.Members {
		sum += m.TVideoSec
		c.TMin = math.Min(c.TMin, m.TVideoSec)
		c.TMax = math.Max(c.TMax, m.TVideoSec)
	}
	c.TCenter = sum / float64(len(c.Members))
}

// Result describes the effect of Add.
type Result struct {
	Cluster   *Cluster
	Created   bool
	Duplicate bool
}

// Clusterer holds the unresolved clusters of one room. It is not safe for
// concurrent use; the owning room serializes access.
type Clusterer struct {
	byText map[string][]*Cluster
	byID   map[string]*Cluster
	seq    uint64
	newID  func() string
}

// New creates an empty clusterer.
func New(opts ...Option) *Clusterer {
	c := &Clusterer{
		byText: make(map[string][]*Cluster),
		byID:   make(map[string]*Cluster),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Add places v in the oldest unresolved cluster for its text that has a member
// within window seconds, or opens a new cluster. A repeat call from a player
// already in that cluster changes nothing and is reported as Duplicate.
func (c *Clusterer) Add(v model.Vote, window float64) Result {
	for _, cl := range c.byText[v.NormalizedText] {
		if !cl.near(v.TVideoSec, window) {
			continue
		}
		if cl.HasVoter(v.PlayerID) {
			return Result{Cluster: cl, Duplicate: true}
		}
		cl.add(v)
		return Result{Cluster: cl}
	}

	c.seq++
	cl := &Cluster{
		ID:             c.newID(),
		RoundID:        v.RoundID,
		NormalizedText: v.NormalizedText,
		State:          StateOpen,
		seq:            c.seq,
		voters:         make(map[string]int),
	}
	cl.add(v)
	c.byText[v.NormalizedText] = append(c.byText[v.NormalizedText], cl)
	c.byID[cl.ID] = cl
	return Result{Cluster: cl, Created: true}
}

// Get returns an unresolved cluster by ID.
func (c *Clusterer) Get(id string) (*Cluster, bool) {
	cl, ok := c.byID[id]
	return cl, ok
}

// Remove drops a cluster from the open set and marks it with the terminal state.
func (c *Clusterer) Remove(id string, final State) (*Cluster, bool) {
	cl, ok := c.byID[id]
	if !ok {
		return nil, false
	}
	delete(c.byID, id)
	list := c.byText[cl.NormalizedText]
	for i, other := range list {
		if other == cl {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(c.byText, cl.NormalizedText)
	} else {
		c.byText[cl.NormalizedText] = list
	}
	cl.State = final
	return cl, true
}

// Open returns unresolved clusters in creation order.
func (c *Clusterer) Open() []*Cluster {
	out := make([]*Cluster, 0, len(c.byID))
	for _, cl := range c.byID {
		out = append(out, cl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Len returns the number of unresolved clusters.
func (c *Clusterer) Len() int { return len(c.byID) }

// FindNear returns the unresolved cluster for text whose center is closest to t,
// provided it lies within window seconds.
func (c *Clusterer) FindNear(text string, t, window float64) (*Cluster, bool) {
	var best *Cluster
	bestDist := math.Inf(1)
	for _, cl := range c.byText[text] {
		d := math.Abs(cl.TCenter - t)
		if d <= window && d < bestDist {
			best, bestDist = cl, d
		}
	}
	return best, best != nil
}

// Flush discards every unresolved cluster and returns them in creation order.
func (c *Clusterer) Flush() []*Cluster {
	out := c.Open()
	for _, cl := range out {
		cl.State = StateDiscarded
	}
	c.byText = make(map[string][]*Cluster)
	c.byID = make(map[string]*Cluster)
	return out
}

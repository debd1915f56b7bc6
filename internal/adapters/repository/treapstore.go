package repository

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
)

// Treap-based, in-memory Store implementation.
//
// Ordering: score DESC, then playerID ASC (deterministic).
// "less" means ranks earlier, so in-order traversal yields the scoreboard
// from best to worst. Each node tracks its subtree size for O(log n) rank.

// scoreScale fixes scores to 9 decimal places so equal totals tie exactly.
const scoreScale = 1_000_000_000

type scoreFP int64

func toFixedPoint(x float64) scoreFP {
	scaled := math.Round(x * scoreScale)
	if scaled >= math.MaxInt64 {
		return scoreFP(math.MaxInt64)
	}
	if scaled <= math.MinInt64 {
		return scoreFP(math.MinInt64)
	}
	return scoreFP(scaled)
}

func toFloat(x scoreFP) float64 {
	return float64(x) / scoreScale
}

type record struct {
	score scoreFP
	name  string
}

type node struct {
	id    string
	score scoreFP
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

func less(aScore scoreFP, aID string, bScore scoreFP, bID string) bool {
	if aScore != bScore {
		return aScore > bScore
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, id string, score scoreFP, prio uint64) *node {
	if n == nil {
		return &node{id: id, score: score, prio: prio, size: 1}
	}
	if less(score, id, n.score, n.id) {
		n.left = insert(n.left, id, score, prio)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, score, prio)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, id string, score scoreFP) *node {
	if n == nil {
		return nil
	}
	switch {
	case score == n.score && id == n.id:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, score)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, score)
		}
	case less(score, id, n.score, n.id):
		n.left = deleteNode(n.left, id, score)
	default:
		n.right = deleteNode(n.right, id, score)
	}
	fix(n)
	return n
}

// position returns the zero-based in-order index of (id, score).
func position(n *node, id string, score scoreFP) int {
	pos := 0
	for n != nil {
		switch {
		case score == n.score && id == n.id:
			return pos + nsize(n.left)
		case less(score, id, n.score, n.id):
			n = n.left
		default:
			pos += nsize(n.left) + 1
			n = n.right
		}
	}
	return -1
}

// countAbove returns how many nodes have a strictly higher score.
func countAbove(n *node, score scoreFP) int {
	count := 0
	for n != nil {
		if n.score > score {
			count += nsize(n.left) + 1
			n = n.right
		} else {
			n = n.left
		}
	}
	return count
}

func collectTopN(n *node, limit int, out *[]*node) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, n)
	}
	collectTopN(n.right, limit, out)
}

// TreapStore is a concurrency-safe ranked scoreboard.
type TreapStore struct {
	mu   sync.RWMutex
	root *node
	byID map[string]record
	rng  *rand.Rand
	seed uint64
}

// NewTreapStore constructs an empty store.
func NewTreapStore(opts ...Option) *TreapStore {
	s := &TreapStore{
		byID: make(map[string]record),
		seed: rand.Uint64(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.rng = rand.New(rand.NewPCG(s.seed, s.seed^0x9e3779b97f4a7c15))
	return s
}

func (s *TreapStore) Set(_ context.Context, playerID, name string, score float64) error {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return ErrInvalidScore
	}
	ns := toFixedPoint(score)

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.byID[playerID]; ok {
		s.root = deleteNode(s.root, playerID, old.score)
		if name == "" {
			name = old.name
		}
	}
	s.byID[playerID] = record{score: ns, name: name}
	s.root = insert(s.root, playerID, ns, s.rng.Uint64())
	return nil
}

func (s *TreapStore) Remove(_ context.Context, playerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.byID[playerID]
	if !ok {
		return false
	}
	s.root = deleteNode(s.root, playerID, old.score)
	delete(s.byID, playerID)
	return true
}

// Rank uses competition ranking: players with equal scores share a rank and
// the next score skips ahead by the size of the tie.
func (s *TreapStore) Rank(_ context.Context, playerID string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[playerID]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return Entry{
		Rank:     countAbove(s.root, rec.score) + 1,
		PlayerID: playerID,
		Name:     rec.name,
		Score:    toFloat(rec.score),
	}, nil
}

// Position returns the zero-based order of a player in TopN output.
func (s *TreapStore) Position(_ context.Context, playerID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[playerID]
	if !ok {
		return -1, ErrNotFound
	}
	return position(s.root, playerID, rec.score), nil
}

func (s *TreapStore) TopN(_ context.Context, n int) ([]Entry, error) {
	if n < 1 {
		return nil, ErrInvalidLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	nodes := make([]*node, 0, min(n, len(s.byID)))
	collectTopN(s.root, n, &nodes)
	out := make([]Entry, len(nodes))
	for i, nd := range nodes {
		rank := i + 1
		if i > 0 && nd.score == nodes[i-1].score {
			rank = out[i-1].Rank
		}
		out[i] = Entry{Rank: rank, PlayerID: nd.id, Name: s.byID[nd.id].name, Score: toFloat(nd.score)}
	}
	return out, nil
}

func (s *TreapStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

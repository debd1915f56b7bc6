// Package dedupe tracks client message IDs for at-most-once command handling.
package dedupe

import (
	"context"
	"sync"
)

// Deduper records seen message IDs.
type Deduper interface {
	// SeenAndRecord reports whether id was already seen and records it if not.
	SeenAndRecord(ctx context.Context, id string) bool
	Size() int64
}

// inMemoryDeduper keeps at most maxSize IDs and evicts the oldest first.
// A maxSize <= 0 disables eviction.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]struct{}
	order   []string // ring of recorded IDs, oldest at next once full
	next    int
	maxSize int
}

// NewInMemoryDeduper creates a deduper with the given options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: 4096,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]struct{})
	if d.maxSize > 0 {
		d.order = make([]string, 0, d.maxSize)
	}
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return true
	}
	d.seen[id] = struct{}{}

	if d.maxSize <= 0 {
		return false
	}
	if len(d.order) < d.maxSize {
		d.order = append(d.order, id)
		return false
	}
	delete(d.seen, d.order[d.next])
	d.order[d.next] = id
	d.next = (d.next + 1) % d.maxSize
	return false
}

func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.seen))
}

// Package rarity weights text labels by how rarely they have been hit.
package rarity

import (
	"math"
)

// DefaultK smooths the weight for rounds with few hits.
const DefaultK = 10

// Weight returns 1 + ln((totalHits + k) / (textHits + 1)).
// It decreases as textHits grows. The result is not floored; see Floor.
// Negative counts are treated as zero and k <= 0 uses DefaultK.
func Weight(totalHits, textHits, k int) float64 {
	if totalHits < 0 {
		totalHits = 0
	}
	if textHits < 0 {
		textHits = 0
	}
	if k <= 0 {
		k = DefaultK
	}
	return 1 + math.Log(float64(totalHits+k)/float64(textHits+1))
}

// Floor clamps a weight to at least 1.
func Floor(w float64) float64 {
	if w < 1 || math.IsNaN(w) {
		return 1
	}
	return w
}

// Counter tracks hits per normalized text within one round.
// It is owned by a single room and is not safe for concurrent use.
type Counter struct {
	total int
	byKey map[string]int
}

// NewCounter returns an empty counter.
func NewCounter() *Counter {
	return &Counter{byKey: make(map[string]int)}
}

// Record counts one hit for text.
func (c *Counter) Record(text string) {
	c.total++
	c.byKey[text]++
}

// Total returns all hits recorded.
func (c *Counter) Total() int { return c.total }

// Hits returns hits recorded for text.
func (c *Counter) Hits(text string) int { return c.byKey[text] }

// Weight returns the rarity weight of text given the hits so far.
func (c *Counter) Weight(text string) float64 {
	return Weight(c.total, c.byKey[text], DefaultK)
}

// Reset forgets all hits.
func (c *Counter) Reset() {
	c.total = 0
	c.byKey = make(map[string]int)
}

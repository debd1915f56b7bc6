// Package selector picks a weighted item deterministically from a seed string.
package selector

import "unicode/utf16"

// Weighted is anything that carries a selection weight.
type Weighted interface {
	SelectionWeight() float64
}

// Fraction maps seed to a value in [0,1) using a 32-bit rolling hash
// over UTF-16 code units (h = h*31 + unit, wrapping as int32) reduced modulo 10000.
func Fraction(seed string) float64 {
	var h int32
	for _, u := range utf16.Encode([]rune(seed)) {
		h = h*31 + int32(u)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return float64(v%10000) / 10000
}

// Select returns the item chosen for seed. Weights are walked in order from
// Fraction(seed)*total, and the last item is returned if rounding exhausts the walk.
// ok is false when items is empty.
func Select[T Weighted](items []T, seed string) (item T, ok bool) {
	weights := make([]float64, len(items))
	for i, it := range items {
		weights[i] = it.SelectionWeight()
	}
	idx := Index(weights, seed)
	if idx < 0 {
		return item, false
	}
	return items[idx], true
}

// Index is Select over a plain weight slice. It returns -1 for an empty slice.
func Index(weights []float64, seed string) int {
	if len(weights) == 0 {
		return -1
	}
	total := 0.0
	for _, w := range weights {
		total += w
	}
	threshold := Fraction(seed) * total
	for i, w := range weights {
		threshold -= w
		if threshold <= 0 {
			return i
		}
	}
	return len(weights) - 1
}

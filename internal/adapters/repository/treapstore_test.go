package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
)

func TestTreapStore_Basic(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(WithSeed(1))

	if err := store.Set(ctx, "p1", "Ana", 4.5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entry, err := store.Rank(ctx, "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Rank != 1 || entry.Score != 4.5 || entry.Name != "Ana" {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if store.Count(ctx) != 1 {
		t.Errorf("expected count 1, got %d", store.Count(ctx))
	}
}

func TestTreapStore_SetReplacesTotal(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(WithSeed(2))

	_ = store.Set(ctx, "p1", "Ana", 10)
	_ = store.Set(ctx, "p1", "", 3)

	entry, err := store.Rank(ctx, "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Score != 3 {
		t.Errorf("expected score 3, got %f", entry.Score)
	}
	if entry.Name != "Ana" {
		t.Errorf("expected name to be kept, got %q", entry.Name)
	}
	if store.Count(ctx) != 1 {
		t.Errorf("expected one entry, got %d", store.Count(ctx))
	}
}

func TestTreapStore_Ordering(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(WithSeed(3))

	players := []struct {
		id    string
		score float64
	}{
		{"p1", 8.5},
		{"p2", 9.5},
		{"p3", 7.5},
		{"p4", 10},
		{"p5", 8},
	}
	for _, p := range players {
		if err := store.Set(ctx, p.id, "", p.score); err != nil {
			t.Fatalf("unexpected error updating %s: %v", p.id, err)
		}
	}

	entries, err := store.TopN(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := []string{"p4", "p2", "p1", "p5", "p3"}
	if len(entries) != len(expected) {
		t.Fatalf("expected %d entries, got %d", len(expected), len(entries))
	}
	for i, id := range expected {
		if entries[i].PlayerID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, entries[i].PlayerID)
		}
		if entries[i].Rank != i+1 {
			t.Errorf("position %d: expected rank %d, got %d", i, i+1, entries[i].Rank)
		}
	}

	top, _ := store.TopN(ctx, 2)
	if len(top) != 2 || top[1].PlayerID != "p2" {
		t.Errorf("unexpected top 2: %+v", top)
	}
}

func TestTreapStore_Ties(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(WithSeed(4))

	_ = store.Set(ctx, "b", "", 5)
	_ = store.Set(ctx, "a", "", 5)
	_ = store.Set(ctx, "c", "", 1)

	entries, err := store.TopN(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entries[0].PlayerID != "a" || entries[1].PlayerID != "b" {
		t.Errorf("expected tie broken by player ID, got %s then %s", entries[0].PlayerID, entries[1].PlayerID)
	}
	if entries[0].Rank != 1 || entries[1].Rank != 1 || entries[2].Rank != 3 {
		t.Errorf("unexpected ranks: %d %d %d", entries[0].Rank, entries[1].Rank, entries[2].Rank)
	}

	entry, _ := store.Rank(ctx, "b")
	if entry.Rank != 1 {
		t.Errorf("expected shared rank 1, got %d", entry.Rank)
	}
	pos, _ := store.Position(ctx, "b")
	if pos != 1 {
		t.Errorf("expected position 1, got %d", pos)
	}
}

func TestTreapStore_Remove(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(WithSeed(5))

	_ = store.Set(ctx, "p1", "", 1)
	_ = store.Set(ctx, "p2", "", 2)

	if !store.Remove(ctx, "p2") {
		t.Fatal("expected removal to succeed")
	}
	if store.Remove(ctx, "p2") {
		t.Error("expected second removal to fail")
	}
	if _, err := store.Rank(ctx, "p2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	entry, _ := store.Rank(ctx, "p1")
	if entry.Rank != 1 {
		t.Errorf("expected p1 to move up, got rank %d", entry.Rank)
	}
}

func TestTreapStore_Errors(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore()

	if _, err := store.TopN(ctx, 0); !errors.Is(err, ErrInvalidLimit) {
		t.Errorf("expected ErrInvalidLimit, got %v", err)
	}
	if err := store.Set(ctx, "p1", "", math.NaN()); !errors.Is(err, ErrInvalidScore) {
		t.Errorf("expected ErrInvalidScore, got %v", err)
	}
	if err := store.Set(ctx, "p1", "", math.Inf(1)); !errors.Is(err, ErrInvalidScore) {
		t.Errorf("expected ErrInvalidScore, got %v", err)
	}
	if _, err := store.Position(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTreapStore_FixedPointTies(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(WithSeed(6))

	_ = store.Set(ctx, "a", "", 0.1+0.2)
	_ = store.Set(ctx, "b", "", 0.3)

	a, _ := store.Rank(ctx, "a")
	b, _ := store.Rank(ctx, "b")
	if a.Rank != b.Rank {
		t.Errorf("expected float noise to tie, got ranks %d and %d", a.Rank, b.Rank)
	}
}

func TestTreapStore_Concurrent(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("p%02d", i)
			for s := range 10 {
				_ = store.Set(ctx, id, "", float64(i*10+s))
			}
			_, _ = store.TopN(ctx, 5)
		}(i)
	}
	wg.Wait()

	if store.Count(ctx) != 50 {
		t.Fatalf("expected 50 players, got %d", store.Count(ctx))
	}
	entries, _ := store.TopN(ctx, 50)
	for i := 1; i < len(entries); i++ {
		if entries[i-1].Score < entries[i].Score {
			t.Fatalf("entries out of order at %d", i)
		}
	}
	if entries[0].PlayerID != "p49" || entries[0].Score != 499 {
		t.Errorf("unexpected leader: %+v", entries[0])
	}
}

func BenchmarkTreapStore_Set(b *testing.B) {
	ctx := context.Background()
	store := NewTreapStore(WithSeed(7))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = store.Set(ctx, fmt.Sprintf("p%d", i%1000), "", float64(i%97))
	}
}

func BenchmarkTreapStore_TopN(b *testing.B) {
	ctx := context.Background()
	store := NewTreapStore(WithSeed(8))
	for i := range 1000 {
		_ = store.Set(ctx, fmt.Sprintf("p%d", i), "", float64(i))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = store.TopN(ctx, 10)
	}
}

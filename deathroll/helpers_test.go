package deathroll

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

// scriptedRNG returns queued values and records every requested range.
type scriptedRNG struct {
	t      *testing.T
	mu     sync.Mutex
	values []int
	ranges [][2]int
}

func newScriptedRNG(t *testing.T, values ...int) *scriptedRNG {
	t.Helper()
	return &scriptedRNG{t: t, values: values}
}

func (r *scriptedRNG) IntRange(lo, hi int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.values) == 0 {
		r.t.Fatalf("rng exhausted on range [%d,%d]", lo, hi)
	}
	v := r.values[0]
	r.values = r.values[1:]
	if v < lo || v > hi {
		r.t.Fatalf("scripted value %d outside [%d,%d]", v, lo, hi)
	}
	r.ranges = append(r.ranges, [2]int{lo, hi})
	return v
}

func newTestMatch(t *testing.T, ceiling int, values ...int) (*Match, *scriptedRNG) {
	t.Helper()
	rng := newScriptedRNG(t, values...)
	m, err := NewMatch(MatchParams{
		ID:      "m1",
		GuildID: "g1",
		Player1: "alice",
		Player2: "bob",
		Ceiling: ceiling,
		RNG:     rng,
	})
	if err != nil {
		t.Fatalf("new match: %v", err)
	}
	return m, rng
}

// step is one scripted gateway response.
type step struct {
	user string
	err  error
}

// scriptedGateway answers offers from a fixed script.
type scriptedGateway struct {
	t      *testing.T
	mu     sync.Mutex
	steps  []step
	offers []Offer
}

func (g *scriptedGateway) OfferChoice(ctx context.Context, offer Offer) (Selection, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.offers = append(g.offers, offer)
	if len(g.steps) == 0 {
		return Selection{}, ErrTimedOut
	}
	s := g.steps[0]
	g.steps = g.steps[1:]
	if s.err != nil {
		return Selection{}, s.err
	}
	return Selection{UserID: s.user, Option: offer.Options[0]}, nil
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Publish(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

// flakyStore fails SettleMatch a fixed number of times.
type flakyStore struct {
	*MemoryStore
	mu       sync.Mutex
	failures int
	calls    int
}

func (s *flakyStore) SettleMatch(ctx context.Context, result MatchResult) error {
	s.mu.Lock()
	s.calls++
	if s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return fmt.Errorf("database unavailable")
	}
	s.mu.Unlock()
	return s.MemoryStore.SettleMatch(ctx, result)
}

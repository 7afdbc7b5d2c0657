package deathroll

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

func newTestRegistry() *Registry {
	n := 0
	return NewRegistry(RegistryOptions{
		RNG: NewSeededRNG(1),
		NewID: func() string {
			n++
			return fmt.Sprintf("match-%d", n)
		},
	})
}

func TestRegistryRejectsDuplicatePairs(t *testing.T) {
	reg := newTestRegistry()

	first, err := reg.Start("g1", "c1", "alice", "bob", 100)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	first.TossCoin("alice")
	before := first.Snapshot()

	for _, pair := range [][2]string{{"alice", "bob"}, {"bob", "alice"}} {
		if _, err := reg.Start("g1", "c2", pair[0], pair[1], 0); !errors.Is(err, ErrDuplicateMatch) {
			t.Fatalf("start %v: err = %v, want duplicate", pair, err)
		}
	}
	after := first.Snapshot()
	if after.Phase != before.Phase || *after.CoinToss1 != *before.CoinToss1 || reg.Len() != 1 {
		t.Fatal("duplicate start touched the existing match")
	}

	if _, err := reg.Start("g2", "c1", "alice", "bob", 0); err != nil {
		t.Fatalf("same pair in another guild: %v", err)
	}
	if _, err := reg.Start("g1", "c1", "alice", "carol", 0); err != nil {
		t.Fatalf("different pair: %v", err)
	}
}

func TestRegistryFindAndEnd(t *testing.T) {
	reg := newTestRegistry()
	m, err := reg.Start("g1", "", "alice", "bob", 0)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	got, err := reg.Find("g1", m.ID())
	if err != nil || got != m {
		t.Fatalf("find = %v, %v", got, err)
	}
	if _, err := reg.Find("g2", m.ID()); !errors.Is(err, ErrMatchNotFound) {
		t.Fatalf("find in wrong guild: err = %v", err)
	}

	reg.End("g1", m.ID())
	reg.End("g1", m.ID())
	reg.End("nope", "nope")
	if _, err := reg.Find("g1", m.ID()); !errors.Is(err, ErrMatchNotFound) {
		t.Fatalf("find after end: err = %v", err)
	}
	if _, err := reg.Start("g1", "", "bob", "alice", 0); err != nil {
		t.Fatalf("restart after end: %v", err)
	}
}

func TestRegistryStartValidation(t *testing.T) {
	reg := newTestRegistry()
	if _, err := reg.Start("g", "", "alice", "alice", 0); !errors.Is(err, ErrSelfChallenge) {
		t.Fatalf("self challenge: err = %v", err)
	}
	if _, err := reg.Start("g", "", "alice", "bob", -5); !errors.Is(err, ErrInvalidCeiling) {
		t.Fatalf("negative ceiling: err = %v", err)
	}
	if reg.Len() != 0 {
		t.Fatalf("rejected starts registered %d matches", reg.Len())
	}
}

func TestRegistryActiveOrdering(t *testing.T) {
	reg := newTestRegistry()
	a, _ := reg.Start("g", "", "u1", "u2", 0)
	b, _ := reg.Start("g", "", "u3", "u4", 0)
	active := reg.Active("g")
	if len(active) != 2 {
		t.Fatalf("active = %d", len(active))
	}
	ids := map[string]bool{active[0].ID(): true, active[1].ID(): true}
	if !ids[a.ID()] || !ids[b.ID()] {
		t.Fatalf("active ids = %v", ids)
	}
	if len(reg.All()) != 2 {
		t.Fatalf("all = %d", len(reg.All()))
	}
}

func TestRegistryConcurrentStartsForOnePair(t *testing.T) {
	reg := newTestRegistry()

	const callers = 64
	var (
		wg      sync.WaitGroup
		started atomic.Int32
		dupes   atomic.Int32
		ready   = make(chan struct{})
	)
	for i := 0; i < callers; i++ {
		a, b := "alice", "bob"
		if i%2 == 1 {
			a, b = b, a
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ready
			_, err := reg.Start("g1", "c1", a, b, 0)
			switch {
			case err == nil:
				started.Add(1)
			case errors.Is(err, ErrDuplicateMatch):
				dupes.Add(1)
			default:
				t.Errorf("start: %v", err)
			}
		}()
	}
	// Unrelated pairs race alongside and must all succeed.
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ready
			if _, err := reg.Start("g1", "c1", fmt.Sprintf("p%d", i), fmt.Sprintf("q%d", i), 0); err != nil {
				t.Errorf("start p%d: %v", i, err)
			}
		}()
	}
	close(ready)
	wg.Wait()

	if started.Load() != 1 || dupes.Load() != callers-1 {
		t.Fatalf("started = %d, duplicates = %d", started.Load(), dupes.Load())
	}
	if got := reg.Len(); got != 9 {
		t.Fatalf("Len = %d, want 9", got)
	}
}

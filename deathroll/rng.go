package deathroll

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand"
	"sync"
	"time"
)

// RNG produces uniform random integers in the closed range [lo, hi].
type RNG interface {
	IntRange(lo, hi int) int
}

// lockedRand is a math/rand source guarded for use across match goroutines.
type lockedRand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRNG returns an RNG seeded from crypto/rand, falling back to the clock.
func NewRNG() RNG {
	var b [8]byte
	seed := time.Now().UnixNano()
	if _, err := crand.Read(b[:]); err == nil {
		seed = int64(binary.LittleEndian.Uint64(b[:]))
	}
	return NewSeededRNG(seed)
}

// NewSeededRNG returns a deterministic RNG for the given seed.
func NewSeededRNG(seed int64) RNG {
	return &lockedRand{rng: rand.New(rand.NewSource(seed))}
}

func (r *lockedRand) IntRange(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo + r.rng.Intn(hi-lo+1)
}

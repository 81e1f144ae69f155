// Package randutil centralises how the server derives its random sources so
// that shuffles, first-player picks and room codes are reproducible in tests.
package randutil

import (
	"sync"
	"time"

	rand "math/rand/v2"
)

const (
	goldenRatio64 = 0x9e3779b97f4a7c15
)

// New returns a *rand.Rand seeded deterministically from the provided int64.
func New(seed int64) *rand.Rand {
	u := uint64(seed)
	return rand.New(rand.NewPCG(mix(u), mix(u+goldenRatio64)))
}

// NewTimeSeeded returns a source seeded from the wall clock along with the
// seed used, so the caller can log it for replay.
func NewTimeSeeded() (*rand.Rand, int64) {
	seed := time.Now().UnixNano()
	return New(seed), seed
}

// Locked wraps a *rand.Rand for use from several goroutines.
type Locked struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewLocked wraps rng.
func NewLocked(rng *rand.Rand) *Locked {
	return &Locked{rng: rng}
}

// IntN returns a value in [0, n).
func (l *Locked) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rng.IntN(n)
}

// Fork derives an independent child source. Rooms get their own source so a
// room's shuffles never contend on the process-wide lock.
func (l *Locked) Fork() *rand.Rand {
	l.mu.Lock()
	defer l.mu.Unlock()
	return New(l.rng.Int64())
}

func mix(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}

package services

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
	"sync"
)

// Random is the pseudo-random source used for spawn placement and codes.
type Random interface {
	Float64() float64
	Intn(n int) int
}

// LockedRand is a math/rand source safe for concurrent use; timer-driven and
// manual spawn runs may draw from it at the same time.
type LockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewRandom seeds a LockedRand from crypto/rand.
func NewRandom() (*LockedRand, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return nil, fmt.Errorf("read random seed: %w", err)
	}
	return NewSeededRandom(int64(binary.LittleEndian.Uint64(b[:]))), nil
}

func NewSeededRandom(seed int64) *LockedRand {
	return &LockedRand{r: rand.New(rand.NewSource(seed))}
}

func (l *LockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

func (l *LockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}

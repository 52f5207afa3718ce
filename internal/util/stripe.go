package util

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const stripeCount = 64

// Stripes is a fixed set of mutexes selected by key hash. Distinct keys may
// share a stripe; the same key always maps to the same one.
type Stripes struct {
	mu [stripeCount]sync.Mutex
}

// Lock acquires the stripe for key and returns its unlock func.
func (s *Stripes) Lock(key string) (unlock func()) {
	m := &s.mu[xxhash.Sum64String(key)%stripeCount]
	m.Lock()
	return m.Unlock
}

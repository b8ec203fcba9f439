package core

import (
	"math"
	"sync/atomic"
)

// AtomicFloat64 is a float64 that can be loaded and stored atomically.
// The zero value holds 0.
type AtomicFloat64 struct {
	bits atomic.Uint64
}

// Load returns the current value.
func (a *AtomicFloat64) Load() float64 {
	return math.Float64frombits(a.bits.Load())
}

// Store sets the value.
func (a *AtomicFloat64) Store(v float64) {
	a.bits.Store(math.Float64bits(v))
}

// Package idgenerator hands out connection generations: process-unique,
// monotonically increasing stamps that tell one occupancy of a session slot
// apart from the next.
package idgenerator

import "sync/atomic"

// IdGenerator produces uint64 ids in a concurrency-safe manner. Zero is never
// returned so callers can use it to mean "no connection".
type IdGenerator struct {
	last atomic.Uint64
}

// NewIdGenerator creates an IdGenerator whose first Id() returns startValue+1,
// or 1 when startValue+1 would be zero.
//
// Parameters:
//   - startValue: The value to initialize the counter to
//
// Returns:
//   - A new IdGenerator instance
func NewIdGenerator(startValue uint64) *IdGenerator {
	gen := &IdGenerator{}
	gen.last.Store(startValue)
	return gen
}

// Id returns the next id. It is safe for concurrent use.
func (g *IdGenerator) Id() uint64 {
	for {
		if id := g.last.Add(1); id != 0 {
			return id
		}
	}
}

// Last returns the most recently issued id, or the start value if none has
// been issued yet.
func (g *IdGenerator) Last() uint64 {
	return g.last.Load()
}

package sim

import (
	"math"
	"sync/atomic"
)

// Clock is the monotonic tick counter. It counts completed ticks, starts at
// zero and is never reset.
type Clock struct {
	tick atomic.Uint64
}

// Current returns the number of completed ticks.
func (c *Clock) Current() uint64 {
	return c.tick.Load()
}

// Advance marks one more tick as completed and returns the new count.
func (c *Clock) Advance() uint64 {
	return c.tick.Add(1)
}

// Headroom returns how many more ticks the counter can hold before it would
// wrap. Run lengths are validated against it at initialization.
func (c *Clock) Headroom() uint64 {
	return math.MaxUint64 - c.tick.Load()
}

package engine

import (
	"math"
	"sync/atomic"
)

// DefaultDT is the simulated step length used when none is configured.
const DefaultDT = 0.01

// Clock is the simulated clock: a tick counter plus simulated time.
//
// Time only moves when the engine ticks, never with the wall clock, so a
// run replays identically. Values are stored atomically for cheap reads
// from observer goroutines; the engine is still the only writer.
type Clock struct {
	ticks atomic.Int64
	time  atomic.Uint64 // float64 bits
	dt    atomic.Uint64 // float64 bits
}

// NewClock creates a clock at time 0 with the given step.
func NewClock(dt float64) *Clock {
	c := &Clock{}
	c.dt.Store(math.Float64bits(dt))
	return c
}

// NewClockAt creates a clock resumed at a tick and time.
func NewClockAt(ticks int64, time, dt float64) *Clock {
	c := NewClock(dt)
	c.ticks.Store(ticks)
	c.time.Store(math.Float64bits(time))
	return c
}

// Advance moves time forward by one step and returns the new tick count
// and time.
func (c *Clock) Advance() (int64, float64) {
	t := c.Time() + c.DT()
	c.time.Store(math.Float64bits(t))
	return c.ticks.Add(1), t
}

// Ticks returns the number of completed ticks.
func (c *Clock) Ticks() int64 { return c.ticks.Load() }

// Time returns the current simulated time.
func (c *Clock) Time() float64 { return math.Float64frombits(c.time.Load()) }

// DT returns the step length.
func (c *Clock) DT() float64 { return math.Float64frombits(c.dt.Load()) }

// SetDT changes the step length. The caller validates dt.
func (c *Clock) SetDT(dt float64) { c.dt.Store(math.Float64bits(dt)) }

// Reset returns the clock to tick 0, time 0. The step length is kept.
func (c *Clock) Reset() {
	c.ticks.Store(0)
	c.time.Store(0)
}

// validDT reports whether dt can drive a simulation.
func validDT(dt float64) bool {
	return dt > 0 && !math.IsInf(dt, 0) && !math.IsNaN(dt)
}

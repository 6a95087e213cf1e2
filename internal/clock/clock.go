// Package clock supplies the time sources used by the supervisor: a
// monotonic reading for all interval arithmetic and wall time for the
// timestamps sent to the printer.
package clock

import (
	"sync"
	"time"
)

// Clock is a time source.
type Clock interface {
	// Monotonic returns the time elapsed since the clock was created. It
	// never goes backwards.
	Monotonic() time.Duration
	// Now returns the current wall time.
	Now() time.Time
}

// System reads the host clock.
type System struct {
	start time.Time
}

// NewSystem returns a clock whose monotonic origin is now.
func NewSystem() *System {
	return &System{start: time.Now()}
}

// Monotonic uses the monotonic reading carried by time.Time.
func (c *System) Monotonic() time.Duration { return time.Since(c.start) }

// Now returns time.Now.
func (c *System) Now() time.Time { return time.Now() }

// Manual is a Clock advanced explicitly. It is meant for tests and replay.
type Manual struct {
	mu   sync.Mutex
	mono time.Duration
	wall time.Time
}

// NewManual returns a Manual clock at monotonic zero and the given wall time.
func NewManual(wall time.Time) *Manual {
	return &Manual{wall: wall}
}

// Advance moves both readings forward by d.
func (c *Manual) Advance(d time.Duration) {
	c.mu.Lock()
	c.mono += d
	c.wall = c.wall.Add(d)
	c.mu.Unlock()
}

// Monotonic returns the accumulated advance.
func (c *Manual) Monotonic() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mono
}

// Now returns the wall reading.
func (c *Manual) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wall
}

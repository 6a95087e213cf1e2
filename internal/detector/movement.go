// Package detector turns raw filament sensor levels into stall and runout
// signals.
package detector

import "time"

// FirstLayerZ is the Z height below which the nozzle is assumed to be on the
// first layer when layer data is stale.
const FirstLayerZ = 0.2

// IsFirstLayer reports whether the print is in its first layer phase.
func IsFirstLayer(currentLayer int, currentZ float64) bool {
	return currentLayer <= 1 || currentZ < FirstLayerZ
}

// Movement detects a stalled filament feed from a motion sensor whose level
// toggles while filament moves. It must be updated at an interval shorter
// than either timeout.
type Movement struct {
	timeout           time.Duration
	firstLayerTimeout time.Duration

	seen       bool
	lastLevel  bool
	lastChange time.Duration
	stopped    bool
}

// Event describes what an Update observed.
type Event int

const (
	EventNone Event = iota
	// EventMoving is reported when a transition clears a latched stall.
	EventMoving
	// EventStopped is reported once when the stall latches.
	EventStopped
)

// NewMovement returns a detector with the given steady state and first
// layer timeouts.
func NewMovement(timeout, firstLayerTimeout time.Duration) *Movement {
	return &Movement{timeout: timeout, firstLayerTimeout: firstLayerTimeout}
}

// SetTimeouts replaces both timeouts. Settings may change at runtime.
func (m *Movement) SetTimeouts(timeout, firstLayerTimeout time.Duration) {
	m.timeout = timeout
	m.firstLayerTimeout = firstLayerTimeout
}

// Threshold returns the idle timeout that applies for the given position.
func (m *Movement) Threshold(currentLayer int, currentZ float64) time.Duration {
	if IsFirstLayer(currentLayer, currentZ) {
		return m.firstLayerTimeout
	}
	return m.timeout
}

// Update feeds one sensor sample taken at now (monotonic).
func (m *Movement) Update(level bool, currentLayer int, currentZ float64, now time.Duration) Event {
	if !m.seen || level != m.lastLevel {
		wasStopped := m.stopped
		m.seen = true
		m.lastLevel = level
		m.lastChange = now
		m.stopped = false
		if wasStopped {
			return EventMoving
		}
		return EventNone
	}

	if !m.stopped && now-m.lastChange >= m.Threshold(currentLayer, currentZ) {
		m.stopped = true
		return EventStopped
	}
	return EventNone
}

// Stopped reports whether a stall is latched.
func (m *Movement) Stopped() bool { return m.stopped }

// IdleFor returns how long the level has been unchanged at now.
func (m *Movement) IdleFor(now time.Duration) time.Duration {
	if !m.seen {
		return 0
	}
	return now - m.lastChange
}

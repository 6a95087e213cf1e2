package supervisor

import "time"

// minRemainingTicks is the job remainder below which a print is left to
// finish rather than paused.
const minRemainingTicks = 100

type pauseInputs struct {
	Enabled        bool
	PauseOnRunout  bool
	Runout         bool
	Stopped        bool
	SinceStart     time.Duration
	Grace          time.Duration
	Connected      bool
	AckPending     bool
	Printing       bool
	RemainingTicks int
}

// shouldPause is the pause predicate. A stall always qualifies as a trigger;
// a runout only when pause on runout is enabled, otherwise the printer is
// left to handle it.
func shouldPause(in pauseInputs) bool {
	if !in.Enabled {
		return false
	}
	triggered := in.Stopped || (in.Runout && in.PauseOnRunout)
	return triggered &&
		in.SinceStart >= in.Grace &&
		in.Connected &&
		!in.AckPending &&
		in.Printing &&
		in.RemainingTicks >= minRemainingTicks
}

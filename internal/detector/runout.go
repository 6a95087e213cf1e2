package detector

// Runout tracks a filament presence switch. The switch output is low when no
// filament is detected.
type Runout struct {
	runout bool
}

// Update records a sample and reports whether the runout state changed.
func (r *Runout) Update(level bool) (changed bool) {
	next := !level
	changed = next != r.runout
	r.runout = next
	return changed
}

// Runout reports whether filament is currently absent.
func (r *Runout) Runout() bool { return r.runout }

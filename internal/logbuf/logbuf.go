// Package logbuf keeps the most recent log entries in memory so they can be
// served over the status API.
package logbuf

import (
	"sync"

	"go.uber.org/zap/zapcore"

	"github.com/Natclanwy/cc-sfs/internal/models"
)

// Ring is a fixed-capacity store of log entries shared by all cores derived
// from it.
type Ring struct {
	mu      sync.Mutex
	entries []models.LogEntry
	next    int
	full    bool
}

// NewRing returns a ring holding up to capacity entries.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{entries: make([]models.LogEntry, capacity)}
}

func (r *Ring) add(e models.LogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[r.next] = e
	r.next = (r.next + 1) % len(r.entries)
	if r.next == 0 {
		r.full = true
	}
}

// Entries returns the retained entries oldest first.
func (r *Ring) Entries() []models.LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		return append([]models.LogEntry(nil), r.entries[:r.next]...)
	}
	out := make([]models.LogEntry, 0, len(r.entries))
	out = append(out, r.entries[r.next:]...)
	return append(out, r.entries[:r.next]...)
}

// Core is a zapcore.Core that records into a Ring. Context fields are not
// retained; the message, level and logger name are.
type Core struct {
	zapcore.LevelEnabler
	ring *Ring
}

// NewCore returns a core writing entries at or above enab into ring.
func NewCore(ring *Ring, enab zapcore.LevelEnabler) *Core {
	return &Core{LevelEnabler: enab, ring: ring}
}

// With returns the core unchanged; fields are not retained.
func (c *Core) With([]zapcore.Field) zapcore.Core {
	return c
}

// Check adds the core when the entry level is enabled.
func (c *Core) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

// Write records the entry.
func (c *Core) Write(ent zapcore.Entry, _ []zapcore.Field) error {
	c.ring.add(models.LogEntry{
		Timestamp: ent.Time.UTC(),
		Level:     ent.Level.String(),
		Logger:    ent.LoggerName,
		Message:   ent.Message,
	})
	return nil
}

// Sync is a no-op.
func (c *Core) Sync() error { return nil }

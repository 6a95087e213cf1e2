// Package tickstats aggregates the time between printer tick changes so the
// movement timeouts can be tuned against real print behaviour.
//
// Samples land in four overlapping buckets. Every sample counts toward
// Overall; samples taken inside the start window also count toward Start;
// each sample counts toward exactly one of FirstLayer or LaterLayers.
package tickstats

import "time"

// Bucket is a running aggregate of tick intervals.
type Bucket struct {
	count int
	sum   time.Duration
	min   time.Duration
	max   time.Duration
}

func (b *Bucket) add(d time.Duration) {
	if b.count == 0 || d < b.min {
		b.min = d
	}
	if d > b.max {
		b.max = d
	}
	b.sum += d
	b.count++
}

// Summary is a read-only view of a Bucket.
type Summary struct {
	Count   int
	Average time.Duration
	Min     time.Duration
	Max     time.Duration
}

// HasSamples reports whether Min and Max carry observed values.
func (s Summary) HasSamples() bool { return s.Count > 0 }

func (b Bucket) summary() Summary {
	if b.count == 0 {
		return Summary{}
	}
	return Summary{
		Count:   b.count,
		Average: b.sum / time.Duration(b.count),
		Min:     b.min,
		Max:     b.max,
	}
}

// Snapshot holds the summaries of all four buckets.
type Snapshot struct {
	Overall     Summary
	Start       Summary
	FirstLayer  Summary
	LaterLayers Summary
}

// Engine owns the four buckets. It is not safe for concurrent use; the
// supervisor serializes access.
type Engine struct {
	overall     Bucket
	start       Bucket
	firstLayer  Bucket
	laterLayers Bucket
}

// New returns an empty Engine.
func New() *Engine {
	return &Engine{}
}

// Record adds one tick interval. sinceStart is the time elapsed since the
// print entered the printing state and startWindow the length of the start
// phase.
func (e *Engine) Record(delta time.Duration, currentLayer int, sinceStart, startWindow time.Duration) {
	buckets := []*Bucket{&e.overall}
	if sinceStart < startWindow {
		buckets = append(buckets, &e.start)
	}
	if currentLayer <= 1 {
		buckets = append(buckets, &e.firstLayer)
	} else {
		buckets = append(buckets, &e.laterLayers)
	}
	for _, b := range buckets {
		b.add(delta)
	}
}

// Reset clears every bucket.
func (e *Engine) Reset() {
	*e = Engine{}
}

// Snapshot summarizes all buckets without modifying them.
func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		Overall:     e.overall.summary(),
		Start:       e.start.summary(),
		FirstLayer:  e.firstLayer.summary(),
		LaterLayers: e.laterLayers.summary(),
	}
}

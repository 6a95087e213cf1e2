package tickstats

import (
	"testing"
	"time"
)

const window = 10 * time.Second

func TestRecordBucketMembership(t *testing.T) {
	tests := []struct {
		name       string
		layer      int
		sinceStart time.Duration
		wantStart  int
		wantFirst  int
		wantLater  int
	}{
		{"start window on first layer", 1, 2 * time.Second, 1, 1, 0},
		{"layer zero counts as first", 0, 20 * time.Second, 0, 1, 0},
		{"later layer inside window", 3, 5 * time.Second, 1, 0, 1},
		{"later layer after window", 3, 30 * time.Second, 0, 0, 1},
		{"window boundary is exclusive", 2, window, 0, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New()
			e.Record(500*time.Millisecond, tt.layer, tt.sinceStart, window)
			s := e.Snapshot()
			if s.Overall.Count != 1 {
				t.Errorf("Overall.Count = %d, want 1", s.Overall.Count)
			}
			if s.Start.Count != tt.wantStart {
				t.Errorf("Start.Count = %d, want %d", s.Start.Count, tt.wantStart)
			}
			if s.FirstLayer.Count != tt.wantFirst {
				t.Errorf("FirstLayer.Count = %d, want %d", s.FirstLayer.Count, tt.wantFirst)
			}
			if s.LaterLayers.Count != tt.wantLater {
				t.Errorf("LaterLayers.Count = %d, want %d", s.LaterLayers.Count, tt.wantLater)
			}
		})
	}
}

func TestAggregates(t *testing.T) {
	e := New()
	for _, ms := range []int{300, 100, 200} {
		e.Record(time.Duration(ms)*time.Millisecond, 5, time.Minute, window)
	}
	s := e.Snapshot().Overall
	if s.Count != 3 || s.Min != 100*time.Millisecond || s.Max != 300*time.Millisecond || s.Average != 200*time.Millisecond {
		t.Errorf("unexpected summary: %+v", s)
	}
}

func TestZeroDeltaIsARealMinimum(t *testing.T) {
	e := New()
	e.Record(0, 5, time.Minute, window)
	e.Record(400*time.Millisecond, 5, time.Minute, window)
	s := e.Snapshot().Overall
	if !s.HasSamples() || s.Min != 0 || s.Max != 400*time.Millisecond {
		t.Errorf("unexpected summary: %+v", s)
	}
}

func TestResetThenSingleSample(t *testing.T) {
	e := New()
	e.Record(time.Second, 1, 0, window)
	e.Record(3*time.Second, 4, 0, window)
	e.Reset()

	s := e.Snapshot()
	for name, b := range map[string]Summary{"overall": s.Overall, "start": s.Start, "first": s.FirstLayer, "later": s.LaterLayers} {
		if b != (Summary{}) {
			t.Errorf("%s not cleared: %+v", name, b)
		}
	}

	e.Record(750*time.Millisecond, 4, time.Minute, window)
	o := e.Snapshot().Overall
	if o.Min != 750*time.Millisecond || o.Max != o.Min || o.Average != o.Min || o.Count != 1 {
		t.Errorf("unexpected summary after reset: %+v", o)
	}
}

func TestSnapshotIsPure(t *testing.T) {
	e := New()
	e.Record(time.Second, 1, 0, window)
	a := e.Snapshot()
	b := e.Snapshot()
	if a != b {
		t.Errorf("snapshots differ: %+v vs %+v", a, b)
	}
}

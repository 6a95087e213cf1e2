package detector

import (
	"testing"
	"time"
)

func TestIsFirstLayer(t *testing.T) {
	tests := []struct {
		layer int
		z     float64
		want  bool
	}{
		{1, 0.5, true},  // layer rule dominates
		{3, 0.1, true},  // Z fallback
		{3, 5.0, false}, // later layers
		{0, 10, true},
		{2, 0.2, false},
	}
	for _, tt := range tests {
		if got := IsFirstLayer(tt.layer, tt.z); got != tt.want {
			t.Errorf("IsFirstLayer(%d, %v) = %v, want %v", tt.layer, tt.z, got, tt.want)
		}
	}
}

func TestMovementLatchesStall(t *testing.T) {
	m := NewMovement(2*time.Second, 4*time.Second)
	ms := time.Millisecond

	if ev := m.Update(true, 5, 3.0, 0); ev != EventNone {
		t.Fatalf("first sample event = %v", ev)
	}
	if ev := m.Update(true, 5, 3.0, 1999*ms); ev != EventNone || m.Stopped() {
		t.Fatalf("stalled before timeout")
	}
	if ev := m.Update(true, 5, 3.0, 2000*ms); ev != EventStopped || !m.Stopped() {
		t.Fatalf("expected stall at timeout, got %v", ev)
	}
	if ev := m.Update(true, 5, 3.0, 5000*ms); ev != EventNone || !m.Stopped() {
		t.Fatalf("stall should stay latched without re-triggering, got %v", ev)
	}
	if ev := m.Update(false, 5, 3.0, 5100*ms); ev != EventMoving || m.Stopped() {
		t.Fatalf("transition should clear stall, got %v", ev)
	}
}

func TestMovementUsesFirstLayerTimeout(t *testing.T) {
	m := NewMovement(2*time.Second, 4*time.Second)
	m.Update(false, 1, 0.1, 0)
	m.Update(false, 1, 0.1, 3*time.Second)
	if m.Stopped() {
		t.Fatal("first layer should use the longer timeout")
	}
	m.Update(false, 1, 0.1, 4*time.Second)
	if !m.Stopped() {
		t.Fatal("expected stall after first layer timeout")
	}
}

func TestMovementSetTimeouts(t *testing.T) {
	m := NewMovement(2*time.Second, 4*time.Second)
	m.SetTimeouts(500*time.Millisecond, time.Second)
	if got := m.Threshold(5, 3); got != 500*time.Millisecond {
		t.Errorf("Threshold = %v", got)
	}
	if got := m.Threshold(1, 3); got != time.Second {
		t.Errorf("Threshold = %v", got)
	}
}

func TestRunout(t *testing.T) {
	var r Runout
	if r.Update(true) || r.Runout() {
		t.Fatal("high level means filament present")
	}
	if !r.Update(false) || !r.Runout() {
		t.Fatal("low level should report runout edge")
	}
	if r.Update(false) {
		t.Fatal("no edge when level unchanged")
	}
	if !r.Update(true) || r.Runout() {
		t.Fatal("filament reinserted should report edge")
	}
}

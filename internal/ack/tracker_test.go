package ack

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Natclanwy/cc-sfs/internal/clock"
	"github.com/Natclanwy/cc-sfs/internal/sdcp"
)

type fakeSender struct {
	connected bool
	sent      []string
	err       error
}

func (f *fakeSender) IsConnected() bool { return f.connected }

func (f *fakeSender) SendText(text string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, text)
	return nil
}

func newTracker() (*Tracker, *fakeSender, *clock.Manual) {
	snd := &fakeSender{connected: true}
	clk := clock.NewManual(time.Unix(1700000000, 0))
	tr := New(snd, clk, zap.NewNop())
	n := 0
	tr.newID = func() string {
		n++
		return fmt.Sprintf("id%d", n)
	}
	return tr, snd, clk
}

func TestSendBuildsEnvelope(t *testing.T) {
	tr, snd, _ := newTracker()
	tr.SetMainboardID("MB1")

	id, err := tr.Send(sdcp.CmdStatus, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(snd.sent) != 1 {
		t.Fatalf("sent %d frames, want 1", len(snd.sent))
	}
	var req sdcp.Request
	if err := json.Unmarshal([]byte(snd.sent[0]), &req); err != nil {
		t.Fatal(err)
	}
	if req.ID != id || req.Data.RequestID != id || req.Data.MainboardID != "MB1" || req.Data.TimeStamp != 1700000000 || req.Data.From != 2 {
		t.Errorf("unexpected envelope: %+v", req)
	}
	if tr.Waiting() {
		t.Error("status request must not open a ticket")
	}
}

func TestSendWhileDisconnected(t *testing.T) {
	tr, snd, _ := newTracker()
	snd.connected = false
	if _, err := tr.Send(sdcp.CmdPausePrint, true); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
	if tr.Waiting() || len(snd.sent) != 0 {
		t.Error("nothing should be sent or tracked")
	}
}

func TestSecondAckCommandKeepsExistingTicket(t *testing.T) {
	tr, snd, clk := newTracker()
	first, err := tr.Send(sdcp.CmdPausePrint, true)
	if err != nil {
		t.Fatal(err)
	}
	clk.Advance(3 * time.Second)

	if _, err := tr.Send(sdcp.CmdContinuePrint, true); !errors.Is(err, ErrAckPending) {
		t.Fatalf("err = %v, want ErrAckPending", err)
	}
	tk, ok := tr.Pending()
	if !ok || tk.RequestID != first || tk.Command != sdcp.CmdPausePrint || tk.IssuedAt != 0 {
		t.Errorf("ticket changed: %+v", tk)
	}
	if len(snd.sent) != 1 {
		t.Errorf("sent %d frames, want 1", len(snd.sent))
	}

	// Requests without ack still go out while waiting.
	if _, err := tr.Send(sdcp.CmdStatus, false); err != nil {
		t.Fatal(err)
	}
}

func TestOnAckMatching(t *testing.T) {
	tr, _, _ := newTracker()
	id, _ := tr.Send(sdcp.CmdPausePrint, true)

	if tr.OnAck(sdcp.CmdPausePrint, "other") {
		t.Fatal("mismatched request id must not close the ticket")
	}
	if tr.OnAck(sdcp.CmdStopPrint, id) {
		t.Fatal("mismatched command must not close the ticket")
	}
	if !tr.Waiting() {
		t.Fatal("ticket should still be open")
	}
	if !tr.OnAck(sdcp.CmdPausePrint, id) || tr.Waiting() {
		t.Fatal("matching ack should close the ticket")
	}
	if tr.OnAck(sdcp.CmdPausePrint, id) {
		t.Fatal("ack with no ticket should be ignored")
	}
}

func TestTickTimeoutFiresOnce(t *testing.T) {
	tr, _, clk := newTracker()
	tr.Send(sdcp.CmdPausePrint, true)

	clk.Advance(4999 * time.Millisecond)
	if _, expired := tr.Tick(clk.Monotonic()); expired {
		t.Fatal("expired early")
	}
	clk.Advance(time.Millisecond)
	tk, expired := tr.Tick(clk.Monotonic())
	if !expired || tk.Command != sdcp.CmdPausePrint {
		t.Fatal("expected timeout at exactly 5000ms")
	}
	clk.Advance(time.Second)
	if _, expired := tr.Tick(clk.Monotonic()); expired {
		t.Fatal("timeout must fire only once")
	}
	if tr.Waiting() {
		t.Fatal("ticket should be released")
	}
}

func TestOnDisconnectedReleases(t *testing.T) {
	tr, _, _ := newTracker()
	tr.Send(sdcp.CmdPausePrint, true)
	tr.OnDisconnected()
	if tr.Waiting() {
		t.Fatal("disconnect should release the ticket")
	}
	tr.OnDisconnected()
}

func TestSendFailureOpensNoTicket(t *testing.T) {
	tr, snd, _ := newTracker()
	snd.err = errors.New("broken pipe")
	if _, err := tr.Send(sdcp.CmdPausePrint, true); err == nil {
		t.Fatal("expected error")
	}
	if tr.Waiting() {
		t.Fatal("failed send must not open a ticket")
	}
}

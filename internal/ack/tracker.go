// Package ack gates commands that need a printer acknowledgment. At most one
// such command is in flight; it is released by a matching acknowledgment, a
// timeout, or a disconnect. Nothing is retried automatically.
package ack

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Natclanwy/cc-sfs/internal/clock"
	"github.com/Natclanwy/cc-sfs/internal/sdcp"
)

// Timeout is how long a ticket stays open without a matching acknowledgment.
const Timeout = 5000 * time.Millisecond

var (
	// ErrNotConnected is returned when the transport cannot send.
	ErrNotConnected = errors.New("transport not connected")
	// ErrAckPending is returned when an acknowledged command is already in flight.
	ErrAckPending = errors.New("acknowledgment already pending")
)

// Sender is the outbound half of the printer transport.
type Sender interface {
	IsConnected() bool
	SendText(text string) error
}

// Ticket is the command awaiting acknowledgment.
type Ticket struct {
	Command   sdcp.Command
	RequestID string
	IssuedAt  time.Duration
}

// Tracker is the Idle/AwaitingAck state machine. A nil pending ticket is
// Idle. It is not safe for concurrent use.
type Tracker struct {
	sender Sender
	clock  clock.Clock
	logger *zap.Logger

	newID       func() string
	mainboardID string

	pending *Ticket
}

// New creates an idle Tracker.
func New(sender Sender, clk clock.Clock, logger *zap.Logger) *Tracker {
	return &Tracker{
		sender: sender,
		clock:  clk,
		logger: logger.Named("ack"),
		newID:  sdcp.NewRequestID,
	}
}

// SetMainboardID sets the identity placed in outbound envelopes.
func (t *Tracker) SetMainboardID(id string) { t.mainboardID = id }

// Send transmits cmd. When requireAck is set a ticket is opened, unless one
// is already live, in which case ErrAckPending is returned and the live
// ticket is left untouched. The generated request id is returned.
func (t *Tracker) Send(cmd sdcp.Command, requireAck bool) (string, error) {
	if !t.sender.IsConnected() {
		return "", fmt.Errorf("send %s: %w", cmd, ErrNotConnected)
	}
	if requireAck && t.pending != nil {
		return "", fmt.Errorf("send %s while waiting on %s: %w", cmd, t.pending.Command, ErrAckPending)
	}

	id := t.newID()
	text, err := sdcp.NewRequest(cmd, id, t.mainboardID, t.clock.Now()).Encode()
	if err != nil {
		return "", err
	}
	if err := t.sender.SendText(text); err != nil {
		return "", fmt.Errorf("send %s: %w", cmd, err)
	}

	if requireAck {
		t.pending = &Ticket{Command: cmd, RequestID: id, IssuedAt: t.clock.Monotonic()}
		t.logger.Info("Waiting for acknowledgment",
			zap.Stringer("cmd", cmd),
			zap.String("request_id", id))
	}
	return id, nil
}

// OnAck closes the live ticket when both cmd and requestID match it.
func (t *Tracker) OnAck(cmd sdcp.Command, requestID string) bool {
	if t.pending == nil || t.pending.Command != cmd || t.pending.RequestID != requestID {
		t.logger.Debug("Unmatched acknowledgment",
			zap.Stringer("cmd", cmd),
			zap.String("request_id", requestID))
		return false
	}
	t.logger.Info("Received expected acknowledgment",
		zap.Stringer("cmd", cmd),
		zap.Duration("latency", t.clock.Monotonic()-t.pending.IssuedAt))
	t.pending = nil
	return true
}

// Tick force-closes the live ticket once Timeout has elapsed at now. It
// returns the expired ticket, if any.
func (t *Tracker) Tick(now time.Duration) (Ticket, bool) {
	if t.pending == nil || now-t.pending.IssuedAt < Timeout {
		return Ticket{}, false
	}
	expired := *t.pending
	t.pending = nil
	t.logger.Warn("Acknowledgment timeout, releasing",
		zap.Stringer("cmd", expired.Command),
		zap.String("request_id", expired.RequestID))
	return expired, true
}

// OnDisconnected drops any live ticket.
func (t *Tracker) OnDisconnected() {
	if t.pending != nil {
		t.logger.Info("Dropping pending acknowledgment on disconnect",
			zap.Stringer("cmd", t.pending.Command))
	}
	t.pending = nil
}

// Pending returns the live ticket.
func (t *Tracker) Pending() (Ticket, bool) {
	if t.pending == nil {
		return Ticket{}, false
	}
	return *t.pending, true
}

// Waiting reports whether a ticket is live.
func (t *Tracker) Waiting() bool { return t.pending != nil }

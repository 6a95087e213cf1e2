// Package supervisor watches a print over the printer connection and pauses
// it when filament stops moving or runs out.
//
// The supervisor has two entry points: Poll, called at a fixed short
// interval, and the transport callbacks (HandleMessage, OnConnected,
// OnDisconnected). Both are serialized behind one mutex that guards all
// state.
package supervisor

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Natclanwy/cc-sfs/internal/ack"
	"github.com/Natclanwy/cc-sfs/internal/clock"
	"github.com/Natclanwy/cc-sfs/internal/config"
	"github.com/Natclanwy/cc-sfs/internal/detector"
	"github.com/Natclanwy/cc-sfs/internal/sdcp"
	"github.com/Natclanwy/cc-sfs/internal/sensor"
	"github.com/Natclanwy/cc-sfs/internal/tickstats"
)

const (
	keepAliveInterval  = 29900 * time.Millisecond
	statusPollInterval = 2500 * time.Millisecond
)

// SettingsProvider supplies the runtime settings. Values may change between
// polls.
type SettingsProvider interface {
	Settings() config.Settings
}

// Transport is the printer connection.
type Transport interface {
	Connect(address string)
	Disconnect()
	IsConnected() bool
	SendText(text string) error
}

// Sensors are the two digital inputs sampled on every poll.
type Sensors struct {
	Movement sensor.Input
	Runout   sensor.Input
}

// Snapshot is the read-only view exposed to the API and publishers.
type Snapshot struct {
	Printer         Printer
	Printing        bool
	Stats           tickstats.Snapshot
	Connected       bool
	WaitingForAck   bool
	FilamentStopped bool
	FilamentRunout  bool
	Settings        config.Settings
}

// Supervisor owns the printer mirror, the detectors, the tick statistics
// and the acknowledgment gate.
type Supervisor struct {
	mu sync.Mutex

	settings  SettingsProvider
	transport Transport
	clock     clock.Clock
	sensors   Sensors
	logger    *zap.Logger

	tracker  *ack.Tracker
	stats    *tickstats.Engine
	movement *detector.Movement
	runout   detector.Runout

	printer      Printer
	startedAt    time.Duration
	lastTickAt   time.Duration
	haveLastTick bool

	address        string
	lastPing       time.Duration
	lastStatusPoll time.Duration
}

// New creates a Supervisor. Nothing happens until the first Poll.
func New(settings SettingsProvider, transport Transport, clk clock.Clock, sensors Sensors, logger *zap.Logger) *Supervisor {
	s := settings.Settings()
	logger = logger.Named("supervisor")
	return &Supervisor{
		settings:  settings,
		transport: transport,
		clock:     clk,
		sensors:   sensors,
		logger:    logger,
		tracker:   ack.New(transport, clk, logger),
		stats:     tickstats.New(),
		movement:  detector.NewMovement(s.Timeout, s.FirstLayerTimeout),
	}
}

// Poll runs one supervision step: connection upkeep, keep-alive and status
// polling, sensor sampling and the pause decision.
func (s *Supervisor) Poll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Monotonic()
	settings := s.settings.Settings()
	s.movement.SetTimeouts(settings.Timeout, settings.FirstLayerTimeout)

	if settings.PrinterAddress != s.address {
		s.address = settings.PrinterAddress
		if s.address == "" {
			s.logger.Info("Printer address cleared, disconnecting")
			s.transport.Disconnect()
		} else {
			s.transport.Connect(s.address)
		}
		// The transport does not report the end of a link it was told to drop.
		s.tracker.OnDisconnected()
	}

	connected := s.transport.IsConnected()
	if connected {
		s.tracker.Tick(now)

		if now-s.lastPing >= keepAliveInterval {
			s.logger.Debug("Sending keep-alive")
			if err := s.transport.SendText(sdcp.KeepAlive); err != nil {
				s.logger.Warn("Keep-alive failed", zap.Error(err))
			}
			s.lastPing = now
		}
		if now-s.lastStatusPoll >= statusPollInterval {
			s.send(sdcp.CmdStatus, false)
			s.lastStatusPoll = now
		}
	}

	s.checkRunout()
	s.checkMovement(now)

	in := pauseInputs{
		Enabled:        settings.Enabled,
		PauseOnRunout:  settings.PauseOnRunout,
		Runout:         s.runout.Runout(),
		Stopped:        s.movement.Stopped(),
		SinceStart:     now - s.startedAt,
		Grace:          settings.StartPrintTimeout,
		Connected:      connected,
		AckPending:     s.tracker.Waiting(),
		Printing:       s.printer.IsPrinting(),
		RemainingTicks: s.printer.RemainingTicks(),
	}
	if shouldPause(in) {
		s.logger.Warn("Pausing print, filament runout or stall detected",
			zap.Bool("runout", in.Runout),
			zap.Bool("pause_on_runout", in.PauseOnRunout),
			zap.Bool("stopped", in.Stopped),
			zap.Duration("since_print_start", in.SinceStart),
			zap.Stringer("print_status", s.printer.PrintStatus),
			zap.Int("remaining_ticks", in.RemainingTicks))
		s.send(sdcp.CmdPausePrint, true)
	}
}

func (s *Supervisor) checkRunout() {
	if s.sensors.Runout == nil {
		return
	}
	if s.runout.Update(s.sensors.Runout.Level()) {
		if s.runout.Runout() {
			s.logger.Warn("Filament has run out")
		} else {
			s.logger.Info("Filament has been detected")
		}
	}
}

func (s *Supervisor) checkMovement(now time.Duration) {
	if s.sensors.Movement == nil {
		return
	}
	idle := s.movement.IdleFor(now)
	switch s.movement.Update(s.sensors.Movement.Level(), s.printer.CurrentLayer, s.printer.CurrentZ, now) {
	case detector.EventMoving:
		s.logger.Info("Filament movement started")
	case detector.EventStopped:
		s.logger.Warn("Filament movement stopped",
			zap.Duration("last_movement", idle),
			zap.Duration("threshold", s.movement.Threshold(s.printer.CurrentLayer, s.printer.CurrentZ)))
	}
}

// send issues cmd through the acknowledgment gate and logs refusals.
func (s *Supervisor) send(cmd sdcp.Command, requireAck bool) {
	_, err := s.tracker.Send(cmd, requireAck)
	switch {
	case err == nil:
	case errors.Is(err, ack.ErrNotConnected):
		s.logger.Debug("Can't send command", zap.Stringer("cmd", cmd), zap.Error(err))
	case errors.Is(err, ack.ErrAckPending):
		s.logger.Info("Skipping command", zap.Stringer("cmd", cmd), zap.Error(err))
	default:
		s.logger.Warn("Failed to send command", zap.Stringer("cmd", cmd), zap.Error(err))
	}
}

// HandleMessage applies one inbound text frame.
func (s *Supervisor) HandleMessage(payload []byte) {
	if string(payload) == "pong" {
		return
	}
	msg, err := sdcp.Decode(payload)
	if err != nil {
		s.logger.Warn("Dropping malformed message", zap.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch msg.Kind {
	case sdcp.KindAck:
		s.applyAck(msg.Ack)
	case sdcp.KindStatus:
		s.applyStatus(msg.Status, s.clock.Monotonic())
	}
}

// OnConnected requests a status update right away.
func (s *Supervisor) OnConnected() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("Connected to printer", zap.String("address", s.address))
	s.send(sdcp.CmdStatus, false)
	s.lastStatusPoll = s.clock.Monotonic()
}

// OnDisconnected releases any pending acknowledgment.
func (s *Supervisor) OnDisconnected() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("Disconnected from printer")
	s.tracker.OnDisconnected()
}

// Snapshot returns the current state.
func (s *Supervisor) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		Printer:         s.printer,
		Printing:        s.printer.IsPrinting(),
		Stats:           s.stats.Snapshot(),
		Connected:       s.transport.IsConnected(),
		WaitingForAck:   s.tracker.Waiting(),
		FilamentStopped: s.movement.Stopped(),
		FilamentRunout:  s.runout.Runout(),
		Settings:        s.settings.Settings(),
	}
}

// ResetStats clears the tick statistics. The next tick change starts a
// fresh interval rather than measuring from before the reset.
func (s *Supervisor) ResetStats() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.Reset()
	s.haveLastTick = false
	s.logger.Info("Tick statistics reset")
}

package config

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Settings are the values the supervisor reads on every poll. They can be
// changed at runtime.
type Settings struct {
	Enabled           bool
	Timeout           time.Duration
	FirstLayerTimeout time.Duration
	StartPrintTimeout time.Duration
	PauseOnRunout     bool
	PrinterAddress    string
}

// ErrInvalidSettings wraps every settings validation failure.
var ErrInvalidSettings = errors.New("invalid settings")

// Accepted settings ranges.
var (
	timeoutRange           = [2]time.Duration{100 * time.Millisecond, 30 * time.Second}
	firstLayerTimeoutRange = [2]time.Duration{100 * time.Millisecond, 60 * time.Second}
	startPrintTimeoutRange = [2]time.Duration{1 * time.Second, 60 * time.Second}
)

// Validate checks every field against its accepted range.
func (s Settings) Validate() error {
	if err := checkRange("timeout", s.Timeout, timeoutRange); err != nil {
		return err
	}
	if err := checkRange("first_layer_timeout", s.FirstLayerTimeout, firstLayerTimeoutRange); err != nil {
		return err
	}
	return checkRange("start_print_timeout", s.StartPrintTimeout, startPrintTimeoutRange)
}

// checkPollInterval rejects stall timeouts the detector cannot resolve at
// the given poll interval.
func checkPollInterval(poll time.Duration, s Settings) error {
	if poll >= s.Timeout {
		return fmt.Errorf("supervisor poll_interval %s must be shorter than timeout %s", poll, s.Timeout)
	}
	if poll >= s.FirstLayerTimeout {
		return fmt.Errorf("supervisor poll_interval %s must be shorter than first_layer_timeout %s", poll, s.FirstLayerTimeout)
	}
	return nil
}

func checkRange(name string, v time.Duration, r [2]time.Duration) error {
	if v < r[0] || v > r[1] {
		return fmt.Errorf("%s must be between %d and %d ms (got %d)", name, r[0].Milliseconds(), r[1].Milliseconds(), v.Milliseconds())
	}
	return nil
}

// Settings extracts the runtime settings from c.
func (c *Config) Settings() Settings {
	return Settings{
		Enabled:           c.Supervisor.Enabled,
		Timeout:           c.Supervisor.Timeout.Duration,
		FirstLayerTimeout: c.Supervisor.FirstLayerTimeout.Duration,
		StartPrintTimeout: c.Supervisor.StartPrintTimeout.Duration,
		PauseOnRunout:     c.Supervisor.PauseOnRunout,
		PrinterAddress:    c.Printer.Address,
	}
}

func (c *Config) applySettings(s Settings) {
	c.Supervisor.Enabled = s.Enabled
	c.Supervisor.Timeout = Duration{s.Timeout}
	c.Supervisor.FirstLayerTimeout = Duration{s.FirstLayerTimeout}
	c.Supervisor.StartPrintTimeout = Duration{s.StartPrintTimeout}
	c.Supervisor.PauseOnRunout = s.PauseOnRunout
	c.Printer.Address = s.PrinterAddress
}

// Store holds the live configuration. It is safe for concurrent use and
// persists settings changes when it knows its file path.
type Store struct {
	mu   sync.RWMutex
	cfg  Config
	path string
}

// NewStore wraps cfg. An empty path keeps changes in memory only.
func NewStore(cfg *Config, path string) *Store {
	return &Store{cfg: *cfg, path: path}
}

// Settings returns the current runtime settings.
func (s *Store) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Settings()
}

// Config returns a copy of the full configuration.
func (s *Store) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// UpdateSettings validates and applies next, then writes the configuration
// file. Validation failures wrap ErrInvalidSettings and change nothing. The
// in-memory change stands even if the write fails.
func (s *Store) UpdateSettings(next Settings) error {
	if err := next.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}

	s.mu.Lock()
	if err := checkPollInterval(s.cfg.Supervisor.PollInterval.Duration, next); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	s.cfg.applySettings(next)
	snapshot := s.cfg
	path := s.path
	s.mu.Unlock()

	if path == "" {
		return nil
	}
	if err := WriteConfig(&snapshot, path); err != nil {
		return fmt.Errorf("persisting settings: %w", err)
	}
	return nil
}

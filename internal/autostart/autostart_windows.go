//go:build windows

package autostart

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/svc"
	"golang.org/x/sys/windows/svc/mgr"
)

const (
	serviceName    = "CCSFS"
	serviceDisplay = "Centauri Carbon Filament Supervisor"

	stopTimeout = 10 * time.Second
	// resetPeriod is how long, in seconds, the SCM waits without a crash
	// before it resets the failure count.
	resetPeriod = 24 * 60 * 60
)

var errServiceMissing = errors.New("service not installed")

type windowsManager struct{}

// New returns a Manager backed by the Service Control Manager.
func New() Manager {
	return &windowsManager{}
}

func (w *windowsManager) ServiceName() string { return serviceName }

func (w *windowsManager) IsInstalled() (bool, error) {
	err := withService(func(*mgr.Service) error { return nil })
	if errors.Is(err, errServiceMissing) {
		return false, nil
	}
	return err == nil, err
}

// Install registers the service, or repoints an existing registration at
// execPath and configPath, then (re)starts it. The SCM restarts the
// supervisor after a crash.
func (w *windowsManager) Install(execPath, configPath string) error {
	m, err := mgr.Connect()
	if err != nil {
		return fmt.Errorf("connecting to SCM: %w", err)
	}
	defer m.Disconnect()

	s, err := m.OpenService(serviceName)
	if err == nil {
		err = reconfigure(s, execPath, configPath)
	} else {
		s, err = m.CreateService(serviceName, execPath, mgr.Config{
			DisplayName:      serviceDisplay,
			Description:      serviceDescription,
			StartType:        mgr.StartAutomatic,
			DelayedAutoStart: true,
		}, serviceArgs(configPath)...)
		if err != nil {
			return fmt.Errorf("creating service: %w", err)
		}
	}
	defer s.Close()
	if err != nil {
		return err
	}

	restart := []mgr.RecoveryAction{{Type: mgr.ServiceRestart, Delay: restartDelay}}
	if err := s.SetRecoveryActions(restart, resetPeriod); err != nil {
		return fmt.Errorf("setting recovery actions: %w", err)
	}
	if err := s.Start(); err != nil {
		return fmt.Errorf("starting service: %w", err)
	}
	return nil
}

// reconfigure stops an installed service and points it at the new binary
// and configuration.
func reconfigure(s *mgr.Service, execPath, configPath string) error {
	if err := stopAndWait(s); err != nil {
		return err
	}
	cfg, err := s.Config()
	if err != nil {
		return fmt.Errorf("reading service config: %w", err)
	}
	cmdline := []string{windows.EscapeArg(execPath)}
	for _, arg := range serviceArgs(configPath) {
		cmdline = append(cmdline, windows.EscapeArg(arg))
	}
	cfg.BinaryPathName = strings.Join(cmdline, " ")
	cfg.Description = serviceDescription
	if err := s.UpdateConfig(cfg); err != nil {
		return fmt.Errorf("updating service config: %w", err)
	}
	return nil
}

func (w *windowsManager) Uninstall() error {
	return withService(func(s *mgr.Service) error {
		if err := stopAndWait(s); err != nil {
			return err
		}
		if err := s.Delete(); err != nil {
			return fmt.Errorf("deleting service: %w", err)
		}
		return nil
	})
}

// withService opens the installed service for fn.
func withService(fn func(*mgr.Service) error) error {
	m, err := mgr.Connect()
	if err != nil {
		return fmt.Errorf("connecting to SCM: %w", err)
	}
	defer m.Disconnect()

	s, err := m.OpenService(serviceName)
	if err != nil {
		return fmt.Errorf("%w: %v", errServiceMissing, err)
	}
	defer s.Close()
	return fn(s)
}

// stopAndWait asks the service to stop and polls until the SCM reports it
// stopped.
func stopAndWait(s *mgr.Service) error {
	status, err := s.Query()
	if err != nil {
		return fmt.Errorf("querying service: %w", err)
	}
	if status.State == svc.Stopped {
		return nil
	}
	if status.State != svc.StopPending {
		if _, err := s.Control(svc.Stop); err != nil {
			return fmt.Errorf("stopping service: %w", err)
		}
	}

	deadline := time.Now().Add(stopTimeout)
	for status.State != svc.Stopped {
		if time.Now().After(deadline) {
			return fmt.Errorf("service did not stop within %s", stopTimeout)
		}
		time.Sleep(250 * time.Millisecond)
		if status, err = s.Query(); err != nil {
			return fmt.Errorf("querying service: %w", err)
		}
	}
	return nil
}

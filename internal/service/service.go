//go:build windows

// Package service runs the supervisor under the Windows service control
// manager. From a terminal the process runs in the foreground instead.
package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/windows/svc"
)

const (
	serviceName = "CCSFS"

	// stopGrace bounds how long a stop request waits for the run function.
	stopGrace = 5 * time.Second
)

// Service adapts a run function to svc.Handler.
type Service struct {
	logger *zap.Logger
	run    func(ctx context.Context)
}

// New wraps run, which must return once its context is cancelled.
func New(logger *zap.Logger, run func(ctx context.Context)) *Service {
	return &Service{logger: logger.Named("service"), run: run}
}

// IsWindowsService reports whether the process was started by the SCM.
func IsWindowsService() bool {
	isService, err := svc.IsWindowsService()
	if err != nil {
		return false
	}
	return isService
}

// Run enters the SCM control loop.
func (s *Service) Run() error {
	return svc.Run(serviceName, s)
}

// Execute implements svc.Handler.
func (s *Service) Execute(args []string, r <-chan svc.ChangeRequest, changes chan<- svc.Status) (ssec bool, errno uint32) {
	changes <- svc.Status{State: svc.StartPending}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.run(ctx)
	}()

	changes <- svc.Status{
		State:   svc.Running,
		Accepts: svc.AcceptStop | svc.AcceptShutdown,
	}
	s.logger.Info("Windows service started")

	for {
		select {
		case <-done:
			s.logger.Warn("Supervisor exited, stopping service")
			return false, 1
		case c := <-r:
			switch c.Cmd {
			case svc.Interrogate:
				changes <- c.CurrentStatus
			case svc.Stop, svc.Shutdown:
				s.logger.Info("Windows service stopping")
				changes <- svc.Status{State: svc.StopPending}
				cancel()
				select {
				case <-done:
				case <-time.After(stopGrace):
					s.logger.Warn("Supervisor did not stop in time")
				}
				return false, 0
			default:
				s.logger.Warn("Unexpected service control request",
					zap.Uint32("cmd", uint32(c.Cmd)))
			}
		}
	}
}

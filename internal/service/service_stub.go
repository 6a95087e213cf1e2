//go:build !windows

// Package service is a no-op outside Windows; the supervisor runs as a
// foreground process or under the host's init system.
package service

import (
	"context"

	"go.uber.org/zap"
)

// Service runs the wrapped function directly.
type Service struct {
	logger *zap.Logger
	run    func(ctx context.Context)
}

// New wraps run.
func New(logger *zap.Logger, run func(ctx context.Context)) *Service {
	return &Service{logger: logger.Named("service"), run: run}
}

// IsWindowsService always returns false.
func IsWindowsService() bool {
	return false
}

// Run calls the wrapped function with a background context.
func (s *Service) Run() error {
	s.run(context.Background())
	return nil
}

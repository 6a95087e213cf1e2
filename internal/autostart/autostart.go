// Package autostart registers the supervisor with the host's service
// manager so it starts at boot.
package autostart

import (
	"errors"
	"time"
)

// ErrUnsupported is returned on platforms without a service manager
// integration.
var ErrUnsupported = errors.New("autostart is not supported on this platform")

const (
	serviceDescription = "Pauses Centauri Carbon prints when filament stops moving or runs out"

	// restartDelay applies when the service manager restarts a crashed
	// supervisor.
	restartDelay = 5 * time.Second
)

// Manager provides platform-specific autostart installation.
type Manager interface {
	IsInstalled() (bool, error)
	// Install registers execPath to run with configPath and starts it.
	Install(execPath, configPath string) error
	Uninstall() error
	ServiceName() string
}

// serviceArgs returns the command-line arguments the installed service is
// started with. An empty configPath leaves config discovery to the binary.
func serviceArgs(configPath string) []string {
	if configPath == "" {
		return nil
	}
	return []string{"-config", configPath}
}

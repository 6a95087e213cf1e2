// Package sensor provides the two digital inputs the supervisor samples on
// every poll: the filament motion encoder and the runout switch.
package sensor

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Input is a digital input line. Level never blocks; implementations that
// fail to read return the last good level.
type Input interface {
	Level() bool
}

// Static is an Input fixed at one level.
type Static bool

// Level returns the fixed level.
func (s Static) Level() bool { return bool(s) }

// GPIOFile reads a sysfs style value file ("0" or "1").
type GPIOFile struct {
	path   string
	logger *zap.Logger

	mu     sync.Mutex
	last   bool
	failed bool
}

// NewGPIOFile returns an input backed by path. initial is reported until the
// first successful read.
func NewGPIOFile(path string, initial bool, logger *zap.Logger) *GPIOFile {
	return &GPIOFile{
		path:   path,
		last:   initial,
		logger: logger.Named("gpio").With(zap.String("path", path)),
	}
}

// Level reads the file. Read errors are logged once per failure streak.
func (g *GPIOFile) Level() bool {
	data, err := os.ReadFile(g.path)

	g.mu.Lock()
	defer g.mu.Unlock()

	if err != nil {
		if !g.failed {
			g.logger.Warn("Failed to read GPIO value", zap.Error(err))
			g.failed = true
		}
		return g.last
	}
	if g.failed {
		g.logger.Info("GPIO value readable again")
		g.failed = false
	}
	g.last = strings.TrimSpace(string(data)) == "1"
	return g.last
}

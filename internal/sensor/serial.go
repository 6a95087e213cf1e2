package sensor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tarm/serial"
	"go.uber.org/zap"
)

const (
	serialReadTimeout = 250 * time.Millisecond
	serialRetryDelay  = time.Second
)

// SerialBridge reads sensor levels streamed by a microcontroller over a
// serial line. Each line carries both levels, for example "M1 R1": M is the
// motion encoder and R the runout switch.
type SerialBridge struct {
	device string
	baud   int
	logger *zap.Logger

	movement atomic.Bool
	runout   atomic.Bool
	lines    atomic.Uint64
}

// NewSerialBridge creates a bridge for device. Until the first line arrives
// the runout switch reads high (filament present).
func NewSerialBridge(device string, baud int, logger *zap.Logger) *SerialBridge {
	b := &SerialBridge{
		device: device,
		baud:   baud,
		logger: logger.Named("serial"),
	}
	b.runout.Store(true)
	return b
}

// Movement returns the motion encoder input.
func (b *SerialBridge) Movement() Input { return bridgeInput{&b.movement} }

// Runout returns the runout switch input.
func (b *SerialBridge) Runout() Input { return bridgeInput{&b.runout} }

// Lines returns how many valid lines have been read.
func (b *SerialBridge) Lines() uint64 { return b.lines.Load() }

type bridgeInput struct{ v *atomic.Bool }

func (i bridgeInput) Level() bool { return i.v.Load() }

// Run opens the port and reads until ctx is cancelled, reopening the port
// after errors.
func (b *SerialBridge) Run(ctx context.Context) {
	b.logger.Info("Starting serial sensor bridge",
		zap.String("device", b.device),
		zap.Int("baud", b.baud))

	for {
		if ctx.Err() != nil {
			return
		}

		port, err := serial.OpenPort(&serial.Config{Name: b.device, Baud: b.baud, ReadTimeout: serialReadTimeout})
		if err != nil {
			b.logger.Warn("Failed to open serial port", zap.Error(err))
			if !sleepWithContext(ctx, serialRetryDelay) {
				return
			}
			continue
		}

		b.logger.Info("Serial port opened")
		err = b.stream(ctx, port)
		port.Close()

		if ctx.Err() != nil {
			return
		}
		b.logger.Warn("Serial stream ended", zap.Error(err))
		if !sleepWithContext(ctx, serialRetryDelay) {
			return
		}
	}
}

// stream consumes lines from r. A read timeout yields an empty read, which is
// not an error.
func (b *SerialBridge) stream(ctx context.Context, r io.Reader) error {
	reader := bufio.NewReader(r)
	var pending strings.Builder
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		chunk, err := reader.ReadString('\n')
		pending.WriteString(chunk)
		if err == nil {
			b.handleLine(pending.String())
			pending.Reset()
			continue
		}
		if err != io.EOF {
			return err
		}
	}
}

func (b *SerialBridge) handleLine(line string) {
	movement, runout, err := ParseLine(line)
	if err != nil {
		b.logger.Debug("Ignoring serial line", zap.String("line", strings.TrimSpace(line)), zap.Error(err))
		return
	}
	b.movement.Store(movement)
	b.runout.Store(runout)
	b.lines.Add(1)
}

// ParseLine decodes one bridge line into the movement and runout levels.
func ParseLine(line string) (movement, runout bool, err error) {
	var haveM, haveR bool
	for _, field := range strings.Fields(line) {
		if len(field) != 2 || (field[1] != '0' && field[1] != '1') {
			continue
		}
		level := field[1] == '1'
		switch field[0] {
		case 'M', 'm':
			movement, haveM = level, true
		case 'R', 'r':
			runout, haveR = level, true
		}
	}
	if !haveM || !haveR {
		return false, false, fmt.Errorf("line missing M or R level")
	}
	return movement, runout, nil
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

package supervisor

import (
	"time"

	"go.uber.org/zap"

	"github.com/Natclanwy/cc-sfs/internal/sdcp"
)

// Printer mirrors the printer state reported over the connection.
type Printer struct {
	MainboardID     string
	PrintStatus     sdcp.PrintStatus
	MachineStatuses sdcp.MachineStatusSet
	CurrentLayer    int
	TotalLayer      int
	Progress        int
	CurrentTicks    int
	TotalTicks      int
	PrintSpeedPct   int
	CurrentZ        float64
}

// IsPrinting requires the lifecycle status and the machine status to agree;
// the printer reports them independently and they can briefly disagree.
func (p Printer) IsPrinting() bool {
	return p.PrintStatus == sdcp.PrintStatusPrinting && p.MachineStatuses.Has(sdcp.MachineStatusPrinting)
}

// RemainingTicks is the number of ticks left in the job.
func (p Printer) RemainingTicks() int {
	return p.TotalTicks - p.CurrentTicks
}

// applyAck handles a command acknowledgment. Must be called with s.mu held.
func (s *Supervisor) applyAck(a *sdcp.Ack) {
	s.logger.Debug("Command acknowledged",
		zap.Stringer("cmd", a.Cmd),
		zap.Int("ack", a.Ack),
		zap.String("request_id", a.RequestID))

	s.tracker.OnAck(a.Cmd, a.RequestID)
	s.recordMainboardID(a.MainboardID)
}

// applyStatus folds a status push into the mirror. Must be called with s.mu
// held.
func (s *Supervisor) applyStatus(st *sdcp.Status, now time.Duration) {
	p := &s.printer

	if st.MachineStatuses != nil {
		p.MachineStatuses = *st.MachineStatuses
	}
	if st.Z != nil {
		p.CurrentZ = *st.Z
	}

	if pi := st.PrintInfo; pi != nil {
		if pi.Status != nil {
			if *pi.Status != p.PrintStatus && *pi.Status == sdcp.PrintStatusPrinting {
				s.logger.Info("Print status changed to printing", zap.Stringer("from", p.PrintStatus))
				s.startedAt = now
			}
			p.PrintStatus = *pi.Status
		}
		setInt(&p.CurrentLayer, pi.CurrentLayer)
		setInt(&p.TotalLayer, pi.TotalLayer)
		setInt(&p.Progress, pi.Progress)
		if pi.CurrentTicks != nil && *pi.CurrentTicks != p.CurrentTicks {
			s.recordTick(*pi.CurrentTicks, now)
		}
		setInt(&p.TotalTicks, pi.TotalTicks)
		setInt(&p.PrintSpeedPct, pi.PrintSpeedPct)
	}

	s.recordMainboardID(st.MainboardID)
}

// recordTick handles a change of the tick counter. The interval since the
// previous change is only sampled when that change was itself a valid
// reading.
func (s *Supervisor) recordTick(ticks int, now time.Duration) {
	if s.haveLastTick && s.printer.CurrentTicks > 0 {
		s.stats.Record(now-s.lastTickAt, s.printer.CurrentLayer, now-s.startedAt, s.settings.Settings().StartPrintTimeout)
	}
	s.lastTickAt = now
	s.haveLastTick = true
	s.printer.CurrentTicks = ticks
}

// recordMainboardID keeps the first identity seen.
func (s *Supervisor) recordMainboardID(id string) {
	if id == "" || s.printer.MainboardID != "" {
		return
	}
	s.printer.MainboardID = id
	s.tracker.SetMainboardID(id)
	s.logger.Info("Stored mainboard ID", zap.String("mainboard_id", id))
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

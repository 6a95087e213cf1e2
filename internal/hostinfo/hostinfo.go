// Package hostinfo gathers facts about the machine the supervisor runs on,
// reported alongside the build version. Uses gopsutil for cross-platform
// host and memory data.
package hostinfo

import (
	"context"
	"runtime"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

// Facts describes the host.
type Facts struct {
	Hostname      string
	OS            string
	Platform      string
	Arch          string
	UptimeSeconds uint64
	MemoryTotal   uint64
	MemoryUsed    uint64
}

// Collector reads host facts. The zero value is not usable; call New.
type Collector struct {
	logger *zap.Logger

	hostInfo func(ctx context.Context) (*host.InfoStat, error)
	memInfo  func(ctx context.Context) (*mem.VirtualMemoryStat, error)
}

// New returns a Collector backed by gopsutil.
func New(logger *zap.Logger) *Collector {
	return &Collector{
		logger:   logger.Named("hostinfo"),
		hostInfo: host.InfoWithContext,
		memInfo:  mem.VirtualMemoryWithContext,
	}
}

// Collect gathers what it can. Sources that fail are logged and left
// empty.
func (c *Collector) Collect(ctx context.Context) Facts {
	facts := Facts{OS: runtime.GOOS, Arch: runtime.GOARCH}

	if info, err := c.hostInfo(ctx); err != nil {
		c.logger.Debug("Host info unavailable", zap.Error(err))
	} else {
		facts.Hostname = info.Hostname
		facts.OS = info.OS
		facts.Platform = platformName(info)
		facts.UptimeSeconds = info.Uptime
		if info.KernelArch != "" {
			facts.Arch = info.KernelArch
		}
	}

	if vm, err := c.memInfo(ctx); err != nil {
		c.logger.Debug("Memory info unavailable", zap.Error(err))
	} else {
		facts.MemoryTotal = vm.Total
		facts.MemoryUsed = vm.Used
	}
	return facts
}

func platformName(info *host.InfoStat) string {
	switch {
	case info.Platform == "":
		return info.OS
	case info.PlatformVersion == "":
		return info.Platform
	default:
		return info.Platform + " " + info.PlatformVersion
	}
}

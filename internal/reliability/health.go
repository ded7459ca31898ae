// Package reliability provides host resource checks and periodic database
// maintenance for the long-running supervisor process.
package reliability

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostStats is a point-in-time snapshot of host resource usage.
type HostStats struct {
	CPUPercent float64
	RAMPercent float64
}

// HostChecker samples CPU and memory usage on demand.
type HostChecker struct {
	log zerolog.Logger
}

// NewHostChecker builds a HostChecker.
func NewHostChecker(log zerolog.Logger) *HostChecker {
	return &HostChecker{log: log.With().Str("component", "host_checker").Logger()}
}

// Sample returns current CPU and RAM utilization. CPU sampling blocks for
// 100ms to get a usable instantaneous reading without stalling callers for
// the usual 1s window.
func (h *HostChecker) Sample() HostStats {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("failed to sample cpu usage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("failed to sample memory usage")
		return HostStats{CPUPercent: firstOrZero(cpuPercent), RAMPercent: 0}
	}

	return HostStats{CPUPercent: firstOrZero(cpuPercent), RAMPercent: memStat.UsedPercent}
}

func firstOrZero(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return xs[0]
}

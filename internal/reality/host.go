package reality

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

// HostGateway reads live host telemetry. On any read failure it falls back to
// the configured substitute so callers always get a reading of the same shape.
type HostGateway struct {
	// DiskPath is the mount whose usage is reported (default "/").
	DiskPath string

	fallback Gateway
	now      func() time.Time
}

// NewHostGateway creates a host reader. fallback may be nil, in which case
// read errors are returned to the caller.
func NewHostGateway(fallback Gateway) *HostGateway {
	return &HostGateway{
		DiskPath: "/",
		fallback: fallback,
		now:      time.Now,
	}
}

// Snapshot reads CPU, memory and disk utilisation plus the process count.
func (g *HostGateway) Snapshot(ctx context.Context) (Snapshot, error) {
	s, err := g.read(ctx)
	if err == nil {
		return s, nil
	}
	if g.fallback == nil {
		return Snapshot{}, err
	}
	slog.Debug("host telemetry unavailable, using fallback", "error", err)
	return g.fallback.Snapshot(ctx)
}

func (g *HostGateway) read(ctx context.Context) (Snapshot, error) {
	// Interval 0 compares against the previous call instead of blocking.
	cpus, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read cpu: %w", err)
	}
	if len(cpus) == 0 {
		return Snapshot{}, fmt.Errorf("read cpu: no samples")
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read memory: %w", err)
	}

	usage, err := disk.UsageWithContext(ctx, g.DiskPath)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read disk %s: %w", g.DiskPath, err)
	}

	pids, err := process.PidsWithContext(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read processes: %w", err)
	}

	return Snapshot{
		CPUPercent:    clampPercent(cpus[0]),
		MemoryPercent: clampPercent(vm.UsedPercent),
		DiskPercent:   clampPercent(usage.UsedPercent),
		Timestamp:     g.now(),
		ProcessCount:  len(pids),
	}, nil
}

// Package reality reads host telemetry and exposes it as snapshots that can
// stand in for synthetic inputs: a phase-state source and a gate on reproduction.
// When host telemetry is unavailable a deterministic synthetic source with the
// same shape is used instead.
package reality

import (
	"context"
	"fmt"
	"time"
)

// Snapshot is one immutable telemetry reading.
type Snapshot struct {
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent"`
	DiskPercent   float64   `json:"disk_percent"`
	Timestamp     time.Time `json:"timestamp"`
	ProcessCount  int       `json:"process_count"`
}

// Utilizations returns the three utilisation percentages.
func (s Snapshot) Utilizations() (cpu, memory, disk float64) {
	return s.CPUPercent, s.MemoryPercent, s.DiskPercent
}

// UnixSeconds returns the timestamp as fractional Unix seconds.
func (s Snapshot) UnixSeconds() float64 {
	return float64(s.Timestamp.UnixNano()) / float64(time.Second)
}

// Gateway produces telemetry snapshots. Every call returns a fresh reading.
type Gateway interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// New returns the gateway for a configured source: "host", "synthetic", or
// "" / "none" for no gateway (nil, nil).
func New(source string, seed int64) (Gateway, error) {
	switch source {
	case "", "none":
		return nil, nil
	case "synthetic":
		return NewSyntheticGateway(seed), nil
	case "host":
		return NewHostGateway(NewSyntheticGateway(seed)), nil
	default:
		return nil, fmt.Errorf("unsupported reality source: %s", source)
	}
}

// Gate closes when the latest reading exceeds either utilisation ceiling.
// A zero ceiling disables that bound.
type Gate struct {
	MaxCPUPercent    float64
	MaxMemoryPercent float64
}

// Open reports whether reproduction may proceed under snapshot s.
func (g Gate) Open(s Snapshot) bool {
	if g.MaxCPUPercent > 0 && s.CPUPercent > g.MaxCPUPercent {
		return false
	}
	if g.MaxMemoryPercent > 0 && s.MemoryPercent > g.MaxMemoryPercent {
		return false
	}
	return true
}

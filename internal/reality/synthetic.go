package reality

import (
	"context"
	"sync"
	"time"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// syntheticEpoch anchors synthetic timestamps so readings are reproducible.
var syntheticEpoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// syntheticStep is the simulated wall-clock gap between two readings.
const syntheticStep = 1250 * time.Millisecond

// SyntheticGateway generates smooth, seed-deterministic telemetry from
// independent simplex noise layers, one per metric. The n-th reading of two
// gateways built with the same seed is identical.
type SyntheticGateway struct {
	cpuNoise  opensimplex.Noise
	memNoise  opensimplex.Noise
	diskNoise opensimplex.Noise
	procNoise opensimplex.Noise

	mu     sync.Mutex
	sample int
}

// NewSyntheticGateway creates a synthetic source for the given seed.
func NewSyntheticGateway(seed int64) *SyntheticGateway {
	return &SyntheticGateway{
		cpuNoise:  opensimplex.NewNormalized(seed + 500),
		memNoise:  opensimplex.NewNormalized(seed + 501),
		diskNoise: opensimplex.NewNormalized(seed + 502),
		procNoise: opensimplex.NewNormalized(seed + 503),
	}
}

// Snapshot returns the next synthetic reading. It never fails.
func (g *SyntheticGateway) Snapshot(_ context.Context) (Snapshot, error) {
	g.mu.Lock()
	n := g.sample
	g.sample++
	g.mu.Unlock()

	return g.at(n), nil
}

// at computes reading n without advancing the sequence.
func (g *SyntheticGateway) at(n int) Snapshot {
	// Two octaves: slow drift plus short-term jitter.
	x := float64(n)*0.05 + 0.37
	sample := func(noise opensimplex.Noise) float64 {
		v := noise.Eval2(x, 0)*0.75 + noise.Eval2(x*4, 7.3)*0.25
		return clampPercent(v * 100)
	}

	return Snapshot{
		CPUPercent:    sample(g.cpuNoise),
		MemoryPercent: sample(g.memNoise),
		// Disks fill slowly; keep them in the upper half.
		DiskPercent:  50 + sample(g.diskNoise)/2,
		Timestamp:    syntheticEpoch.Add(time.Duration(n) * syntheticStep),
		ProcessCount: 80 + int(g.procNoise.Eval2(x, 0)*120),
	}
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

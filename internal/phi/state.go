package phi

import "math"

// PhaseState is the telemetry-grounded phase used on the reality path.
// It is independent of PhaseVector: magnitude is a utilisation percentage
// and phase an angle in [0, 2π).
type PhaseState struct {
	Magnitude float64 `json:"magnitude"`
	Phase     float64 `json:"phase"`
}

// Utilization is anything that can report host utilisation percentages and a
// timestamp in fractional Unix seconds. reality.Snapshot satisfies it.
type Utilization interface {
	Utilizations() (cpu, memory, disk float64)
	UnixSeconds() float64
}

// RealityToPhase builds a PhaseState from a telemetry reading.
// Magnitude is the mean of the three utilisations; phase is the fractional
// second of the timestamp mapped onto a full turn.
func RealityToPhase(u Utilization) PhaseState {
	cpu, mem, disk := u.Utilizations()
	frac := math.Mod(u.UnixSeconds(), 1.0)
	if frac < 0 {
		frac += 1.0
	}
	return PhaseState{
		Magnitude: (cpu + mem + disk) / 3,
		Phase:     frac * TwoPi,
	}
}

// StateResonance is a decaying exponential of the L1 distance between two
// phase states, with magnitude normalised by 100 (percent) and phase by 2π.
// Identical states resonate at 1; the value approaches 0 as they diverge.
func StateResonance(a, b PhaseState) float64 {
	dm := math.Abs(a.Magnitude-b.Magnitude) / 100
	dp := math.Abs(a.Phase-b.Phase) / TwoPi
	return math.Exp(-(dm + dp))
}

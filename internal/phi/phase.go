package phi

import "math"

// PhaseVector is the 3-component phase of an agent. It is never stored;
// callers recompute it from (energy, depth) whenever they need it.
type PhaseVector [3]float64

// PhaseOf maps an agent's energy and depth to its phase vector.
//
//	a = (energy · π · 2) mod 2π
//	b = (depth · e / 4) mod 2π
//	c = (energy · φ) mod 2π
func PhaseOf(energy float64, depth int) PhaseVector {
	return PhaseVector{
		wrap(energy * Pi * EnergyTurns),
		wrap(float64(depth) * E / DepthDivisor),
		wrap(energy * Phi),
	}
}

// Resonance returns the cosine similarity of two phase vectors in [-1, 1].
// A zero-magnitude vector has no direction, so its resonance with anything is 0.
func Resonance(v1, v2 PhaseVector) float64 {
	dot := v1[0]*v2[0] + v1[1]*v2[1] + v1[2]*v2[2]
	n1 := v1[0]*v1[0] + v1[1]*v1[1] + v1[2]*v1[2]
	n2 := v2[0]*v2[0] + v2[1]*v2[1] + v2[2]*v2[2]
	if n1 == 0 || n2 == 0 {
		return 0
	}
	// sqrt(n1*n2) rather than sqrt(n1)*sqrt(n2): identical vectors give exactly 1.
	r := dot / math.Sqrt(n1*n2)
	if r > 1 {
		return 1
	}
	if r < -1 {
		return -1
	}
	return r
}

// Magnitude returns the Euclidean length of v.
func (v PhaseVector) Magnitude() float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

// wrap reduces x into [0, 2π).
func wrap(x float64) float64 {
	m := math.Mod(x, TwoPi)
	if m < 0 {
		m += TwoPi
	}
	return m
}

// Package phi provides the phase mapper: the deterministic map from an agent's
// (energy, depth) onto a 3-dimensional phase vector, and the resonance measure
// used to decide which agents compose.
package phi

import "math"

// Phi is the golden ratio.
const Phi = 1.6180339887498948

// The three incommensurate bases of the phase vector.
const (
	// Pi drives the energy axis (first component).
	Pi = math.Pi

	// E drives the depth axis (second component).
	E = math.E

	// TwoPi is the modulus of every component.
	TwoPi = 2 * math.Pi
)

// Scale factors applied to the bases.
const (
	// EnergyTurns multiplies energy before the Pi base: one full turn per unit energy.
	EnergyTurns = 2.0

	// DepthDivisor spreads depths across the second component.
	DepthDivisor = 4.0
)

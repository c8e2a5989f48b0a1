package phi

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhaseOfComponents(t *testing.T) {
	v := PhaseOf(0.25, 2)

	assert.InDelta(t, math.Mod(0.25*math.Pi*2, TwoPi), v[0], 1e-12)
	assert.InDelta(t, math.Mod(2*math.E/4, TwoPi), v[1], 1e-12)
	assert.InDelta(t, math.Mod(0.25*Phi, TwoPi), v[2], 1e-12)
}

func TestPhaseOfWrapsIntoTurn(t *testing.T) {
	for _, e := range []float64{0.1, 1.0, 3.7, 12.5, 99.9} {
		for d := 0; d < 12; d++ {
			v := PhaseOf(e, d)
			for i, c := range v {
				require.GreaterOrEqualf(t, c, 0.0, "component %d of (%v,%d)", i, e, d)
				require.Lessf(t, c, TwoPi, "component %d of (%v,%d)", i, e, d)
			}
		}
	}
}

func TestResonanceIsReflexive(t *testing.T) {
	for e := 0.01; e < 5; e += 0.037 {
		for d := 0; d < 8; d++ {
			v := PhaseOf(e, d)
			if v.Magnitude() == 0 {
				continue
			}
			assert.InDeltaf(t, 1.0, Resonance(v, v), 1e-15, "energy %v depth %d", e, d)
		}
	}
}

func TestResonanceZeroMagnitude(t *testing.T) {
	zero := PhaseOf(0, 0)
	require.Zero(t, zero.Magnitude())

	assert.Equal(t, 0.0, Resonance(zero, PhaseOf(0.7, 1)))
	assert.Equal(t, 0.0, Resonance(PhaseOf(0.7, 1), zero))
	assert.Equal(t, 0.0, Resonance(zero, zero))
}

func TestResonanceBoundsAndSymmetry(t *testing.T) {
	energies := []float64{0.05, 0.3, 0.5, 0.8, 1.1, 1.7, 2.0}
	for _, a := range energies {
		for _, b := range energies {
			va, vb := PhaseOf(a, 1), PhaseOf(b, 1)
			r := Resonance(va, vb)
			assert.GreaterOrEqual(t, r, -1.0)
			assert.LessOrEqual(t, r, 1.0)
			assert.InDelta(t, r, Resonance(vb, va), 1e-15)
		}
	}
}

func TestNearEqualEnergiesResonateStrongly(t *testing.T) {
	r := Resonance(PhaseOf(1.0, 0), PhaseOf(1.001, 0))
	assert.Greater(t, r, 0.999)
}

func TestResonanceOpposedVectors(t *testing.T) {
	assert.InDelta(t, -1.0, Resonance(PhaseVector{1, 2, 3}, PhaseVector{-1, -2, -3}), 1e-15)
	assert.InDelta(t, 0.0, Resonance(PhaseVector{1, 0, 0}, PhaseVector{0, 1, 0}), 1e-15)
}

// Composition: resonant agents at one depth merge into one agent a level up.
package engine

import (
	"github.com/mrdirno/nested-resonance-memory-archive-sub014/internal/agents"
	"github.com/mrdirno/nested-resonance-memory-archive-sub014/internal/phi"
)

// compose sweeps every (population, depth < D-1) bucket once. Buckets are
// captured at the start of the phase, so composites created here are not
// scanned again until the next cycle.
//
// Each bucket is shuffled, then scanned left to right in windows of the group
// size k: a window whose members all resonate with its first member at or above
// the threshold merges and the scan jumps k; otherwise the scan moves by one.
// This is a single O(n) sweep, not an all-pairs search.
func (s *Simulation) compose() {
	depths := s.sc.Depths()
	k := s.sc.Config.Composition.GroupSize

	snapshot := make([][][]*agents.Agent, s.sc.Populations())
	for p := range snapshot {
		snapshot[p] = make([][]*agents.Agent, depths-1)
		for d := 0; d < depths-1; d++ {
			snapshot[p][d] = s.sc.Store.List(p, d)
		}
	}

	for p := range snapshot {
		for d, candidates := range snapshot[p] {
			if len(candidates) < k {
				continue
			}
			s.sc.RNG.Shuffle(len(candidates), func(i, j int) {
				candidates[i], candidates[j] = candidates[j], candidates[i]
			})

			for i := 0; i+k <= len(candidates); {
				window := candidates[i : i+k]
				if s.resonant(window, d) {
					s.merge(window, p, d)
					i += k
				} else {
					i++
				}
			}
		}
	}
}

// resonant reports whether every member of window resonates with the first.
func (s *Simulation) resonant(window []*agents.Agent, depth int) bool {
	threshold := s.sc.Config.Composition.Threshold
	lead := phi.PhaseOf(window[0].Energy, depth)
	for _, other := range window[1:] {
		if phi.Resonance(lead, phi.PhaseOf(other.Energy, depth)) < threshold {
			return false
		}
	}
	return true
}

// merge consumes window and adds its composite at depth+1.
func (s *Simulation) merge(window []*agents.Agent, population, depth int) {
	ids := make([]agents.ID, len(window))
	energies := make([]float64, len(window))
	sum := 0.0
	for i, a := range window {
		ids[i] = a.ID
		energies[i] = a.Energy
		sum += a.Energy
		s.mustRemove(a)
	}

	composite := s.sc.Spawner.Spawn(s.sc.Config.Composition.Efficiency*sum, depth+1, population, s.cycle)
	s.mustAdd(composite)

	s.record(Event{
		Kind:         EventComposition,
		Cycle:        s.cycle,
		Population:   population,
		ToPopulation: population,
		FromDepth:    depth,
		ToDepth:      depth + 1,
		Parents:      ids,
		ParentEnergy: energies,
		Children:     []agents.ID{composite.ID},
		ChildEnergy:  []float64{composite.Energy},
	})
}

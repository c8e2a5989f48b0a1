// Decomposition: overflowing agents split into two agents a level down.
package engine

import "github.com/mrdirno/nested-resonance-memory-archive-sub014/internal/agents"

// decompose splits every agent above the decomposition threshold at depths
// 1..D-1 into two children at depth-1, each receiving efficiency × parent
// energy. Buckets are captured at the start of the phase, so children are not
// split again in the same cycle. Depth 0 never decomposes.
func (s *Simulation) decompose() {
	depths := s.sc.Depths()
	cfg := s.sc.Config.Decomposition

	snapshot := make([][][]*agents.Agent, s.sc.Populations())
	for p := range snapshot {
		snapshot[p] = make([][]*agents.Agent, depths)
		for d := 1; d < depths; d++ {
			snapshot[p][d] = s.sc.Store.List(p, d)
		}
	}

	for p := range snapshot {
		for d := 1; d < depths; d++ {
			for _, parent := range snapshot[p][d] {
				if parent.Energy <= cfg.Threshold {
					continue
				}
				s.mustRemove(parent)

				share := cfg.Efficiency * parent.Energy
				left := s.sc.Spawner.Spawn(share, d-1, p, s.cycle)
				right := s.sc.Spawner.Spawn(share, d-1, p, s.cycle)
				s.mustAdd(left)
				s.mustAdd(right)

				s.record(Event{
					Kind:         EventDecomposition,
					Cycle:        s.cycle,
					Population:   p,
					ToPopulation: p,
					FromDepth:    d,
					ToDepth:      d - 1,
					Parents:      []agents.ID{parent.ID},
					ParentEnergy: []float64{parent.Energy},
					Children:     []agents.ID{left.ID, right.ID},
					ChildEnergy:  []float64{share, share},
				})
			}
		}
	}
}

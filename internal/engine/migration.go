// Migration: degree-weighted movement of agents between graph neighbours.
package engine

import (
	"fmt"

	"github.com/mrdirno/nested-resonance-memory-archive-sub014/internal/agents"
)

// migrate makes ⌊total × migration_frequency⌋ attempts. Each attempt picks a
// source population with weight degree × size (so every agent is weighted by
// its population's degree), an agent uniformly within it, and a uniformly
// chosen neighbour as the destination. Depth and energy are untouched.
func (s *Simulation) migrate() {
	g := s.sc.Graph
	if g == nil {
		return
	}
	attempts := int(float64(s.sc.Store.CountAll()) * s.sc.Config.Topology.MigrationFrequency)
	pops := s.sc.Populations()
	weights := make([]float64, pops)

	for n := 0; n < attempts; n++ {
		total := 0.0
		for p := 0; p < pops; p++ {
			weights[p] = float64(g.Degree(p) * s.sc.Store.CountPopulation(p))
			total += weights[p]
		}
		if total == 0 {
			return
		}

		from := pickWeighted(weights, total, s.sc.RNG.Float64())
		a := s.agentAt(from, s.sc.RNG.Intn(s.sc.Store.CountPopulation(from)))
		nbrs := g.Neighbors(from)
		to := nbrs[s.sc.RNG.Intn(len(nbrs))]

		if err := s.sc.Store.Move(a.ID, to); err != nil {
			panic(fmt.Sprintf("engine invariant violated: %v", err))
		}
		s.record(Event{
			Kind:         EventMigration,
			Cycle:        s.cycle,
			Population:   from,
			ToPopulation: to,
			FromDepth:    a.Depth,
			ToDepth:      a.Depth,
			Parents:      []agents.ID{a.ID},
			ParentEnergy: []float64{a.Energy},
			Children:     []agents.ID{a.ID},
			ChildEnergy:  []float64{a.Energy},
		})
	}
}

// pickWeighted maps u in [0, 1) onto an index with probability weight/total.
func pickWeighted(weights []float64, total, u float64) int {
	target := u * total
	last := -1
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		last = i
		if target < w {
			return i
		}
		target -= w
	}
	// Rounding can leave target just above the final weight.
	return last
}

// agentAt returns the i-th agent of a population in depth-major bucket order.
func (s *Simulation) agentAt(population, i int) *agents.Agent {
	for d := 0; d < s.sc.Depths(); d++ {
		n := s.sc.Store.Len(population, d)
		if i < n {
			return s.sc.Store.List(population, d)[i]
		}
		i -= n
	}
	panic(fmt.Sprintf("engine invariant violated: population %d has no agent %d", population, i))
}

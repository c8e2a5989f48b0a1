// Metabolism: recharge, reproduction, decay and death.
package engine

import "github.com/mrdirno/nested-resonance-memory-archive-sub014/internal/agents"

// Depth attenuation of recharge and decay.
const (
	rechargeDepthFactor = 0.5
	decayDepthFactor    = 0.1
)

// recharge adds rate/(1 + 0.5·d) to every agent, up to the ceiling for its
// depth. Agents already above their ceiling (large composites) are left alone.
func (s *Simulation) recharge() {
	cfg := s.sc.Config
	rate := cfg.Metabolism.RechargeRate
	s.sc.Store.Each(func(a *agents.Agent) {
		ceiling := cfg.CeilingAt(a.Depth)
		if a.Energy >= ceiling {
			return
		}
		a.Energy += rate / (1 + float64(a.Depth)*rechargeDepthFactor)
		if a.Energy > ceiling {
			a.Energy = ceiling
		}
	})
}

// reproduce lets each depth-0 agent present at the start of the phase spawn
// one seed-energy child when it is above the spawn threshold and its draw
// succeeds. Ineligible agents consume no draw.
func (s *Simulation) reproduce() {
	m := s.sc.Config.Metabolism
	for p := 0; p < s.sc.Populations(); p++ {
		for _, parent := range s.sc.Store.List(p, 0) {
			if parent.Energy <= m.SpawnThreshold {
				continue
			}
			if s.sc.RNG.Float64() >= m.ReproductionProbability {
				continue
			}

			before := parent.Energy
			parent.Energy -= m.ReproductionCost
			child := s.sc.Spawner.Spawn(m.SeedEnergy, 0, p, s.cycle)
			s.mustAdd(child)

			s.record(Event{
				Kind:         EventBirth,
				Cycle:        s.cycle,
				Population:   p,
				ToPopulation: p,
				Parents:      []agents.ID{parent.ID},
				ParentEnergy: []float64{before},
				Children:     []agents.ID{child.ID},
				ChildEnergy:  []float64{child.Energy},
			})
		}
	}
}

// decay drains decay_rate·(1 + 0.1·d)·scale from every agent and removes the
// ones left with no energy.
func (s *Simulation) decay() {
	m := s.sc.Config.Metabolism
	for p := 0; p < s.sc.Populations(); p++ {
		for d := 0; d < s.sc.Depths(); d++ {
			loss := m.DecayRate * (1 + float64(d)*decayDepthFactor) * m.DecayScale
			for _, a := range s.sc.Store.List(p, d) {
				a.Energy -= loss
				if a.Alive() {
					continue
				}
				s.mustRemove(a)
				s.record(Event{
					Kind:         EventDeath,
					Cycle:        s.cycle,
					Population:   p,
					ToPopulation: p,
					FromDepth:    d,
					ToDepth:      d,
					Parents:      []agents.ID{a.ID},
					ParentEnergy: []float64{a.Energy},
				})
			}
		}
	}
}

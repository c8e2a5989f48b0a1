package config

import (
	"math"

	"github.com/mrdirno/nested-resonance-memory-archive-sub014/internal/logging"
	"github.com/mrdirno/nested-resonance-memory-archive-sub014/internal/topology"
)

// Validate checks every parameter and returns the first *ConfigError found.
func (c *Config) Validate() error {
	s := c.Simulation
	if s.Depths < 2 {
		return invalid("simulation.depths", "need at least 2 levels, got %d", s.Depths)
	}
	if s.PopulationCap < 1 {
		return invalid("simulation.population_cap", "must be positive, got %d", s.PopulationCap)
	}
	if s.InitialAgents < 0 {
		return invalid("simulation.initial_agents", "must not be negative, got %d", s.InitialAgents)
	}
	if notPositive(s.InitialEnergy) {
		return invalid("simulation.initial_energy", "must be positive, got %v", s.InitialEnergy)
	}

	comp := c.Composition
	if math.IsNaN(comp.Threshold) || comp.Threshold < -1 || comp.Threshold > 1 {
		return invalid("composition.threshold", "resonance threshold must be in [-1, 1], got %v", comp.Threshold)
	}
	if notPositive(comp.Efficiency) {
		return invalid("composition.efficiency", "must be positive, got %v", comp.Efficiency)
	}
	if comp.GroupSize < 2 {
		return invalid("composition.group_size", "must be at least 2, got %d", comp.GroupSize)
	}

	dec := c.Decomposition
	if notPositive(dec.Threshold) {
		return invalid("decomposition.threshold", "must be positive, got %v", dec.Threshold)
	}
	if notPositive(dec.Efficiency) {
		return invalid("decomposition.efficiency", "must be positive, got %v", dec.Efficiency)
	}

	m := c.Metabolism
	if notPositive(m.RechargeRate) {
		return invalid("metabolism.recharge_rate", "must be positive, got %v", m.RechargeRate)
	}
	if notPositive(m.DecayRate) {
		return invalid("metabolism.decay_rate", "must be positive, got %v", m.DecayRate)
	}
	if notPositive(m.DecayScale) {
		return invalid("metabolism.decay_scale", "must be positive, got %v", m.DecayScale)
	}
	if notPositive(m.EnergyCeiling) {
		return invalid("metabolism.energy_ceiling", "must be positive, got %v", m.EnergyCeiling)
	}
	if len(m.DepthCeilings) > s.Depths {
		return invalid("metabolism.depth_ceilings", "%d entries for %d depths", len(m.DepthCeilings), s.Depths)
	}
	if !isProbability(m.ReproductionProbability) {
		return invalid("metabolism.reproduction_probability", "must be in [0, 1], got %v", m.ReproductionProbability)
	}
	if notPositive(m.SeedEnergy) {
		return invalid("metabolism.seed_energy", "must be positive, got %v", m.SeedEnergy)
	}
	if math.IsNaN(m.ReproductionCost) || m.ReproductionCost < 0 || !(m.ReproductionCost < m.SpawnThreshold) {
		return invalid("metabolism.reproduction_cost", "must be in [0, spawn_threshold), got %v", m.ReproductionCost)
	}

	if err := c.validateTopology(); err != nil {
		return err
	}

	switch c.Reality.Source {
	case "", "none", "synthetic", "host":
	default:
		return invalid("reality.source", "unknown source %q", c.Reality.Source)
	}
	if !isPercent(c.Reality.MaxCPUPercent) {
		return invalid("reality.max_cpu_percent", "must be in [0, 100], got %v", c.Reality.MaxCPUPercent)
	}
	if !isPercent(c.Reality.MaxMemoryPercent) {
		return invalid("reality.max_memory_percent", "must be in [0, 100], got %v", c.Reality.MaxMemoryPercent)
	}

	switch c.Persistence.Backend {
	case "", "none", "memory":
	case "sqlite":
		if c.Persistence.Path == "" {
			return invalid("persistence.path", "required for the sqlite backend")
		}
	default:
		return invalid("persistence.backend", "unknown backend %q", c.Persistence.Backend)
	}

	if !logging.ValidLevel(c.Logging.Level) {
		return invalid("logging.level", "unknown level %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateTopology() error {
	t := c.Topology
	kind, err := topology.ParseKind(t.Kind)
	if err != nil {
		return invalid("topology.kind", "%v", err)
	}
	if kind == topology.KindNone {
		return nil
	}
	if t.Populations < 2 {
		return invalid("topology.populations", "%s needs at least 2 populations, got %d", kind, t.Populations)
	}
	if !isProbability(t.MigrationFrequency) {
		return invalid("topology.migration_frequency", "must be in [0, 1], got %v", t.MigrationFrequency)
	}
	switch kind {
	case topology.KindRandom:
		if !isProbability(t.EdgeProbability) {
			return invalid("topology.edge_probability", "must be in [0, 1], got %v", t.EdgeProbability)
		}
	case topology.KindScaleFree:
		if t.Attachment < 1 || t.Attachment >= t.Populations {
			return invalid("topology.attachment", "must be in [1, populations), got %d", t.Attachment)
		}
	}
	return nil
}

func isProbability(p float64) bool {
	return p >= 0 && p <= 1
}

func isPercent(p float64) bool {
	return p >= 0 && p <= 100
}

// notPositive also rejects NaN, which fails every ordered comparison.
func notPositive(v float64) bool {
	return math.IsNaN(v) || v <= 0
}

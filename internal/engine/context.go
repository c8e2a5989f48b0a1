// Package engine runs the composition and decomposition simulation: the per-cycle
// phases (metabolism, composition, decomposition, migration), the driver state
// machine, and the cycle loop.
package engine

import (
	"fmt"
	"math/rand"

	"github.com/mrdirno/nested-resonance-memory-archive-sub014/internal/agents"
	"github.com/mrdirno/nested-resonance-memory-archive-sub014/internal/config"
	"github.com/mrdirno/nested-resonance-memory-archive-sub014/internal/topology"
)

// SimulationContext owns everything a run mutates: the single random stream,
// the agent store, the id spawner and, in multi-population runs, the graph.
// It is passed explicitly; nothing in the engine is package-level state.
type SimulationContext struct {
	Config  *config.Config
	RNG     *rand.Rand
	Store   *agents.Store
	Spawner *agents.Spawner
	Graph   *topology.Graph // nil in single-population runs
}

// NewSimulationContext seeds the random stream and, when a topology is
// configured, builds the graph from it before any cycle runs.
func NewSimulationContext(cfg *config.Config) (*SimulationContext, error) {
	rng := rand.New(rand.NewSource(cfg.Simulation.Seed))
	pops := cfg.Populations()

	sc := &SimulationContext{
		Config:  cfg,
		RNG:     rng,
		Store:   agents.NewStore(cfg.Simulation.Depths, pops),
		Spawner: agents.NewSpawner(),
	}

	kind, err := topology.ParseKind(cfg.Topology.Kind)
	if err != nil {
		return nil, err
	}
	if kind != topology.KindNone {
		g, err := topology.Build(kind, pops, rng, topology.Options{
			EdgeProbability: cfg.Topology.EdgeProbability,
			Attachment:      cfg.Topology.Attachment,
		})
		if err != nil {
			return nil, fmt.Errorf("build topology: %w", err)
		}
		sc.Graph = g
	}
	return sc, nil
}

// Depths returns the number of hierarchy levels.
func (sc *SimulationContext) Depths() int {
	return sc.Store.Depths()
}

// Populations returns the number of populations.
func (sc *SimulationContext) Populations() int {
	return sc.Store.Populations()
}

package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mrdirno/nested-resonance-memory-archive-sub014/internal/agents"
	"github.com/mrdirno/nested-resonance-memory-archive-sub014/internal/config"
	"github.com/mrdirno/nested-resonance-memory-archive-sub014/internal/reality"
)

func testConfig(mutate func(*config.Config)) *config.Config {
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	return cfg
}

func newSim(t *testing.T, cfg *config.Config, opts ...Option) *Simulation {
	t.Helper()
	s, err := NewSimulation(cfg, opts...)
	require.NoError(t, err)
	return s
}

// beginCycle prepares s so a single phase can be called directly.
func beginCycle(s *Simulation) {
	s.cycle++
	s.report = &CycleReport{}
	s.report.Cycle = s.cycle
}

func agent(id string, energy float64, depth, population int) *agents.Agent {
	return &agents.Agent{ID: agents.ID(id), Energy: energy, Depth: depth, Population: population}
}

func get(t *testing.T, s *Simulation, id string) *agents.Agent {
	t.Helper()
	a, ok := s.Context().Store.Get(agents.ID(id))
	require.True(t, ok, "agent %s not live", id)
	return a
}

// stepAll steps s until it terminates or n cycles have run.
func stepAll(t *testing.T, s *Simulation, n int) []CycleReport {
	t.Helper()
	var reports []CycleReport
	for i := 0; i < n && !s.State().Terminal(); i++ {
		r, err := s.Step(context.Background())
		require.NoError(t, err)
		reports = append(reports, r)
	}
	return reports
}

type fixedGateway struct {
	snap reality.Snapshot
	err  error
}

func (g fixedGateway) Snapshot(context.Context) (reality.Snapshot, error) {
	return g.snap, g.err
}

type recordingSink struct {
	mu       sync.Mutex
	fail     bool
	begun    []RunInfo
	cycles   []uint64
	saves    []uint64
	saved    map[uint64]int
	finished []RunSummary
}

var errSinkDown = errors.New("sink down")

func (r *recordingSink) BeginRun(_ context.Context, run RunInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.begun = append(r.begun, run)
	if r.fail {
		return errSinkDown
	}
	return nil
}

func (r *recordingSink) RecordCycle(_ context.Context, _ string, report CycleReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cycles = append(r.cycles, report.Cycle)
	if r.fail {
		return errSinkDown
	}
	return nil
}

func (r *recordingSink) SaveAgents(_ context.Context, _ string, cycle uint64, live []agents.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves = append(r.saves, cycle)
	if r.saved == nil {
		r.saved = make(map[uint64]int)
	}
	r.saved[cycle] = len(live)
	if r.fail {
		return errSinkDown
	}
	return nil
}

func (r *recordingSink) FinishRun(_ context.Context, summary RunSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, summary)
	if r.fail {
		return errSinkDown
	}
	return nil
}

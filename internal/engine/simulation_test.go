package engine

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrdirno/nested-resonance-memory-archive-sub014/internal/agents"
	"github.com/mrdirno/nested-resonance-memory-archive-sub014/internal/config"
	"github.com/mrdirno/nested-resonance-memory-archive-sub014/internal/logging"
	"github.com/mrdirno/nested-resonance-memory-archive-sub014/internal/reality"
)

func TestNewSimulationRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(func(c *config.Config) { c.Simulation.Depths = 1 })
	_, err := NewSimulation(cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrInvalidConfig))

	var cerr *config.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "simulation.depths", cerr.Field)
}

func TestNewSimulationSeedsEveryPopulation(t *testing.T) {
	cfg := testConfig(func(c *config.Config) {
		c.Topology.Kind = "star"
		c.Topology.Populations = 3
		c.Simulation.InitialAgents = 7
	})
	s := newSim(t, cfg)

	assert.Equal(t, 21, s.Total())
	for p, counts := range s.PopulationCounts() {
		assert.Equal(t, 7, counts[0], "population %d", p)
	}
	assert.Equal(t, Running, s.State())
	assert.Equal(t, uint64(0), s.Cycle())
	assert.NotEmpty(t, s.RunID())
}

func TestWithAgentsAdvancesSpawner(t *testing.T) {
	s := newSim(t, testConfig(nil), WithAgents([]*agents.Agent{
		agent("a000041", 1.0, 0, 0),
		agent("a000007", 1.0, 1, 0),
	}))
	assert.Equal(t, uint64(42), s.Context().Spawner.NextID())
}

func TestWithAgentsRejectsDuplicates(t *testing.T) {
	_, err := NewSimulation(testConfig(nil), WithAgents([]*agents.Agent{
		agent("a000001", 1.0, 0, 0),
		agent("a000001", 1.0, 1, 0),
	}))
	assert.ErrorIs(t, err, agents.ErrDuplicateID)
}

func TestStepAfterTerminationReturnsErrNotRunning(t *testing.T) {
	cfg := testConfig(func(c *config.Config) {
		c.Metabolism.DecayRate = 50
		c.Metabolism.ReproductionProbability = 0
	})
	s := newSim(t, cfg)
	stepAll(t, s, 10)
	require.Equal(t, TerminatedExtinct, s.State())

	cycle := s.Cycle()
	_, err := s.Step(context.Background())
	assert.ErrorIs(t, err, ErrNotRunning)
	assert.Equal(t, cycle, s.Cycle())
	assert.Len(t, s.History(), int(cycle))
}

func TestStepHonoursCancelledContext(t *testing.T) {
	s := newSim(t, testConfig(nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Step(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, uint64(0), s.Cycle())
}

func TestEnergyIsLostOnTransitions(t *testing.T) {
	cfg := testConfig(nil)
	s := newSim(t, cfg)

	for _, r := range stepAll(t, s, 300) {
		for _, ev := range r.Events {
			parents, children := sum(ev.ParentEnergy), sum(ev.ChildEnergy)
			switch ev.Kind {
			case EventComposition:
				assert.InDelta(t, cfg.Composition.Efficiency*parents, children, 1e-9)
				assert.Less(t, children, parents)
			case EventDecomposition:
				assert.InDelta(t, 2*cfg.Decomposition.Efficiency*parents, children, 1e-9)
				assert.Less(t, children, parents)
			}
		}
	}
}

func TestDepthMovesOneLevelAtATime(t *testing.T) {
	cfg := testConfig(func(c *config.Config) { c.Metabolism.RechargeRate = 0.4 })
	s := newSim(t, cfg)
	top := cfg.Simulation.Depths - 1

	for _, r := range stepAll(t, s, 300) {
		require.Len(t, r.DepthCounts, cfg.Simulation.Depths)
		for _, ev := range r.Events {
			switch ev.Kind {
			case EventComposition:
				assert.Equal(t, ev.FromDepth+1, ev.ToDepth)
				assert.Less(t, ev.FromDepth, top, "top level never composes")
			case EventDecomposition:
				assert.Equal(t, ev.FromDepth-1, ev.ToDepth)
				assert.Greater(t, ev.FromDepth, 0, "depth 0 never decomposes")
			case EventBirth:
				assert.Equal(t, 0, ev.FromDepth)
			}
		}
	}
	s.Context().Store.Each(func(a *agents.Agent) {
		assert.True(t, a.Depth >= 0 && a.Depth <= top)
	})
}

func TestDeterministicHistory(t *testing.T) {
	run := func() []CycleStats {
		s := newSim(t, testConfig(nil))
		stepAll(t, s, 1000)
		return s.History()
	}
	a, b := run(), run()
	require.NotEmpty(t, a)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("history differs between identical runs (-first +second):\n%s", diff)
	}
}

func TestDeterministicMultiPopulationHistory(t *testing.T) {
	cfg := func() *config.Config {
		return testConfig(func(c *config.Config) {
			c.Topology.Kind = "scale_free"
			c.Topology.Populations = 6
			c.Topology.Attachment = 2
			c.Topology.MigrationFrequency = 0.1
			c.Reality.Source = "synthetic"
			c.Reality.MaxCPUPercent = 60
		})
	}
	run := func() ([]CycleStats, []int) {
		s := newSim(t, cfg())
		stepAll(t, s, 200)
		return s.History(), s.Context().Graph.Degrees()
	}
	h1, d1 := run()
	h2, d2 := run()
	assert.Equal(t, d1, d2)
	if diff := cmp.Diff(h1, h2); diff != "" {
		t.Fatalf("history differs between identical runs (-first +second):\n%s", diff)
	}
}

func TestSeedChangesHistory(t *testing.T) {
	run := func(seed int64) []CycleStats {
		s := newSim(t, testConfig(func(c *config.Config) { c.Simulation.Seed = seed }))
		stepAll(t, s, 100)
		return s.History()
	}
	assert.NotEmpty(t, cmp.Diff(run(1), run(2)))
}

func TestReferenceScenario(t *testing.T) {
	s := newSim(t, testConfig(nil))

	reached := false
	for _, r := range stepAll(t, s, 500) {
		if r.Cycle <= 50 && r.DepthCounts[1] > 0 {
			reached = true
		}
		require.Less(t, r.Total, 3000, "cycle %d", r.Cycle)
	}
	assert.True(t, reached, "depth 1 never populated within 50 cycles")
	assert.Equal(t, Running, s.State())
	assert.Equal(t, uint64(500), s.Cycle())
}

func TestCapScenario(t *testing.T) {
	// Phase components are all non-negative, so resonance never drops below
	// 0 and most depth-0 pairs clear the reference threshold of 0.5. At
	// reference recharge, composition then drains depth 0 faster than even
	// p=0.9 reproduction refills it and the total stays in the tens. A strict
	// threshold and faster recharge let reproduction outrun composition.
	cfg := testConfig(func(c *config.Config) {
		c.Simulation.PopulationCap = 4000
		c.Metabolism.ReproductionProbability = 0.9
		c.Metabolism.RechargeRate = 0.5
		c.Composition.Threshold = 0.99
	})
	s := newSim(t, cfg)
	stepAll(t, s, 1000)

	assert.Equal(t, TerminatedCap, s.State())
	assert.GreaterOrEqual(t, s.Total(), 4000)
	h := s.History()
	assert.Equal(t, TerminatedCap, h[len(h)-1].State)
	for _, st := range h[:len(h)-1] {
		assert.Equal(t, Running, st.State)
	}
}

func TestExtinctionScenario(t *testing.T) {
	cfg := testConfig(func(c *config.Config) {
		c.Metabolism.DecayRate = 50
		c.Metabolism.ReproductionProbability = 0
	})
	s := newSim(t, cfg)
	stepAll(t, s, 100)

	assert.Equal(t, TerminatedExtinct, s.State())
	assert.Equal(t, 0, s.Total())
	assert.Equal(t, []int{0, 0, 0, 0, 0}, s.DepthCounts())
}

func TestClosedGateSkipsReproduction(t *testing.T) {
	cfg := testConfig(func(c *config.Config) {
		c.Metabolism.ReproductionProbability = 1
		c.Reality.MaxCPUPercent = 50
	})
	gw := fixedGateway{snap: reality.Snapshot{CPUPercent: 99, MemoryPercent: 10}}
	s := newSim(t, cfg, WithGateway(gw))

	for _, r := range stepAll(t, s, 10) {
		assert.True(t, r.ReproductionGated)
		assert.Zero(t, r.Births)
		require.NotNil(t, r.Reality)
		assert.InDelta(t, 1.0, r.Reality.Resonance, 1e-12, "identical readings resonate fully")
	}
}

func TestFailedRealityReadLeavesGateOpen(t *testing.T) {
	cfg := testConfig(func(c *config.Config) {
		c.Metabolism.ReproductionProbability = 1
		c.Reality.MaxCPUPercent = 50
	})
	s := newSim(t, cfg, WithGateway(fixedGateway{err: errors.New("no telemetry")}))

	r, err := s.Step(context.Background())
	require.NoError(t, err)
	assert.False(t, r.ReproductionGated)
	assert.Nil(t, r.Reality)
	assert.Equal(t, 20, r.Births)
}

func TestSyntheticRealityIsReported(t *testing.T) {
	cfg := testConfig(func(c *config.Config) { c.Reality.Source = "synthetic" })
	s := newSim(t, cfg)

	reports := stepAll(t, s, 3)
	require.Len(t, reports, 3)
	for _, r := range reports {
		require.NotNil(t, r.Reality)
		assert.GreaterOrEqual(t, r.Reality.Resonance, 0.0)
		assert.LessOrEqual(t, r.Reality.Resonance, 1.0)
	}
	assert.Equal(t, 1.0, reports[0].Reality.Resonance)
}

func TestSinkReceivesCycles(t *testing.T) {
	cfg := testConfig(func(c *config.Config) { c.Persistence.SnapshotEvery = 2 })
	sink := &recordingSink{}
	s := newSim(t, cfg, WithSink(sink))

	stepAll(t, s, 5)
	require.NoError(t, s.Finish(context.Background()))
	require.NoError(t, s.Finish(context.Background()))

	require.Len(t, sink.begun, 1)
	assert.Equal(t, s.RunID(), sink.begun[0].ID)
	assert.Equal(t, int64(42), sink.begun[0].Seed)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, sink.cycles)
	assert.Equal(t, []uint64{0, 2, 4}, sink.saves)
	assert.Equal(t, 20, sink.saved[0])
	require.Len(t, sink.finished, 1)
	assert.Equal(t, uint64(5), sink.finished[0].Cycles)
	assert.Equal(t, Running, sink.finished[0].State)
}

func TestSinkFailuresDoNotStopTheRun(t *testing.T) {
	sink := &recordingSink{fail: true}
	s := newSim(t, testConfig(nil), WithSink(sink))

	stepAll(t, s, 3)
	assert.Equal(t, uint64(3), s.Cycle())
	assert.Len(t, sink.cycles, 3)
	assert.ErrorIs(t, s.Finish(context.Background()), errSinkDown)
}

func TestSinkGetsTerminalSnapshot(t *testing.T) {
	cfg := testConfig(func(c *config.Config) {
		c.Metabolism.DecayRate = 50
		c.Metabolism.ReproductionProbability = 0
	})
	sink := &recordingSink{}
	s := newSim(t, cfg, WithSink(sink))
	stepAll(t, s, 5)

	assert.Equal(t, []uint64{0, 1}, sink.saves)
	assert.Equal(t, 0, sink.saved[1])
}

func TestHistoryIsACopy(t *testing.T) {
	s := newSim(t, testConfig(nil))
	stepAll(t, s, 2)
	h := s.History()
	h[0].Total = -1
	assert.NotEqual(t, -1, s.History()[0].Total)
}

func sum(xs []float64) float64 {
	t := 0.0
	for _, x := range xs {
		t += x
	}
	return t
}

func TestWithStartCycleContinuesNumbering(t *testing.T) {
	s := newSim(t, testConfig(nil), WithStartCycle(40))
	r, err := s.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(41), r.Cycle)
	assert.Len(t, s.History(), 1)
}

func TestEventsLoggedOnlyAtTrace(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	run := func(level string) string {
		var buf bytes.Buffer
		slog.SetDefault(logging.NewLogger(level, &buf))
		s := newSim(t, testConfig(nil))
		stepAll(t, s, 3)
		return buf.String()
	}

	assert.NotContains(t, run("debug"), "msg=event")
	trace := run("trace")
	assert.Contains(t, trace, "level=TRACE msg=event")
	assert.Contains(t, trace, "kind=composition")
}

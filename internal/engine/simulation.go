package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mrdirno/nested-resonance-memory-archive-sub014/internal/agents"
	"github.com/mrdirno/nested-resonance-memory-archive-sub014/internal/config"
	"github.com/mrdirno/nested-resonance-memory-archive-sub014/internal/logging"
	"github.com/mrdirno/nested-resonance-memory-archive-sub014/internal/phi"
	"github.com/mrdirno/nested-resonance-memory-archive-sub014/internal/reality"
)

// ErrNotRunning is returned by Step once the simulation has reached a terminal state.
var ErrNotRunning = errors.New("simulation is not running")

// Option configures a Simulation.
type Option func(*Simulation)

// WithSink attaches a persistence sink called at the end of every cycle.
func WithSink(sink PersistenceSink) Option {
	return func(s *Simulation) { s.sink = sink }
}

// WithGateway overrides the telemetry gateway built from the reality config.
// A nil gateway disables telemetry and the reproduction gate.
func WithGateway(g reality.Gateway) Option {
	return func(s *Simulation) {
		s.gateway = g
		s.gatewaySet = true
	}
}

// WithAgents replaces the configured initial population with the given agents
// (for example, a snapshot restored from a sink).
func WithAgents(initial []*agents.Agent) Option {
	return func(s *Simulation) { s.initial = initial }
}

// WithStartCycle sets the cycle counter before the first Step, so a resumed
// run continues its numbering.
func WithStartCycle(cycle uint64) Option {
	return func(s *Simulation) { s.cycle = cycle }
}

// Simulation holds the state machine of one run. It is driven one cycle at a
// time by Step, directly or through Engine.Run.
type Simulation struct {
	sc    *SimulationContext
	runID string

	state   State
	cycle   uint64
	history []CycleStats
	report  *CycleReport // cycle in progress

	gateway    reality.Gateway
	gatewaySet bool
	gate       reality.Gate
	lastPhase  *phi.PhaseState

	sink     PersistenceSink
	started  bool
	finished bool

	initial []*agents.Agent
}

// NewSimulation validates cfg, builds the context (seeding the random stream
// and, for multi-population runs, the graph) and places the initial agents.
func NewSimulation(cfg *config.Config, opts ...Option) (*Simulation, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sc, err := NewSimulationContext(cfg)
	if err != nil {
		return nil, err
	}

	s := &Simulation{
		sc:    sc,
		runID: uuid.NewString(),
		state: Running,
		gate: reality.Gate{
			MaxCPUPercent:    cfg.Reality.MaxCPUPercent,
			MaxMemoryPercent: cfg.Reality.MaxMemoryPercent,
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	if !s.gatewaySet {
		s.gateway, err = reality.New(cfg.Reality.Source, cfg.Simulation.Seed)
		if err != nil {
			return nil, fmt.Errorf("reality gateway: %w", err)
		}
	}

	if s.initial != nil {
		if err := s.restore(s.initial); err != nil {
			return nil, err
		}
		s.initial = nil
	} else {
		for p := 0; p < sc.Populations(); p++ {
			for _, a := range sc.Spawner.SpawnPopulation(cfg.Simulation.InitialAgents, cfg.Simulation.InitialEnergy, p) {
				s.mustAdd(a)
			}
		}
	}

	slog.Info("simulation created",
		"run", s.runID,
		"seed", cfg.Simulation.Seed,
		"depths", sc.Depths(),
		"populations", sc.Populations(),
		"topology", cfg.Topology.Kind,
		"agents", sc.Store.CountAll(),
	)
	return s, nil
}

// restore adds caller-provided agents and moves the spawner past their ids.
func (s *Simulation) restore(initial []*agents.Agent) error {
	var maxID uint64
	for _, a := range initial {
		cp := *a
		if err := s.sc.Store.Add(&cp); err != nil {
			return fmt.Errorf("restore agents: %w", err)
		}
		var n uint64
		if _, err := fmt.Sscanf(string(a.ID), "a%d", &n); err == nil && n > maxID {
			maxID = n
		}
		if a.BornCycle > s.cycle {
			s.cycle = a.BornCycle
		}
	}
	if maxID >= s.sc.Spawner.NextID() {
		s.sc.Spawner.SetNextID(maxID + 1)
	}
	return nil
}

// Step runs one full cycle: reality read, recharge, reproduction, composition,
// decomposition, decay, migration, then the termination checks.
func (s *Simulation) Step(ctx context.Context) (CycleReport, error) {
	if s.state.Terminal() {
		return CycleReport{}, ErrNotRunning
	}
	if err := ctx.Err(); err != nil {
		return CycleReport{}, err
	}
	s.begin(ctx)

	s.cycle++
	s.report = &CycleReport{}
	s.report.Cycle = s.cycle

	open := s.readReality(ctx)
	s.recharge()
	if open {
		s.reproduce()
	} else {
		s.report.ReproductionGated = true
	}
	s.compose()
	s.decompose()
	s.decay()
	s.migrate()

	total := s.sc.Store.CountAll()
	switch {
	case total >= s.sc.Config.Simulation.PopulationCap:
		s.state = TerminatedCap
	case total == 0:
		s.state = TerminatedExtinct
	}

	report := *s.report
	s.report = nil
	report.State = s.state
	report.Total = total
	report.DepthCounts = s.sc.Store.DepthCounts()
	report.PopulationCounts = s.sc.Store.PopulationCounts()
	s.history = append(s.history, report.CycleStats)

	slog.Debug("cycle complete",
		"cycle", report.Cycle,
		"total", report.Total,
		"depths", report.DepthCounts,
		"births", report.Births,
		"deaths", report.Deaths,
		"compositions", report.Compositions,
		"decompositions", report.Decompositions,
		"migrations", report.Migrations,
		"gated", report.ReproductionGated,
	)
	if s.state.Terminal() {
		slog.Info("simulation terminated", "run", s.runID, "state", s.state, "cycle", s.cycle, "total", total)
	}

	s.persist(ctx, report)
	return report, nil
}

// readReality samples the gateway and reports whether the reproduction gate is
// open. A failed read leaves the gate open.
func (s *Simulation) readReality(ctx context.Context) bool {
	if s.gateway == nil {
		return true
	}
	snap, err := s.gateway.Snapshot(ctx)
	if err != nil {
		slog.Warn("reality read failed", "cycle", s.cycle, "error", err)
		return true
	}

	state := phi.RealityToPhase(snap)
	resonance := 1.0
	if s.lastPhase != nil {
		resonance = phi.StateResonance(*s.lastPhase, state)
	}
	s.lastPhase = &state
	s.report.Reality = &RealityReading{Snapshot: snap, Phase: state, Resonance: resonance}

	return s.gate.Open(snap)
}

func (s *Simulation) record(ev Event) {
	s.report.record(ev)
	ctx := context.Background()
	if !slog.Default().Enabled(ctx, logging.LevelTrace) {
		return
	}
	slog.Log(ctx, logging.LevelTrace, "event",
		"kind", ev.Kind,
		"cycle", ev.Cycle,
		"population", ev.Population,
		"to_population", ev.ToPopulation,
		"from_depth", ev.FromDepth,
		"to_depth", ev.ToDepth,
		"parents", ev.Parents,
		"children", ev.Children,
	)
}

func (s *Simulation) mustAdd(a *agents.Agent) {
	if err := s.sc.Store.Add(a); err != nil {
		panic(fmt.Sprintf("engine invariant violated: %v", err))
	}
}

func (s *Simulation) mustRemove(a *agents.Agent) {
	if _, err := s.sc.Store.Remove(a.ID, a.Population, a.Depth); err != nil {
		panic(fmt.Sprintf("engine invariant violated: %v", err))
	}
}

// ── Persistence ─────────────────────────────────────────────────────────

// begin registers the run with the sink before the first cycle.
func (s *Simulation) begin(ctx context.Context) {
	if s.sink == nil || s.started {
		return
	}
	s.started = true
	cfg := s.sc.Config
	info := RunInfo{
		ID:          s.runID,
		Seed:        cfg.Simulation.Seed,
		Depths:      s.sc.Depths(),
		Populations: s.sc.Populations(),
		Topology:    cfg.Topology.Kind,
		Config:      cfg,
		StartedAt:   time.Now().UTC(),
	}
	if err := s.sink.BeginRun(ctx, info); err != nil {
		slog.Error("run registration failed", "run", s.runID, "error", err)
	}
	if err := s.sink.SaveAgents(ctx, s.runID, s.cycle, s.sc.Store.Snapshot()); err != nil {
		slog.Error("initial agent save failed", "run", s.runID, "error", err)
	}
}

// persist hands the finished cycle to the sink. Failures are logged and the
// run continues.
func (s *Simulation) persist(ctx context.Context, report CycleReport) {
	if s.sink == nil {
		return
	}
	if err := s.sink.RecordCycle(ctx, s.runID, report); err != nil {
		slog.Error("cycle save failed", "run", s.runID, "cycle", report.Cycle, "error", err)
	}
	every := s.sc.Config.Persistence.SnapshotEvery
	if (every > 0 && report.Cycle%every == 0) || s.state.Terminal() {
		if err := s.sink.SaveAgents(ctx, s.runID, report.Cycle, s.sc.Store.Snapshot()); err != nil {
			slog.Error("agent snapshot failed", "run", s.runID, "cycle", report.Cycle, "error", err)
		}
	}
}

// Finish closes the run with the sink. It is safe to call more than once and
// is a no-op without a sink or before the first cycle.
func (s *Simulation) Finish(ctx context.Context) error {
	if s.sink == nil || !s.started || s.finished {
		return nil
	}
	s.finished = true
	summary := RunSummary{
		RunID:      s.runID,
		State:      s.state,
		Cycles:     s.cycle,
		Total:      s.sc.Store.CountAll(),
		FinishedAt: time.Now().UTC(),
	}
	if err := s.sink.FinishRun(ctx, summary); err != nil {
		return fmt.Errorf("finish run %s: %w", s.runID, err)
	}
	return nil
}

// ── Queries ─────────────────────────────────────────────────────────────

// RunID returns the unique id of this run.
func (s *Simulation) RunID() string { return s.runID }

// State returns the driver state.
func (s *Simulation) State() State { return s.state }

// Cycle returns the number of completed cycles.
func (s *Simulation) Cycle() uint64 { return s.cycle }

// Total returns the number of live agents.
func (s *Simulation) Total() int { return s.sc.Store.CountAll() }

// DepthCounts returns live counts per depth, summed over populations.
func (s *Simulation) DepthCounts() []int { return s.sc.Store.DepthCounts() }

// PopulationCounts returns live counts indexed [population][depth].
func (s *Simulation) PopulationCounts() [][]int { return s.sc.Store.PopulationCounts() }

// History returns the per-cycle statistics recorded so far.
func (s *Simulation) History() []CycleStats {
	out := make([]CycleStats, len(s.history))
	copy(out, s.history)
	return out
}

// Context exposes the run's context (store, graph, random stream).
func (s *Simulation) Context() *SimulationContext { return s.sc }

package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"
)

// Engine drives a Simulation forward cycle by cycle.
type Engine struct {
	Sim         *Simulation
	MaxCycles   uint64        // cycle budget; 0 = until terminal or stopped
	Interval    time.Duration // minimum wall time per cycle; 0 = as fast as possible
	ReportEvery uint64        // summary cadence in cycles; 0 = off

	// Callbacks, populated during setup.
	OnCycle  func(report CycleReport) // every cycle
	OnReport func(stats CycleStats)   // every ReportEvery cycles

	running atomic.Bool
}

// NewEngine creates an engine with the budget and report cadence from the
// simulation's config.
func NewEngine(sim *Simulation) *Engine {
	cfg := sim.Context().Config
	return &Engine{
		Sim:         sim,
		MaxCycles:   cfg.Simulation.MaxCycles,
		ReportEvery: cfg.Simulation.ReportEvery,
	}
}

// Run steps the simulation until it reaches a terminal state, the cycle budget
// runs out, Stop is called, or ctx is cancelled. It returns the final state; a
// cancelled context is reported as ctx.Err().
func (e *Engine) Run(ctx context.Context) (State, error) {
	e.running.Store(true)
	defer e.running.Store(false)
	slog.Info("simulation engine started", "run", e.Sim.RunID(), "cycle", e.Sim.Cycle(), "max_cycles", e.MaxCycles)

	var runErr error
	for e.running.Load() {
		if e.MaxCycles > 0 && e.Sim.Cycle() >= e.MaxCycles {
			slog.Info("cycle budget exhausted", "cycle", e.Sim.Cycle())
			break
		}

		start := time.Now()
		report, err := e.Sim.Step(ctx)
		if err != nil {
			runErr = err
			break
		}

		if e.OnCycle != nil {
			e.OnCycle(report)
		}
		if e.ReportEvery > 0 && report.Cycle%e.ReportEvery == 0 {
			slog.Info("cycle report",
				"cycle", report.Cycle,
				"total", report.Total,
				"depths", report.DepthCounts,
				"births", report.Births,
				"deaths", report.Deaths,
				"compositions", report.Compositions,
				"decompositions", report.Decompositions,
				"migrations", report.Migrations,
			)
			if e.OnReport != nil {
				e.OnReport(report.CycleStats)
			}
		}
		if report.State.Terminal() {
			break
		}

		if e.Interval > 0 {
			if wait := e.Interval - time.Since(start); wait > 0 {
				select {
				case <-ctx.Done():
					runErr = ctx.Err()
				case <-time.After(wait):
				}
				if runErr != nil {
					break
				}
			}
		}
	}

	// The sink still gets its summary when the run was cancelled.
	finishErr := e.Sim.Finish(context.WithoutCancel(ctx))
	if finishErr != nil {
		slog.Error("run summary save failed", "run", e.Sim.RunID(), "error", finishErr)
	}

	slog.Info("simulation engine stopped", "cycle", e.Sim.Cycle(), "state", e.Sim.State(), "total", e.Sim.Total())
	return e.Sim.State(), errors.Join(runErr, finishErr)
}

// Stop halts the loop after the cycle in progress. Safe to call from another goroutine.
func (e *Engine) Stop() {
	e.running.Store(false)
}

// Running reports whether Run is looping.
func (e *Engine) Running() bool {
	return e.running.Load()
}

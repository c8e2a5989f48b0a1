package persistence

import (
	"context"
	"fmt"
	"sync"

	"github.com/mrdirno/nested-resonance-memory-archive-sub014/internal/agents"
	"github.com/mrdirno/nested-resonance-memory-archive-sub014/internal/engine"
)

// MemorySink keeps everything it is given in process memory. It is useful
// for tests and for inspecting a run after Engine.Run returns.
type MemorySink struct {
	mu        sync.RWMutex
	runs      map[string]engine.RunInfo
	summaries map[string]engine.RunSummary
	cycles    map[string][]engine.CycleReport
	snapshots map[string]snapshot
}

type snapshot struct {
	cycle  uint64
	agents []agents.Agent
}

var _ engine.PersistenceSink = (*MemorySink)(nil)

func NewMemorySink() *MemorySink {
	return &MemorySink{
		runs:      make(map[string]engine.RunInfo),
		summaries: make(map[string]engine.RunSummary),
		cycles:    make(map[string][]engine.CycleReport),
		snapshots: make(map[string]snapshot),
	}
}

func (s *MemorySink) BeginRun(_ context.Context, run engine.RunInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[run.ID]; ok {
		return fmt.Errorf("run %s already registered", run.ID)
	}
	s.runs[run.ID] = run
	return nil
}

func (s *MemorySink) RecordCycle(_ context.Context, runID string, report engine.CycleReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[runID]; !ok {
		return fmt.Errorf("%s: %w", runID, ErrRunNotFound)
	}
	s.cycles[runID] = append(s.cycles[runID], report)
	return nil
}

func (s *MemorySink) SaveAgents(_ context.Context, runID string, cycle uint64, live []agents.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[runID]; !ok {
		return fmt.Errorf("%s: %w", runID, ErrRunNotFound)
	}
	cp := make([]agents.Agent, len(live))
	copy(cp, live)
	s.snapshots[runID] = snapshot{cycle: cycle, agents: cp}
	return nil
}

func (s *MemorySink) FinishRun(_ context.Context, summary engine.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[summary.RunID]; !ok {
		return fmt.Errorf("%s: %w", summary.RunID, ErrRunNotFound)
	}
	s.summaries[summary.RunID] = summary
	return nil
}

// Run returns the registered run info.
func (s *MemorySink) Run(runID string) (engine.RunInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	return run, ok
}

// Summary returns the run summary once the run is finished.
func (s *MemorySink) Summary(runID string) (engine.RunSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary, ok := s.summaries[runID]
	return summary, ok
}

// Cycles returns a copy of the recorded cycle reports.
func (s *MemorySink) Cycles(runID string) []engine.CycleReport {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]engine.CycleReport(nil), s.cycles[runID]...)
}

// Agents returns a copy of the latest snapshot and the cycle it was taken at.
func (s *MemorySink) Agents(runID string) ([]agents.Agent, uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[runID]
	if !ok {
		return nil, 0, false
	}
	return append([]agents.Agent(nil), snap.agents...), snap.cycle, true
}

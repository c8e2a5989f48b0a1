package engine

import (
	"context"
	"time"

	"github.com/mrdirno/nested-resonance-memory-archive-sub014/internal/agents"
	"github.com/mrdirno/nested-resonance-memory-archive-sub014/internal/config"
)

// PersistenceSink receives end-of-cycle results. It is optional; a run
// without one keeps everything in memory.
type PersistenceSink interface {
	BeginRun(ctx context.Context, run RunInfo) error
	RecordCycle(ctx context.Context, runID string, report CycleReport) error
	SaveAgents(ctx context.Context, runID string, cycle uint64, live []agents.Agent) error
	FinishRun(ctx context.Context, summary RunSummary) error
}

// RunInfo identifies a run to a sink.
type RunInfo struct {
	ID          string         `json:"id"`
	Seed        int64          `json:"seed"`
	Depths      int            `json:"depths"`
	Populations int            `json:"populations"`
	Topology    string         `json:"topology"`
	Config      *config.Config `json:"config"`
	StartedAt   time.Time      `json:"started_at"`
}

// RunSummary closes a run.
type RunSummary struct {
	RunID      string    `json:"run_id"`
	State      State     `json:"state"`
	Cycles     uint64    `json:"cycles"`
	Total      int       `json:"total"`
	FinishedAt time.Time `json:"finished_at"`
}

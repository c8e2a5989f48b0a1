// Package persistence provides the optional end-of-cycle sinks: an in-memory
// recorder and SQLite run storage.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/mrdirno/nested-resonance-memory-archive-sub014/internal/agents"
	"github.com/mrdirno/nested-resonance-memory-archive-sub014/internal/config"
	"github.com/mrdirno/nested-resonance-memory-archive-sub014/internal/engine"
)

// timeFormat is fixed-width so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// ErrRunNotFound is returned when a run id has no row.
var ErrRunNotFound = errors.New("run not found")

// DB wraps a SQLite connection and stores runs, per-cycle statistics, events
// and agent snapshots. It implements engine.PersistenceSink.
type DB struct {
	conn *sqlx.DB
}

var _ engine.PersistenceSink = (*DB)(nil)

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		seed INTEGER NOT NULL,
		depths INTEGER NOT NULL,
		populations INTEGER NOT NULL,
		topology TEXT NOT NULL,
		config_json TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		state TEXT NOT NULL,
		cycles INTEGER NOT NULL DEFAULT 0,
		total INTEGER NOT NULL DEFAULT 0,
		snapshot_cycle INTEGER
	);

	CREATE TABLE IF NOT EXISTS cycles (
		run_id TEXT NOT NULL,
		cycle INTEGER NOT NULL,
		state TEXT NOT NULL,
		total INTEGER NOT NULL,
		depth_counts_json TEXT NOT NULL,
		population_counts_json TEXT NOT NULL,
		births INTEGER NOT NULL,
		deaths INTEGER NOT NULL,
		compositions INTEGER NOT NULL,
		decompositions INTEGER NOT NULL,
		migrations INTEGER NOT NULL,
		gated INTEGER NOT NULL,
		cpu_percent REAL,
		memory_percent REAL,
		phase_magnitude REAL,
		phase REAL,
		resonance REAL,
		PRIMARY KEY (run_id, cycle)
	);

	CREATE TABLE IF NOT EXISTS agents (
		run_id TEXT NOT NULL,
		id TEXT NOT NULL,
		energy REAL NOT NULL,
		depth INTEGER NOT NULL,
		population INTEGER NOT NULL,
		born_cycle INTEGER NOT NULL,
		PRIMARY KEY (run_id, id)
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		cycle INTEGER NOT NULL,
		kind TEXT NOT NULL,
		population INTEGER NOT NULL,
		to_population INTEGER NOT NULL,
		from_depth INTEGER NOT NULL,
		to_depth INTEGER NOT NULL,
		parents_json TEXT NOT NULL,
		children_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_run_cycle ON events(run_id, cycle);
	CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// BeginRun inserts the run row.
func (db *DB) BeginRun(ctx context.Context, run engine.RunInfo) error {
	cfgJSON, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	_, err = db.conn.ExecContext(ctx, `INSERT INTO runs
		(id, seed, depths, populations, topology, config_json, started_at, state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Seed, run.Depths, run.Populations, run.Topology,
		string(cfgJSON), run.StartedAt.UTC().Format(timeFormat), engine.Running.String(),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

// RecordCycle writes one cycle row and its events in a single transaction.
func (db *DB) RecordCycle(ctx context.Context, runID string, report engine.CycleReport) error {
	depthJSON, err := json.Marshal(report.DepthCounts)
	if err != nil {
		return fmt.Errorf("marshal depth counts: %w", err)
	}
	popJSON, err := json.Marshal(report.PopulationCounts)
	if err != nil {
		return fmt.Errorf("marshal population counts: %w", err)
	}

	var cpu, mem, mag, phase, resonance sql.NullFloat64
	if r := report.Reality; r != nil {
		cpu = sql.NullFloat64{Float64: r.Snapshot.CPUPercent, Valid: true}
		mem = sql.NullFloat64{Float64: r.Snapshot.MemoryPercent, Valid: true}
		mag = sql.NullFloat64{Float64: r.Phase.Magnitude, Valid: true}
		phase = sql.NullFloat64{Float64: r.Phase.Phase, Valid: true}
		resonance = sql.NullFloat64{Float64: r.Resonance, Valid: true}
	}
	gated := 0
	if report.ReproductionGated {
		gated = 1
	}

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO cycles
		(run_id, cycle, state, total, depth_counts_json, population_counts_json,
		 births, deaths, compositions, decompositions, migrations, gated,
		 cpu_percent, memory_percent, phase_magnitude, phase, resonance)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, report.Cycle, report.State.String(), report.Total, string(depthJSON), string(popJSON),
		report.Births, report.Deaths, report.Compositions, report.Decompositions, report.Migrations, gated,
		cpu, mem, mag, phase, resonance,
	)
	if err != nil {
		return fmt.Errorf("insert cycle %d: %w", report.Cycle, err)
	}

	if len(report.Events) > 0 {
		stmt, err := tx.PreparexContext(ctx, `INSERT INTO events
			(run_id, cycle, kind, population, to_population, from_depth, to_depth, parents_json, children_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, e := range report.Events {
			parentsJSON, err := json.Marshal(e.Parents)
			if err != nil {
				return fmt.Errorf("marshal %s parents: %w", e.Kind, err)
			}
			childrenJSON, err := json.Marshal(e.Children)
			if err != nil {
				return fmt.Errorf("marshal %s children: %w", e.Kind, err)
			}
			_, err = stmt.ExecContext(ctx,
				runID, e.Cycle, string(e.Kind), e.Population, e.ToPopulation,
				e.FromDepth, e.ToDepth, string(parentsJSON), string(childrenJSON),
			)
			if err != nil {
				return fmt.Errorf("insert %s event: %w", e.Kind, err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE runs SET cycles = ?, total = ?, state = ? WHERE id = ?",
		report.Cycle, report.Total, report.State.String(), runID,
	); err != nil {
		return fmt.Errorf("update run %s: %w", runID, err)
	}

	return tx.Commit()
}

// SaveAgents replaces the run's agent snapshot.
func (db *DB) SaveAgents(ctx context.Context, runID string, cycle uint64, live []agents.Agent) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM agents WHERE run_id = ?", runID); err != nil {
		return err
	}

	stmt, err := tx.PreparexContext(ctx, `INSERT INTO agents
		(run_id, id, energy, depth, population, born_cycle)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, a := range live {
		if _, err := stmt.ExecContext(ctx, runID, string(a.ID), a.Energy, a.Depth, a.Population, a.BornCycle); err != nil {
			return fmt.Errorf("insert agent %s: %w", a.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, "UPDATE runs SET snapshot_cycle = ? WHERE id = ?", cycle, runID); err != nil {
		return fmt.Errorf("update run %s: %w", runID, err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Debug("agent snapshot saved", "run", runID, "cycle", cycle, "agents", len(live))
	return nil
}

// FinishRun records the final state of a run.
func (db *DB) FinishRun(ctx context.Context, summary engine.RunSummary) error {
	res, err := db.conn.ExecContext(ctx,
		"UPDATE runs SET finished_at = ?, state = ?, cycles = ?, total = ? WHERE id = ?",
		summary.FinishedAt.UTC().Format(timeFormat), summary.State.String(),
		summary.Cycles, summary.Total, summary.RunID,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", summary.RunID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %s: %w", summary.RunID, ErrRunNotFound)
	}
	return nil
}

// SaveMeta stores a key-value pair.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM meta WHERE key = ?", key)
	return value, err
}

// ── Queries ─────────────────────────────────────────────────────────────

// RunRecord is one row of the runs table.
type RunRecord struct {
	ID            string         `db:"id"`
	Seed          int64          `db:"seed"`
	Depths        int            `db:"depths"`
	Populations   int            `db:"populations"`
	Topology      string         `db:"topology"`
	StartedAt     string         `db:"started_at"`
	FinishedAt    sql.NullString `db:"finished_at"`
	State         string         `db:"state"`
	Cycles        uint64         `db:"cycles"`
	Total         int            `db:"total"`
	SnapshotCycle sql.NullInt64  `db:"snapshot_cycle"`
}

const runColumns = `id, seed, depths, populations, topology, started_at, finished_at,
	state, cycles, total, snapshot_cycle`

// Runs returns the most recently started runs first.
func (db *DB) Runs(ctx context.Context, limit int) ([]RunRecord, error) {
	var runs []RunRecord
	err := db.conn.SelectContext(ctx, &runs,
		"SELECT "+runColumns+" FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?", limit)
	return runs, err
}

// Run returns one run row.
func (db *DB) Run(ctx context.Context, runID string) (RunRecord, error) {
	var run RunRecord
	err := db.conn.GetContext(ctx, &run, "SELECT "+runColumns+" FROM runs WHERE id = ?", runID)
	if errors.Is(err, sql.ErrNoRows) {
		return run, fmt.Errorf("%s: %w", runID, ErrRunNotFound)
	}
	return run, err
}

// RunConfig returns the configuration a run was started with.
func (db *DB) RunConfig(ctx context.Context, runID string) (*config.Config, error) {
	var raw string
	err := db.conn.GetContext(ctx, &raw, "SELECT config_json FROM runs WHERE id = ?", runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return nil, err
	}
	cfg := config.Default()
	if err := json.Unmarshal([]byte(raw), cfg); err != nil {
		return nil, fmt.Errorf("decode config of run %s: %w", runID, err)
	}
	return cfg, nil
}

// LoadAgents returns the run's latest agent snapshot in saved order, with the
// cycle it was taken at.
func (db *DB) LoadAgents(ctx context.Context, runID string) ([]*agents.Agent, uint64, error) {
	run, err := db.Run(ctx, runID)
	if err != nil {
		return nil, 0, err
	}
	if !run.SnapshotCycle.Valid {
		return nil, 0, fmt.Errorf("run %s has no agent snapshot", runID)
	}

	var rows []agents.Agent
	err = db.conn.SelectContext(ctx, &rows,
		"SELECT id, energy, depth, population, born_cycle FROM agents WHERE run_id = ? ORDER BY rowid",
		runID)
	if err != nil {
		return nil, 0, fmt.Errorf("load agents: %w", err)
	}
	out := make([]*agents.Agent, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out, uint64(run.SnapshotCycle.Int64), nil
}

type cycleRow struct {
	Cycle            uint64 `db:"cycle"`
	State            string `db:"state"`
	Total            int    `db:"total"`
	DepthCounts      string `db:"depth_counts_json"`
	PopulationCounts string `db:"population_counts_json"`
	Births           int    `db:"births"`
	Deaths           int    `db:"deaths"`
	Compositions     int    `db:"compositions"`
	Decompositions   int    `db:"decompositions"`
	Migrations       int    `db:"migrations"`
}

// Cycles returns the run's per-cycle statistics in cycle order.
func (db *DB) Cycles(ctx context.Context, runID string) ([]engine.CycleStats, error) {
	var rows []cycleRow
	err := db.conn.SelectContext(ctx, &rows, `SELECT cycle, state, total,
		depth_counts_json, population_counts_json,
		births, deaths, compositions, decompositions, migrations
		FROM cycles WHERE run_id = ? ORDER BY cycle`, runID)
	if err != nil {
		return nil, err
	}

	out := make([]engine.CycleStats, 0, len(rows))
	for _, r := range rows {
		st := engine.CycleStats{
			Cycle:          r.Cycle,
			Total:          r.Total,
			Births:         r.Births,
			Deaths:         r.Deaths,
			Compositions:   r.Compositions,
			Decompositions: r.Decompositions,
			Migrations:     r.Migrations,
		}
		if st.State, err = engine.ParseState(r.State); err != nil {
			return nil, fmt.Errorf("cycle %d: %w", r.Cycle, err)
		}
		if err := json.Unmarshal([]byte(r.DepthCounts), &st.DepthCounts); err != nil {
			return nil, fmt.Errorf("cycle %d depth counts: %w", r.Cycle, err)
		}
		if err := json.Unmarshal([]byte(r.PopulationCounts), &st.PopulationCounts); err != nil {
			return nil, fmt.Errorf("cycle %d population counts: %w", r.Cycle, err)
		}
		out = append(out, st)
	}
	return out, nil
}

// EventCounts returns how many events of each kind a run recorded.
func (db *DB) EventCounts(ctx context.Context, runID string) (map[engine.EventKind]int, error) {
	var rows []struct {
		Kind  string `db:"kind"`
		Count int    `db:"n"`
	}
	err := db.conn.SelectContext(ctx, &rows,
		"SELECT kind, COUNT(*) AS n FROM events WHERE run_id = ? GROUP BY kind", runID)
	if err != nil {
		return nil, err
	}
	out := make(map[engine.EventKind]int, len(rows))
	for _, r := range rows {
		out[engine.EventKind(r.Kind)] = r.Count
	}
	return out, nil
}

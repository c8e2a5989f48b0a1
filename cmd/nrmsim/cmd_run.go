package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mrdirno/nested-resonance-memory-archive-sub014/internal/agents"
	"github.com/mrdirno/nested-resonance-memory-archive-sub014/internal/config"
	"github.com/mrdirno/nested-resonance-memory-archive-sub014/internal/engine"
	"github.com/mrdirno/nested-resonance-memory-archive-sub014/internal/persistence"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one simulation",
		Long: `Run one simulation until it hits the population cap, goes extinct, or
exhausts its cycle budget. Flags override the config file.

Examples:
  nrmsim run --seed 7 --max-cycles 1000
  nrmsim run --topology scale_free --populations 8 --reality synthetic
  nrmsim run --backend sqlite --db data/nrm.db --snapshot-every 50
  nrmsim run --db data/nrm.db --resume <run-id>`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := applyRunFlags(cmd, cfg); err != nil {
				return err
			}
			resume, _ := cmd.Flags().GetString("resume")
			if resume != "" {
				// The stored run's parameters replace the config file's; flags still apply.
				if cfg, err = resumedConfig(cmd.Context(), cfg, resume); err != nil {
					return err
				}
				if err := applyRunFlags(cmd, cfg); err != nil {
					return err
				}
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			sink, err := persistence.NewSink(cfg.Persistence.Backend, cfg.Persistence.Path)
			if err != nil {
				return err
			}
			defer persistence.CloseIfSupported(sink)

			opts := []engine.Option{}
			if sink != nil {
				opts = append(opts, engine.WithSink(sink))
			}
			if resume != "" {
				restored, cycle, err := loadSnapshot(cmd.Context(), sink, resume)
				if err != nil {
					return err
				}
				opts = append(opts, engine.WithAgents(restored), engine.WithStartCycle(cycle))
			}

			sim, err := engine.NewSimulation(cfg, opts...)
			if err != nil {
				return err
			}
			eng := engine.NewEngine(sim)
			eng.Interval, _ = cmd.Flags().GetDuration("interval")

			sigCh := make(chan os.Signal, 1)
			done := make(chan struct{})
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			defer func() {
				signal.Stop(sigCh)
				close(done)
			}()
			go func() {
				select {
				case sig := <-sigCh:
					slog.Info("received signal, stopping", "signal", sig)
					eng.Stop()
				case <-done:
				}
			}()

			start := time.Now()
			state, err := eng.Run(cmd.Context())
			if err != nil {
				return err
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"run_id":  sim.RunID(),
					"state":   state,
					"cycles":  sim.Cycle(),
					"total":   sim.Total(),
					"depths":  sim.DepthCounts(),
					"history": sim.History(),
				})
			}
			printSummary(cmd.OutOrStdout(), sim, time.Since(start))
			return nil
		},
	}

	cmd.Flags().Int64("seed", 0, "Random seed")
	cmd.Flags().Uint64("max-cycles", 0, "Cycle budget")
	cmd.Flags().Int("depths", 0, "Number of hierarchy levels")
	cmd.Flags().Int("cap", 0, "Population cap")
	cmd.Flags().String("topology", "", "Population graph: none, fully_connected, ring, star, random, scale_free")
	cmd.Flags().Int("populations", 0, "Number of populations (graph nodes)")
	cmd.Flags().String("reality", "", "Telemetry source: none, synthetic, host")
	cmd.Flags().String("backend", "", "Persistence backend: none, memory, sqlite")
	cmd.Flags().String("db", "", "SQLite database path (implies --backend sqlite)")
	cmd.Flags().Uint64("snapshot-every", 0, "Save the agent set every N cycles")
	cmd.Flags().Duration("interval", 0, "Minimum wall time per cycle")
	cmd.Flags().String("resume", "", "Continue from the latest agent snapshot of a stored run")
	cmd.Flags().Bool("json", false, "Print the result as JSON")
	return cmd
}

// applyRunFlags copies explicitly set flags over cfg.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	if f.Changed("seed") {
		cfg.Simulation.Seed, _ = f.GetInt64("seed")
	}
	if f.Changed("max-cycles") {
		cfg.Simulation.MaxCycles, _ = f.GetUint64("max-cycles")
	}
	if f.Changed("depths") {
		cfg.Simulation.Depths, _ = f.GetInt("depths")
	}
	if f.Changed("cap") {
		cfg.Simulation.PopulationCap, _ = f.GetInt("cap")
	}
	if f.Changed("topology") {
		cfg.Topology.Kind, _ = f.GetString("topology")
	}
	if f.Changed("populations") {
		cfg.Topology.Populations, _ = f.GetInt("populations")
	}
	if f.Changed("reality") {
		cfg.Reality.Source, _ = f.GetString("reality")
	}
	if f.Changed("backend") {
		cfg.Persistence.Backend, _ = f.GetString("backend")
	}
	if f.Changed("db") {
		cfg.Persistence.Path, _ = f.GetString("db")
		if !f.Changed("backend") {
			cfg.Persistence.Backend = "sqlite"
		}
	}
	if f.Changed("snapshot-every") {
		cfg.Persistence.SnapshotEvery, _ = f.GetUint64("snapshot-every")
	}
	if f.Changed("resume") && cfg.Persistence.Backend != "sqlite" {
		return fmt.Errorf("--resume needs the sqlite backend")
	}
	return nil
}

// resumedConfig returns the stored run's parameters with the current
// persistence and logging settings.
func resumedConfig(ctx context.Context, current *config.Config, runID string) (*config.Config, error) {
	db, err := persistence.Open(current.Persistence.Path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	stored, err := db.RunConfig(ctx, runID)
	if err != nil {
		return nil, err
	}
	stored.Persistence = current.Persistence
	stored.Logging = current.Logging
	return stored, nil
}

func loadSnapshot(ctx context.Context, sink engine.PersistenceSink, runID string) ([]*agents.Agent, uint64, error) {
	db, ok := sink.(*persistence.DB)
	if !ok {
		return nil, 0, fmt.Errorf("--resume needs the sqlite backend")
	}
	restored, cycle, err := db.LoadAgents(ctx, runID)
	if err != nil {
		return nil, 0, err
	}
	slog.Info("resuming run", "from", runID, "cycle", cycle, "agents", len(restored))
	return restored, cycle, nil
}

func printSummary(w io.Writer, sim *engine.Simulation, elapsed time.Duration) {
	fmt.Fprintf(w, "run %s\n", sim.RunID())
	fmt.Fprintf(w, "  state:   %s\n", sim.State())
	fmt.Fprintf(w, "  cycles:  %s (%s)\n", humanize.Comma(int64(sim.Cycle())), elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "  agents:  %s\n", humanize.Comma(int64(sim.Total())))

	counts := sim.DepthCounts()
	parts := make([]string, len(counts))
	for d, n := range counts {
		parts[d] = fmt.Sprintf("d%d=%s", d, humanize.Comma(int64(n)))
	}
	fmt.Fprintf(w, "  depths:  %s\n", strings.Join(parts, " "))

	if pops := sim.PopulationCounts(); len(pops) > 1 {
		for p, row := range pops {
			n := 0
			for _, c := range row {
				n += c
			}
			fmt.Fprintf(w, "  pop %-3d %s\n", p, humanize.Comma(int64(n)))
		}
	}

	var births, deaths, comps, decomps, migrations int
	for _, st := range sim.History() {
		births += st.Births
		deaths += st.Deaths
		comps += st.Compositions
		decomps += st.Decompositions
		migrations += st.Migrations
	}
	fmt.Fprintf(w, "  events:  %s births, %s deaths, %s compositions, %s decompositions, %s migrations\n",
		humanize.Comma(int64(births)), humanize.Comma(int64(deaths)),
		humanize.Comma(int64(comps)), humanize.Comma(int64(decomps)), humanize.Comma(int64(migrations)))
}

package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5, cfg.Simulation.Depths)
	assert.Equal(t, 0.85, cfg.Composition.Efficiency)
	assert.Equal(t, 0.45, cfg.Decomposition.Efficiency)
	assert.Equal(t, 1, cfg.Populations())
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"one depth", func(c *Config) { c.Simulation.Depths = 1 }, "simulation.depths"},
		{"zero cap", func(c *Config) { c.Simulation.PopulationCap = 0 }, "simulation.population_cap"},
		{"negative probability", func(c *Config) { c.Metabolism.ReproductionProbability = -0.1 }, "metabolism.reproduction_probability"},
		{"probability above one", func(c *Config) { c.Metabolism.ReproductionProbability = 1.2 }, "metabolism.reproduction_probability"},
		{"zero recharge", func(c *Config) { c.Metabolism.RechargeRate = 0 }, "metabolism.recharge_rate"},
		{"negative decay", func(c *Config) { c.Metabolism.DecayRate = -1 }, "metabolism.decay_rate"},
		{"cost above threshold", func(c *Config) { c.Metabolism.ReproductionCost = 1.0 }, "metabolism.reproduction_cost"},
		{"group of one", func(c *Config) { c.Composition.GroupSize = 1 }, "composition.group_size"},
		{"threshold above one", func(c *Config) { c.Composition.Threshold = 1.5 }, "composition.threshold"},
		{"too many ceilings", func(c *Config) { c.Metabolism.DepthCeilings = make([]float64, 6) }, "metabolism.depth_ceilings"},
		{"unknown topology", func(c *Config) { c.Topology.Kind = "torus" }, "topology.kind"},
		{"ring of one", func(c *Config) { c.Topology.Kind = "ring"; c.Topology.Populations = 1 }, "topology.populations"},
		{"migration above one", func(c *Config) {
			c.Topology.Kind = "star"
			c.Topology.Populations = 4
			c.Topology.MigrationFrequency = 2
		}, "topology.migration_frequency"},
		{"attachment too large", func(c *Config) {
			c.Topology.Kind = "scale_free"
			c.Topology.Populations = 3
			c.Topology.Attachment = 3
		}, "topology.attachment"},
		{"unknown reality source", func(c *Config) { c.Reality.Source = "sensors" }, "reality.source"},
		{"sqlite without path", func(c *Config) { c.Persistence.Backend = "sqlite"; c.Persistence.Path = "" }, "persistence.path"},
		{"unknown backend", func(c *Config) { c.Persistence.Backend = "postgres" }, "persistence.backend"},
		{"unknown log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"NaN threshold", func(c *Config) { c.Composition.Threshold = math.NaN() }, "composition.threshold"},
		{"NaN recharge", func(c *Config) { c.Metabolism.RechargeRate = math.NaN() }, "metabolism.recharge_rate"},
		{"NaN decay", func(c *Config) { c.Metabolism.DecayRate = math.NaN() }, "metabolism.decay_rate"},
		{"NaN efficiency", func(c *Config) { c.Decomposition.Efficiency = math.NaN() }, "decomposition.efficiency"},
		{"NaN spawn threshold", func(c *Config) { c.Metabolism.SpawnThreshold = math.NaN() }, "metabolism.reproduction_cost"},
		{"NaN cpu bound", func(c *Config) { c.Reality.MaxCPUPercent = math.NaN() }, "reality.max_cpu_percent"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)

			var ce *ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestPopulationsFollowTopology(t *testing.T) {
	cfg := Default()
	cfg.Topology.Populations = 6
	assert.Equal(t, 1, cfg.Populations())

	cfg.Topology.Kind = "ring"
	assert.Equal(t, 6, cfg.Populations())
}

func TestCeilingAt(t *testing.T) {
	cfg := Default()
	cfg.Metabolism.DepthCeilings = []float64{0, 3.5}

	assert.Equal(t, 2.0, cfg.CeilingAt(0))
	assert.Equal(t, 3.5, cfg.CeilingAt(1))
	assert.Equal(t, 2.0, cfg.CeilingAt(4))
}

func TestLoadFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	yaml := `
simulation:
  depths: 4
  seed: 7
  max_cycles: 50
composition:
  threshold: 0.99
  group_size: 3
topology:
  kind: scale_free
  populations: 8
  attachment: 2
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Simulation.Depths)
	assert.Equal(t, int64(7), cfg.Simulation.Seed)
	assert.Equal(t, uint64(50), cfg.Simulation.MaxCycles)
	assert.Equal(t, 0.99, cfg.Composition.Threshold)
	assert.Equal(t, 3, cfg.Composition.GroupSize)
	assert.Equal(t, 8, cfg.Populations())
	// Untouched fields keep their defaults.
	assert.Equal(t, 0.85, cfg.Composition.Efficiency)
	assert.Equal(t, 3000, cfg.Simulation.PopulationCap)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("simulation:\n  depths: 1\n"), 0644))

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvSeed, "99")
	t.Setenv(EnvMaxCycles, "12")
	t.Setenv(EnvLogLevel, "DEBUG")
	t.Setenv(EnvDBPath, filepath.Join(t.TempDir(), "x.db"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, int64(99), cfg.Simulation.Seed)
	assert.Equal(t, uint64(12), cfg.Simulation.MaxCycles)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "sqlite", cfg.Persistence.Backend)
}

func TestEnvOverrideParseError(t *testing.T) {
	t.Setenv(EnvSeed, "forty-two")
	_, err := Load("")
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := Default()
	cfg.Topology.Kind = "ring"
	cfg.Topology.Populations = 5
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

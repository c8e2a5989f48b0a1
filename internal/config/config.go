// Package config loads simulation parameters from YAML files and environment
// variables and validates them before a run starts.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mrdirno/nested-resonance-memory-archive-sub014/internal/topology"
)

// Config holds every tunable of one simulation run.
type Config struct {
	Simulation    SimulationConfig    `json:"simulation" yaml:"simulation"`
	Composition   CompositionConfig   `json:"composition" yaml:"composition"`
	Decomposition DecompositionConfig `json:"decomposition" yaml:"decomposition"`
	Metabolism    MetabolismConfig    `json:"metabolism" yaml:"metabolism"`
	Topology      TopologyConfig      `json:"topology" yaml:"topology"`
	Reality       RealityConfig       `json:"reality" yaml:"reality"`
	Persistence   PersistenceConfig   `json:"persistence" yaml:"persistence"`
	Logging       LoggingConfig       `json:"logging" yaml:"logging"`
}

// SimulationConfig covers the driver: hierarchy height, budget, cap and seed.
type SimulationConfig struct {
	// Depths is the number of hierarchy levels D; depths run 0..D-1.
	Depths int `json:"depths" yaml:"depths"`

	// MaxCycles is the cycle budget. Running out is not a terminal state.
	MaxCycles uint64 `json:"max_cycles" yaml:"max_cycles"`

	// PopulationCap stops the run once the live total reaches it.
	PopulationCap int `json:"population_cap" yaml:"population_cap"`

	// Seed seeds the single random stream of the run.
	Seed int64 `json:"seed" yaml:"seed"`

	// InitialAgents is the number of depth-0 agents placed in each population at cycle 0.
	InitialAgents int `json:"initial_agents" yaml:"initial_agents"`

	// InitialEnergy is the starting energy of every initial agent.
	InitialEnergy float64 `json:"initial_energy" yaml:"initial_energy"`

	// ReportEvery logs a summary every N cycles (0 disables).
	ReportEvery uint64 `json:"report_every" yaml:"report_every"`
}

// CompositionConfig tunes the resonance merge.
type CompositionConfig struct {
	// Threshold is the minimum resonance for a window to merge.
	Threshold float64 `json:"threshold" yaml:"threshold"`

	// Efficiency scales the summed energy of the merged agents.
	Efficiency float64 `json:"efficiency" yaml:"efficiency"`

	// GroupSize is how many adjacent agents merge into one (2 = pairwise).
	GroupSize int `json:"group_size" yaml:"group_size"`
}

// DecompositionConfig tunes the overflow split.
type DecompositionConfig struct {
	// Threshold is the energy above which an agent splits.
	Threshold float64 `json:"threshold" yaml:"threshold"`

	// Efficiency is the fraction of parent energy each of the two children receives.
	Efficiency float64 `json:"efficiency" yaml:"efficiency"`
}

// MetabolismConfig tunes recharge, decay and reproduction.
type MetabolismConfig struct {
	RechargeRate float64 `json:"recharge_rate" yaml:"recharge_rate"`
	DecayRate    float64 `json:"decay_rate" yaml:"decay_rate"`
	DecayScale   float64 `json:"decay_scale" yaml:"decay_scale"`

	// EnergyCeiling caps recharge at every depth without an override.
	EnergyCeiling float64 `json:"energy_ceiling" yaml:"energy_ceiling"`

	// DepthCeilings optionally overrides EnergyCeiling per depth (index = depth).
	DepthCeilings []float64 `json:"depth_ceilings,omitempty" yaml:"depth_ceilings,omitempty"`

	SpawnThreshold          float64 `json:"spawn_threshold" yaml:"spawn_threshold"`
	ReproductionProbability float64 `json:"reproduction_probability" yaml:"reproduction_probability"`
	SeedEnergy              float64 `json:"seed_energy" yaml:"seed_energy"`
	ReproductionCost        float64 `json:"reproduction_cost" yaml:"reproduction_cost"`
}

// TopologyConfig selects the multi-population variant.
type TopologyConfig struct {
	// Kind is "none" for a single population, or one of topology.Kinds.
	Kind string `json:"kind" yaml:"kind"`

	// Populations is the number of graph nodes (ignored for "none").
	Populations int `json:"populations" yaml:"populations"`

	EdgeProbability    float64 `json:"edge_probability" yaml:"edge_probability"`
	Attachment         int     `json:"attachment" yaml:"attachment"`
	MigrationFrequency float64 `json:"migration_frequency" yaml:"migration_frequency"`
}

// RealityConfig selects the telemetry source and the reproduction gate.
type RealityConfig struct {
	// Source is "none", "synthetic" or "host".
	Source string `json:"source" yaml:"source"`

	// MaxCPUPercent and MaxMemoryPercent close the reproduction gate when
	// exceeded. Zero disables a bound.
	MaxCPUPercent    float64 `json:"max_cpu_percent" yaml:"max_cpu_percent"`
	MaxMemoryPercent float64 `json:"max_memory_percent" yaml:"max_memory_percent"`
}

// PersistenceConfig selects the optional end-of-cycle sink.
type PersistenceConfig struct {
	// Backend is "none", "memory" or "sqlite".
	Backend string `json:"backend" yaml:"backend"`

	// Path is the SQLite database file.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// SnapshotEvery writes the full agent set every N cycles (0 disables).
	SnapshotEvery uint64 `json:"snapshot_every" yaml:"snapshot_every"`
}

// LoggingConfig configures operational logging.
type LoggingConfig struct {
	// Level is "info" (default), "debug" or "trace".
	Level string `json:"level" yaml:"level"`
}

// Default returns the reference parameter set.
func Default() *Config {
	return &Config{
		Simulation: SimulationConfig{
			Depths:        5,
			MaxCycles:     500,
			PopulationCap: 3000,
			Seed:          42,
			InitialAgents: 20,
			InitialEnergy: 1.0,
			ReportEvery:   100,
		},
		Composition: CompositionConfig{
			Threshold:  0.5,
			Efficiency: 0.85,
			GroupSize:  2,
		},
		Decomposition: DecompositionConfig{
			Threshold:  1.3,
			Efficiency: 0.45,
		},
		Metabolism: MetabolismConfig{
			RechargeRate:            0.1,
			DecayRate:               0.02,
			DecayScale:              0.1,
			EnergyCeiling:           2.0,
			SpawnThreshold:          1.0,
			ReproductionProbability: 0.1,
			SeedEnergy:              0.5,
			ReproductionCost:        0.3,
		},
		Topology: TopologyConfig{
			Kind:               string(topology.KindNone),
			Populations:        1,
			EdgeProbability:    0.3,
			Attachment:         2,
			MigrationFrequency: 0.01,
		},
		Reality: RealityConfig{
			Source: "none",
		},
		Persistence: PersistenceConfig{
			Backend: "none",
			Path:    "data/nrm.db",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads defaults, then the YAML file at path (if non-empty), then NRM_*
// environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.LoadFromFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile merges the YAML file at path over the current values.
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Environment variables recognised by applyEnvOverrides.
const (
	EnvSeed      = "NRM_SEED"
	EnvMaxCycles = "NRM_MAX_CYCLES"
	EnvLogLevel  = "NRM_LOG_LEVEL"
	EnvDBPath    = "NRM_DB_PATH"
)

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv(EnvSeed); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvSeed, err)
		}
		c.Simulation.Seed = seed
	}
	if v := os.Getenv(EnvMaxCycles); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxCycles, err)
		}
		c.Simulation.MaxCycles = n
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		c.Persistence.Path = v
		if c.Persistence.Backend == "" || c.Persistence.Backend == "none" {
			c.Persistence.Backend = "sqlite"
		}
	}
	return nil
}

// Populations returns the number of populations the run uses.
func (c *Config) Populations() int {
	if c.Topology.Kind == "" || c.Topology.Kind == string(topology.KindNone) {
		return 1
	}
	return c.Topology.Populations
}

// CeilingAt returns the recharge ceiling for depth d.
func (c *Config) CeilingAt(d int) float64 {
	if d >= 0 && d < len(c.Metabolism.DepthCeilings) && c.Metabolism.DepthCeilings[d] > 0 {
		return c.Metabolism.DepthCeilings[d]
	}
	return c.Metabolism.EnergyCeiling
}

// Save writes the config as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// ErrInvalidConfig is wrapped by every ConfigError.
var ErrInvalidConfig = errors.New("invalid configuration")

// ConfigError names the offending field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }

func invalid(field, format string, args ...any) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

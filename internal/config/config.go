// Package config provides configuration loading for the schelling
// simulator. It supports YAML files with sensible defaults mirroring the
// classic model parameters.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/talgya/schelling/internal/sim"
)

// Config contains all simulator settings.
type Config struct {
	Grid       GridConfig       `yaml:"grid"`
	Population PopulationConfig `yaml:"population"`
	Run        RunConfig        `yaml:"run"`
	Database   DatabaseConfig   `yaml:"database"`
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// GridConfig sets the lattice dimensions.
type GridConfig struct {
	NX int `yaml:"nx"`
	NY int `yaml:"ny"`
}

// PopulationConfig sets group structure and the happiness rule.
type PopulationConfig struct {
	// Groups is the number of population groups.
	Groups int `yaml:"groups"`

	// Breakdown[i] is the fraction of cells seeded with group i. Must sum
	// to at most 1; the remainder stays vacant.
	Breakdown []float64 `yaml:"breakdown"`

	// HappinessThreshold is the minimum same-group fraction among occupied
	// neighbors an agent tolerates.
	HappinessThreshold float64 `yaml:"happiness_threshold"`

	// ThresholdField optionally replaces the uniform threshold with a
	// spatially varying one.
	ThresholdField ThresholdFieldConfig `yaml:"threshold_field"`
}

// ThresholdFieldConfig configures per-agent threshold assignment.
type ThresholdFieldConfig struct {
	// Mode is "uniform" (default) or "noise".
	Mode string `yaml:"mode"`

	// Scale is the noise frequency in grid units (noise mode only).
	Scale float64 `yaml:"scale"`

	// Min and Max bound the thresholds the noise field produces.
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// RunConfig controls the step loop.
type RunConfig struct {
	MaxSteps int   `yaml:"max_steps"`
	Seed     int64 `yaml:"seed"` // 0 = random seed each run.

	// SnapshotEvery persists a grid snapshot every N steps (0 = final
	// snapshot only).
	SnapshotEvery int `yaml:"snapshot_every"`
}

// DatabaseConfig locates the run-history store.
type DatabaseConfig struct {
	// Path to the SQLite file. Empty disables persistence.
	Path string `yaml:"path"`
}

// ServerConfig configures the HTTP observation API.
type ServerConfig struct {
	Port int `yaml:"port"`

	// AdminKey is the bearer token for POST endpoints. Empty = POST
	// disabled.
	AdminKey string `yaml:"admin_key"`

	// StepInterval is the pacing between automatic steps in serve mode,
	// in milliseconds.
	StepIntervalMS int `yaml:"step_interval_ms"`
}

// LoggingConfig sets the log verbosity: "debug", "info" (default), "warn",
// or "error".
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the reference configuration: a 50x50 grid, two groups at
// 45% each, threshold 0.3, at most 100 steps.
func Default() *Config {
	return &Config{
		Grid: GridConfig{NX: 50, NY: 50},
		Population: PopulationConfig{
			Groups:             2,
			Breakdown:          []float64{0.45, 0.45},
			HappinessThreshold: 0.3,
			ThresholdField:     ThresholdFieldConfig{Mode: "uniform"},
		},
		Run: RunConfig{
			MaxSteps:      sim.DefaultMaxSteps,
			SnapshotEvery: 10,
		},
		Database: DatabaseConfig{Path: "data/schelling.db"},
		Server: ServerConfig{
			Port:           8080,
			StepIntervalMS: 1000,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads a YAML config file over the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// SimParams translates the configuration into simulation parameters,
// including the optional noise threshold field.
func (c *Config) SimParams() (sim.Params, error) {
	p := sim.Params{
		NX:        c.Grid.NX,
		NY:        c.Grid.NY,
		NGroups:   c.Population.Groups,
		Breakdown: c.Population.Breakdown,
		Threshold: c.Population.HappinessThreshold,
		MaxSteps:  c.Run.MaxSteps,
		Seed:      c.Run.Seed,
	}

	switch c.Population.ThresholdField.Mode {
	case "", "uniform":
		// Uniform threshold, nothing to build.
	case "noise":
		tf := c.Population.ThresholdField
		if tf.Min < 0 || tf.Max > 1 || tf.Min > tf.Max {
			return sim.Params{}, fmt.Errorf("threshold_field bounds [%g, %g] invalid", tf.Min, tf.Max)
		}
		if tf.Scale <= 0 {
			return sim.Params{}, fmt.Errorf("threshold_field scale must be positive, got %g", tf.Scale)
		}
		// Offset the seed so the field does not mirror placement draws.
		p.Thresholds = sim.NewNoiseThreshold(c.Run.Seed+1, tf.Scale, tf.Min, tf.Max)
	default:
		return sim.Params{}, fmt.Errorf("unknown threshold_field mode %q", c.Population.ThresholdField.Mode)
	}

	if err := p.Validate(); err != nil {
		return sim.Params{}, err
	}
	return p, nil
}

// Validate checks the full configuration, including the parts the
// simulation core does not see.
func (c *Config) Validate() error {
	if _, err := c.SimParams(); err != nil {
		return err
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Run.SnapshotEvery < 0 {
		return fmt.Errorf("snapshot_every must not be negative, got %d", c.Run.SnapshotEvery)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	return nil
}

// Package config resolves schedcheck settings from defaults, an optional
// YAML file, an optional .env file and SCHEDCHECK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/joshharrison/schedcheck/internal/report"
	"github.com/joshharrison/schedcheck/internal/rta"
	"github.com/joshharrison/schedcheck/internal/sim"
	"github.com/joshharrison/schedcheck/internal/taskset"
)

// Dir is the per-project directory holding the config file and history database.
const Dir = ".schedcheck"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SCHEDCHECK_"

// Config holds schedcheck configuration.
type Config struct {
	// DBPath is the SQLite history database.
	DBPath string `yaml:"db_path"`
	// Discipline is the default scheduling discipline: rm or edf.
	Discipline string `yaml:"discipline"`
	// Priorities is the default priority policy: auto, explicit, rm or dm.
	Priorities string `yaml:"priorities"`
	// AllowConstrained accepts D != T under EDF with the sufficient-only test.
	AllowConstrained bool `yaml:"allow_constrained"`
	// MaxIterations caps the RTA fixed-point iteration per task.
	MaxIterations int `yaml:"max_iterations"`
	// MaxParallel bounds concurrent analyses in batch mode.
	MaxParallel int `yaml:"max_parallel"`
	// ProfilerBin is the external WCET profiler; empty disables measurement.
	ProfilerBin string `yaml:"profiler_bin"`
	// ProfilerWindow is how long the profiler observes each task.
	ProfilerWindow time.Duration `yaml:"profiler_window"`
	// Addr is the listen address for `schedcheck serve`.
	Addr string `yaml:"addr"`
	// SimMaxHorizon bounds the hyperperiod the simulator accepts.
	SimMaxHorizon int64 `yaml:"sim_max_horizon"`
}

// DefaultPath returns the config file path used when none is given.
func DefaultPath() string {
	return filepath.Join(Dir, "config.yaml")
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		DBPath:         filepath.Join(Dir, "history.db"),
		Discipline:     string(report.RateMonotonic),
		Priorities:     string(taskset.PolicyAuto),
		MaxIterations:  rta.DefaultMaxIterations,
		MaxParallel:    4,
		ProfilerWindow: 10 * time.Second,
		Addr:           ":8080",
		SimMaxHorizon:  sim.DefaultMaxHorizon,
	}
}

// Load builds the configuration. A missing file at the default path is not
// an error; a missing file named explicitly is. Environment variables, after
// loading envFile if it exists, override the file.
func Load(path, envFile string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if err := cfg.loadFile(path, explicit); err != nil {
		return nil, err
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	str("DB", &c.DBPath)
	str("DISCIPLINE", &c.Discipline)
	str("PRIORITIES", &c.Priorities)
	str("PROFILER", &c.ProfilerBin)
	str("ADDR", &c.Addr)

	if v, ok := lookup(EnvPrefix + "ALLOW_CONSTRAINED"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sALLOW_CONSTRAINED: %w", EnvPrefix, err)
		}
		c.AllowConstrained = b
	}
	if v, ok := lookup(EnvPrefix + "MAX_ITERATIONS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sMAX_ITERATIONS: %w", EnvPrefix, err)
		}
		c.MaxIterations = n
	}
	if v, ok := lookup(EnvPrefix + "MAX_PARALLEL"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sMAX_PARALLEL: %w", EnvPrefix, err)
		}
		c.MaxParallel = n
	}
	if v, ok := lookup(EnvPrefix + "PROFILER_WINDOW"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sPROFILER_WINDOW: %w", EnvPrefix, err)
		}
		c.ProfilerWindow = d
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if _, err := report.ParseDiscipline(c.Discipline); err != nil {
		return err
	}
	if _, err := taskset.ParsePolicy(c.Priorities); err != nil {
		return err
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be at least 1")
	}
	if c.MaxParallel < 1 {
		return fmt.Errorf("max_parallel must be at least 1")
	}
	if c.ProfilerWindow <= 0 {
		return fmt.Errorf("profiler_window must be positive")
	}
	if c.SimMaxHorizon < 1 {
		return fmt.Errorf("sim_max_horizon must be at least 1")
	}
	return nil
}

// Save writes cfg as YAML, creating parent directories if needed.
func Save(path string, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Package config loads shufflebench's YAML configuration, grounded on the
// teacher's Load/Save/Validate triad and env-expansion idiom.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level shape every section of a shuffle run reads
// from: one block per Topology Oracle / Aggregator Elector / Shuffle
// Engine / experiment-driver concern.
type Config struct {
	Framework   FrameworkConfig   `yaml:"framework"`
	Topology    TopologyConfig    `yaml:"topology"`
	Aggregation AggregationConfig `yaml:"aggregation"`
	Shuffle     ShuffleConfig     `yaml:"shuffle"`
	Execution   ExecutionConfig   `yaml:"execution"`
	Reporting   ReportingConfig   `yaml:"reporting"`
}

// FrameworkConfig contains general framework settings.
type FrameworkConfig struct {
	Version   string `yaml:"version"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// TopologyConfig configures the Topology Oracle (spec §4.1).
type TopologyConfig struct {
	// Mode names "static" (procs-per-node + assignment mode) or "dynamic"
	// (locality all-gather) discovery. It is not read: the run and sweep
	// commands always build a static topology.
	Mode         string `yaml:"mode"`
	ProcsPerNode int    `yaml:"procs_per_node"`
	Assignment   string `yaml:"assignment"` // "contiguous" | "round-robin"
}

// AggregationConfig configures the Aggregator Elector and Binder (spec
// §4.2-4.3).
type AggregationConfig struct {
	K        int    `yaml:"k"`         // desired global aggregator count
	Policy   string `yaml:"policy"`    // election policy
	Co       int    `yaml:"co"`        // per-node local-aggregator cap
	BindMode string `yaml:"bind_mode"` // "spread" | "cover"
}

// ShuffleConfig configures the Shuffle Engine (spec §4.4).
type ShuffleConfig struct {
	Variant     string `yaml:"variant"`
	Throttle    int    `yaml:"throttle"`
	BarrierType string `yaml:"barrier_type"`
	TAM         string `yaml:"tam"` // "" (disabled) | "message" | "window"
}

// ExecutionConfig configures the experiment driver: how many independent
// experiments to run, how many inner repeats per experiment, and the
// data-size unit (spec §6.3's -i/-k/-d flags).
type ExecutionConfig struct {
	Experiments int `yaml:"experiments"`
	Repeats     int `yaml:"repeats"`
	DataSize    int `yaml:"data_size"`
}

// ReportingConfig configures where and how round metrics are written
// (spec §6.4).
type ReportingConfig struct {
	OutputDir string `yaml:"output_dir"`
	KeepLastN int     `yaml:"keep_last_n"`
	CSVFile   string  `yaml:"csv_file"`
}

// DefaultConfig returns the configuration a bare `shufflebench run` uses
// when no file or flag overrides anything.
func DefaultConfig() *Config {
	return &Config{
		Framework: FrameworkConfig{
			Version:   "v1",
			LogLevel:  "info",
			LogFormat: "text",
		},
		Topology: TopologyConfig{
			Mode:         "static",
			ProcsPerNode: 4,
			Assignment:   "contiguous",
		},
		Aggregation: AggregationConfig{
			K:        1,
			Policy:   "contiguous",
			Co:       1,
			BindMode: "cover",
		},
		Shuffle: ShuffleConfig{
			Variant:     "all_to_many",
			Throttle:    0,
			BarrierType: "none",
		},
		Execution: ExecutionConfig{
			Experiments: 1,
			Repeats:     1,
			DataSize:    1024,
		},
		Reporting: ReportingConfig{
			OutputDir: "./reports",
			KeepLastN: 50,
			CSVFile:   "results.csv",
		},
	}
}

// Load loads configuration from a YAML file, falling back to
// DefaultConfig when path does not exist, mirroring the teacher's
// missing-file-falls-back-to-defaults idiom. Environment variables in the
// file are expanded before parsing.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = "shufflebench.yaml"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	expanded := []byte(os.ExpandEnv(string(data)))
	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Save writes configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks the cross-section invariants spec §7's InvalidConfig
// kind covers before a run starts.
func (c *Config) Validate() error {
	if c.Topology.ProcsPerNode < 1 {
		return fmt.Errorf("topology.procs_per_node must be >= 1")
	}
	if c.Aggregation.K < 1 {
		return fmt.Errorf("aggregation.k must be >= 1")
	}
	if c.Aggregation.Co < 1 {
		return fmt.Errorf("aggregation.co must be >= 1")
	}
	if c.Shuffle.Variant == "" {
		return fmt.Errorf("shuffle.variant is required")
	}
	if c.Execution.Experiments < 1 {
		return fmt.Errorf("execution.experiments must be >= 1")
	}
	if c.Execution.Repeats < 1 {
		return fmt.Errorf("execution.repeats must be >= 1")
	}
	if c.Reporting.OutputDir == "" {
		return fmt.Errorf("reporting.output_dir is required")
	}
	return nil
}

// experimentTimeout bounds how long the driver waits for one experiment's
// barrier-separated rounds to complete before treating it as hung. The
// original source had no such limit; the harness-imposed deadline spec
// §7 calls for is expressed here.
const experimentTimeout = 5 * time.Minute

// ExperimentTimeout returns the deadline a single experiment's rounds
// must complete within.
func ExperimentTimeout() time.Duration { return experimentTimeout }

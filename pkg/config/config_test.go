package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadExpandsEnvAndOverrides(t *testing.T) {
	t.Setenv("SHUFFLEBENCH_TEST_POLICY", "stride")
	path := filepath.Join(t.TempDir(), "shufflebench.yaml")
	data := []byte("aggregation:\n  k: 4\n  policy: \"${SHUFFLEBENCH_TEST_POLICY}\"\n  co: 2\n  bind_mode: spread\n")
	require.NoError(t, os.WriteFile(path, data, 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Aggregation.K)
	assert.Equal(t, "stride", cfg.Aggregation.Policy)
	assert.Equal(t, 2, cfg.Aggregation.Co)
	// Fields not set in the file keep their defaults.
	assert.Equal(t, "all_to_many", cfg.Shuffle.Variant)
}

func TestSaveRoundTrips(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Execution.Experiments = 7
	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.Execution.Experiments)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"procs_per_node", func(c *Config) { c.Topology.ProcsPerNode = 0 }},
		{"aggregation_k", func(c *Config) { c.Aggregation.K = 0 }},
		{"aggregation_co", func(c *Config) { c.Aggregation.Co = 0 }},
		{"shuffle_variant", func(c *Config) { c.Shuffle.Variant = "" }},
		{"experiments", func(c *Config) { c.Execution.Experiments = 0 }},
		{"repeats", func(c *Config) { c.Execution.Repeats = 0 }},
		{"output_dir", func(c *Config) { c.Reporting.OutputDir = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestExperimentTimeoutIsPositive(t *testing.T) {
	assert.Greater(t, ExperimentTimeout().Seconds(), 0.0)
}

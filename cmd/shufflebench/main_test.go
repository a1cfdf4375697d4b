package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRootCommandHasSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["run"])
	assert.True(t, names["sweep"])
}

func TestRunCommandFlagDefaults(t *testing.T) {
	flags := runCmd.Flags()
	n, err := flags.GetInt("world")
	assert.NoError(t, err)
	assert.Equal(t, 8, n)

	method, err := flags.GetString("method")
	assert.NoError(t, err)
	assert.Equal(t, "all_to_many", method)
}

func TestRunCommandBarrierFlagDefault(t *testing.T) {
	flags := runCmd.Flags()
	barrier, err := flags.GetString("barrier")
	assert.NoError(t, err)
	assert.Equal(t, "none", barrier)
}

func TestSweepCommandFlagDefaults(t *testing.T) {
	flags := sweepCmd.Flags()
	policy, err := flags.GetString("policy")
	assert.NoError(t, err)
	assert.Equal(t, "contiguous", policy)
}

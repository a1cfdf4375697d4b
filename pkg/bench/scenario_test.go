package bench

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenarioValid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sweep.yaml")
	data := []byte(`
apiVersion: v1
kind: ShuffleSweep
metadata:
  name: smoke
  description: small smoke sweep
spec:
  world_sizes: [4, 8]
  aggregator_counts: [1, 2]
  data_sizes: [64, 1024]
  policies: ["contiguous", "stride"]
  repeats: 3
`)
	require.NoError(t, os.WriteFile(path, data, 0644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "smoke", s.Metadata.Name)
	assert.Equal(t, []int{4, 8}, s.Spec.WorldSizes)
	assert.Equal(t, 3, s.Spec.Repeats)
}

func TestValidatorRejectsBadScenario(t *testing.T) {
	s := &Scenario{
		Spec: ScenarioSpec{
			WorldSizes:      nil,
			AggregatorCount: []int{100},
			Policies:        []string{"nonsense"},
			Variants:        []string{"nonsense_variant"},
			Repeats:         -1,
		},
	}
	v := NewValidator()
	err := v.Validate(s)
	assert.Error(t, err)
	assert.NotEmpty(t, v.Errors)
}

func TestValidatorAcceptsKnownVariant(t *testing.T) {
	s := &Scenario{
		Spec: ScenarioSpec{
			WorldSizes: []int{4},
			Policies:   []string{"contiguous"},
			Variants:   []string{"all_to_many", "tam"},
			Repeats:    1,
		},
	}
	v := NewValidator()
	assert.NoError(t, v.Validate(s))
}

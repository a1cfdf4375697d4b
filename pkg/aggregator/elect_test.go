package aggregator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jihwankim/shufflebench/pkg/topology"
)

func TestElectContiguous(t *testing.T) {
	res, err := Elect(8, 4, Contiguous, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, res.Global)
}

func TestElectStrideMatchesScenario2(t *testing.T) {
	// spec §8 scenario 2: 16 ranks, K=2, stride -> aggregators at {0, 8}.
	res, err := Elect(16, 2, Stride, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 8}, res.Global)
}

func TestElectInvalid(t *testing.T) {
	_, err := Elect(8, 0, Contiguous, nil)
	require.Error(t, err)
	_, err = Elect(8, 9, Contiguous, nil)
	require.Error(t, err)
	_, err = Elect(8, 2, RoundRobinAcrossNode, nil)
	require.Error(t, err)
}

func TestElectRoundRobinAcrossNodes(t *testing.T) {
	topo, err := topology.NewStatic(8, 2, topology.Contiguous)
	require.NoError(t, err)
	res, err := Elect(8, 4, RoundRobinAcrossNode, topo)
	require.NoError(t, err)
	// one per node first: ranks 0,2,4,6
	assert.Equal(t, []int{0, 2, 4, 6}, res.Global)
}

func TestElectCanonicalSortAndIdempotence(t *testing.T) {
	r1, err := Elect(16, 4, ShiftedStride, nil)
	require.NoError(t, err)
	r2, err := Elect(16, 4, ShiftedStride, nil)
	require.NoError(t, err)
	assert.Equal(t, r1.Global, r2.Global)
	for i := 1; i < len(r1.Global); i++ {
		assert.Less(t, r1.Global[i-1], r1.Global[i])
	}
}

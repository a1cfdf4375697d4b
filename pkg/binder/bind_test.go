package binder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jihwankim/shufflebench/pkg/topology"
)

func TestBindCoverScenario4(t *testing.T) {
	topo, err := topology.NewStatic(8, 8, topology.Contiguous) // one node of 8
	require.NoError(t, err)
	res, err := Bind(topo, []int{1, 4}, 3, Cover)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 4}, res.Local)
	assert.Equal(t, 0, res.Bind[0])
	assert.Equal(t, 1, res.Bind[1])
	assert.Equal(t, 4, res.Bind[4])

	sizes := map[int]int{}
	for a, cs := range res.Clients {
		sizes[a] = len(cs)
	}
	counts := []int{}
	for _, s := range sizes {
		counts = append(counts, s)
	}
	assert.ElementsMatch(t, []int{3, 3, 2}, counts)
}

func TestBindCompletenessAndReservedSeat(t *testing.T) {
	topo, err := topology.NewStatic(16, 4, topology.Contiguous)
	require.NoError(t, err)
	res, err := Bind(topo, []int{0, 4, 8, 12}, 2, Spread)
	require.NoError(t, err)

	seen := make(map[int]bool)
	for a, cs := range res.Clients {
		assert.Equal(t, a, res.Bind[a], "reserved seat: bind[a] must equal a")
		for _, c := range cs {
			assert.False(t, seen[c], "rank %d bound twice", c)
			seen[c] = true
		}
	}
	assert.Len(t, seen, 16)

	globalSet := map[int]bool{0: true, 4: true, 8: true, 12: true}
	localSet := map[int]bool{}
	for _, l := range res.Local {
		localSet[l] = true
	}
	for g := range globalSet {
		assert.True(t, localSet[g], "global aggregator %d must be in local set", g)
	}
}

func TestBindInvalidCo(t *testing.T) {
	topo, err := topology.NewStatic(8, 2, topology.Contiguous)
	require.NoError(t, err)
	_, err = Bind(topo, []int{0}, 0, Spread)
	require.Error(t, err)
}

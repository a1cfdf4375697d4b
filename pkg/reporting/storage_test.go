package reporting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jihwankim/shufflebench/pkg/metrics"
)

func TestStorageSaveAndLoadReport(t *testing.T) {
	s, err := NewStorage(t.TempDir(), 0)
	require.NoError(t, err)

	r := &RoundReport{ID: "abc", Variant: "flat", N: 4, K: 1, PerRank: []metrics.RoundTimes{{}}}
	require.NoError(t, s.SaveReport(r))

	loaded, err := s.LoadReport("abc")
	require.NoError(t, err)
	assert.Equal(t, "flat", loaded.Variant)
	assert.Equal(t, 4, loaded.N)
}

func TestStoragePrunesOldReports(t *testing.T) {
	s, err := NewStorage(t.TempDir(), 2)
	require.NoError(t, err)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.SaveReport(&RoundReport{ID: id}))
	}

	paths, err := s.ListReports()
	require.NoError(t, err)
	assert.Len(t, paths, 2)
}

func TestStorageListReportsEmpty(t *testing.T) {
	s, err := NewStorage(t.TempDir(), 0)
	require.NoError(t, err)
	paths, err := s.ListReports()
	require.NoError(t, err)
	assert.Empty(t, paths)
}

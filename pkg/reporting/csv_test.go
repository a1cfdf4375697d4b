package reporting

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jihwankim/shufflebench/pkg/metrics"
)

func TestCSVWriterWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	w, err := NewCSVWriter(path)
	require.NoError(t, err)

	summary := RoundSummary{
		Method: "flat", N: 8, K: 2, DataSize: 1024, Throttle: 0, Repeats: 1, Policy: "contiguous",
		Rank0: metrics.RoundTimes{Post: time.Millisecond, Total: 5 * time.Millisecond},
		Max:   metrics.RoundTimes{Post: 2 * time.Millisecond, Total: 7 * time.Millisecond},
	}
	require.NoError(t, w.Write(summary))
	require.NoError(t, w.Close())

	w2, err := NewCSVWriter(path)
	require.NoError(t, err)
	require.NoError(t, w2.Write(summary))
	require.NoError(t, w2.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := splitLines(string(data))
	assert.Equal(t, "method,N,K,data_size,throttle,repeats,policy,rank0_post,rank0_wait_send,rank0_wait_recv,rank0_total,max_post,max_wait_send,max_wait_recv,max_total", lines[0])
	assert.Len(t, lines, 4) // header + 2 rows + trailing blank
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func TestDetailWriterWritesCumulativeColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rank0-post.csv")
	d, err := NewDetailWriter(path)
	require.NoError(t, err)
	require.NoError(t, d.WriteRow(0, []float64{0.001, 0.002, 0.0035}))
	require.NoError(t, d.WriteRow(1, []float64{0.0012, 0.0028}))
	require.NoError(t, d.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := splitLines(string(data))
	assert.Contains(t, lines[0], "rank0")
	assert.Contains(t, lines[1], "rank1")
}

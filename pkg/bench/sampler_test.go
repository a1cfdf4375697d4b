package bench

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUniformMatrixIsSymmetricAndZeroDiagonal(t *testing.T) {
	const n = 5
	matrices := UniformMatrix(n, 64)
	assert.Len(t, matrices, n)
	for i := 0; i < n; i++ {
		assert.Equal(t, 0, matrices[i].SendLen[i])
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			assert.Equal(t, 64, matrices[i].SendLen[j])
			assert.Equal(t, matrices[i].SendLen[j], matrices[j].RecvLen[i])
		}
	}
}

func TestRandomMatrixRespectsSendRecvInvariant(t *testing.T) {
	const n = 6
	s := NewSampler(42)
	for _, profile := range []SizeProfile{Uniform, Triangular, LogUniform} {
		matrices := s.RandomMatrix(n, 128, profile)
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				if i == j {
					continue
				}
				assert.Equal(t, matrices[i].SendLen[j], matrices[j].RecvLen[i],
					"profile %v: send_len[%d][%d] != recv_len[%d][%d]", profile, i, j, j, i)
			}
		}
	}
}

func TestTriangularStaysWithinBounds(t *testing.T) {
	s := NewSampler(7)
	for i := 0; i < 200; i++ {
		v := s.triangular(10, 100, 40)
		assert.GreaterOrEqual(t, v, 10.0)
		assert.LessOrEqual(t, v, 100.0)
	}
}

func TestLogUniformStaysWithinBounds(t *testing.T) {
	s := NewSampler(7)
	for i := 0; i < 200; i++ {
		v := s.logUniform(1, 1000)
		assert.GreaterOrEqual(t, v, 1.0)
		assert.LessOrEqual(t, v, 1000.0)
	}
}

func TestWeightedChoiceFavorsHeavierWeight(t *testing.T) {
	s := NewSampler(1)
	counts := map[int]int{}
	for i := 0; i < 1000; i++ {
		counts[s.weightedChoice([]int{0, 1}, []float64{1, 9})]++
	}
	assert.Greater(t, counts[1], counts[0])
}

func TestPickVariantDefaultsToEveryKnownVariant(t *testing.T) {
	s := NewSampler(3)
	seen := map[string]bool{}
	for i := 0; i < 500; i++ {
		seen[s.PickVariant(nil)] = true
	}
	assert.Greater(t, len(seen), 1)
}

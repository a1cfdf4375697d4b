// Package bench implements the supplemented method-sweep and scenario
// features (SPEC_FULL.md §12): running every shuffle variant back-to-back
// over the same plan and asserting they agree. It can also load and
// validate a YAML scenario file describing a matrix of experiments and
// build randomized per-pair size matrices; Sweep itself reads neither and
// uses the uniform data_size per pair.
package bench

import (
	"math"
	"math/rand"

	"github.com/jihwankim/shufflebench/pkg/plan"
)

// Sampler draws per-pair message sizes from one of a few distributions,
// grounded on the teacher's (now-superseded) fault-parameter samplers:
// the same triangular/log-uniform/weighted-choice primitives used there
// to pick a fault's blast radius are repurposed here to pick a payload
// size.
type Sampler struct {
	rng *rand.Rand
}

// NewSampler returns a Sampler seeded deterministically so a sweep's
// "randomized" scenario is still reproducible given the same seed.
func NewSampler(seed int64) *Sampler {
	return &Sampler{rng: rand.New(rand.NewSource(seed))}
}

// triangular draws from a triangular distribution over [lo, hi] peaked at
// mode, favoring values near common message sizes over a flat uniform
// spread.
func (s *Sampler) triangular(lo, hi, mode float64) float64 {
	u := s.rng.Float64()
	c := (mode - lo) / (hi - lo)
	if u < c {
		return lo + math.Sqrt(u*(hi-lo)*(mode-lo))
	}
	return hi - math.Sqrt((1-u)*(hi-lo)*(hi-mode))
}

// logUniform draws uniformly over the log of [lo, hi], so small and large
// sizes are equally likely on a log scale rather than a linear one.
func (s *Sampler) logUniform(lo, hi float64) float64 {
	logLo, logHi := math.Log(lo), math.Log(hi)
	return math.Exp(logLo + s.rng.Float64()*(logHi-logLo))
}

// weightedChoice picks one of choices with probability proportional to
// its weight.
func (s *Sampler) weightedChoice(choices []int, weights []float64) int {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	r := s.rng.Float64() * total
	for i, w := range weights {
		if r < w {
			return choices[i]
		}
		r -= w
	}
	return choices[len(choices)-1]
}

// SizeProfile selects how RandomMatrix fills a size matrix.
type SizeProfile string

const (
	// Uniform gives every ordered pair the same length, matching the CLI
	// -d flag's semantics (spec §6.3) and the original source's
	// constant-size fill_buffer calls.
	Uniform SizeProfile = "uniform"
	// Triangular peaks around a common size with bounded spread.
	Triangular SizeProfile = "triangular"
	// LogUniform spans orders of magnitude evenly.
	LogUniform SizeProfile = "log-uniform"
)

// UniformMatrix builds the N size matrices a uniform data_size run uses:
// send_len[i][j] = d for every j != i, zero on the diagonal (self traffic
// is handled by each variant's own selfCopy / local-copy path).
func UniformMatrix(n, d int) []*plan.SizeMatrix {
	out := make([]*plan.SizeMatrix, n)
	for r := 0; r < n; r++ {
		m := plan.NewSizeMatrix(n)
		for j := 0; j < n; j++ {
			if j == r {
				continue
			}
			m.SendLen[j] = d
			m.RecvLen[j] = d
		}
		out[r] = m
	}
	return out
}

// RandomMatrix builds N size matrices with every ordered pair's length
// drawn independently from profile, centered on d, symmetric so
// send_len[i][j] == recv_len[j][i] as spec §3 requires.
func (s *Sampler) RandomMatrix(n, d int, profile SizeProfile) []*plan.SizeMatrix {
	lens := make([][]int, n)
	for i := range lens {
		lens[i] = make([]int, n)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			if j < i {
				lens[i][j] = lens[j][i]
				continue
			}
			var v float64
			switch profile {
			case Triangular:
				v = s.triangular(1, float64(2*d), float64(d))
			case LogUniform:
				v = s.logUniform(1, float64(2*d+1))
			default:
				v = float64(d)
			}
			lens[i][j] = int(v)
		}
	}
	out := make([]*plan.SizeMatrix, n)
	for r := 0; r < n; r++ {
		out[r] = &plan.SizeMatrix{SendLen: lens[r], RecvLen: column(lens, r)}
	}
	return out
}

func column(lens [][]int, j int) []int {
	col := make([]int, len(lens))
	for i := range lens {
		col[i] = lens[i][j]
	}
	return col
}

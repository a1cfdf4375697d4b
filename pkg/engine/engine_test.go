package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/jihwankim/shufflebench/pkg/plan"
	"github.com/jihwankim/shufflebench/pkg/substrate"
	"github.com/jihwankim/shufflebench/pkg/verify"
)

// buildPlans constructs one Plan per rank for a world of n ranks where
// send_len[i][j] = sizeOf(i, j), and fills every send buffer with the
// deterministic verifier pattern.
func buildPlans(n int, throttle int, sizeOf func(i, j int) int, global []int) []*plan.Plan {
	isGlobal := make(map[int]bool, len(global))
	for _, g := range global {
		isGlobal[g] = true
	}
	plans := make([]*plan.Plan, n)
	for r := 0; r < n; r++ {
		sizes := plan.NewSizeMatrix(n)
		for j := 0; j < n; j++ {
			sizes.SendLen[j] = sizeOf(r, j)
			sizes.RecvLen[j] = sizeOf(j, r)
		}
		sendBuf := plan.NewBuffer(sizes.SendLen)
		for j := 0; j < n; j++ {
			verify.Fill(sendBuf.Segment(j)[:sizes.SendLen[j]], r, j, 0)
		}
		plans[r] = &plan.Plan{
			Rank:     r,
			World:    n,
			RoundID:  0,
			Throttle: throttle,
			Sizes:    sizes,
			SendBuf:  sendBuf,
			RecvBuf:  plan.NewBuffer(sizes.RecvLen),
			IsGlobal: isGlobal[r],
			Global:   global,
		}
	}
	return plans
}

// runVariant executes variant concurrently across every rank of comms and
// returns the first error, if any.
func runVariant(t *testing.T, comms []substrate.Comm, plans []*plan.Plan, variant Variant) {
	t.Helper()
	ctx := context.Background()
	eg, egctx := errgroup.WithContext(ctx)
	for r := range comms {
		r := r
		eg.Go(func() error {
			_, err := Shuffle(egctx, comms[r], plans[r], variant)
			return err
		})
	}
	require.NoError(t, eg.Wait())
}

func assertByteFidelity(t *testing.T, plans []*plan.Plan) {
	t.Helper()
	for self, pl := range plans {
		v := verify.Verify(self, pl.Sizes.RecvLen, pl.RecvBuf, pl.RoundID)
		assert.True(t, v.Ok, "rank %d mismatches: %v", self, v.Mismatches)
	}
}

func TestVariantsAgreeOnAllToAll(t *testing.T) {
	// spec §8 scenario 3: N=4, global=local=[0..3], send_len[i][j] = 1+(j%3).
	const n = 4
	global := []int{0, 1, 2, 3}
	sizeOf := func(i, j int) int { return 1 + (j % 3) }

	for _, variant := range []Variant{
		VariantAllToMany, VariantManyToAll, VariantScattered, VariantPairwise, VariantCollective,
	} {
		variant := variant
		t.Run(string(variant), func(t *testing.T) {
			comms := substrate.NewWorld(n, nil)
			plans := buildPlans(n, n, sizeOf, global)
			runVariant(t, comms, plans, variant)
			assertByteFidelity(t, plans)
		})
	}
}

func TestBalancedScenario1(t *testing.T) {
	// spec §8 scenario 1: 8 ranks, K=4 contiguous aggregators, send_len[i][j] = i+1.
	const n = 8
	global := []int{0, 1, 2, 3}
	sizeOf := func(i, j int) int { return i + 1 }

	comms := substrate.NewWorld(n, nil)
	plans := buildPlans(n, n, sizeOf, global)
	runVariant(t, comms, plans, VariantAllToManyBalanced)
	assertByteFidelity(t, plans)

	for _, a := range global {
		total := 0
		for i := 0; i < n; i++ {
			total += plans[a].Sizes.RecvLen[i]
		}
		assert.Equal(t, 36, total, "aggregator %d should receive 36 bytes total", a)
	}
}

func TestFlatThrottleOne(t *testing.T) {
	// spec §8 scenario 6: throttle=1 on N=8 flat shuffle.
	const n = 8
	global := []int{0}
	sizeOf := func(i, j int) int {
		if i == j {
			return 0
		}
		return 2
	}
	comms := substrate.NewWorld(n, nil)
	plans := buildPlans(n, 1, sizeOf, global)
	runVariant(t, comms, plans, VariantAllToMany)
	assertByteFidelity(t, plans)
}

func TestScatteredBarrierVariant(t *testing.T) {
	const n = 6
	global := []int{0, 1}
	sizeOf := func(i, j int) int { return (i + j) % 5 }
	comms := substrate.NewWorld(n, nil)
	plans := buildPlans(n, 2, sizeOf, global)

	ctx := context.Background()
	eg, egctx := errgroup.WithContext(ctx)
	for r := range comms {
		r := r
		eg.Go(func() error {
			_, err := Scattered(egctx, comms[r], plans[r], true)
			return err
		})
	}
	require.NoError(t, eg.Wait())
	assertByteFidelity(t, plans)
}

func TestShuffleWithBarrierDispatchesControlAndBlockBarriers(t *testing.T) {
	const n = 6
	global := []int{0, 3}
	sizeOf := func(i, j int) int { return 1 }

	cases := []struct {
		variant Variant
		barrier Barrier
	}{
		{VariantAllToManyBalanced, BarrierEachStep},
		{VariantScattered, BarrierEachBlock},
		{VariantAllToMany, BarrierEachStep}, // ignored: flat has no barrier concept
	}
	for _, c := range cases {
		c := c
		t.Run(string(c.variant), func(t *testing.T) {
			comms := substrate.NewWorld(n, nil)
			plans := buildPlans(n, n, sizeOf, global)
			ctx := context.Background()
			eg, egctx := errgroup.WithContext(ctx)
			for r := range comms {
				r := r
				eg.Go(func() error {
					_, err := ShuffleWithBarrier(egctx, comms[r], plans[r], c.variant, c.barrier)
					return err
				})
			}
			require.NoError(t, eg.Wait())
			assertByteFidelity(t, plans)
		})
	}
}

func TestBalancedControlVariant(t *testing.T) {
	const n = 8
	global := []int{0, 4}
	sizeOf := func(i, j int) int { return 1 }
	comms := substrate.NewWorld(n, nil)
	plans := buildPlans(n, n, sizeOf, global)

	ctx := context.Background()
	eg, egctx := errgroup.WithContext(ctx)
	for r := range comms {
		r := r
		eg.Go(func() error {
			_, err := Balanced(egctx, comms[r], plans[r], false, true)
			return err
		})
	}
	require.NoError(t, eg.Wait())
	assertByteFidelity(t, plans)
}

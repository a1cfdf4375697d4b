// Package engine implements the direct point-to-point Shuffle Engine
// variants (spec §4.4.2-4.4.6): flat, balanced, scattered, pairwise, and
// the collective-backed reference path. All variants consume the same
// plan.Plan and produce byte-identical recv_buf contents; they differ
// only in scheduling and therefore in timing (spec §4.4.8).
//
// Each variant posts a step's requests through a substrate.RequestSet and
// waits them together; the concurrent wait itself is done by the
// substrate's WaitAll, so a failure on one pair cancels the rest of the
// step rather than hanging.
package engine

import (
	"context"

	"github.com/jihwankim/shufflebench/pkg/metrics"
	"github.com/jihwankim/shufflebench/pkg/plan"
	"github.com/jihwankim/shufflebench/pkg/shuffleerr"
	"github.com/jihwankim/shufflebench/pkg/substrate"
)

// Variant names one of the shuffle schedules spec §4.4 describes. The
// method-sweep mode (SPEC_FULL.md §12) runs every variant over the same
// plan and asserts they agree.
type Variant string

const (
	VariantAllToMany         Variant = "all_to_many"
	VariantManyToAll         Variant = "many_to_all"
	VariantAllToManyBalanced Variant = "all_to_many_balanced"
	VariantManyToAllBalanced Variant = "many_to_all_balanced"
	VariantAllToManyStriped  Variant = "all_to_many_striped"
	VariantScattered         Variant = "scattered"
	VariantPairwise          Variant = "pairwise"
	VariantCollective        Variant = "collective"
)

// AllVariants lists every direct point-to-point variant in method-sweep
// order (pkg/engine only; TAM is dispatched separately by pkg/tam since it
// is not a point-to-point schedule).
var AllVariants = []Variant{
	VariantAllToMany,
	VariantManyToAll,
	VariantAllToManyBalanced,
	VariantManyToAllBalanced,
	VariantAllToManyStriped,
	VariantScattered,
	VariantPairwise,
	VariantCollective,
}

// Result is the outcome of one round.
type Result struct {
	RoundID uint32
	Times   metrics.RoundTimes
}

// Barrier selects the driver-level barrier type a round runs under (spec
// §6.3's -b flag). It maps onto the two variant-specific knobs that
// actually implement a barrier: Balanced's control token (§4.4.3) and
// Scattered's per-block barrier (§4.4.4). Variants with no barrier concept
// ignore it.
type Barrier string

const (
	BarrierNone      Barrier = "none"
	BarrierEachStep  Barrier = "each_step"
	BarrierEachBlock Barrier = "each_block"
)

// Shuffle dispatches to the named variant with no barrier.
func Shuffle(ctx context.Context, comm substrate.Comm, pl *plan.Plan, variant Variant) (*Result, error) {
	return ShuffleWithBarrier(ctx, comm, pl, variant, BarrierNone)
}

// ShuffleWithBarrier dispatches to the named variant, applying barrier as
// far as the variant's schedule supports one.
func ShuffleWithBarrier(ctx context.Context, comm substrate.Comm, pl *plan.Plan, variant Variant, barrier Barrier) (*Result, error) {
	if err := pl.Validate(); err != nil {
		return nil, err
	}
	switch variant {
	case VariantAllToMany, VariantManyToAll:
		return Flat(ctx, comm, pl)
	case VariantAllToManyBalanced:
		return Balanced(ctx, comm, pl, false, barrier == BarrierEachStep)
	case VariantManyToAllBalanced:
		return Balanced(ctx, comm, pl, true, barrier == BarrierEachStep)
	case VariantAllToManyStriped:
		// spec §9's Open Question resolution: the striped throttle path
		// reuses the scattered-shuffle block-ring loop rather than being
		// left unimplemented.
		return Scattered(ctx, comm, pl, barrier == BarrierEachBlock)
	case VariantScattered:
		return Scattered(ctx, comm, pl, barrier == BarrierEachBlock)
	case VariantPairwise:
		return Pairwise(ctx, comm, pl)
	case VariantCollective:
		return Collective(ctx, comm, pl)
	default:
		return nil, shuffleerr.InvalidConfigf("unknown shuffle variant %q", variant)
	}
}

// pairTag derives a deterministic match tag for the message flowing
// self->peer (sending) or peer->self (receiving) this round.
func pairTag(self, peer int, sending bool, round uint32) int {
	if sending {
		return plan.Tag(self, peer, round)
	}
	return plan.Tag(peer, self, round)
}

// selfCopy services the "producer is itself the aggregator" case spec
// §4.4.3 calls out: no substrate round-trip for a message to oneself.
func selfCopy(pl *plan.Plan, peer int) {
	n := pl.Sizes.SendLen[peer]
	if n == 0 {
		return
	}
	copy(pl.RecvBuf.Segment(peer)[:n], pl.SendBuf.Segment(peer)[:n])
}

package engine

import (
	"context"

	"github.com/jihwankim/shufflebench/pkg/metrics"
	"github.com/jihwankim/shufflebench/pkg/plan"
	"github.com/jihwankim/shufflebench/pkg/shuffleerr"
	"github.com/jihwankim/shufflebench/pkg/substrate"
)

// Balanced implements the balanced shuffle (spec §4.4.3): aggregator at
// index m within the global aggregator list pulls from producer
// (k + m*ceil(World/len(Global))) mod World in step k, for k in
// [0, World). A producer derives its own step-k partner by inverting that
// relation, so both sides post the same pair without a rendezvous. preSend
// posts every send up front instead of interleaved per step; control has
// each aggregator send a one-byte ready token before the producer posts
// its data send, trading a round trip for flow control.
func Balanced(ctx context.Context, comm substrate.Comm, pl *plan.Plan, preSend, control bool) (*Result, error) {
	n := pl.World
	k := len(pl.Global)
	if k == 0 {
		return &Result{RoundID: pl.RoundID}, nil
	}
	ceilNK := (n + k - 1) / k
	myAggIdx := -1
	for idx, g := range pl.Global {
		if g == pl.Rank {
			myAggIdx = idx
			break
		}
	}

	var total metrics.RoundTimes
	if preSend {
		rs := substrate.NewRequestSet(comm)
		sw := metrics.Start()
		for step := 0; step < n; step++ {
			target, ok := balancedSendTarget(pl.Rank, step, n, k, ceilNK, pl.Global)
			if !ok || target == pl.Rank {
				continue
			}
			if pl.Sizes.SendLen[target] == 0 {
				continue
			}
			if control {
				tok := make([]byte, 1)
				h, err := comm.IRecv(ctx, tok, target, controlTag(target, pl.Rank, pl.RoundID))
				if err != nil {
					return nil, shuffleerr.SubstrateError("balanced control recv failed", err)
				}
				if err := comm.WaitAll(ctx, []substrate.Handle{h}); err != nil {
					return nil, shuffleerr.SubstrateError("balanced control wait failed", err)
				}
			}
			h, err := comm.ISend(ctx, pl.SendBuf.Segment(target), target, pairTag(pl.Rank, target, true, pl.RoundID))
			if err != nil {
				return nil, shuffleerr.SubstrateError("balanced isend failed", err)
			}
			rs.Add(h)
		}
		total.Post += sw.Elapsed()
		defer func() {
			sw := metrics.Start()
			_ = rs.WaitAll(ctx)
			total.WaitSend += sw.Elapsed()
		}()
	}

	for step := 0; step < n; step++ {
		if myAggIdx < 0 {
			if !preSend {
				if err := balancedProducerStep(ctx, comm, pl, step, n, k, ceilNK, control, &total); err != nil {
					return nil, err
				}
			}
			continue
		}
		producer := (step + myAggIdx*ceilNK) % n
		if producer == pl.Rank {
			selfCopy(pl, producer)
			continue
		}
		if pl.Sizes.RecvLen[producer] == 0 {
			continue
		}
		if control {
			sw := metrics.Start()
			tok := []byte{1}
			h, err := comm.ISend(ctx, tok, producer, controlTag(pl.Rank, producer, pl.RoundID))
			if err != nil {
				return nil, shuffleerr.SubstrateError("balanced control send failed", err)
			}
			if err := comm.WaitAll(ctx, []substrate.Handle{h}); err != nil {
				return nil, shuffleerr.SubstrateError("balanced control wait failed", err)
			}
			total.Post += sw.Elapsed()
		}
		sw := metrics.Start()
		h, err := comm.IRecv(ctx, pl.RecvBuf.Segment(producer), producer, pairTag(pl.Rank, producer, false, pl.RoundID))
		if err != nil {
			return nil, shuffleerr.SubstrateError("balanced irecv failed", err)
		}
		total.Post += sw.Elapsed()

		sw = metrics.Start()
		if err := comm.WaitAll(ctx, []substrate.Handle{h}); err != nil {
			return nil, shuffleerr.SubstrateError("balanced wait failed", err)
		}
		total.WaitRecv += sw.Elapsed()

		if !preSend {
			if err := balancedProducerStep(ctx, comm, pl, step, n, k, ceilNK, control, &total); err != nil {
				return nil, err
			}
		}
	}

	total.Total = total.Post + total.WaitSend + total.WaitRecv + total.Barrier
	return &Result{RoundID: pl.RoundID, Times: total}, nil
}

// balancedSendTarget finds the aggregator, if any, for which self is the
// scheduled producer in this step.
func balancedSendTarget(self, step, n, k, ceilNK int, global []int) (int, bool) {
	for m := 0; m < k; m++ {
		if (step+m*ceilNK)%n == self {
			return global[m], true
		}
	}
	return 0, false
}

// balancedProducerStep posts self's send (if self is the scheduled
// producer this step) when sends are interleaved rather than pre-posted.
func balancedProducerStep(ctx context.Context, comm substrate.Comm, pl *plan.Plan, step, n, k, ceilNK int, control bool, total *metrics.RoundTimes) error {
	target, ok := balancedSendTarget(pl.Rank, step, n, k, ceilNK, pl.Global)
	if !ok || target == pl.Rank || pl.Sizes.SendLen[target] == 0 {
		return nil
	}
	if control {
		sw := metrics.Start()
		tok := make([]byte, 1)
		h, err := comm.IRecv(ctx, tok, target, controlTag(target, pl.Rank, pl.RoundID))
		if err != nil {
			return shuffleerr.SubstrateError("balanced control recv failed", err)
		}
		if err := comm.WaitAll(ctx, []substrate.Handle{h}); err != nil {
			return shuffleerr.SubstrateError("balanced control wait failed", err)
		}
		total.Post += sw.Elapsed()
	}
	sw := metrics.Start()
	h, err := comm.ISend(ctx, pl.SendBuf.Segment(target), target, pairTag(pl.Rank, target, true, pl.RoundID))
	if err != nil {
		return shuffleerr.SubstrateError("balanced isend failed", err)
	}
	total.Post += sw.Elapsed()

	sw = metrics.Start()
	err = comm.WaitAll(ctx, []substrate.Handle{h})
	total.WaitSend += sw.Elapsed()
	if err != nil {
		return shuffleerr.SubstrateError("balanced wait failed", err)
	}
	return nil
}

// controlTag derives a tag for the control-variant ready token, disjoint
// from data tags since it never shares a round's pairTag namespace.
func controlTag(sender, receiver int, round uint32) int {
	return plan.Tag(sender, receiver, round) ^ 1
}

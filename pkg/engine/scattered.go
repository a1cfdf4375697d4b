package engine

import (
	"context"

	"github.com/jihwankim/shufflebench/pkg/metrics"
	"github.com/jihwankim/shufflebench/pkg/plan"
	"github.com/jihwankim/shufflebench/pkg/shuffleerr"
	"github.com/jihwankim/shufflebench/pkg/substrate"
)

// Scattered implements the scattered shuffle (spec §4.4.4): ranks are
// arranged on a logical ring and exchange in blocks of Throttle peers at
// offsets that advance by Throttle each block, so a peer is never more
// than one block's distance from being serviced in either direction.
// barrierEachBlock adds a barrier between blocks, trading throughput for a
// bound on how far ranks can drift apart.
//
// Also runs the all_to_many_striped variant; the plain all_to_many
// variant always runs Flat.
func Scattered(ctx context.Context, comm substrate.Comm, pl *plan.Plan, barrierEachBlock bool) (*Result, error) {
	n := pl.World
	c := pl.Throttle
	if c <= 0 || c > n {
		c = n
	}
	numBlocks := (n + c - 1) / c

	var total metrics.RoundTimes
	for blk := 0; blk < numBlocks; blk++ {
		b := blk * c
		rs := substrate.NewRequestSet(comm)
		sw := metrics.Start()
		for i := 0; i < c; i++ {
			peerRecv := (pl.Rank + i + b) % n
			if peerRecv == pl.Rank {
				selfCopy(pl, peerRecv)
			} else if pl.Sizes.RecvLen[peerRecv] > 0 {
				h, err := comm.IRecv(ctx, pl.RecvBuf.Segment(peerRecv), peerRecv, pairTag(pl.Rank, peerRecv, false, pl.RoundID))
				if err != nil {
					return nil, shuffleerr.SubstrateError("scattered irecv failed", err)
				}
				rs.Add(h)
			}
			peerSend := ((pl.Rank-i-b)%n + n) % n
			if peerSend != pl.Rank && pl.Sizes.SendLen[peerSend] > 0 {
				h, err := comm.ISend(ctx, pl.SendBuf.Segment(peerSend), peerSend, pairTag(pl.Rank, peerSend, true, pl.RoundID))
				if err != nil {
					return nil, shuffleerr.SubstrateError("scattered isend failed", err)
				}
				rs.Add(h)
			}
		}
		total.Post += sw.Elapsed()

		sw = metrics.Start()
		if err := rs.WaitAll(ctx); err != nil {
			return nil, err
		}
		total.WaitSend += sw.Elapsed()

		if barrierEachBlock {
			sw = metrics.Start()
			if err := comm.Barrier(ctx); err != nil {
				return nil, shuffleerr.SubstrateError("scattered barrier failed", err)
			}
			total.Barrier += sw.Elapsed()
		}
	}
	total.Total = total.Post + total.WaitSend + total.Barrier
	return &Result{RoundID: pl.RoundID, Times: total}, nil
}

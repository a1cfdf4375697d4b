package engine

import (
	"context"

	"github.com/jihwankim/shufflebench/pkg/metrics"
	"github.com/jihwankim/shufflebench/pkg/plan"
	"github.com/jihwankim/shufflebench/pkg/shuffleerr"
	"github.com/jihwankim/shufflebench/pkg/substrate"
)

// Pairwise implements the pairwise exchange (spec §4.4.5): when World is a
// power of two, step i's partner is rank XOR i, the classic hypercube
// exchange pattern; otherwise step i sends to (rank + i) mod World and
// receives from (rank - i) mod World. Every step is a single synchronous
// SendRecv, so the substrate orders the round even for pairs that carry no
// data in either direction.
func Pairwise(ctx context.Context, comm substrate.Comm, pl *plan.Plan) (*Result, error) {
	n := pl.World
	powerOfTwo := n&(n-1) == 0
	selfCopy(pl, pl.Rank)

	var total metrics.RoundTimes
	for i := 1; i < n; i++ {
		var sendPeer, recvPeer int
		if powerOfTwo {
			sendPeer = pl.Rank ^ i
			recvPeer = sendPeer
		} else {
			sendPeer = (pl.Rank + i) % n
			recvPeer = (pl.Rank - i + n) % n
		}

		var sendBuf, recvBuf []byte
		if pl.Sizes.SendLen[sendPeer] > 0 {
			sendBuf = pl.SendBuf.Segment(sendPeer)
		}
		if pl.Sizes.RecvLen[recvPeer] > 0 {
			recvBuf = pl.RecvBuf.Segment(recvPeer)
		}

		sw := metrics.Start()
		err := comm.SendRecv(ctx,
			sendBuf, sendPeer, pairTag(pl.Rank, sendPeer, true, pl.RoundID),
			recvBuf, recvPeer, pairTag(pl.Rank, recvPeer, false, pl.RoundID))
		total.WaitSend += sw.Elapsed()
		if err != nil {
			return nil, shuffleerr.SubstrateError("pairwise send_recv failed", err)
		}
	}

	total.Total = total.WaitSend
	return &Result{RoundID: pl.RoundID, Times: total}, nil
}

package engine

import (
	"context"

	"github.com/jihwankim/shufflebench/pkg/metrics"
	"github.com/jihwankim/shufflebench/pkg/plan"
	"github.com/jihwankim/shufflebench/pkg/shuffleerr"
	"github.com/jihwankim/shufflebench/pkg/substrate"
)

// Flat implements the flat shuffle (spec §4.4.2): every rank posts a
// receive for each peer it expects data from and a send for each peer it
// owes data to, in throttled steps of at most Throttle peers each (one
// receive and one send per peer). With Throttle >= World this degenerates
// to a single post-everything/wait-once round.
func Flat(ctx context.Context, comm substrate.Comm, pl *plan.Plan) (*Result, error) {
	n := pl.World
	c := pl.Throttle
	if c <= 0 || c > n {
		c = n
	}
	steps := (n + c - 1) / c

	var total metrics.RoundTimes
	for s := 0; s < steps; s++ {
		rt, err := flatStep(ctx, comm, pl, s, steps)
		if err != nil {
			return nil, err
		}
		total.Post += rt.Post
		total.WaitSend += rt.WaitSend
		total.WaitRecv += rt.WaitRecv
	}
	total.Total = total.Post + total.WaitSend + total.WaitRecv
	return &Result{RoundID: pl.RoundID, Times: total}, nil
}

func flatStep(ctx context.Context, comm substrate.Comm, pl *plan.Plan, s, steps int) (metrics.RoundTimes, error) {
	n := pl.World
	rs := substrate.NewRequestSet(comm)
	sw := metrics.Start()
	for j := 0; j < n; j++ {
		if j%steps != s {
			continue
		}
		if j == pl.Rank {
			selfCopy(pl, j)
			continue
		}
		if pl.Sizes.RecvLen[j] > 0 {
			h, err := comm.IRecv(ctx, pl.RecvBuf.Segment(j), j, pairTag(pl.Rank, j, false, pl.RoundID))
			if err != nil {
				return metrics.RoundTimes{}, shuffleerr.SubstrateError("flat irecv failed", err)
			}
			rs.Add(h)
		}
	}
	postRecv := sw.Elapsed()

	sw = metrics.Start()
	for j := 0; j < n; j++ {
		if j%steps != s || j == pl.Rank {
			continue
		}
		if pl.Sizes.SendLen[j] > 0 {
			h, err := comm.ISend(ctx, pl.SendBuf.Segment(j), j, pairTag(pl.Rank, j, true, pl.RoundID))
			if err != nil {
				return metrics.RoundTimes{}, shuffleerr.SubstrateError("flat isend failed", err)
			}
			rs.Add(h)
		}
	}
	postSend := sw.Elapsed()

	sw = metrics.Start()
	if err := rs.WaitAll(ctx); err != nil {
		return metrics.RoundTimes{}, err
	}
	wait := sw.Elapsed()

	return metrics.RoundTimes{Post: postRecv + postSend, WaitSend: wait}, nil
}

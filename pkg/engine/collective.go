package engine

import (
	"context"

	"github.com/jihwankim/shufflebench/pkg/metrics"
	"github.com/jihwankim/shufflebench/pkg/plan"
	"github.com/jihwankim/shufflebench/pkg/shuffleerr"
	"github.com/jihwankim/shufflebench/pkg/substrate"
)

// Collective implements the collective-backed reference path (spec
// §4.4.6): it packs the same (send_len, recv_len) plan into the
// substrate's own vectorized all-to-all-v, so hand-rolled schedules can be
// checked against it for byte-identical output.
func Collective(ctx context.Context, comm substrate.Comm, pl *plan.Plan) (*Result, error) {
	sendCounts := append([]int(nil), pl.Sizes.SendLen...)
	recvCounts := append([]int(nil), pl.Sizes.RecvLen...)
	sendDispls := pl.SendBuf.Offset[:len(sendCounts)]
	recvDispls := pl.RecvBuf.Offset[:len(recvCounts)]

	sw := metrics.Start()
	err := comm.AllToAllV(ctx, pl.SendBuf.Data, sendCounts, sendDispls, pl.RecvBuf.Data, recvCounts, recvDispls)
	elapsed := sw.Elapsed()
	if err != nil {
		return nil, shuffleerr.SubstrateError("collective all_to_all_v failed", err)
	}

	return &Result{RoundID: pl.RoundID, Times: metrics.RoundTimes{WaitSend: elapsed, Total: elapsed}}, nil
}

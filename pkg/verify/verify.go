// Package verify implements the Result Verifier (spec §4.5): a
// deterministic content check every shuffle round is validated against.
package verify

import (
	"fmt"

	"github.com/jihwankim/shufflebench/pkg/plan"
	"github.com/jihwankim/shufflebench/pkg/shuffleerr"
)

// MapData reproduces original_source/mpi_test.c's MAP_DATA macro exactly,
// constants included: it is the deterministic byte pattern every sender
// writes and every receiver checks.
func MapData(sender, receiver, offset int, round uint32) byte {
	a, b, c, d := sender, receiver, offset, int(round)
	v := a*123 + b*653 + (c+a+b)*33 + 14*(a-742)*(b-15) + d
	return byte(v)
}

// Fill writes the deterministic pattern for (sender, receiver, round) into
// buf, one byte per offset starting at 0. Callers use this to populate a
// send buffer before a round.
func Fill(buf []byte, sender, receiver int, round uint32) {
	for offset := range buf {
		buf[offset] = MapData(sender, receiver, offset, round)
	}
}

// Mismatch describes a single verification failure.
type Mismatch struct {
	Sender, Receiver, Offset int
	Expected, Actual         byte
}

func (m Mismatch) String() string {
	return fmt.Sprintf("sender=%d receiver=%d offset=%d expected=%d actual=%d",
		m.Sender, m.Receiver, m.Offset, m.Expected, m.Actual)
}

// Verdict is the outcome of verifying one rank's received buffers.
type Verdict struct {
	Ok        bool
	Mismatches []Mismatch
}

// Verify checks, for receiving rank self, that recvBuf's per-sender
// segments equal MapData(sender, self, offset, round) byte-for-byte, per
// spec §4.5 and the byte-fidelity testable property in §8. recvLen[i] is
// the expected byte count from sender i; recvBuf.Segment(i) is the
// received bytes from sender i.
func Verify(self int, recvLen []int, recvBuf *plan.Buffer, round uint32) *Verdict {
	v := &Verdict{Ok: true}
	for sender, n := range recvLen {
		if n == 0 {
			continue
		}
		seg := recvBuf.Segment(sender)
		for offset := 0; offset < n; offset++ {
			expected := MapData(sender, self, offset, round)
			actual := seg[offset]
			if actual != expected {
				v.Ok = false
				v.Mismatches = append(v.Mismatches, Mismatch{
					Sender: sender, Receiver: self, Offset: offset,
					Expected: expected, Actual: actual,
				})
			}
		}
	}
	return v
}

// Err converts a failing Verdict into a shuffleerr VerifyMismatch,
// reporting the first mismatch found (spec §4.5: "any mismatch ... fails
// the round").
func (v *Verdict) Err() error {
	if v.Ok {
		return nil
	}
	m := v.Mismatches[0]
	return shuffleerr.VerifyMismatch(m.Sender, m.Receiver, m.Offset, m.Expected, m.Actual)
}

// Package plan holds the data model a shuffle round operates over: the
// per-pair size matrix, and the contiguous send/receive buffers that
// replace the source's jagged arrays-of-pointers with one allocation per
// rank plus a length/displacement table (spec §9's redesign note).
package plan

import (
	"sync/atomic"

	"github.com/jihwankim/shufflebench/pkg/shuffleerr"
)

// SizeMatrix holds, for one rank, the byte length of every outbound and
// inbound message in the round. send_len[i][j] = recv_len[j][i] is an
// invariant across ranks; no single rank's SizeMatrix holds both sides of
// that comparison, so it is checked once per round by ValidateRound, not
// by Validate.
type SizeMatrix struct {
	SendLen []int // SendLen[j]: bytes this rank sends to rank j
	RecvLen []int // RecvLen[j]: bytes this rank expects from rank j
}

// NewSizeMatrix allocates a zeroed SizeMatrix for a world of size n.
func NewSizeMatrix(n int) *SizeMatrix {
	return &SizeMatrix{SendLen: make([]int, n), RecvLen: make([]int, n)}
}

// TotalSend returns the sum of SendLen.
func (m *SizeMatrix) TotalSend() int {
	total := 0
	for _, l := range m.SendLen {
		total += l
	}
	return total
}

// TotalRecv returns the sum of RecvLen.
func (m *SizeMatrix) TotalRecv() int {
	total := 0
	for _, l := range m.RecvLen {
		total += l
	}
	return total
}

// Buffer is one rank's contiguous byte region plus a per-peer displacement
// table, replacing a jagged []byte-per-peer allocation with a single slice.
type Buffer struct {
	Data []byte
	// Offset[j] is the byte offset within Data where peer j's
	// segment begins; Offset[n] (one past the last peer) is len(Data).
	Offset []int
}

// NewBuffer allocates a contiguous Buffer sized to hold, for every peer j,
// lens[j] bytes starting at the prefix sum of lens[0..j).
func NewBuffer(lens []int) *Buffer {
	n := len(lens)
	offset := make([]int, n+1)
	for j := 0; j < n; j++ {
		offset[j+1] = offset[j] + lens[j]
	}
	return &Buffer{Data: make([]byte, offset[n]), Offset: offset}
}

// Segment returns the byte slice belonging to peer j.
func (b *Buffer) Segment(j int) []byte {
	return b.Data[b.Offset[j]:b.Offset[j+1]]
}

// Len returns the length of peer j's segment.
func (b *Buffer) Len(j int) int {
	return b.Offset[j+1] - b.Offset[j]
}

// Plan bundles everything a shuffle variant needs to execute one round:
// the size matrix, contiguous send/recv buffers, the round identifier, and
// the throttle (max outstanding requests per rank).
type Plan struct {
	Rank      int
	World     int
	RoundID   uint32
	Throttle  int
	Sizes     *SizeMatrix
	SendBuf   *Buffer
	RecvBuf   *Buffer
	IsGlobal  bool // this rank is a global aggregator
	IsLocal   bool // this rank is a local aggregator
	Global    []int
	Local     []int
	Bind      []int // Bind[r]: local aggregator rank r delegates to
}

// Validate checks the structural invariants spec §3 requires before a
// round starts: non-negative lengths, a throttle of at least 1, and (when
// Bind/Local are populated) that every rank's local aggregator is actually
// a member of local.
func (p *Plan) Validate() error {
	if p.Throttle < 1 {
		return shuffleerr.InvalidConfigf("throttle must be >= 1, got %d", p.Throttle)
	}
	for j, l := range p.Sizes.SendLen {
		if l < 0 {
			return shuffleerr.InvalidConfigf("negative send length to rank %d: %d", j, l)
		}
	}
	for j, l := range p.Sizes.RecvLen {
		if l < 0 {
			return shuffleerr.InvalidConfigf("negative recv length from rank %d: %d", j, l)
		}
	}
	if len(p.Bind) > 0 {
		inLocal := make(map[int]bool, len(p.Local))
		for _, a := range p.Local {
			inLocal[a] = true
		}
		for r, a := range p.Bind {
			if !inLocal[a] {
				return shuffleerr.InvalidConfigf("bind[%d]=%d is not a local aggregator", r, a)
			}
		}
	}
	return nil
}

// ValidateRound checks the one structural invariant Validate cannot see
// from a single rank's Plan: send_len[i][j] must equal recv_len[j][i] for
// every ordered pair of ranks in the round (spec §7's size-matrix
// asymmetry InvalidConfig trigger). Callers that assemble a full []*Plan
// for a round (pkg/bench.BuildManyToFewPlans and its callers) should run
// this once before dispatching any per-rank Validate/shuffle.
func ValidateRound(plans []*Plan) error {
	for i, pi := range plans {
		for j, sendLen := range pi.Sizes.SendLen {
			if i == j {
				continue
			}
			recvLen := plans[j].Sizes.RecvLen[i]
			if sendLen != recvLen {
				return shuffleerr.InvalidConfigf(
					"size-matrix asymmetry: send_len[%d][%d]=%d != recv_len[%d][%d]=%d",
					i, j, sendLen, j, i, recvLen)
			}
		}
	}
	return nil
}

// PendingRoundCap bounds how many rounds may have in-flight tags
// concurrently before a RoundID wraps into reuse. The original source
// derived a tag as sender+receiver+100*round_id, which collides past 99
// concurrent rounds; this redesign uses a monotonic 32-bit round counter
// instead (see Tagger), but callers that need to bound memory devoted to
// tracking concurrent rounds should still respect this cap.
const PendingRoundCap = 1 << 20

// Tagger hands out unique, monotonically increasing round identifiers so
// that concurrent rounds never collide on the tag space, replacing the
// source's round_id*100 offset (spec §9).
type Tagger struct {
	counter uint32
}

// Next returns the next round identifier.
func (t *Tagger) Next() uint32 {
	return atomic.AddUint32(&t.counter, 1)
}

// Tag derives a point-to-point match tag for an ordered (sender, receiver)
// pair within round. pkg/tam keeps its phases' tags disjoint by XORing a
// distinct high bit per phase onto this tag.
func Tag(sender, receiver int, round uint32) int {
	return sender<<20 ^ receiver<<8 ^ int(round)
}

package verify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jihwankim/shufflebench/pkg/plan"
)

func TestFillAndVerifyRoundTrip(t *testing.T) {
	const round = uint32(7)
	recvLen := []int{3, 0, 5}
	buf := plan.NewBuffer(recvLen)
	for sender, n := range recvLen {
		Fill(buf.Segment(sender)[:n], sender, 9, round)
	}
	v := Verify(9, recvLen, buf, round)
	require.True(t, v.Ok)
	assert.Empty(t, v.Mismatches)
	assert.NoError(t, v.Err())
}

func TestVerifyDetectsMismatch(t *testing.T) {
	const round = uint32(1)
	recvLen := []int{4}
	buf := plan.NewBuffer(recvLen)
	Fill(buf.Segment(0), 0, 2, round)
	buf.Segment(0)[2] ^= 0xFF // corrupt one byte

	v := Verify(2, recvLen, buf, round)
	require.False(t, v.Ok)
	require.Len(t, v.Mismatches, 1)
	assert.Equal(t, 2, v.Mismatches[0].Offset)
	require.Error(t, v.Err())
}

func TestMapDataDeterministic(t *testing.T) {
	a := MapData(3, 5, 2, 0)
	b := MapData(3, 5, 2, 0)
	assert.Equal(t, a, b)
}

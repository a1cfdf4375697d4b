package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jihwankim/shufflebench/pkg/shuffleerr"
)

func validPlan(n int) *Plan {
	sizes := NewSizeMatrix(n)
	return &Plan{
		Rank:     0,
		World:    n,
		Throttle: 1,
		Sizes:    sizes,
		SendBuf:  NewBuffer(sizes.SendLen),
		RecvBuf:  NewBuffer(sizes.RecvLen),
	}
}

func TestValidateRejectsThrottleBelowOne(t *testing.T) {
	p := validPlan(4)
	p.Throttle = 0
	err := p.Validate()
	require.Error(t, err)
	assert.True(t, shuffleerr.Is(err, shuffleerr.KindInvalidConfig))
}

func TestValidateRejectsNegativeLengths(t *testing.T) {
	p := validPlan(4)
	p.Sizes.SendLen[2] = -1
	err := p.Validate()
	require.Error(t, err)
	assert.True(t, shuffleerr.Is(err, shuffleerr.KindInvalidConfig))
}

func TestValidateAcceptsBindWithinLocal(t *testing.T) {
	p := validPlan(4)
	p.Local = []int{0, 2}
	p.Bind = []int{0, 0, 2, 2}
	assert.NoError(t, p.Validate())
}

func TestValidateRejectsBindOutsideLocal(t *testing.T) {
	p := validPlan(4)
	p.Local = []int{0, 2}
	p.Bind = []int{0, 0, 1, 2} // rank 2 bound to rank 1, which is not a local aggregator
	err := p.Validate()
	require.Error(t, err)
	assert.True(t, shuffleerr.Is(err, shuffleerr.KindInvalidConfig))
}

func TestValidateRoundAcceptsSymmetricMatrix(t *testing.T) {
	a := validPlan(2)
	a.Rank = 0
	a.Sizes.SendLen[1] = 5
	a.Sizes.RecvLen[1] = 3

	b := validPlan(2)
	b.Rank = 1
	b.Sizes.SendLen[0] = 3
	b.Sizes.RecvLen[0] = 5

	assert.NoError(t, ValidateRound([]*Plan{a, b}))
}

func TestValidateRoundRejectsAsymmetricMatrix(t *testing.T) {
	a := validPlan(2)
	a.Rank = 0
	a.Sizes.SendLen[1] = 5
	a.Sizes.RecvLen[1] = 3

	b := validPlan(2)
	b.Rank = 1
	b.Sizes.SendLen[0] = 4 // should be 5 to match a's send to b
	b.Sizes.RecvLen[0] = 5

	err := ValidateRound([]*Plan{a, b})
	require.Error(t, err)
	assert.True(t, shuffleerr.Is(err, shuffleerr.KindInvalidConfig))
}

package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecorderAccumulates(t *testing.T) {
	r := NewRecorder(3)
	r.Record(RoundTimes{Post: time.Millisecond, Total: 10 * time.Millisecond})
	r.Record(RoundTimes{Post: 2 * time.Millisecond, Total: 20 * time.Millisecond})

	rounds := r.Rounds()
	assert.Len(t, rounds, 2)
	assert.Equal(t, 3, r.Rank())
	assert.Equal(t, 20*time.Millisecond, r.Latest().Total)
}

func TestReduceMax(t *testing.T) {
	all := []RoundTimes{
		{Post: 1, WaitSend: 5, WaitRecv: 3, Barrier: 2, Total: 11},
		{Post: 4, WaitSend: 2, WaitRecv: 9, Barrier: 1, Total: 16},
	}
	max := ReduceMax(all)
	assert.Equal(t, time.Duration(4), max.Post)
	assert.Equal(t, time.Duration(5), max.WaitSend)
	assert.Equal(t, time.Duration(9), max.WaitRecv)
	assert.Equal(t, time.Duration(2), max.Barrier)
	assert.Equal(t, time.Duration(16), max.Total)
}

func TestExporterObserve(t *testing.T) {
	e := NewExporter()
	e.Observe(0, "flat", RoundTimes{Post: time.Second})
	assert.NotNil(t, e.Handler())
}

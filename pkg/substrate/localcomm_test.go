package substrate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestPointToPoint(t *testing.T) {
	comms := NewWorld(2, []string{"a", "a"})
	ctx := context.Background()

	eg, egctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		rs := NewRequestSet(comms[0])
		h, err := comms[0].ISend(egctx, []byte("hello"), 1, 42)
		if err != nil {
			return err
		}
		rs.Add(h)
		return rs.WaitAll(egctx)
	})
	var got [5]byte
	eg.Go(func() error {
		rs := NewRequestSet(comms[1])
		h, err := comms[1].IRecv(egctx, got[:], 0, 42)
		if err != nil {
			return err
		}
		rs.Add(h)
		return rs.WaitAll(egctx)
	})
	require.NoError(t, eg.Wait())
	assert.Equal(t, "hello", string(got[:]))
}

func TestBarrierReusable(t *testing.T) {
	comms := NewWorld(4, nil)
	ctx := context.Background()
	for round := 0; round < 3; round++ {
		eg, egctx := errgroup.WithContext(ctx)
		for _, c := range comms {
			c := c
			eg.Go(func() error { return c.Barrier(egctx) })
		}
		require.NoError(t, eg.Wait())
	}
}

func TestAllToAllV(t *testing.T) {
	n := 3
	comms := NewWorld(n, nil)
	ctx := context.Background()

	// each rank i sends (i+1) bytes to every peer j.
	sendLen := func(i int) int { return i + 1 }

	eg, egctx := errgroup.WithContext(ctx)
	recvBufs := make([][]byte, n)
	for i, c := range comms {
		i, c := i, c
		eg.Go(func() error {
			sendCounts := make([]int, n)
			sendDispls := make([]int, n)
			off := 0
			for j := 0; j < n; j++ {
				sendCounts[j] = sendLen(i)
				sendDispls[j] = off
				off += sendCounts[j]
			}
			sendBuf := make([]byte, off)
			for j := 0; j < n; j++ {
				for k := 0; k < sendCounts[j]; k++ {
					sendBuf[sendDispls[j]+k] = byte(i)
				}
			}

			recvCounts := make([]int, n)
			recvDispls := make([]int, n)
			off = 0
			for j := 0; j < n; j++ {
				recvCounts[j] = sendLen(j)
				recvDispls[j] = off
				off += recvCounts[j]
			}
			recvBuf := make([]byte, off)

			if err := c.AllToAllV(egctx, sendBuf, sendCounts, sendDispls, recvBuf, recvCounts, recvDispls); err != nil {
				return err
			}
			recvBufs[i] = recvBuf
			return nil
		})
	}
	require.NoError(t, eg.Wait())

	for j := 0; j < n; j++ {
		// rank j received sendLen(i) bytes of value i from each sender i.
		off := 0
		for i := 0; i < n; i++ {
			for k := 0; k < sendLen(i); k++ {
				assert.Equal(t, byte(i), recvBufs[j][off+k])
			}
			off += sendLen(i)
		}
	}
}

func TestWindow(t *testing.T) {
	comms := NewWorld(3, nil)
	ctx := context.Background()

	eg, egctx := errgroup.WithContext(ctx)
	results := make([][]byte, 3)
	for i, c := range comms {
		i, c := i, c
		eg.Go(func() error {
			wc, ok := c.(interface {
				AllocWindow(ctx context.Context, localSize int) (*Window, error)
			})
			require.True(t, ok)
			w, err := wc.AllocWindow(egctx, 4)
			if err != nil {
				return err
			}
			if err := w.Write([]byte{byte(i), byte(i), byte(i), byte(i)}); err != nil {
				return err
			}
			if err := w.Fence(egctx); err != nil {
				return err
			}
			data, err := w.Read((i + 1) % 3)
			if err != nil {
				return err
			}
			results[i] = append([]byte(nil), data...)
			return nil
		})
	}
	require.NoError(t, eg.Wait())
	for i := 0; i < 3; i++ {
		peer := (i + 1) % 3
		assert.Equal(t, []byte{byte(peer), byte(peer), byte(peer), byte(peer)}, results[i])
	}
}

func TestSplit(t *testing.T) {
	comms := NewWorld(4, nil)
	ctx := context.Background()
	colors := []int{0, 1, 0, 1}

	eg, egctx := errgroup.WithContext(ctx)
	subRanks := make([]int, 4)
	subWorlds := make([]int, 4)
	for i, c := range comms {
		i, c := i, c
		eg.Go(func() error {
			sub, err := c.Split(egctx, colors[i], i)
			if err != nil {
				return err
			}
			subRanks[i] = sub.Rank()
			subWorlds[i] = sub.World()
			return nil
		})
	}
	require.NoError(t, eg.Wait())
	for i := range comms {
		assert.Equal(t, 2, subWorlds[i])
	}
	assert.Equal(t, 0, subRanks[0])
	assert.Equal(t, 1, subRanks[2])
	assert.Equal(t, 0, subRanks[1])
	assert.Equal(t, 1, subRanks[3])
}

package substrate

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// LocalComm is an in-process, goroutine-backed Comm implementation: every
// rank is a peer object in the same process rather than a separate OS
// process, addressed by integer rank the way
// _examples/sfurman3-chatroom's chat server addresses participants by
// integer ID, but delivering messages over channels instead of TCP
// sockets. It exists so the whole shuffle engine is testable without a
// real cluster.
type LocalComm struct {
	rank int
	grp  *group

	mu    sync.Mutex
	inbox map[tagKey]chan []byte
}

type tagKey struct{ from, tag int }

type splitEntry struct{ rank, color, key int }

type group struct {
	members    []*LocalComm
	localities []string

	mu sync.Mutex

	barrierCount int
	barrierCh    chan struct{}

	winRendezvous *windowRendezvous

	splitPending []splitEntry
	splitCount   int
	splitDone    chan struct{}
	splitResult  []splitEntry
	splitGroups  map[int]*group
}

type windowRendezvous struct {
	slots [][]byte
	count int
	done  chan struct{}
}

// NewWorld builds an in-process communicator of n ranks, each reporting
// the given locality identifier (used by the Topology Oracle's dynamic
// provider in tests). It returns one Comm per rank.
func NewWorld(n int, localities []string) []Comm {
	if len(localities) != n {
		localities = make([]string, n)
	}
	g := &group{
		members:    make([]*LocalComm, n),
		localities: localities,
		barrierCh:  make(chan struct{}),
	}
	out := make([]Comm, n)
	for r := 0; r < n; r++ {
		c := &LocalComm{rank: r, grp: g}
		g.members[r] = c
		out[r] = c
	}
	return out
}

func (c *LocalComm) Rank() int  { return c.rank }
func (c *LocalComm) World() int { return len(c.grp.members) }

func (c *LocalComm) getChan(key tagKey) chan []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inbox == nil {
		c.inbox = make(map[tagKey]chan []byte)
	}
	ch, ok := c.inbox[key]
	if !ok {
		ch = make(chan []byte, 1)
		c.inbox[key] = ch
	}
	return ch
}

type asyncHandle struct {
	done chan error
}

func (h *asyncHandle) wait(ctx context.Context) error {
	select {
	case err := <-h.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *LocalComm) ISend(ctx context.Context, buf []byte, peer, tag int) (Handle, error) {
	if peer < 0 || peer >= len(c.grp.members) {
		return nil, fmt.Errorf("isend: peer %d out of range [0,%d)", peer, len(c.grp.members))
	}
	target := c.grp.members[peer]
	key := tagKey{from: c.rank, tag: tag}
	ch := target.getChan(key)
	data := append([]byte(nil), buf...)
	done := make(chan error, 1)
	go func() {
		select {
		case ch <- data:
			done <- nil
		case <-ctx.Done():
			done <- ctx.Err()
		}
	}()
	return &asyncHandle{done: done}, nil
}

func (c *LocalComm) IRecv(ctx context.Context, buf []byte, peer, tag int) (Handle, error) {
	if peer < 0 || peer >= len(c.grp.members) {
		return nil, fmt.Errorf("irecv: peer %d out of range [0,%d)", peer, len(c.grp.members))
	}
	key := tagKey{from: peer, tag: tag}
	ch := c.getChan(key)
	done := make(chan error, 1)
	go func() {
		select {
		case data := <-ch:
			if len(data) != len(buf) {
				done <- fmt.Errorf("irecv: length mismatch from %d tag %d: got %d want %d", peer, tag, len(data), len(buf))
				return
			}
			copy(buf, data)
			done <- nil
		case <-ctx.Done():
			done <- ctx.Err()
		}
	}()
	return &asyncHandle{done: done}, nil
}

// WaitAll waits every handle concurrently via errgroup and returns the
// first error. That first error cancels the remaining waits, which then
// return without their requests having completed.
func (c *LocalComm) WaitAll(ctx context.Context, handles []Handle) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, h := range handles {
		h := h
		g.Go(func() error { return h.wait(gctx) })
	}
	return g.Wait()
}

func (c *LocalComm) SendRecv(ctx context.Context, sendBuf []byte, sendPeer, sendTag int, recvBuf []byte, recvPeer, recvTag int) error {
	var handles []Handle
	if sendBuf != nil {
		h, err := c.ISend(ctx, sendBuf, sendPeer, sendTag)
		if err != nil {
			return err
		}
		handles = append(handles, h)
	}
	if recvBuf != nil {
		h, err := c.IRecv(ctx, recvBuf, recvPeer, recvTag)
		if err != nil {
			return err
		}
		handles = append(handles, h)
	}
	return c.WaitAll(ctx, handles)
}

const alltoallTag = -1

// AllToAllV never posts a zero-length send or receive, per spec §4.4.7's
// correctness-critical rule that a zero-byte post is unmatched on many
// substrates.
func (c *LocalComm) AllToAllV(ctx context.Context, sendBuf []byte, sendCounts, sendDispls []int, recvBuf []byte, recvCounts, recvDispls []int) error {
	n := len(sendCounts)
	var handles []Handle
	for j := 0; j < n; j++ {
		if recvCounts[j] > 0 {
			h, err := c.IRecv(ctx, recvBuf[recvDispls[j]:recvDispls[j]+recvCounts[j]], j, alltoallTag)
			if err != nil {
				return err
			}
			handles = append(handles, h)
		}
	}
	for j := 0; j < n; j++ {
		if sendCounts[j] > 0 {
			h, err := c.ISend(ctx, sendBuf[sendDispls[j]:sendDispls[j]+sendCounts[j]], j, alltoallTag)
			if err != nil {
				return err
			}
			handles = append(handles, h)
		}
	}
	return c.WaitAll(ctx, handles)
}

// Barrier is a classic sense-reversing barrier: the last arrival resets it
// for reuse across rounds.
func (c *LocalComm) Barrier(ctx context.Context) error {
	g := c.grp
	g.mu.Lock()
	g.barrierCount++
	if g.barrierCount == len(g.members) {
		g.barrierCount = 0
		ch := g.barrierCh
		g.barrierCh = make(chan struct{})
		g.mu.Unlock()
		close(ch)
		return nil
	}
	ch := g.barrierCh
	g.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *LocalComm) AllGatherLocality(ctx context.Context, locality string) ([]string, error) {
	if len(c.grp.localities) != len(c.grp.members) {
		return nil, fmt.Errorf("allgather locality: communicator has no locality roster")
	}
	out := append([]string(nil), c.grp.localities...)
	return out, nil
}

// AllocWindow rendezvous-waits for every rank of this communicator to
// register its own region before returning a Window shared across all of
// them. The rendezvous stands in for the shared allocation a real
// shared-memory window would provide: each rank's region only becomes
// visible to the others once every rank has registered.
func (c *LocalComm) AllocWindow(ctx context.Context, localSize int) (*Window, error) {
	g := c.grp
	region := make([]byte, localSize)

	g.mu.Lock()
	if g.winRendezvous == nil {
		g.winRendezvous = &windowRendezvous{
			slots: make([][]byte, len(g.members)),
			done:  make(chan struct{}),
		}
	}
	rv := g.winRendezvous
	rv.slots[c.rank] = region
	rv.count++
	if rv.count == len(g.members) {
		g.winRendezvous = nil
		close(rv.done)
	}
	g.mu.Unlock()

	select {
	case <-rv.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return &Window{comm: c, regions: append([][]byte(nil), rv.slots...)}, nil
}

// Split partitions the communicator by color: ranks sharing a color form a
// new, independent communicator ordered by key then original rank, with
// its own rank numbering and its own message/barrier/window namespace.
func (c *LocalComm) Split(ctx context.Context, color, key int) (Comm, error) {
	g := c.grp

	g.mu.Lock()
	if g.splitPending == nil {
		g.splitPending = make([]splitEntry, len(g.members))
		g.splitDone = make(chan struct{})
	}
	g.splitPending[c.rank] = splitEntry{rank: c.rank, color: color, key: key}
	g.splitCount++
	var doneCh chan struct{}
	if g.splitCount == len(g.members) {
		g.splitResult = append([]splitEntry(nil), g.splitPending...)
		g.splitGroups = make(map[int]*group)
		g.splitPending = nil
		g.splitCount = 0
		doneCh = g.splitDone
		close(doneCh)
	} else {
		doneCh = g.splitDone
	}
	g.mu.Unlock()

	select {
	case <-doneCh:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	g.mu.Lock()
	all := append([]splitEntry(nil), g.splitResult...)
	g.mu.Unlock()

	var mine []splitEntry
	for _, e := range all {
		if e.color == color {
			mine = append(mine, e)
		}
	}
	sort.Slice(mine, func(i, j int) bool {
		if mine[i].key != mine[j].key {
			return mine[i].key < mine[j].key
		}
		return mine[i].rank < mine[j].rank
	})

	g.mu.Lock()
	newGroup, ok := g.splitGroups[color]
	if !ok {
		newGroup = &group{
			members:   make([]*LocalComm, len(mine)),
			barrierCh: make(chan struct{}),
		}
		for i := range mine {
			newGroup.members[i] = &LocalComm{rank: i, grp: newGroup}
		}
		g.splitGroups[color] = newGroup
	}
	g.mu.Unlock()

	var self Comm
	for i, e := range mine {
		if e.rank == c.rank {
			self = newGroup.members[i]
		}
	}
	return self, nil
}

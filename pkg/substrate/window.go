package substrate

import (
	"context"
	"fmt"
	"sync"
)

// Window is a node-local shared byte region, one segment per rank of the
// owning communicator. Discipline (spec §5): a rank writes only its own
// segment before Fence; every rank reads only after Fence; writes and
// reads never overlap in time.
type Window struct {
	comm    Comm
	mu      sync.RWMutex
	regions [][]byte
	fenced  bool
}

func newWindow(comm Comm, localSize int) *Window {
	n := comm.World()
	regions := make([][]byte, n)
	regions[comm.Rank()] = make([]byte, localSize)
	return &Window{comm: comm, regions: regions}
}

// Write publishes data into this rank's own segment. Must be called
// before Fence.
func (w *Window) Write(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fenced {
		return fmt.Errorf("window: cannot write after fence")
	}
	copy(w.regions[w.comm.Rank()], data)
	return nil
}

// Fence publishes every rank's segment to every other rank via a barrier,
// then allows indexed Read calls. This is the window's sole
// synchronization point (spec §5).
func (w *Window) Fence(ctx context.Context) error {
	if err := w.comm.Barrier(ctx); err != nil {
		return err
	}
	w.mu.Lock()
	w.fenced = true
	w.mu.Unlock()
	return nil
}

// Read returns the published segment belonging to rank r. Must be called
// only after Fence.
func (w *Window) Read(r int) ([]byte, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if !w.fenced {
		return nil, fmt.Errorf("window: read before fence")
	}
	return w.regions[r], nil
}

// share sets rank's region in the window. The in-process Comm does not
// call it: AllocWindow builds each Window with every rank's region
// already in place.
func (w *Window) share(rank int, region []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.regions[rank] = region
}

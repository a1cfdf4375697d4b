package substrate

import (
	"context"
	"fmt"
	"sync"

	"github.com/jihwankim/shufflebench/pkg/shuffleerr"
)

// RequestSet is a holder for a round's outstanding request handles, which
// are waited together once. It does not itself wait on an exit path that
// skips WaitAll; Scoped is the wrapper that waits on every exit path,
// including error. Grounded on pkg/core/cleanup/coordinator.go's
// Coordinator register-everything shape, generalized from sidecar
// teardown to request-handle teardown.
type RequestSet struct {
	comm    Comm
	mu      sync.Mutex
	handles []Handle
	waited  bool
}

// NewRequestSet creates a RequestSet bound to comm.
func NewRequestSet(comm Comm) *RequestSet {
	return &RequestSet{comm: comm}
}

// Add registers a handle to be waited on.
func (rs *RequestSet) Add(h Handle) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.handles = append(rs.handles, h)
}

// WaitAll waits every registered handle exactly once. Calling it again is
// a no-op returning nil, so deferred cleanup after an explicit WaitAll
// never double-waits.
func (rs *RequestSet) WaitAll(ctx context.Context) error {
	rs.mu.Lock()
	if rs.waited {
		rs.mu.Unlock()
		return nil
	}
	handles := rs.handles
	rs.waited = true
	rs.mu.Unlock()

	if len(handles) == 0 {
		return nil
	}
	if err := rs.comm.WaitAll(ctx, handles); err != nil {
		return shuffleerr.SubstrateError("wait_all failed", err)
	}
	return nil
}

// Pending reports how many handles are registered but not yet waited.
func (rs *RequestSet) Pending() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.waited {
		return 0
	}
	return len(rs.handles)
}

// Scoped runs fn with a fresh RequestSet, guaranteeing every handle fn
// registers is waited before Scoped returns — on success, on error, and on
// panic (converted to a SubstrateError so a panicking variant still
// reports RoundAborted rather than crashing the process), mirroring the
// teacher orchestrator's deferred panic-safe cleanup around each round
// phase.
func Scoped(ctx context.Context, comm Comm, fn func(rs *RequestSet) error) (err error) {
	rs := NewRequestSet(comm)
	defer func() {
		if r := recover(); r != nil {
			err = shuffleerr.SubstrateError("panic during round", fmt.Errorf("%v", r))
		}
		if werr := rs.WaitAll(ctx); werr != nil && err == nil {
			err = werr
		}
	}()
	err = fn(rs)
	return err
}

// Package tam implements the Two-phase Aggregation Mover (spec §4.4.7):
// a hierarchical shuffle that gathers every node's local payloads to one
// node-local proxy (Phase A), exchanges aggregated data directly between
// proxies (Phase B), then scatters each proxy's inbound data back out to
// its node's final destinations (Phase C). Message-based and shared-window
// variants of Phase A are both implemented; Phases B and C are
// message-based in both, since an in-process substrate has no MPI-style
// derived datatype to describe a non-contiguous gather/scatter across a
// shared window.
//
// Grounded on original_source/mpi_test.c's TAM-adjacent helper structure
// for the phase breakdown, and on the teacher's
// pkg/core/orchestrator/orchestrator.go TestState/Execute shape for the
// state-machine-driven round lifecycle, generalized from a test-scenario
// lifecycle to a shuffle-round lifecycle.
package tam

// State names one point in a rank's progress through a TAM round (spec
// §4.4.7's state machine). Non-proxy ranks never visit the
// ProxyExchange* states.
type State int

const (
	Idle State = iota
	SizePosted
	SizeDone
	LocalGatherPosted
	LocalGatherDone
	ProxyExchangePosted
	ProxyExchangeDone
	LocalScatterPosted
	LocalScatterDone
	Aborted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case SizePosted:
		return "SizePosted"
	case SizeDone:
		return "SizeDone"
	case LocalGatherPosted:
		return "LocalGatherPosted"
	case LocalGatherDone:
		return "LocalGatherDone"
	case ProxyExchangePosted:
		return "ProxyExchangePosted"
	case ProxyExchangeDone:
		return "ProxyExchangeDone"
	case LocalScatterPosted:
		return "LocalScatterPosted"
	case LocalScatterDone:
		return "LocalScatterDone"
	case Aborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// tracker records the single rank-local state transition sequence of one
// TAM round. A round that fails moves to Aborted from whatever state it
// was in and stays there; it never transitions further.
type tracker struct {
	state State
}

func (t *tracker) to(s State) {
	if t.state == Aborted {
		return
	}
	t.state = s
}

func (t *tracker) abort() {
	t.state = Aborted
}

// Package aggregator implements the Aggregator Elector (spec §4.2): given
// a world size and a desired aggregator count, it returns the sorted list
// of global aggregator ranks under one of four election policies.
package aggregator

import (
	"sort"

	"github.com/jihwankim/shufflebench/pkg/shuffleerr"
	"github.com/jihwankim/shufflebench/pkg/topology"
)

// Policy selects the election strategy.
type Policy string

const (
	Contiguous           Policy = "contiguous"
	Stride               Policy = "stride"
	ShiftedStride        Policy = "shifted-stride"
	RoundRobinAcrossNode Policy = "round-robin-across-nodes"
)

// Result is the Elector's output.
type Result struct {
	Global            []int // sorted ascending
	IsGlobalAggregator []bool
}

// Elect returns the sorted global aggregator list for world size n and
// aggregator count k under policy. topo is required for
// RoundRobinAcrossNode and ignored otherwise.
func Elect(n, k int, policy Policy, topo *topology.Topology) (*Result, error) {
	if k <= 0 || k > n {
		return nil, shuffleerr.InvalidConfigf("aggregator count K=%d must satisfy 0 < K <= N=%d", k, n)
	}

	var global []int
	switch policy {
	case Contiguous, "":
		global = contiguousList(k)
	case Stride:
		global = strideList(n, k, 0)
	case ShiftedStride:
		shift := (n + k - 1) / (k * 2)
		global = strideList(n, k, shift)
	case RoundRobinAcrossNode:
		if topo == nil {
			return nil, shuffleerr.InvalidConfig("round-robin-across-nodes policy requires a topology")
		}
		global = roundRobinAcrossNodes(topo, k)
	default:
		return nil, shuffleerr.InvalidConfigf("unknown aggregator election policy %q", policy)
	}

	// Canonicalize by sorting ascending, per spec §9's tie-break rule.
	sort.Ints(global)

	isAgg := make([]bool, n)
	for _, r := range global {
		isAgg[r] = true
	}
	return &Result{Global: global, IsGlobalAggregator: isAgg}, nil
}

func contiguousList(k int) []int {
	out := make([]int, k)
	for i := range out {
		out[i] = i
	}
	return out
}

// strideList reproduces original_source/mpi_test.c's create_aggregator_list
// arithmetic: the first `remainder` (= n mod k) slots use stride
// `ceiling`, the rest use stride `floor`, continuing from where the first
// block left off. shift rotates the resulting list by `shift` ranks
// modulo n (shifted-stride).
func strideList(n, k, shift int) []int {
	remainder := n % k
	ceiling := (n + k - 1) / k
	floor := n / k
	out := make([]int, k)
	for i := 0; i < k; i++ {
		var r int
		if i < remainder {
			r = ceiling * i
		} else {
			r = ceiling*remainder + floor*(i-remainder)
		}
		out[i] = (r + shift) % n
	}
	return out
}

// roundRobinAcrossNodes picks one process per node in rotation, advancing
// one intra-node index every time a full rotation of nodes completes, per
// spec §4.2: exactly one aggregator per node until every node has
// contributed once, then a second pass for a second aggregator per node,
// and so on, until k aggregators have been chosen.
func roundRobinAcrossNodes(topo *topology.Topology, k int) []int {
	numNodes := topo.NumNodes()
	out := make([]int, 0, k)
	for pass := 0; len(out) < k; pass++ {
		for node := 0; node < numNodes && len(out) < k; node++ {
			ranks := topo.RanksOnNode[node]
			if pass < len(ranks) {
				out = append(out, ranks[pass])
			}
		}
	}
	return out
}

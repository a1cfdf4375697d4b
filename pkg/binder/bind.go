// Package binder implements the Local-aggregator Binder (spec §4.3): it
// extends the global aggregator list into a per-node local aggregator set
// capped at co members per node, then binds every rank to exactly one
// local aggregator on its own node.
package binder

import (
	"sort"

	"github.com/jihwankim/shufflebench/pkg/shuffleerr"
	"github.com/jihwankim/shufflebench/pkg/topology"
)

// Mode selects how a node's local aggregator subset is chosen.
type Mode string

const (
	// Spread evenly distributes local aggregators across the node,
	// mirroring the stride election policy at node level.
	Spread Mode = "spread"
	// Cover forces local aggregators to include every global aggregator
	// resident on the node before filling remaining slots.
	Cover Mode = "cover"
)

// Result is the Binder's output.
type Result struct {
	Local   []int         // sorted ascending; holds every global aggregator only in Cover mode on nodes hosting at most co of them (Spread ignores the global list)
	Bind    []int         // Bind[r]: local aggregator rank r delegates to
	Clients map[int][]int // Clients[a]: ranks bound to local aggregator a, ascending
}

// Bind computes the local aggregator set and binding for topo given the
// global aggregator list, a per-node cap co, and a selection mode.
func Bind(topo *topology.Topology, global []int, co int, mode Mode) (*Result, error) {
	if co < 1 {
		return nil, shuffleerr.InvalidConfigf("local-aggregator cap co must be >= 1, got %d", co)
	}
	isGlobal := make(map[int]bool, len(global))
	for _, g := range global {
		isGlobal[g] = true
	}

	n := topo.World
	bind := make([]int, n)
	for i := range bind {
		bind[i] = -1
	}
	var local []int
	clients := make(map[int][]int)

	for node := 0; node < topo.NumNodes(); node++ {
		ranks := topo.RanksOnNode[node] // sorted ascending
		p := len(ranks)
		k := co
		if k > p {
			k = p
		}

		var nodeAggs []int
		switch mode {
		case Spread, "":
			nodeAggs = spreadPositions(ranks, p, k)
		case Cover:
			nodeAggs = coverSelection(ranks, isGlobal, k)
		default:
			return nil, shuffleerr.InvalidConfigf("unknown local-aggregator bind mode %q", mode)
		}
		sort.Ints(nodeAggs)
		local = append(local, nodeAggs...)

		isNodeAgg := make(map[int]bool, len(nodeAggs))
		for _, a := range nodeAggs {
			isNodeAgg[a] = true
		}

		start := 0
		remainder := p % k
		floor := p / k
		for i := 0; i < k; i++ {
			size := floor
			if i < remainder {
				size = floor + 1
			}
			group := ranks[start : start+size]
			start += size

			agg := nodeAggs[i]
			found := false
			var cs []int
			for _, r := range group {
				if r == agg {
					cs = append(cs, r)
					found = true
					continue
				}
				if isNodeAgg[r] {
					// Belongs to its own group; reserved-seat rule.
					continue
				}
				cs = append(cs, r)
			}
			if !found {
				cs = append(cs, agg)
			}
			for _, c := range cs {
				bind[c] = agg
			}
			clients[agg] = cs
		}
	}

	sort.Ints(local)
	for _, a := range clients {
		sort.Ints(a)
	}
	return &Result{Local: local, Bind: bind, Clients: clients}, nil
}

// spreadPositions mirrors the stride election policy at node level: the
// first (p mod k) local aggregators use stride ceil(p/k), the rest use
// stride floor(p/k), picked by position index into the node's sorted rank
// list.
func spreadPositions(ranks []int, p, k int) []int {
	remainder := p % k
	ceiling := (p + k - 1) / k
	floor := p / k
	out := make([]int, k)
	for i := 0; i < k; i++ {
		var pos int
		if i < remainder {
			pos = ceiling * i
		} else {
			pos = ceiling*remainder + floor*(i-remainder)
		}
		out[i] = ranks[pos]
	}
	return out
}

// coverSelection forces the node's local aggregators to include every
// global aggregator resident on the node, then extends with additional
// non-aggregator ranks in rank order until k are chosen (spec §4.3).
func coverSelection(ranks []int, isGlobal map[int]bool, k int) []int {
	var onNode []int
	for _, r := range ranks {
		if isGlobal[r] {
			onNode = append(onNode, r)
		}
	}
	if len(onNode) >= k {
		return append([]int(nil), onNode[:k]...)
	}
	chosen := make(map[int]bool, k)
	out := append([]int(nil), onNode...)
	for _, r := range out {
		chosen[r] = true
	}
	for _, r := range ranks {
		if len(out) >= k {
			break
		}
		if chosen[r] {
			continue
		}
		out = append(out, r)
		chosen[r] = true
	}
	return out
}

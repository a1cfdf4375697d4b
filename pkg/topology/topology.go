// Package topology implements the Topology Oracle (spec §4.1): it maps
// ranks to physical node groupings, either by discovering locality over
// the substrate (dynamic provider) or by synthesizing a deterministic
// mapping for tests (static provider).
package topology

import (
	"context"
	"sort"

	"github.com/jihwankim/shufflebench/pkg/shuffleerr"
)

// AssignmentMode selects how the static provider lays ranks onto nodes.
type AssignmentMode string

const (
	// Contiguous assigns rank r to node r / procsPerNode.
	Contiguous AssignmentMode = "contiguous"
	// RoundRobin assigns rank r to node r mod nodes, nodes being
	// ceil(N/procsPerNode). Node sizes differ by at most one, larger nodes
	// first; several nodes can be short (N=7, procsPerNode=3: 3, 2, 2).
	RoundRobin AssignmentMode = "round-robin"
)

// Topology is the Topology Oracle's output: a deterministic, acyclic
// mapping covering [0, N).
type Topology struct {
	World         int
	NodeOfRank    []int   // NodeOfRank[r]: node index rank r belongs to
	RanksOnNode   [][]int // RanksOnNode[node]: ascending ranks on that node
	ProxyRankOfNode []int // ProxyRankOfNode[node]: lowest rank on that node
}

// NodeSize returns the number of ranks sharing rank r's node. Resolves
// spec §9's open question (a): every rank observes the actual count of
// ranks on its own node, not a nominal node size.
func (t *Topology) NodeSize(rank int) int {
	return len(t.RanksOnNode[t.NodeOfRank[rank]])
}

// NumNodes returns the number of distinct nodes.
func (t *Topology) NumNodes() int {
	return len(t.RanksOnNode)
}

func build(world int, nodeOfRank []int) *Topology {
	numNodes := 0
	for _, n := range nodeOfRank {
		if n+1 > numNodes {
			numNodes = n + 1
		}
	}
	ranksOnNode := make([][]int, numNodes)
	for r, n := range nodeOfRank {
		ranksOnNode[n] = append(ranksOnNode[n], r)
	}
	proxy := make([]int, numNodes)
	for n, ranks := range ranksOnNode {
		sort.Ints(ranks)
		proxy[n] = ranks[0]
	}
	return &Topology{
		World:           world,
		NodeOfRank:      nodeOfRank,
		RanksOnNode:     ranksOnNode,
		ProxyRankOfNode: proxy,
	}
}

// NewStatic synthesizes a topology for world ranks of size n, procsPerNode
// ranks per node, under mode. This is the provider tests use: it needs no
// substrate round-trip and is fully deterministic.
//
// Grounded on original_source/mpi_test.c's static_node_assignment: the
// round-robin mode does not pad nodes, so when n is not a multiple of
// procsPerNode one or more trailing nodes hold one rank fewer than the
// leading ones.
func NewStatic(n, procsPerNode int, mode AssignmentMode) (*Topology, error) {
	if n <= 0 {
		return nil, shuffleerr.InvalidConfigf("world size must be positive, got %d", n)
	}
	if procsPerNode <= 0 {
		return nil, shuffleerr.InvalidConfigf("procs-per-node must be positive, got %d", procsPerNode)
	}
	nodeOfRank := make([]int, n)
	switch mode {
	case Contiguous, "":
		for r := 0; r < n; r++ {
			nodeOfRank[r] = r / procsPerNode
		}
	case RoundRobin:
		numNodes := (n + procsPerNode - 1) / procsPerNode
		for r := 0; r < n; r++ {
			nodeOfRank[r] = r % numNodes
		}
	default:
		return nil, shuffleerr.InvalidConfigf("unknown assignment mode %q", mode)
	}
	return build(n, nodeOfRank), nil
}

// LocalityReporter is the substrate capability the dynamic provider needs:
// an all-gather of a per-rank locality identifier (e.g. host name).
type LocalityReporter interface {
	Rank() int
	World() int
	AllGatherLocality(ctx context.Context, locality string) ([]string, error)
}

// NewDynamic discovers topology by gathering every rank's locality
// identifier and assigning node indices by first occurrence in the sorted
// sequence of unique identifiers, per spec §4.1.
func NewDynamic(ctx context.Context, comm LocalityReporter, locality string) (*Topology, error) {
	identifiers, err := comm.AllGatherLocality(ctx, locality)
	if err != nil {
		return nil, shuffleerr.TopologyUnavailable("locality all-gather failed", err)
	}
	n := comm.World()
	if len(identifiers) != n {
		return nil, shuffleerr.TopologyUnavailable("locality all-gather did not reach all ranks", nil)
	}

	unique := append([]string(nil), identifiers...)
	sort.Strings(unique)
	nodeIndex := make(map[string]int)
	next := 0
	for _, id := range unique {
		if _, ok := nodeIndex[id]; !ok {
			nodeIndex[id] = next
			next++
		}
	}

	nodeOfRank := make([]int, n)
	for r, id := range identifiers {
		nodeOfRank[r] = nodeIndex[id]
	}
	return build(n, nodeOfRank), nil
}

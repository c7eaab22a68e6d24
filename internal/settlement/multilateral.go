package settlement

import (
	"github.com/rawblock/clearing-engine/pkg/models"
)

// Multilateral Cycle Cancellation
//
// Bilateral netting leaves circular flows untouched: A delivers to B,
// B to C, C back to A. Cancelling the minimum edge weight around each
// such cycle reduces gross exposure without changing any account's net
// position. Cycles never span symbols, so obligations are partitioned
// by symbol hash and each partition is processed independently.
//
// The graph is never materialized as an owned structure: edges are
// positions into the flat obligation slice, the adjacency map holds
// (receiver, index) pairs, and DFS state is a visited-node set plus
// the current path of edge indices.
//
// Payment reduction is proportional: cancelling m lots of an edge
// carrying q lots at payment p removes trunc(p·m/q), computed with a
// 128-bit multiply before the divide so p·m cannot overflow.

// edge is one outgoing obligation in the adjacency map.
type edge struct {
	receiver uint64
	index    int
}

// MultilateralNet cancels circular flows among the given bilateral
// obligations and returns the reduced set. Input obligations are not
// modified; obligations fully consumed by cancellation are dropped.
// Gross quantity never increases and every account's net payment
// balance is preserved.
func MultilateralNet(obligations []models.NetObligation) []models.NetObligation {
	work := make([]models.NetObligation, len(obligations))
	copy(work, obligations)

	// Partition indices per symbol, preserving input order so the DFS
	// tie-break is deterministic for a fixed input.
	symbolOrder := make([]uint64, 0)
	partitions := make(map[uint64][]int)
	for i, ob := range work {
		if _, seen := partitions[ob.SymbolHash]; !seen {
			symbolOrder = append(symbolOrder, ob.SymbolHash)
		}
		partitions[ob.SymbolHash] = append(partitions[ob.SymbolHash], i)
	}

	for _, sym := range symbolOrder {
		cancelSymbolCycles(work, partitions[sym])
	}

	out := make([]models.NetObligation, 0, len(work))
	for _, ob := range work {
		if ob.NetQuantity > 0 {
			out = append(out, ob)
		}
	}
	return out
}

// cancelSymbolCycles repeatedly finds and cancels one cycle within a
// single symbol partition until none remains.
func cancelSymbolCycles(work []models.NetObligation, indices []int) {
	for {
		cycle := findCycle(work, indices)
		if cycle == nil {
			return
		}
		cancelCycle(work, cycle)
	}
}

// findCycle builds the live adjacency for the partition and runs a DFS
// from each node with outgoing edges. Returns the edge indices of the
// first cycle discovered, or nil.
func findCycle(work []models.NetObligation, indices []int) []int {
	nodes := make([]uint64, 0)
	adjacency := make(map[uint64][]edge)
	for _, i := range indices {
		ob := work[i]
		if ob.NetQuantity == 0 {
			continue
		}
		if _, seen := adjacency[ob.DelivererID]; !seen {
			nodes = append(nodes, ob.DelivererID)
		}
		adjacency[ob.DelivererID] = append(adjacency[ob.DelivererID], edge{receiver: ob.ReceiverID, index: i})
	}

	for _, start := range nodes {
		visited := map[uint64]bool{start: true}
		if path := dfsCycle(adjacency, start, start, visited, nil); path != nil {
			return path
		}
	}
	return nil
}

// dfsCycle walks deliverer→receiver edges from current, succeeding when
// an edge returns to start. path carries the obligation indices along
// the current walk.
func dfsCycle(adjacency map[uint64][]edge, start, current uint64, visited map[uint64]bool, path []int) []int {
	for _, e := range adjacency[current] {
		if e.receiver == start {
			cycle := make([]int, len(path), len(path)+1)
			copy(cycle, path)
			return append(cycle, e.index)
		}
		if visited[e.receiver] {
			continue
		}
		visited[e.receiver] = true
		if found := dfsCycle(adjacency, start, e.receiver, visited, append(path, e.index)); found != nil {
			return found
		}
		delete(visited, e.receiver)
	}
	return nil
}

// cancelCycle removes the minimum edge quantity from every edge of the
// cycle, reducing each payment proportionally.
func cancelCycle(work []models.NetObligation, cycle []int) {
	m := work[cycle[0]].NetQuantity
	for _, i := range cycle[1:] {
		if work[i].NetQuantity < m {
			m = work[i].NetQuantity
		}
	}

	for _, i := range cycle {
		ob := &work[i]
		reduction := mulDivTrunc(ob.NetPayment, m, ob.NetQuantity)
		ob.NetQuantity -= m
		ob.NetPayment -= reduction
	}
}

// GrossQuantity sums net quantities across obligations, saturating at
// the uint64 limit. Used by the efficiency metrics to measure how much
// exposure a cancellation pass removed.
func GrossQuantity(obligations []models.NetObligation) uint64 {
	var total uint64
	for _, ob := range obligations {
		sum := total + ob.NetQuantity
		if sum < total {
			return ^uint64(0)
		}
		total = sum
	}
	return total
}

// Package schedule derives execution order, parallel batches, and
// critical path timing from an immutable graph snapshot. Nothing here
// mutates state; every pass takes a snapshot and returns fresh results.
package schedule

import (
	"container/heap"
	"fmt"
	"sort"

	"github.com/hylla/ordna/internal/domain"
	"github.com/hylla/ordna/internal/graph"
)

// Order returns all node ids in a topological order over hard,
// non-overridden edges. Ties break on lowest id so output is
// reproducible. A committed cycle is unreachable while the cycle guard
// holds; if one appears anyway the defensive check surfaces
// ErrCycleDetected rather than returning a wrong order.
func Order(snap *graph.Snapshot) ([]string, error) {
	indegree := constrainingIndegree(snap)

	ready := &idHeap{}
	heap.Init(ready)
	for _, id := range snap.NodeIDs() {
		if indegree[id] == 0 {
			heap.Push(ready, id)
		}
	}

	order := make([]string, 0, snap.NodeCount())
	for ready.Len() > 0 {
		id := heap.Pop(ready).(string)
		order = append(order, id)
		for _, next := range snap.ConstrainingSuccessors(id) {
			indegree[next]--
			if indegree[next] == 0 {
				heap.Push(ready, next)
			}
		}
	}

	if len(order) != snap.NodeCount() {
		return nil, fmt.Errorf("ordered %d of %d nodes: %w", len(order), snap.NodeCount(), domain.ErrCycleDetected)
	}
	return order, nil
}

// ParallelBatches partitions nodes into waves: every node in a wave has
// all its hard-blocking predecessors in earlier waves, so each wave is
// the maximal set eligible to start concurrently. Waves and their
// members are sorted by id.
func ParallelBatches(snap *graph.Snapshot) ([][]string, error) {
	indegree := constrainingIndegree(snap)

	wave := make([]string, 0)
	for _, id := range snap.NodeIDs() {
		if indegree[id] == 0 {
			wave = append(wave, id)
		}
	}

	batches := make([][]string, 0)
	processed := 0
	for len(wave) > 0 {
		sort.Strings(wave)
		batches = append(batches, wave)
		processed += len(wave)

		var next []string
		for _, id := range wave {
			for _, succ := range snap.ConstrainingSuccessors(id) {
				indegree[succ]--
				if indegree[succ] == 0 {
					next = append(next, succ)
				}
			}
		}
		wave = next
	}

	if processed != snap.NodeCount() {
		return nil, fmt.Errorf("batched %d of %d nodes: %w", processed, snap.NodeCount(), domain.ErrCycleDetected)
	}
	return batches, nil
}

// constrainingIndegree counts hard, non-overridden in-edges per node.
func constrainingIndegree(snap *graph.Snapshot) map[string]int {
	indegree := make(map[string]int, snap.NodeCount())
	for _, id := range snap.NodeIDs() {
		indegree[id] = len(snap.ConstrainingPredecessors(id))
	}
	return indegree
}

// idHeap is a min-heap of node ids for deterministic Kahn tie-breaks.
type idHeap []string

func (h idHeap) Len() int           { return len(h) }
func (h idHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h idHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *idHeap) Push(x any)        { *h = append(*h, x.(string)) }
func (h *idHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

package graph

import (
	"fmt"

	"github.com/hylla/ordna/internal/domain"
)

// WouldCreateCycle reports whether adding an edge from -> to would
// close a cycle in the snapshot. It is a pure reachability check: if to
// can already reach from over any existing edge, the candidate closes a
// loop. Soft and overridden edges count; overrides suspend enforcement,
// not acyclicity.
//
// The traversal carries a defensive visit cap equal to the node count.
// Exceeding it is impossible while the store upholds the DAG invariant,
// so a breach surfaces ErrCycleDetected instead of looping.
func WouldCreateCycle(snap *Snapshot, from, to string) (bool, error) {
	if from == to {
		return true, nil
	}

	limit := snap.NodeCount()
	visited := make(map[string]struct{}, limit)
	stack := []string{to}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if current == from {
			return true, nil
		}
		if _, ok := visited[current]; ok {
			continue
		}
		visited[current] = struct{}{}
		if len(visited) > limit {
			return false, fmt.Errorf("cycle guard visited %d nodes of %d: %w", len(visited), limit, domain.ErrCycleDetected)
		}
		stack = append(stack, snap.Successors(current)...)
	}
	return false, nil
}

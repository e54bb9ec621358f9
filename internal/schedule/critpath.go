package schedule

import (
	"time"

	"github.com/hylla/ordna/internal/graph"
)

// NodeSchedule holds the derived timing values for one node. It is a
// projection over the graph, never persisted as ground truth.
type NodeSchedule struct {
	NodeID         string
	EarliestStart  time.Time
	EarliestFinish time.Time
	LatestStart    time.Time
	LatestFinish   time.Time
	Slack          time.Duration
	OnCriticalPath bool
}

// Result is the outcome of one critical path pass.
type Result struct {
	Anchor        time.Time
	ProjectFinish time.Time
	Nodes         map[string]NodeSchedule
	// CriticalPath lists every zero-slack node in topological order.
	// Tied zero-slack chains are all included; the critical path is a
	// set, not necessarily a single chain.
	CriticalPath []string
}

// Analyze runs the forward/backward pass over the topological order and
// returns per-node schedules. Nodes whose slack is within tolerance of
// zero are on the critical path. An empty snapshot yields an empty
// result, not an error.
func Analyze(snap *graph.Snapshot, anchor time.Time, tolerance time.Duration) (Result, error) {
	order, err := Order(snap)
	if err != nil {
		return Result{}, err
	}
	anchor = anchor.UTC()
	if tolerance < 0 {
		tolerance = 0
	}

	result := Result{
		Anchor:        anchor,
		ProjectFinish: anchor,
		Nodes:         make(map[string]NodeSchedule, len(order)),
	}

	// Forward pass: earliest start is the max earliest finish of all
	// hard-blocking predecessors, or the anchor when unconstrained.
	for _, id := range order {
		item, _ := snap.Node(id)
		earliestStart := anchor
		for _, pred := range snap.ConstrainingPredecessors(id) {
			if finish := result.Nodes[pred].EarliestFinish; finish.After(earliestStart) {
				earliestStart = finish
			}
		}
		earliestFinish := earliestStart.Add(item.Duration)
		if earliestFinish.After(result.ProjectFinish) {
			result.ProjectFinish = earliestFinish
		}
		result.Nodes[id] = NodeSchedule{
			NodeID:         id,
			EarliestStart:  earliestStart,
			EarliestFinish: earliestFinish,
		}
	}

	// Backward pass in reverse topological order: latest finish is the
	// min latest start of all constrained successors, or the overall
	// project finish for terminal nodes.
	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		item, _ := snap.Node(id)
		latestFinish := result.ProjectFinish
		for _, succ := range snap.ConstrainingSuccessors(id) {
			if start := result.Nodes[succ].LatestStart; start.Before(latestFinish) {
				latestFinish = start
			}
		}
		sched := result.Nodes[id]
		sched.LatestFinish = latestFinish
		sched.LatestStart = latestFinish.Add(-item.Duration)
		sched.Slack = sched.LatestStart.Sub(sched.EarliestStart)
		sched.OnCriticalPath = sched.Slack <= tolerance
		result.Nodes[id] = sched
	}

	for _, id := range order {
		if result.Nodes[id].OnCriticalPath {
			result.CriticalPath = append(result.CriticalPath, id)
		}
	}
	return result, nil
}

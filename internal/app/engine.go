// Package app orchestrates the dependency graph engine: it serializes
// mutations through the graph store, recomputes derived schedule and
// priority state from immutable snapshots, and hands minimal change
// events to the notifier. External collaborators (CLI, HTTP, MCP) call
// the Engine and consume its outputs; they never touch the store
// directly.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	charmLog "github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/hylla/ordna/internal/domain"
	"github.com/hylla/ordna/internal/graph"
	"github.com/hylla/ordna/internal/notify"
	"github.com/hylla/ordna/internal/priority"
	"github.com/hylla/ordna/internal/schedule"
)

// IDGenerator returns unique identifiers for new edges and mutations.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// Config holds engine tuning supplied by the operator.
type Config struct {
	Scoring        priority.Config
	SlackTolerance time.Duration
	Notify         notify.Config
}

// recentEventCap bounds the in-memory change feed served to pull
// consumers.
const recentEventCap = 256

// Engine is one graph instance with its derived state. All mutations
// serialize through a single write lock; queries read the last
// committed derived snapshot without recomputation.
type Engine struct {
	mu       sync.RWMutex
	store    *graph.Store
	scorer   *priority.Scorer
	notifier *notify.Notifier
	idGen    IDGenerator
	clock    Clock
	logger   *charmLog.Logger

	tolerance time.Duration
	risks     map[string]domain.RiskInput
	derived   derived
	recent    []domain.ChangeEvent
	halted    bool
}

// derived is the committed projection rebuilt after every mutation.
type derived struct {
	version  uint64
	order    []string
	batches  [][]string
	schedule schedule.Result
	ranking  []priority.Score
	state    notify.State
}

// NewEngine constructs an engine with its own store and notifier.
func NewEngine(cfg Config, idGen IDGenerator, clock Clock, logger *charmLog.Logger) *Engine {
	if idGen == nil {
		idGen = uuid.NewString
	}
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = charmLog.Default()
	}
	e := &Engine{
		store:     graph.NewStore(),
		scorer:    priority.NewScorer(cfg.Scoring),
		notifier:  notify.NewNotifier(cfg.Notify, logger),
		idGen:     idGen,
		clock:     clock,
		logger:    logger,
		tolerance: cfg.SlackTolerance,
		risks:     map[string]domain.RiskInput{},
	}
	// Seed derived state for the empty graph so first queries and the
	// first diff have a baseline.
	if err := e.recomputeLocked("init"); err != nil {
		// Unreachable on an empty graph.
		logger.Error("initial recompute failed", "err", err)
	}
	return e
}

// SubmitNodeInput holds input values for node submissions.
type SubmitNodeInput struct {
	ID       string
	Title    string
	Duration time.Duration
	Status   domain.Status
}

// SubmitNode registers a work item in scheduling scope.
func (e *Engine) SubmitNode(ctx context.Context, in SubmitNodeInput) (domain.WorkItem, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.writable(ctx); err != nil {
		return domain.WorkItem{}, err
	}

	id := in.ID
	if id == "" {
		id = e.idGen()
	}
	item, err := domain.NewWorkItem(id, in.Title, in.Duration, in.Status, e.clock())
	if err != nil {
		return domain.WorkItem{}, err
	}
	if err := e.store.AddNode(item); err != nil {
		return domain.WorkItem{}, err
	}
	return item, e.commit("submit_node")
}

// UpdateNodeInput holds optional field updates for one node. A nil
// Duration and an empty Status each leave that field unchanged.
type UpdateNodeInput struct {
	ID       string
	Duration *time.Duration
	Status   domain.Status
}

// UpdateNode applies duration and status changes as one mutation: the
// node is replaced once, so either every requested change commits or
// none does. Moving into active is gated on every hard-blocking
// predecessor being done; overridden and soft edges do not gate. The
// gate is evaluated against current predecessor state at transition
// time, never cached.
func (e *Engine) UpdateNode(ctx context.Context, in UpdateNodeInput) (domain.WorkItem, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.writable(ctx); err != nil {
		return domain.WorkItem{}, err
	}

	snap := e.store.Snapshot()
	item, ok := snap.Node(in.ID)
	if !ok {
		return domain.WorkItem{}, fmt.Errorf("node %q: %w", in.ID, domain.ErrUnknownNode)
	}
	if in.Duration == nil && in.Status == "" {
		return item, nil
	}
	if in.Duration != nil {
		if err := item.SetDuration(*in.Duration, e.clock()); err != nil {
			return domain.WorkItem{}, err
		}
	}
	if in.Status != "" {
		if err := item.Transition(in.Status, e.clock()); err != nil {
			return domain.WorkItem{}, fmt.Errorf("node %q to %q: %w", in.ID, in.Status, err)
		}
		if item.Status == domain.StatusActive {
			if blockers := unfinishedPredecessors(snap, in.ID); len(blockers) > 0 {
				return domain.WorkItem{}, fmt.Errorf("node %q blocked by %v: %w", in.ID, blockers, domain.ErrInvalidTransition)
			}
		}
	}
	if err := e.store.ReplaceNode(item); err != nil {
		return domain.WorkItem{}, err
	}
	return item, e.commit("update_node")
}

// UpdateDuration replaces a node's duration estimate.
func (e *Engine) UpdateDuration(ctx context.Context, id string, duration time.Duration) (domain.WorkItem, error) {
	return e.UpdateNode(ctx, UpdateNodeInput{ID: id, Duration: &duration})
}

// UpdateStatus transitions a node's status.
func (e *Engine) UpdateStatus(ctx context.Context, id string, next domain.Status) (domain.WorkItem, error) {
	return e.UpdateNode(ctx, UpdateNodeInput{ID: id, Status: next})
}

// RemoveNode removes a work item, cascading incident edges when asked.
func (e *Engine) RemoveNode(ctx context.Context, id string, cascade bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.writable(ctx); err != nil {
		return err
	}

	if err := e.store.RemoveNode(id, cascade); err != nil {
		return err
	}
	delete(e.risks, id)
	return e.commit("remove_node")
}

// SubmitEdgeInput holds input values for edge submissions.
type SubmitEdgeInput struct {
	From     string
	To       string
	Kind     domain.DependencyKind
	Hardness domain.Hardness
}

// SubmitEdge inserts a dependency edge after cycle guard validation.
func (e *Engine) SubmitEdge(ctx context.Context, in SubmitEdgeInput) (domain.Dependency, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.writable(ctx); err != nil {
		return domain.Dependency{}, err
	}

	edge, err := domain.NewDependency(e.idGen(), in.From, in.To, in.Kind, in.Hardness, e.clock())
	if err != nil {
		return domain.Dependency{}, err
	}
	if err := e.store.AddEdge(edge); err != nil {
		return domain.Dependency{}, err
	}
	return edge, e.commit("submit_edge")
}

// RemoveEdge deletes a dependency edge.
func (e *Engine) RemoveEdge(ctx context.Context, edgeID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.writable(ctx); err != nil {
		return err
	}

	if err := e.store.RemoveEdge(edgeID); err != nil {
		return err
	}
	return e.commit("remove_edge")
}

// SubmitOverride suspends enforcement of an edge without deleting it.
// The edge still participates in acyclicity checks.
func (e *Engine) SubmitOverride(ctx context.Context, edgeID, actor string, actorType domain.ActorType, reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.writable(ctx); err != nil {
		return err
	}

	override, err := domain.NewOverride(actor, actorType, reason, e.clock())
	if err != nil {
		return err
	}
	if err := e.store.SetOverride(edgeID, override); err != nil {
		return err
	}
	return e.commit("submit_override")
}

// ClearOverride restores enforcement of an overridden edge.
func (e *Engine) ClearOverride(ctx context.Context, edgeID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.writable(ctx); err != nil {
		return err
	}

	if err := e.store.ClearOverride(edgeID); err != nil {
		return err
	}
	return e.commit("clear_override")
}

// SubmitRiskInput records an externally produced risk estimate for a
// node. The engine only consumes and decays this value.
func (e *Engine) SubmitRiskInput(ctx context.Context, nodeID string, value float64, observedAt time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.writable(ctx); err != nil {
		return err
	}

	input, err := domain.NewRiskInput(nodeID, value, observedAt)
	if err != nil {
		return err
	}
	if _, ok := e.store.Snapshot().Node(input.NodeID); !ok {
		return fmt.Errorf("node %q: %w", input.NodeID, domain.ErrUnknownNode)
	}
	e.risks[input.NodeID] = input
	return e.commit("submit_risk")
}

// GetOrder returns the committed topological order.
func (e *Engine) GetOrder(ctx context.Context) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string(nil), e.derived.order...)
}

// GetParallelBatches returns the committed parallel execution waves.
func (e *Engine) GetParallelBatches(ctx context.Context) [][]string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([][]string, len(e.derived.batches))
	for i, batch := range e.derived.batches {
		out[i] = append([]string(nil), batch...)
	}
	return out
}

// GetCriticalPath returns the committed critical path node set in
// topological order.
func (e *Engine) GetCriticalPath(ctx context.Context) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string(nil), e.derived.schedule.CriticalPath...)
}

// GetPriorityRanking returns the committed ranking, highest first.
func (e *Engine) GetPriorityRanking(ctx context.Context) []priority.Score {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]priority.Score(nil), e.derived.ranking...)
}

// GetScheduleResult returns the committed critical path analysis. The
// node map is shared; recompute replaces it wholesale and never mutates
// it in place.
func (e *Engine) GetScheduleResult(ctx context.Context) schedule.Result {
	e.mu.RLock()
	defer e.mu.RUnlock()
	result := e.derived.schedule
	result.CriticalPath = append([]string(nil), result.CriticalPath...)
	return result
}

// GetNodeSchedule returns the committed schedule for one node.
func (e *Engine) GetNodeSchedule(ctx context.Context, id string) (schedule.NodeSchedule, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	sched, ok := e.derived.schedule.Nodes[id]
	if !ok {
		return schedule.NodeSchedule{}, fmt.Errorf("node %q: %w", id, domain.ErrUnknownNode)
	}
	return sched, nil
}

// RecentEvents returns up to limit most recent change events, oldest
// first.
func (e *Engine) RecentEvents(ctx context.Context, limit int) []domain.ChangeEvent {
	e.mu.RLock()
	defer e.mu.RUnlock()
	events := e.recent
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return append([]domain.ChangeEvent(nil), events...)
}

// Snapshot exposes the committed graph snapshot for read-only
// collaborators.
func (e *Engine) Snapshot(ctx context.Context) *graph.Snapshot {
	return e.store.Snapshot()
}

// Subscribe registers a change event consumer.
func (e *Engine) Subscribe(name string) (<-chan domain.ChangeEvent, error) {
	return e.notifier.Subscribe(name)
}

// Unsubscribe removes a change event consumer.
func (e *Engine) Unsubscribe(name string) {
	e.notifier.Unsubscribe(name)
}

// Halted reports whether the engine refuses writes after an invariant
// breach.
func (e *Engine) Halted() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.halted
}

// Reset attempts to clear a halt by recomputing derived state from the
// current snapshot. It fails, and the halt stands, while the snapshot
// still breaches an invariant.
func (e *Engine) Reset(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	if !e.halted {
		return nil
	}
	if err := e.recomputeLocked("reset"); err != nil {
		return err
	}
	e.halted = false
	e.logger.Info("engine halt cleared")
	return nil
}

// Close releases the notifier's subscriber goroutines.
func (e *Engine) Close() {
	e.notifier.Close()
}

// writable guards mutations: context must be live and the engine must
// not be halted.
func (e *Engine) writable(ctx context.Context) error {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	if e.halted {
		return domain.ErrEngineHalted
	}
	return nil
}

// commit recomputes derived state after a successful store mutation and
// publishes the resulting change events. A CycleDetected here means the
// guard was bypassed: the engine logs it and halts further writes.
func (e *Engine) commit(operation string) error {
	mutationID := e.idGen()
	if err := e.recomputeLocked(mutationID); err != nil {
		e.halted = true
		e.logger.Error("derived recompute failed; halting writes",
			"operation", operation, "mutation_id", mutationID, "err", err)
		return err
	}
	e.logger.Debug("mutation committed",
		"operation", operation, "mutation_id", mutationID, "version", e.derived.version)
	return nil
}

// recomputeLocked rebuilds order, batches, schedule, and ranking from
// the current snapshot, then diffs against the previous derived state.
// Caller holds the write lock.
func (e *Engine) recomputeLocked(cause string) error {
	snap := e.store.Snapshot()
	now := e.clock().UTC()

	order, err := schedule.Order(snap)
	if err != nil {
		return err
	}
	batches, err := schedule.ParallelBatches(snap)
	if err != nil {
		return err
	}
	result, err := schedule.Analyze(snap, now, e.tolerance)
	if err != nil {
		return err
	}
	ranking := e.scorer.Rank(snap, result, e.risks, now)

	state := make(notify.State, snap.NodeCount())
	rankByID := make(map[string]priority.Score, len(ranking))
	for _, score := range ranking {
		rankByID[score.NodeID] = score
	}
	for _, id := range snap.NodeIDs() {
		item, _ := snap.Node(id)
		sched := result.Nodes[id]
		score := rankByID[id] // zero value for done nodes
		state[id] = notify.DerivedNode{
			Rank:           score.Rank,
			Score:          score.Total,
			Slack:          sched.Slack,
			OnCriticalPath: sched.OnCriticalPath,
			Status:         item.Status,
		}
	}

	events := notify.Diff(e.derived.state, state, cause, now, e.notifier.Config())
	e.derived = derived{
		version:  snap.Version(),
		order:    order,
		batches:  batches,
		schedule: result,
		ranking:  ranking,
		state:    state,
	}
	if len(events) > 0 {
		e.notifier.Publish(events)
		e.recent = append(e.recent, events...)
		if len(e.recent) > recentEventCap {
			e.recent = e.recent[len(e.recent)-recentEventCap:]
		}
	}
	return nil
}

// unfinishedPredecessors lists hard-blocking predecessors that are not
// done yet, for explainable activation failures.
func unfinishedPredecessors(snap *graph.Snapshot, id string) []string {
	var blockers []string
	for _, pred := range snap.ConstrainingPredecessors(id) {
		item, ok := snap.Node(pred)
		if !ok || item.Status != domain.StatusDone {
			blockers = append(blockers, pred)
		}
	}
	return blockers
}

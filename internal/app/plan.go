package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/hylla/ordna/internal/domain"
)

// PlanVersion defines the plan document version this build reads and
// writes.
const PlanVersion = "ordna.plan.v1"

// Plan is a versioned JSON description of one graph: nodes, edges with
// override records, and risk inputs. It is the CLI's input format and a
// debugging surface, not a persistence layer.
type Plan struct {
	Version    string     `json:"version"`
	ExportedAt time.Time  `json:"exported_at,omitzero"`
	Nodes      []PlanNode `json:"nodes"`
	Edges      []PlanEdge `json:"edges,omitempty"`
	Risks      []PlanRisk `json:"risks,omitempty"`
}

// PlanNode represents one work item row in a plan.
type PlanNode struct {
	ID       string        `json:"id"`
	Title    string        `json:"title,omitempty"`
	Duration string        `json:"duration"`
	Status   domain.Status `json:"status,omitempty"`
}

// PlanEdge represents one dependency row in a plan.
type PlanEdge struct {
	ID       string                `json:"id,omitempty"`
	From     string                `json:"from"`
	To       string                `json:"to"`
	Kind     domain.DependencyKind `json:"kind,omitempty"`
	Hardness domain.Hardness       `json:"hardness,omitempty"`
	Override *PlanOverride         `json:"override,omitempty"`
}

// PlanOverride represents one enforcement override row in a plan.
type PlanOverride struct {
	Actor     string           `json:"actor"`
	ActorType domain.ActorType `json:"actor_type,omitempty"`
	Reason    string           `json:"reason,omitempty"`
	At        time.Time        `json:"at,omitzero"`
}

// PlanRisk represents one risk input row in a plan.
type PlanRisk struct {
	NodeID     string    `json:"node_id"`
	Value      float64   `json:"value"`
	ObservedAt time.Time `json:"observed_at"`
}

// ExportPlan captures the committed graph and risk inputs as a plan
// document.
func (e *Engine) ExportPlan(ctx context.Context) (Plan, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	snap := e.store.Snapshot()
	plan := Plan{
		Version:    PlanVersion,
		ExportedAt: e.clock().UTC(),
		Nodes:      make([]PlanNode, 0, snap.NodeCount()),
		Edges:      make([]PlanEdge, 0, snap.EdgeCount()),
	}
	for _, id := range snap.NodeIDs() {
		item, _ := snap.Node(id)
		plan.Nodes = append(plan.Nodes, PlanNode{
			ID:       item.ID,
			Title:    item.Title,
			Duration: item.Duration.String(),
			Status:   item.Status,
		})
	}
	for _, edge := range snap.Edges() {
		row := PlanEdge{
			ID:       edge.ID,
			From:     edge.From,
			To:       edge.To,
			Kind:     edge.Kind,
			Hardness: edge.Hardness,
		}
		if edge.Override != nil {
			row.Override = &PlanOverride{
				Actor:     edge.Override.Actor,
				ActorType: edge.Override.ActorType,
				Reason:    edge.Override.Reason,
				At:        edge.Override.At,
			}
		}
		plan.Edges = append(plan.Edges, row)
	}
	for _, id := range snap.NodeIDs() {
		if input, ok := e.risks[id]; ok {
			plan.Risks = append(plan.Risks, PlanRisk{
				NodeID:     input.NodeID,
				Value:      input.Value,
				ObservedAt: input.ObservedAt,
			})
		}
	}
	return plan, nil
}

// ImportPlan replays a plan document through the normal submission
// path: nodes first, then edges with overrides, then risk inputs.
// Rejections surface with enough detail to fix the plan row.
func (e *Engine) ImportPlan(ctx context.Context, plan Plan) error {
	if plan.Version != "" && plan.Version != PlanVersion {
		return fmt.Errorf("unsupported plan version %q", plan.Version)
	}
	for i, node := range plan.Nodes {
		duration, err := parsePlanDuration(node.Duration)
		if err != nil {
			return fmt.Errorf("plan node %d (%s): %w", i, node.ID, err)
		}
		if _, err := e.SubmitNode(ctx, SubmitNodeInput{
			ID:       node.ID,
			Title:    node.Title,
			Duration: duration,
			Status:   node.Status,
		}); err != nil {
			return fmt.Errorf("plan node %d (%s): %w", i, node.ID, err)
		}
	}
	for i, row := range plan.Edges {
		edge, err := e.submitPlanEdge(ctx, row)
		if err != nil {
			return fmt.Errorf("plan edge %d (%s -> %s): %w", i, row.From, row.To, err)
		}
		if row.Override != nil {
			if err := e.SubmitOverride(ctx, edge.ID, row.Override.Actor, row.Override.ActorType, row.Override.Reason); err != nil {
				return fmt.Errorf("plan edge %d (%s -> %s) override: %w", i, row.From, row.To, err)
			}
		}
	}
	for i, risk := range plan.Risks {
		observed := risk.ObservedAt
		if observed.IsZero() {
			observed = e.clock()
		}
		if err := e.SubmitRiskInput(ctx, risk.NodeID, risk.Value, observed); err != nil {
			return fmt.Errorf("plan risk %d (%s): %w", i, risk.NodeID, err)
		}
	}
	return nil
}

// submitPlanEdge inserts one plan edge, honoring an explicit edge id
// when present.
func (e *Engine) submitPlanEdge(ctx context.Context, row PlanEdge) (domain.Dependency, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.writable(ctx); err != nil {
		return domain.Dependency{}, err
	}

	id := row.ID
	if id == "" {
		id = e.idGen()
	}
	edge, err := domain.NewDependency(id, row.From, row.To, row.Kind, row.Hardness, e.clock())
	if err != nil {
		return domain.Dependency{}, err
	}
	if err := e.store.AddEdge(edge); err != nil {
		return domain.Dependency{}, err
	}
	return edge, e.commit("submit_edge")
}

// ReadPlan decodes a plan document from r.
func ReadPlan(r io.Reader) (Plan, error) {
	var plan Plan
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&plan); err != nil {
		return Plan{}, fmt.Errorf("decode plan: %w", err)
	}
	return plan, nil
}

// WritePlan encodes a plan document to w.
func WritePlan(w io.Writer, plan Plan) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(plan); err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}
	return nil
}

// parsePlanDuration accepts Go duration strings; empty means zero.
func parsePlanDuration(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	duration, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", raw, err)
	}
	return duration, nil
}

// Package common provides transport-agnostic server contracts shared by
// the HTTP and MCP adapters.
package common

import (
	"context"
	"time"
)

// SubmitNodeRequest captures input for one node submission.
type SubmitNodeRequest struct {
	ID       string `json:"id,omitempty"`
	Title    string `json:"title,omitempty"`
	Duration string `json:"duration"`
	Status   string `json:"status,omitempty"`
}

// UpdateNodeRequest captures partial updates for one node.
type UpdateNodeRequest struct {
	Duration string `json:"duration,omitempty"`
	Status   string `json:"status,omitempty"`
}

// SubmitEdgeRequest captures input for one dependency edge submission.
type SubmitEdgeRequest struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Kind     string `json:"kind,omitempty"`
	Hardness string `json:"hardness,omitempty"`
}

// OverrideRequest captures input for suspending one edge's enforcement.
type OverrideRequest struct {
	EdgeID    string `json:"edge_id"`
	Actor     string `json:"actor"`
	ActorType string `json:"actor_type,omitempty"`
	Reason    string `json:"reason"`
}

// RiskRequest captures one externally produced risk estimate.
type RiskRequest struct {
	NodeID     string  `json:"node_id"`
	Value      float64 `json:"value"`
	ObservedAt string  `json:"observed_at,omitempty"`
}

// NodeView represents one work item in transport responses.
type NodeView struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	Duration  string    `json:"duration"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OverrideView represents one applied edge override.
type OverrideView struct {
	Actor     string    `json:"actor"`
	ActorType string    `json:"actor_type"`
	Reason    string    `json:"reason"`
	At        time.Time `json:"at"`
}

// EdgeView represents one dependency edge in transport responses.
type EdgeView struct {
	ID        string        `json:"id"`
	From      string        `json:"from"`
	To        string        `json:"to"`
	Kind      string        `json:"kind"`
	Hardness  string        `json:"hardness"`
	Override  *OverrideView `json:"override,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// ScheduleView represents one node's derived schedule.
type ScheduleView struct {
	NodeID         string    `json:"node_id"`
	EarliestStart  time.Time `json:"earliest_start"`
	EarliestFinish time.Time `json:"earliest_finish"`
	LatestStart    time.Time `json:"latest_start"`
	LatestFinish   time.Time `json:"latest_finish"`
	Slack          string    `json:"slack"`
	OnCriticalPath bool      `json:"on_critical_path"`
}

// CriticalPathView represents the project-level critical path result.
type CriticalPathView struct {
	Anchor        time.Time `json:"anchor"`
	ProjectFinish time.Time `json:"project_finish"`
	Path          []string  `json:"path"`
}

// ScoreView represents one ranked node with its contributing terms.
type ScoreView struct {
	NodeID        string  `json:"node_id"`
	Rank          int     `json:"rank"`
	Total         float64 `json:"total"`
	Urgency       float64 `json:"urgency"`
	CriticalBonus float64 `json:"critical_bonus"`
	FanOutWeight  float64 `json:"fan_out_weight"`
	DecayedRisk   float64 `json:"decayed_risk"`
	Dependents    int     `json:"dependents"`
}

// EventView represents one derived-state change event.
type EventView struct {
	NodeID          string    `json:"node_id"`
	Field           string    `json:"field"`
	OldValue        string    `json:"old_value"`
	NewValue        string    `json:"new_value"`
	CauseMutationID string    `json:"cause_mutation_id"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// EngineService defines the engine operations exposed over transports.
type EngineService interface {
	SubmitNode(context.Context, SubmitNodeRequest) (NodeView, error)
	UpdateNode(context.Context, string, UpdateNodeRequest) (NodeView, error)
	RemoveNode(ctx context.Context, id string, cascade bool) error
	SubmitEdge(context.Context, SubmitEdgeRequest) (EdgeView, error)
	RemoveEdge(ctx context.Context, id string) error
	SubmitOverride(context.Context, OverrideRequest) error
	ClearOverride(ctx context.Context, edgeID string) error
	SubmitRisk(context.Context, RiskRequest) error

	Order(context.Context) ([]string, error)
	ParallelBatches(context.Context) ([][]string, error)
	CriticalPath(context.Context) (CriticalPathView, error)
	Ranking(context.Context) ([]ScoreView, error)
	NodeSchedule(ctx context.Context, id string) (ScheduleView, error)
	RecentEvents(ctx context.Context, limit int) ([]EventView, error)
}

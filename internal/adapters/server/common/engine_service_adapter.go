package common

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hylla/ordna/internal/app"
	"github.com/hylla/ordna/internal/domain"
	"github.com/hylla/ordna/internal/priority"
	"github.com/hylla/ordna/internal/schedule"
)

// ErrInvalidRequest reports malformed transport-level input.
var ErrInvalidRequest = errors.New("invalid request")

// EngineAdapter exposes one app.Engine through the EngineService
// contract, converting between wire strings and domain types.
type EngineAdapter struct {
	engine *app.Engine
}

// NewEngineAdapter wraps one engine for transport use.
func NewEngineAdapter(engine *app.Engine) *EngineAdapter {
	return &EngineAdapter{engine: engine}
}

// SubmitNode registers one work item.
func (a *EngineAdapter) SubmitNode(ctx context.Context, req SubmitNodeRequest) (NodeView, error) {
	duration, err := parseOptionalDuration(req.Duration)
	if err != nil {
		return NodeView{}, err
	}
	item, err := a.engine.SubmitNode(ctx, app.SubmitNodeInput{
		ID:       strings.TrimSpace(req.ID),
		Title:    strings.TrimSpace(req.Title),
		Duration: duration,
		Status:   domain.Status(req.Status),
	})
	if err != nil {
		return NodeView{}, err
	}
	return nodeView(item), nil
}

// UpdateNode applies duration and/or status changes to one node as a
// single engine mutation, so a rejected change never leaves the other
// half applied.
func (a *EngineAdapter) UpdateNode(ctx context.Context, id string, req UpdateNodeRequest) (NodeView, error) {
	in := app.UpdateNodeInput{ID: strings.TrimSpace(id)}
	if trimmed := strings.TrimSpace(req.Duration); trimmed != "" {
		duration, err := parseOptionalDuration(trimmed)
		if err != nil {
			return NodeView{}, err
		}
		in.Duration = &duration
	}
	if trimmed := strings.TrimSpace(req.Status); trimmed != "" {
		in.Status = domain.Status(trimmed)
	}
	if in.Duration == nil && in.Status == "" {
		return NodeView{}, fmt.Errorf("update needs duration or status: %w", ErrInvalidRequest)
	}

	item, err := a.engine.UpdateNode(ctx, in)
	if err != nil {
		return NodeView{}, err
	}
	return nodeView(item), nil
}

// RemoveNode removes one work item, cascading incident edges when asked.
func (a *EngineAdapter) RemoveNode(ctx context.Context, id string, cascade bool) error {
	return a.engine.RemoveNode(ctx, id, cascade)
}

// SubmitEdge inserts one dependency edge.
func (a *EngineAdapter) SubmitEdge(ctx context.Context, req SubmitEdgeRequest) (EdgeView, error) {
	edge, err := a.engine.SubmitEdge(ctx, app.SubmitEdgeInput{
		From:     strings.TrimSpace(req.From),
		To:       strings.TrimSpace(req.To),
		Kind:     domain.DependencyKind(req.Kind),
		Hardness: domain.Hardness(req.Hardness),
	})
	if err != nil {
		return EdgeView{}, err
	}
	return edgeView(edge), nil
}

// RemoveEdge deletes one dependency edge.
func (a *EngineAdapter) RemoveEdge(ctx context.Context, id string) error {
	return a.engine.RemoveEdge(ctx, strings.TrimSpace(id))
}

// SubmitOverride suspends enforcement of one edge.
func (a *EngineAdapter) SubmitOverride(ctx context.Context, req OverrideRequest) error {
	return a.engine.SubmitOverride(ctx,
		strings.TrimSpace(req.EdgeID),
		strings.TrimSpace(req.Actor),
		domain.ActorType(req.ActorType),
		strings.TrimSpace(req.Reason),
	)
}

// ClearOverride restores enforcement of one overridden edge.
func (a *EngineAdapter) ClearOverride(ctx context.Context, edgeID string) error {
	return a.engine.ClearOverride(ctx, strings.TrimSpace(edgeID))
}

// SubmitRisk records one externally produced risk estimate.
func (a *EngineAdapter) SubmitRisk(ctx context.Context, req RiskRequest) error {
	var observedAt time.Time
	if trimmed := strings.TrimSpace(req.ObservedAt); trimmed != "" {
		parsed, err := time.Parse(time.RFC3339, trimmed)
		if err != nil {
			return fmt.Errorf("observed_at %q: %w", trimmed, ErrInvalidRequest)
		}
		observedAt = parsed
	}
	return a.engine.SubmitRiskInput(ctx, strings.TrimSpace(req.NodeID), req.Value, observedAt)
}

// Order returns the committed topological order.
func (a *EngineAdapter) Order(ctx context.Context) ([]string, error) {
	return a.engine.GetOrder(ctx), nil
}

// ParallelBatches returns the committed parallel execution waves.
func (a *EngineAdapter) ParallelBatches(ctx context.Context) ([][]string, error) {
	return a.engine.GetParallelBatches(ctx), nil
}

// CriticalPath returns the committed critical path analysis.
func (a *EngineAdapter) CriticalPath(ctx context.Context) (CriticalPathView, error) {
	result := a.engine.GetScheduleResult(ctx)
	return CriticalPathView{
		Anchor:        result.Anchor,
		ProjectFinish: result.ProjectFinish,
		Path:          result.CriticalPath,
	}, nil
}

// Ranking returns the committed priority ranking, highest first.
func (a *EngineAdapter) Ranking(ctx context.Context) ([]ScoreView, error) {
	ranking := a.engine.GetPriorityRanking(ctx)
	views := make([]ScoreView, len(ranking))
	for i, score := range ranking {
		views[i] = scoreView(score)
	}
	return views, nil
}

// NodeSchedule returns the committed schedule for one node.
func (a *EngineAdapter) NodeSchedule(ctx context.Context, id string) (ScheduleView, error) {
	sched, err := a.engine.GetNodeSchedule(ctx, strings.TrimSpace(id))
	if err != nil {
		return ScheduleView{}, err
	}
	return scheduleView(sched), nil
}

// RecentEvents returns up to limit recent change events, oldest first.
func (a *EngineAdapter) RecentEvents(ctx context.Context, limit int) ([]EventView, error) {
	events := a.engine.RecentEvents(ctx, limit)
	views := make([]EventView, len(events))
	for i, event := range events {
		views[i] = EventView{
			NodeID:          event.NodeID,
			Field:           string(event.Field),
			OldValue:        event.OldValue,
			NewValue:        event.NewValue,
			CauseMutationID: event.CauseMutationID,
			OccurredAt:      event.OccurredAt,
		}
	}
	return views, nil
}

// parseOptionalDuration parses a Go duration string, treating empty as
// zero (milestones carry zero duration).
func parseOptionalDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	duration, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("duration %q: %w", raw, domain.ErrInvalidDuration)
	}
	return duration, nil
}

func nodeView(item domain.WorkItem) NodeView {
	return NodeView{
		ID:        item.ID,
		Title:     item.Title,
		Duration:  item.Duration.String(),
		Status:    string(item.Status),
		CreatedAt: item.CreatedAt,
		UpdatedAt: item.UpdatedAt,
	}
}

func edgeView(edge domain.Dependency) EdgeView {
	view := EdgeView{
		ID:        edge.ID,
		From:      edge.From,
		To:        edge.To,
		Kind:      string(edge.Kind),
		Hardness:  string(edge.Hardness),
		CreatedAt: edge.CreatedAt,
	}
	if edge.Override != nil {
		view.Override = &OverrideView{
			Actor:     edge.Override.Actor,
			ActorType: string(edge.Override.ActorType),
			Reason:    edge.Override.Reason,
			At:        edge.Override.At,
		}
	}
	return view
}

func scoreView(score priority.Score) ScoreView {
	return ScoreView{
		NodeID:        score.NodeID,
		Rank:          score.Rank,
		Total:         score.Total,
		Urgency:       score.Urgency,
		CriticalBonus: score.CriticalBonus,
		FanOutWeight:  score.FanOutWeight,
		DecayedRisk:   score.DecayedRisk,
		Dependents:    score.Dependents,
	}
}

func scheduleView(sched schedule.NodeSchedule) ScheduleView {
	return ScheduleView{
		NodeID:         sched.NodeID,
		EarliestStart:  sched.EarliestStart,
		EarliestFinish: sched.EarliestFinish,
		LatestStart:    sched.LatestStart,
		LatestFinish:   sched.LatestFinish,
		Slack:          sched.Slack.String(),
		OnCriticalPath: sched.OnCriticalPath,
	}
}

package domain

import (
	"strings"
	"time"
)

// Status represents canonical scheduling states for a work item.
type Status string

// Canonical work item statuses.
const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusBlocked Status = "blocked"
	StatusDone    Status = "done"
)

// ActorType describes the actor class that performed a mutation.
type ActorType string

// ActorType values.
const (
	ActorTypeUser   ActorType = "user"
	ActorTypeAgent  ActorType = "agent"
	ActorTypeSystem ActorType = "system"
)

// WorkItem is a single schedulable node in the dependency graph.
// Duration is the estimated effort; zero is legal and marks an
// instantaneous milestone.
type WorkItem struct {
	ID        string
	Title     string
	Duration  time.Duration
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewWorkItem validates inputs and constructs a work item.
func NewWorkItem(id, title string, duration time.Duration, status Status, now time.Time) (WorkItem, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return WorkItem{}, ErrInvalidID
	}
	if duration < 0 {
		return WorkItem{}, ErrInvalidDuration
	}
	status = normalizeStatus(status)
	if status == "" {
		status = StatusPending
	}
	if !isValidStatus(status) {
		return WorkItem{}, ErrInvalidStatus
	}
	now = now.UTC()
	return WorkItem{
		ID:        id,
		Title:     strings.TrimSpace(title),
		Duration:  duration,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// SetDuration replaces the duration estimate.
func (w *WorkItem) SetDuration(duration time.Duration, now time.Time) error {
	if duration < 0 {
		return ErrInvalidDuration
	}
	w.Duration = duration
	w.UpdatedAt = now.UTC()
	return nil
}

// Transition moves the item to the next status. Predecessor gating is
// the caller's responsibility; this only enforces the transition table.
func (w *WorkItem) Transition(next Status, now time.Time) error {
	next = normalizeStatus(next)
	if !isValidStatus(next) {
		return ErrInvalidStatus
	}
	if !canTransition(w.Status, next) {
		return ErrInvalidTransition
	}
	w.Status = next
	w.UpdatedAt = now.UTC()
	return nil
}

// canTransition encodes the status state machine. Done is terminal;
// blocked returns to pending on unblock.
func canTransition(from, to Status) bool {
	if from == to {
		return false
	}
	switch from {
	case StatusPending:
		return to == StatusActive || to == StatusBlocked
	case StatusActive:
		return to == StatusDone || to == StatusBlocked
	case StatusBlocked:
		return to == StatusPending
	default:
		return false
	}
}

// normalizeStatus canonicalizes status aliases.
func normalizeStatus(status Status) Status {
	switch strings.TrimSpace(strings.ToLower(string(status))) {
	case "pending", "todo", "ready":
		return StatusPending
	case "active", "in-progress", "progress":
		return StatusActive
	case "blocked":
		return StatusBlocked
	case "done", "complete", "completed":
		return StatusDone
	case "":
		return ""
	default:
		return Status(strings.TrimSpace(strings.ToLower(string(status))))
	}
}

// isValidStatus reports whether the status is canonical.
func isValidStatus(status Status) bool {
	switch status {
	case StatusPending, StatusActive, StatusBlocked, StatusDone:
		return true
	default:
		return false
	}
}

// normalizeActorType canonicalizes an actor type, defaulting to user.
func normalizeActorType(actorType ActorType) ActorType {
	actorType = ActorType(strings.TrimSpace(strings.ToLower(string(actorType))))
	if actorType == "" {
		return ActorTypeUser
	}
	return actorType
}

// isValidActorType reports whether actor type is supported.
func isValidActorType(actorType ActorType) bool {
	switch actorType {
	case ActorTypeUser, ActorTypeAgent, ActorTypeSystem:
		return true
	default:
		return false
	}
}

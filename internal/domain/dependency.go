package domain

import (
	"strings"
	"time"
)

// DependencyKind represents the precedence relation between two items.
type DependencyKind string

// DependencyKind values.
const (
	KindFinishToStart  DependencyKind = "finish-to-start"
	KindStartToStart   DependencyKind = "start-to-start"
	KindFinishToFinish DependencyKind = "finish-to-finish"
	KindStartToFinish  DependencyKind = "start-to-finish"
)

// Hardness controls whether an edge constrains scheduling order.
type Hardness string

// Hardness values. Soft edges are advisory and never block.
const (
	HardnessHard Hardness = "hard"
	HardnessSoft Hardness = "soft"
)

// Override suspends enforcement of an edge without deleting it. The
// edge still participates in acyclicity checking.
type Override struct {
	Actor     string
	ActorType ActorType
	Reason    string
	At        time.Time
}

// NewOverride validates and constructs an override record.
func NewOverride(actor string, actorType ActorType, reason string, now time.Time) (Override, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return Override{}, ErrInvalidActor
	}
	actorType = normalizeActorType(actorType)
	if !isValidActorType(actorType) {
		return Override{}, ErrInvalidActor
	}
	return Override{
		Actor:     actor,
		ActorType: actorType,
		Reason:    strings.TrimSpace(reason),
		At:        now.UTC(),
	}, nil
}

// Dependency is a directed edge: From must precede To according to
// Kind. The Override pointer is the edge's enforcement variant: nil
// means active, non-nil means suspended.
type Dependency struct {
	ID        string
	From      string
	To        string
	Kind      DependencyKind
	Hardness  Hardness
	Override  *Override
	CreatedAt time.Time
}

// NewDependency validates endpoints and tags and constructs an edge.
// Endpoint existence is checked by the graph store, not here.
func NewDependency(id, from, to string, kind DependencyKind, hardness Hardness, now time.Time) (Dependency, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Dependency{}, ErrInvalidID
	}
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)
	if from == "" || to == "" {
		return Dependency{}, ErrInvalidID
	}
	if from == to {
		return Dependency{}, ErrSelfLoop
	}
	kind = normalizeKind(kind)
	if !isValidKind(kind) {
		return Dependency{}, ErrInvalidKind
	}
	hardness = Hardness(strings.TrimSpace(strings.ToLower(string(hardness))))
	if hardness == "" {
		hardness = HardnessHard
	}
	if hardness != HardnessHard && hardness != HardnessSoft {
		return Dependency{}, ErrInvalidHardness
	}
	return Dependency{
		ID:        id,
		From:      from,
		To:        to,
		Kind:      kind,
		Hardness:  hardness,
		CreatedAt: now.UTC(),
	}, nil
}

// Constrains reports whether this edge currently constrains scheduling
// order. This is the single enforcement check used by the scheduler and
// the critical path pass.
func (d Dependency) Constrains() bool {
	return d.Hardness == HardnessHard && d.Override == nil
}

// normalizeKind canonicalizes kind aliases.
func normalizeKind(kind DependencyKind) DependencyKind {
	switch strings.TrimSpace(strings.ToLower(string(kind))) {
	case "", "fs", "finish-to-start", "finish_to_start":
		return KindFinishToStart
	case "ss", "start-to-start", "start_to_start":
		return KindStartToStart
	case "ff", "finish-to-finish", "finish_to_finish":
		return KindFinishToFinish
	case "sf", "start-to-finish", "start_to_finish":
		return KindStartToFinish
	default:
		return DependencyKind(strings.TrimSpace(strings.ToLower(string(kind))))
	}
}

// isValidKind reports whether the dependency kind is canonical.
func isValidKind(kind DependencyKind) bool {
	switch kind {
	case KindFinishToStart, KindStartToStart, KindFinishToFinish, KindStartToFinish:
		return true
	default:
		return false
	}
}

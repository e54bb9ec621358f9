package domain

import "errors"

// Sentinel errors returned by validation and graph mutations.
var (
	ErrInvalidID         = errors.New("invalid id")
	ErrInvalidDuration   = errors.New("invalid duration")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidKind       = errors.New("invalid dependency kind")
	ErrInvalidHardness   = errors.New("invalid hardness")
	ErrInvalidActor      = errors.New("invalid actor")
	ErrInvalidRisk       = errors.New("risk value outside [0,1]")
	ErrSelfLoop          = errors.New("self-referential dependency")
	ErrUnknownNode       = errors.New("unknown node")
	ErrUnknownEdge       = errors.New("unknown edge")
	ErrDuplicateNode     = errors.New("duplicate node id")
	ErrDuplicateEdge     = errors.New("duplicate dependency")
	ErrNodeInUse         = errors.New("node has dependencies")
	ErrCycleRejected     = errors.New("dependency would create a cycle")

	// ErrCycleDetected means a cycle survived into a committed graph.
	// It marks an internal invariant breach, not a caller mistake, and
	// halts further writes to the affected engine instance.
	ErrCycleDetected = errors.New("cycle detected in committed graph")

	// ErrEngineHalted is returned for writes after ErrCycleDetected.
	ErrEngineHalted = errors.New("engine halted after invariant breach")
)

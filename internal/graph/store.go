// Package graph owns the mutable dependency graph: work item nodes,
// directed dependency edges, and the acyclicity invariant. All
// mutations commit atomically behind one write lock and publish a fresh
// immutable snapshot; readers never observe a half-applied edit.
package graph

import (
	"fmt"
	"sync"
	"time"

	"github.com/hylla/ordna/internal/domain"
)

// Store is the single source of truth for graph structure.
type Store struct {
	mu   sync.RWMutex
	snap *Snapshot
}

// NewStore constructs an empty store at version zero.
func NewStore() *Store {
	return &Store{
		snap: &Snapshot{
			nodes: map[string]domain.WorkItem{},
			edges: map[string]domain.Dependency{},
			out:   map[string][]string{},
			in:    map[string][]string{},
		},
	}
}

// Snapshot returns the current committed view. The returned snapshot is
// immutable and safe to share without locking.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// AddNode inserts a new work item.
func (s *Store) AddNode(item domain.WorkItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.snap.nodes[item.ID]; ok {
		return fmt.Errorf("node %q: %w", item.ID, domain.ErrDuplicateNode)
	}
	next := s.snap.clone()
	next.nodes[item.ID] = item
	s.publish(next)
	return nil
}

// ReplaceNode swaps the stored work item for an updated copy with the
// same id. Structure (edges) is untouched.
func (s *Store) ReplaceNode(item domain.WorkItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.snap.nodes[item.ID]; !ok {
		return fmt.Errorf("node %q: %w", item.ID, domain.ErrUnknownNode)
	}
	next := s.snap.clone()
	next.nodes[item.ID] = item
	s.publish(next)
	return nil
}

// RemoveNode deletes a node. Without cascade it fails with ErrNodeInUse
// when any edge touches the node; with cascade every incident edge is
// removed in the same atomic step.
func (s *Store) RemoveNode(id string, cascade bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.snap.nodes[id]; !ok {
		return fmt.Errorf("node %q: %w", id, domain.ErrUnknownNode)
	}
	incident := len(s.snap.out[id]) + len(s.snap.in[id])
	if incident > 0 && !cascade {
		return fmt.Errorf("node %q has %d incident edges: %w", id, incident, domain.ErrNodeInUse)
	}

	next := s.snap.clone()
	for _, edgeID := range append(append([]string(nil), next.out[id]...), next.in[id]...) {
		removeEdgeLocked(next, edgeID)
	}
	delete(next.nodes, id)
	delete(next.out, id)
	delete(next.in, id)
	s.publish(next)
	return nil
}

// AddEdge validates and inserts a dependency edge. The cycle guard runs
// for every insertion; on rejection the store is unchanged and the
// error names the offending endpoints.
func (s *Store) AddEdge(edge domain.Dependency) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.snap.nodes[edge.From]; !ok {
		return fmt.Errorf("upstream node %q: %w", edge.From, domain.ErrUnknownNode)
	}
	if _, ok := s.snap.nodes[edge.To]; !ok {
		return fmt.Errorf("downstream node %q: %w", edge.To, domain.ErrUnknownNode)
	}
	if _, ok := s.snap.edges[edge.ID]; ok {
		return fmt.Errorf("edge %q: %w", edge.ID, domain.ErrDuplicateEdge)
	}
	for _, edgeID := range s.snap.out[edge.From] {
		if existing := s.snap.edges[edgeID]; existing.To == edge.To {
			return fmt.Errorf("edge %s -> %s already exists as %q: %w", edge.From, edge.To, existing.ID, domain.ErrDuplicateEdge)
		}
	}

	cyclic, err := WouldCreateCycle(s.snap, edge.From, edge.To)
	if err != nil {
		return err
	}
	if cyclic {
		return fmt.Errorf("edge %s -> %s: %w", edge.From, edge.To, domain.ErrCycleRejected)
	}

	next := s.snap.clone()
	next.edges[edge.ID] = edge
	next.out[edge.From] = append(next.out[edge.From], edge.ID)
	next.in[edge.To] = append(next.in[edge.To], edge.ID)
	s.publish(next)
	return nil
}

// RemoveEdge deletes a dependency edge by id.
func (s *Store) RemoveEdge(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.snap.edges[id]; !ok {
		return fmt.Errorf("edge %q: %w", id, domain.ErrUnknownEdge)
	}
	next := s.snap.clone()
	removeEdgeLocked(next, id)
	s.publish(next)
	return nil
}

// SetOverride records an enforcement override on an existing edge. The
// edge keeps participating in acyclicity checks.
func (s *Store) SetOverride(edgeID string, override domain.Override) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	edge, ok := s.snap.edges[edgeID]
	if !ok {
		return fmt.Errorf("edge %q: %w", edgeID, domain.ErrUnknownEdge)
	}
	next := s.snap.clone()
	edge.Override = &override
	next.edges[edgeID] = edge
	s.publish(next)
	return nil
}

// ClearOverride restores enforcement of an overridden edge.
func (s *Store) ClearOverride(edgeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	edge, ok := s.snap.edges[edgeID]
	if !ok {
		return fmt.Errorf("edge %q: %w", edgeID, domain.ErrUnknownEdge)
	}
	next := s.snap.clone()
	edge.Override = nil
	next.edges[edgeID] = edge
	s.publish(next)
	return nil
}

// Touch bumps UpdatedAt on a stored node without structural change.
func (s *Store) Touch(id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.snap.nodes[id]
	if !ok {
		return fmt.Errorf("node %q: %w", id, domain.ErrUnknownNode)
	}
	next := s.snap.clone()
	item.UpdatedAt = now.UTC()
	next.nodes[id] = item
	s.publish(next)
	return nil
}

// publish bumps the version and swaps the committed snapshot.
func (s *Store) publish(next *Snapshot) {
	next.version = s.snap.version + 1
	s.snap = next
}

// removeEdgeLocked deletes one edge and its adjacency entries from an
// unpublished snapshot clone.
func removeEdgeLocked(snap *Snapshot, edgeID string) {
	edge, ok := snap.edges[edgeID]
	if !ok {
		return
	}
	delete(snap.edges, edgeID)
	snap.out[edge.From] = deleteString(snap.out[edge.From], edgeID)
	snap.in[edge.To] = deleteString(snap.in[edge.To], edgeID)
}

func deleteString(list []string, value string) []string {
	out := list[:0]
	for _, v := range list {
		if v != value {
			out = append(out, v)
		}
	}
	return out
}

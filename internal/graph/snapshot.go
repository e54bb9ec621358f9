package graph

import (
	"sort"

	"github.com/hylla/ordna/internal/domain"
)

// Snapshot is an immutable view of the graph at one committed version.
// Analyzers and readers share snapshots freely across goroutines; every
// mutation produces a fresh snapshot and never touches published ones.
// Adjacency is kept by node id, never by pointer, so acyclicity stays a
// property checked by traversal.
type Snapshot struct {
	version uint64
	nodes   map[string]domain.WorkItem
	edges   map[string]domain.Dependency
	out     map[string][]string
	in      map[string][]string
}

// Version returns the monotonically increasing commit version.
func (s *Snapshot) Version() uint64 {
	return s.version
}

// NodeCount returns the number of nodes.
func (s *Snapshot) NodeCount() int {
	return len(s.nodes)
}

// EdgeCount returns the number of edges, including soft and overridden.
func (s *Snapshot) EdgeCount() int {
	return len(s.edges)
}

// Node returns the work item with the given id.
func (s *Snapshot) Node(id string) (domain.WorkItem, bool) {
	item, ok := s.nodes[id]
	return item, ok
}

// NodeIDs returns all node ids sorted ascending for deterministic
// iteration.
func (s *Snapshot) NodeIDs() []string {
	ids := make([]string, 0, len(s.nodes))
	for id := range s.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Edge returns the dependency with the given edge id.
func (s *Snapshot) Edge(id string) (domain.Dependency, bool) {
	edge, ok := s.edges[id]
	return edge, ok
}

// Edges returns all dependencies sorted by edge id.
func (s *Snapshot) Edges() []domain.Dependency {
	out := make([]domain.Dependency, 0, len(s.edges))
	for _, edge := range s.edges {
		out = append(out, edge)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// EdgesFrom returns the dependencies whose upstream endpoint is id.
func (s *Snapshot) EdgesFrom(id string) []domain.Dependency {
	return s.edgeList(s.out[id])
}

// EdgesTo returns the dependencies whose downstream endpoint is id.
func (s *Snapshot) EdgesTo(id string) []domain.Dependency {
	return s.edgeList(s.in[id])
}

// Successors returns downstream neighbor ids over every edge,
// regardless of hardness or override state. The cycle guard traverses
// these: overrides change enforcement, never acyclicity.
func (s *Snapshot) Successors(id string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(s.out[id]))
	for _, edgeID := range s.out[id] {
		to := s.edges[edgeID].To
		if _, ok := seen[to]; ok {
			continue
		}
		seen[to] = struct{}{}
		out = append(out, to)
	}
	sort.Strings(out)
	return out
}

// ConstrainingSuccessors returns downstream neighbor ids over hard,
// non-overridden edges only. This is the adjacency the scheduler and
// critical path pass use.
func (s *Snapshot) ConstrainingSuccessors(id string) []string {
	return s.constrainingNeighbors(s.out[id], func(e domain.Dependency) string { return e.To })
}

// ConstrainingPredecessors returns upstream neighbor ids over hard,
// non-overridden edges only.
func (s *Snapshot) ConstrainingPredecessors(id string) []string {
	return s.constrainingNeighbors(s.in[id], func(e domain.Dependency) string { return e.From })
}

func (s *Snapshot) constrainingNeighbors(edgeIDs []string, pick func(domain.Dependency) string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(edgeIDs))
	for _, edgeID := range edgeIDs {
		edge := s.edges[edgeID]
		if !edge.Constrains() {
			continue
		}
		neighbor := pick(edge)
		if _, ok := seen[neighbor]; ok {
			continue
		}
		seen[neighbor] = struct{}{}
		out = append(out, neighbor)
	}
	sort.Strings(out)
	return out
}

func (s *Snapshot) edgeList(edgeIDs []string) []domain.Dependency {
	out := make([]domain.Dependency, 0, len(edgeIDs))
	for _, edgeID := range edgeIDs {
		out = append(out, s.edges[edgeID])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// clone produces a deep copy the store can mutate before publishing.
func (s *Snapshot) clone() *Snapshot {
	next := &Snapshot{
		version: s.version,
		nodes:   make(map[string]domain.WorkItem, len(s.nodes)),
		edges:   make(map[string]domain.Dependency, len(s.edges)),
		out:     make(map[string][]string, len(s.out)),
		in:      make(map[string][]string, len(s.in)),
	}
	for id, item := range s.nodes {
		next.nodes[id] = item
	}
	for id, edge := range s.edges {
		if edge.Override != nil {
			override := *edge.Override
			edge.Override = &override
		}
		next.edges[id] = edge
	}
	for id, list := range s.out {
		next.out[id] = append([]string(nil), list...)
	}
	for id, list := range s.in {
		next.in[id] = append([]string(nil), list...)
	}
	return next
}

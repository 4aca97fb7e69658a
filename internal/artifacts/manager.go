package artifacts

import (
	"context"
	"sync"

	"github.com/hoferino/manda/internal/graph"
)

// Manager couples the artifact store with the cross-reference graph. Every
// write path reconciles the graph against the artifact's reference list, so
// the graph never drifts from the stored artifacts.
type Manager struct {
	mu    sync.RWMutex
	store Store
	graph graph.Graph
}

// NewManager loads every stored artifact and rebuilds the graph from their
// reference lists.
func NewManager(ctx context.Context, store Store) (*Manager, error) {
	arts, err := store.List(ctx)
	if err != nil {
		return nil, err
	}
	g := graph.New()
	for _, art := range arts {
		g = g.UpdateOnArtifactChange(art.ID, art.References)
	}
	return &Manager{store: store, graph: g}, nil
}

// Update upserts the artifact and reconciles its graph edges, returning the
// resulting graph snapshot.
func (m *Manager) Update(ctx context.Context, art *Artifact) (graph.Graph, error) {
	if err := art.Validate(); err != nil {
		return graph.Graph{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Put(ctx, art); err != nil {
		return graph.Graph{}, err
	}
	m.graph = m.graph.UpdateOnArtifactChange(art.ID, art.References)
	return m.graph, nil
}

// Remove deletes the artifact and purges it from the graph.
func (m *Manager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	m.graph = m.graph.RemoveArtifact(id)
	return nil
}

// Get returns the stored artifact, or nil when absent.
func (m *Manager) Get(ctx context.Context, id string) (*Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store.Get(ctx, id)
}

// Graph returns the current graph. Graph values are immutable, so the
// returned snapshot stays valid after later updates.
func (m *Manager) Graph() graph.Graph {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.graph
}

// Impacted returns the artifacts transitively affected by a change to id.
func (m *Manager) Impacted(id string, maxDepth int) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.graph.TransitiveDependents(id, maxDepth)
}

// List returns all stored artifacts sorted by ID.
func (m *Manager) List(ctx context.Context) ([]*Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store.List(ctx)
}

// View builds a point-in-time status index over all stored artifacts.
func (m *Manager) View(ctx context.Context) (StatusIndex, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	arts, err := m.store.List(ctx)
	if err != nil {
		return StatusIndex{}, err
	}
	return NewStatusIndex(arts), nil
}

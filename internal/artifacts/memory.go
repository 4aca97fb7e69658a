package artifacts

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and single-process use.
type MemoryStore struct {
	mu   sync.RWMutex
	arts map[string]*Artifact
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{arts: make(map[string]*Artifact)}
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.arts[id].Clone(), nil
}

func (s *MemoryStore) Put(ctx context.Context, art *Artifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := art.Validate(); err != nil {
		return err
	}
	clone := art.Clone()
	if clone.UpdatedAt.IsZero() {
		clone.UpdatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.arts[clone.ID] = clone
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.arts, id)
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Artifact, 0, len(s.arts))
	for _, art := range s.arts {
		out = append(out, art.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

var _ Store = (*MemoryStore)(nil)

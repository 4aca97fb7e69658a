package checkpoint

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/hoferino/manda/pkg/schema"
)

// MemoryStore is an in-memory Store for tests and single-process use.
// Snapshots are cloned on the way in and out so callers never share state.
type MemoryStore struct {
	mu    sync.RWMutex
	snaps map[string]*Snapshot
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snaps: make(map[string]*Snapshot)}
}

func (s *MemoryStore) Get(ctx context.Context, key schema.ThreadKey) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snaps[key.Encode()]
	if !ok {
		return nil, nil
	}
	return cloneSnapshot(snap)
}

func (s *MemoryStore) Put(ctx context.Context, key schema.ThreadKey, snap *Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if snap == nil {
		return schema.NewError(schema.ErrCodeValidation, "snapshot is nil")
	}
	clone, err := cloneSnapshot(snap)
	if err != nil {
		return err
	}
	if clone.UpdatedAt.IsZero() {
		clone.UpdatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[key.Encode()] = clone
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key schema.ThreadKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snaps, key.Encode())
	return nil
}

func (s *MemoryStore) Sweep(ctx context.Context, olderThan time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, snap := range s.snaps {
		if snap.UpdatedAt.Before(olderThan) {
			delete(s.snaps, k)
			removed++
		}
	}
	return removed, nil
}

// cloneSnapshot deep-copies via JSON; snapshots are small and this keeps
// the whole-value read-modify-write contract honest.
func cloneSnapshot(snap *Snapshot) (*Snapshot, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeState, "clone snapshot: %s", err.Error()).WithCause(err)
	}
	out := &Snapshot{}
	if err := json.Unmarshal(data, out); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeState, "clone snapshot: %s", err.Error()).WithCause(err)
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)

package supervisor

import (
	"context"
	"sort"
	"sync"

	"github.com/hoferino/manda/pkg/schema"
)

// Request is the input handed to a specialist for one turn.
type Request struct {
	Query          string
	Classification schema.Classification
	History        []schema.Message
}

// Specialist answers domain questions. Implementations wrap an LLM call or
// a retrieval pipeline; the executor owns timeouts and retries, so Execute
// should simply respect ctx and return.
type Specialist interface {
	ID() schema.SpecialistID
	Execute(ctx context.Context, req Request) (*schema.SpecialistResult, error)
}

// Registry is the thread-safe specialist registry. Only IDs from the known
// set are accepted; the router can then trust that every routable ID
// resolves.
type Registry struct {
	mu          sync.RWMutex
	specialists map[schema.SpecialistID]Specialist
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		specialists: make(map[schema.SpecialistID]Specialist),
	}
}

// Register adds a specialist. Returns an error on nil, unknown ID, or
// duplicate registration.
func (r *Registry) Register(s Specialist) error {
	if s == nil {
		return schema.NewError(schema.ErrCodeValidation, "specialist is nil")
	}
	id := s.ID()
	if !schema.KnownSpecialists[id] {
		return schema.NewErrorf(schema.ErrCodeValidation, "unknown specialist id %q", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.specialists[id]; exists {
		return schema.NewErrorf(schema.ErrCodeValidation, "specialist %q already registered", id)
	}

	r.specialists[id] = s
	return nil
}

// Get retrieves a specialist by ID.
func (r *Registry) Get(id schema.SpecialistID) (Specialist, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.specialists[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeState, "specialist %q not registered", id)
	}
	return s, nil
}

// Has checks if a specialist is registered.
func (r *Registry) Has(id schema.SpecialistID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.specialists[id]
	return ok
}

// Clear removes a specialist registration, if present.
func (r *Registry) Clear(id schema.SpecialistID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.specialists, id)
}

// List returns the registered IDs, sorted.
func (r *Registry) List() []schema.SpecialistID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]schema.SpecialistID, 0, len(r.specialists))
	for id := range r.specialists {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Count returns the number of registered specialists.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.specialists)
}

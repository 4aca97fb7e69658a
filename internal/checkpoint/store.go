package checkpoint

import (
	"context"
	"time"

	"github.com/hoferino/manda/pkg/schema"
)

// Snapshot is the persisted state of one thread. Messages, Decisions and
// Errors accumulate across turns; Workflow replaces wholesale.
type Snapshot struct {
	ThreadKey string                      `json:"thread_key"`
	Messages  []schema.Message            `json:"messages,omitempty"`
	Decisions []schema.SupervisorDecision `json:"decisions,omitempty"`
	Errors    []*schema.AgentError        `json:"errors,omitempty"`
	Workflow  *schema.WorkflowState       `json:"workflow,omitempty"`
	UpdatedAt time.Time                   `json:"updated_at"`
}

// Store persists the latest snapshot per thread key. Implementations must
// be safe for concurrent use; writers to the same key are serialized with
// last-writer-wins semantics.
type Store interface {
	// Get returns the snapshot for the key, or nil when absent.
	Get(ctx context.Context, key schema.ThreadKey) (*Snapshot, error)
	// Put replaces the snapshot for the key.
	Put(ctx context.Context, key schema.ThreadKey, snap *Snapshot) error
	// Delete removes the snapshot for the key, if present.
	Delete(ctx context.Context, key schema.ThreadKey) error
	// Sweep deletes snapshots not updated since the cutoff and returns the
	// number removed. Used by the maintenance scheduler.
	Sweep(ctx context.Context, olderThan time.Time) (int, error)
}

package checkpoint

import (
	"time"

	"github.com/hoferino/manda/pkg/schema"
)

// Update carries one turn's additions to a snapshot. Each field has a named
// reducer: Messages/Decisions/Errors append, Workflow replaces.
type Update struct {
	Messages  []schema.Message
	Decisions []schema.SupervisorDecision
	Errors    []*schema.AgentError
	Workflow  *schema.WorkflowState
}

// Merge applies an update to a prior snapshot (nil for a fresh thread) and
// returns the resulting snapshot. The prior value is not mutated; this is
// the read-merge-write step of every turn.
func Merge(key schema.ThreadKey, prior *Snapshot, update Update) *Snapshot {
	out := &Snapshot{ThreadKey: key.Encode(), UpdatedAt: time.Now().UTC()}
	if prior != nil {
		out.Messages = appendAll(nil, prior.Messages)
		out.Decisions = appendAll(nil, prior.Decisions)
		out.Errors = appendAll(nil, prior.Errors)
		out.Workflow = prior.Workflow
	}

	out.Messages = appendAll(out.Messages, update.Messages)
	out.Decisions = appendAll(out.Decisions, update.Decisions)
	out.Errors = appendAll(out.Errors, update.Errors)
	out.Workflow = replace(out.Workflow, update.Workflow)
	return out
}

// appendAll is the accumulating reducer: every element of add is appended.
func appendAll[T any](base, add []T) []T {
	if len(add) == 0 {
		return base
	}
	out := make([]T, 0, len(base)+len(add))
	out = append(out, base...)
	out = append(out, add...)
	return out
}

// replace is the replacing reducer: a non-nil update wins.
func replace[T any](base, update *T) *T {
	if update != nil {
		return update
	}
	return base
}

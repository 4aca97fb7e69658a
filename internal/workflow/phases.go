package workflow

import (
	"github.com/hoferino/manda/pkg/schema"
)

// NewState returns a workflow state positioned at the first phase.
func NewState() schema.WorkflowState {
	return schema.WorkflowState{CurrentPhase: schema.PhaseOrder[0]}
}

// nextPhase returns the phase following p in the fixed ordering, or "" when
// p is terminal.
func nextPhase(p schema.WorkflowPhase) schema.WorkflowPhase {
	for i, phase := range schema.PhaseOrder {
		if phase == p && i+1 < len(schema.PhaseOrder) {
			return schema.PhaseOrder[i+1]
		}
	}
	return ""
}

// Advance moves the workflow one phase forward, appending the just-finished
// phase to CompletedPhases (idempotently). When the current phase is
// terminal the state is marked complete instead. The input is not mutated.
func Advance(state schema.WorkflowState) (schema.WorkflowState, error) {
	if !schema.ValidPhase(state.CurrentPhase) {
		return state, schema.NewErrorf(schema.ErrCodeState, "unknown workflow phase %q", state.CurrentPhase)
	}
	if state.IsComplete {
		return state, nil
	}

	out := cloneState(state)
	out.CompletedPhases = appendUniquePhase(out.CompletedPhases, out.CurrentPhase)

	next := nextPhase(out.CurrentPhase)
	if next == "" {
		out.IsComplete = true
		return out, nil
	}
	out.CurrentPhase = next
	return out, nil
}

// JumpToPhase moves the cursor to an arbitrary phase for editing. It never
// alters CompletedPhases; jumping backward into completed territory leaves
// the completion record intact. Jumping anywhere clears the terminal flag
// unless the target is itself terminal and already completed.
func JumpToPhase(state schema.WorkflowState, target schema.WorkflowPhase) (schema.WorkflowState, error) {
	if !schema.ValidPhase(target) {
		return state, schema.NewErrorf(schema.ErrCodeValidation, "unknown workflow phase %q", target)
	}

	out := cloneState(state)
	out.CurrentPhase = target
	out.IsComplete = state.IsComplete && target == schema.PhaseOrder[len(schema.PhaseOrder)-1]
	return out, nil
}

// PhaseCompleted reports whether the given phase has been completed.
func PhaseCompleted(state schema.WorkflowState, p schema.WorkflowPhase) bool {
	for _, done := range state.CompletedPhases {
		if done == p {
			return true
		}
	}
	return false
}

func appendUniquePhase(list []schema.WorkflowPhase, p schema.WorkflowPhase) []schema.WorkflowPhase {
	for _, v := range list {
		if v == p {
			return list
		}
	}
	return append(list, p)
}

func cloneState(state schema.WorkflowState) schema.WorkflowState {
	out := state
	out.CompletedPhases = make([]schema.WorkflowPhase, len(state.CompletedPhases))
	copy(out.CompletedPhases, state.CompletedPhases)
	return out
}

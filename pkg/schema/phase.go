package schema

// WorkflowPhase names one stage of the document-build workflow.
type WorkflowPhase string

const (
	PhasePersona WorkflowPhase = "persona"
	PhaseThesis  WorkflowPhase = "thesis"
	PhaseOutline WorkflowPhase = "outline"
	PhaseContent WorkflowPhase = "content"
	PhaseReview  WorkflowPhase = "review"
)

// PhaseOrder is the fixed forward ordering of the build workflow.
// PhaseReview is terminal.
var PhaseOrder = []WorkflowPhase{
	PhasePersona,
	PhaseThesis,
	PhaseOutline,
	PhaseContent,
	PhaseReview,
}

// WorkflowState is the persisted position within the build workflow.
// CompletedPhases only grows; CurrentPhase only moves forward except via an
// explicit jump.
type WorkflowState struct {
	CurrentPhase        WorkflowPhase   `json:"current_phase"`
	CompletedPhases     []WorkflowPhase `json:"completed_phases,omitempty"`
	IsComplete          bool            `json:"is_complete"`
	CurrentSectionIndex int             `json:"current_section_index,omitempty"`
	CurrentSlideIndex   int             `json:"current_slide_index,omitempty"`
}

// ValidPhase reports whether p is a known workflow phase.
func ValidPhase(p WorkflowPhase) bool {
	for _, known := range PhaseOrder {
		if known == p {
			return true
		}
	}
	return false
}

package schema

// Turn lifecycle event types published on the streaming hub.
const (
	EventTurnStarted         = "turn.started"
	EventTurnCompleted       = "turn.completed"
	EventStageStarted        = "stage.started"
	EventStageCompleted      = "stage.completed"
	EventSpecialistStarted   = "specialist.started"
	EventSpecialistCompleted = "specialist.completed"
	EventSpecialistTimedOut  = "specialist.timed_out"
	EventSynthesisDone       = "synthesis.done"
	EventCoherenceWarning    = "coherence.warning"
	EventPhaseAdvanced       = "phase.advanced"
	EventArtifactUpdated     = "artifact.updated"
)

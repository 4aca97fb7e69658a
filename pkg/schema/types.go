package schema

import (
	"encoding/json"
	"time"
)

// SpecialistID identifies a registered specialist handler. The router only
// ever emits IDs from the closed set below.
type SpecialistID string

const (
	SpecialistGeneral   SpecialistID = "general"
	SpecialistFinancial SpecialistID = "financial"
	SpecialistEntity    SpecialistID = "entity"
	SpecialistLegal     SpecialistID = "legal"
	SpecialistMarket    SpecialistID = "market"
	SpecialistClarify   SpecialistID = "clarify"
)

// KnownSpecialists is the closed set of routable specialist IDs.
var KnownSpecialists = map[SpecialistID]bool{
	SpecialistGeneral:   true,
	SpecialistFinancial: true,
	SpecialistEntity:    true,
	SpecialistLegal:     true,
	SpecialistMarket:    true,
	SpecialistClarify:   true,
}

// Classification is the externally produced intent classification of a query.
type Classification struct {
	Domain     string `json:"domain"`
	Complexity string `json:"complexity"` // simple | moderate | complex
}

// SourceCitation is a reference to a document chunk backing a statement.
// Deduplication key is (DocumentID, ChunkID); higher RelevanceScore wins.
type SourceCitation struct {
	DocumentID     string  `json:"document_id"`
	DocumentName   string  `json:"document_name"`
	ChunkID        string  `json:"chunk_id,omitempty"`
	RelevanceScore float64 `json:"relevance_score"`
	Snippet        string  `json:"snippet,omitempty"`
}

// SpecialistResult is the normalized outcome of one specialist invocation.
// Exactly one is produced per dispatched specialist per turn; immutable
// once created.
type SpecialistResult struct {
	SpecialistID SpecialistID     `json:"specialist_id"`
	Content      string           `json:"content"`
	Confidence   float64          `json:"confidence"` // [0,1]
	Sources      []SourceCitation `json:"sources,omitempty"`
	TimingMs     int64            `json:"timing_ms"`
	Raw          json.RawMessage  `json:"raw,omitempty"` // unprocessed handler payload, when JSON
	Err          *AgentError      `json:"error,omitempty"`
}

// SupervisorDecision is the routing decision for one turn. Read-only after
// the route stage.
type SupervisorDecision struct {
	SelectedSpecialists []SpecialistID `json:"selected_specialists"`
	Rationale           string         `json:"rationale"`
	IsParallel          bool           `json:"is_parallel"`
}

// SynthesizedResponse is the merged response for one turn. Derived, never
// persisted beyond the turn.
type SynthesizedResponse struct {
	Content        string           `json:"content"`
	Confidence     float64          `json:"confidence"`
	Sources        []SourceCitation `json:"sources,omitempty"`
	Specialists    []SpecialistID   `json:"specialists"`
	WasSynthesized bool             `json:"was_synthesized"`
}

// TurnMetrics records stage timings for one supervisor invocation.
type TurnMetrics struct {
	ClassifyMs   int64     `json:"classify_ms"`
	RouteMs      int64     `json:"route_ms"`
	ExecuteMs    int64     `json:"execute_ms"`
	SynthesizeMs int64     `json:"synthesize_ms"`
	TotalMs      int64     `json:"total_ms"`
	StartTime    time.Time `json:"start_time"`
}

// Message is one conversation entry persisted in the checkpoint.
type Message struct {
	Role      string    `json:"role"` // user | assistant
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ArtifactStatus is the lifecycle status of a generated artifact or its
// containing section.
type ArtifactStatus string

const (
	StatusNotStarted ArtifactStatus = "not_started"
	StatusDraft      ArtifactStatus = "draft"
	StatusInProgress ArtifactStatus = "in_progress"
	StatusComplete   ArtifactStatus = "complete"
)

// WarningKind enumerates coherence warning categories.
type WarningKind string

const (
	WarnIncompleteDependency WarningKind = "incomplete_dependency"
	WarnStaleReference       WarningKind = "stale_reference"
	WarnMissingContent       WarningKind = "missing_content"
)

// Severity orders warnings; Warning and Error require confirmation.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// NavigationWarning flags a risk when navigating to or past an artifact.
// Produced transiently by the coherence checker; never persisted.
type NavigationWarning struct {
	Kind                   WarningKind `json:"kind"`
	SourceID               string      `json:"source_id"`
	Message                string      `json:"message"`
	IncompleteDependencies []string    `json:"incomplete_dependencies,omitempty"`
	Severity               Severity    `json:"severity"`
}

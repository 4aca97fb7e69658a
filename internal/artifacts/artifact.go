package artifacts

import (
	"context"
	"time"

	"github.com/hoferino/manda/pkg/schema"
)

// Artifact is one generated deliverable unit: a document section, a slide,
// an analysis block. An artifact with an empty SectionID is a container
// (section); its constituents point back at it via SectionID.
type Artifact struct {
	ID         string                `json:"id"`
	SectionID  string                `json:"section_id,omitempty"`
	Title      string                `json:"title,omitempty"`
	Status     schema.ArtifactStatus `json:"status"`
	Content    string                `json:"content,omitempty"`
	References []string              `json:"references,omitempty"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

var validStatuses = map[schema.ArtifactStatus]bool{
	schema.StatusNotStarted: true,
	schema.StatusDraft:      true,
	schema.StatusInProgress: true,
	schema.StatusComplete:   true,
}

// Validate checks the fields that every store requires before persisting.
func (a *Artifact) Validate() error {
	if a == nil {
		return schema.NewError(schema.ErrCodeValidation, "artifact is nil")
	}
	if a.ID == "" {
		return schema.NewError(schema.ErrCodeValidation, "artifact id is empty")
	}
	if a.SectionID == a.ID {
		return schema.NewErrorf(schema.ErrCodeValidation, "artifact %s is its own section", a.ID)
	}
	if !validStatuses[a.Status] {
		return schema.NewErrorf(schema.ErrCodeValidation, "unknown artifact status %q", a.Status)
	}
	return nil
}

// Clone deep-copies the artifact.
func (a *Artifact) Clone() *Artifact {
	if a == nil {
		return nil
	}
	out := *a
	if a.References != nil {
		out.References = append([]string(nil), a.References...)
	}
	return &out
}

// Store persists artifacts. Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the artifact, or nil when absent.
	Get(ctx context.Context, id string) (*Artifact, error)
	// Put upserts the artifact.
	Put(ctx context.Context, art *Artifact) error
	// Delete removes the artifact, if present.
	Delete(ctx context.Context, id string) error
	// List returns all artifacts sorted by ID.
	List(ctx context.Context) ([]*Artifact, error)
}

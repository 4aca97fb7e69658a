package artifacts

import (
	"sort"

	"github.com/hoferino/manda/pkg/schema"
)

// StatusIndex is an immutable point-in-time read view over artifact
// lifecycle statuses and the section/constituent relation. Unknown IDs
// report not_started.
type StatusIndex struct {
	statuses map[string]schema.ArtifactStatus
	sections map[string]string
	members  map[string][]string
}

// NewStatusIndex indexes the given artifacts.
func NewStatusIndex(arts []*Artifact) StatusIndex {
	ix := StatusIndex{
		statuses: make(map[string]schema.ArtifactStatus, len(arts)),
		sections: make(map[string]string),
		members:  make(map[string][]string),
	}
	for _, art := range arts {
		ix.statuses[art.ID] = art.Status
		if art.SectionID != "" {
			ix.sections[art.ID] = art.SectionID
			ix.members[art.SectionID] = append(ix.members[art.SectionID], art.ID)
		}
	}
	for _, ids := range ix.members {
		sort.Strings(ids)
	}
	return ix
}

// Status returns the artifact's own lifecycle status.
func (ix StatusIndex) Status(id string) schema.ArtifactStatus {
	if s, ok := ix.statuses[id]; ok {
		return s
	}
	return schema.StatusNotStarted
}

// ContainerStatus returns the status of the section containing id, or the
// artifact's own status when it has no container.
func (ix StatusIndex) ContainerStatus(id string) schema.ArtifactStatus {
	if section, ok := ix.sections[id]; ok {
		return ix.Status(section)
	}
	return ix.Status(id)
}

// Constituents returns the sub-artifacts of a container, sorted, or nil for
// a leaf artifact.
func (ix StatusIndex) Constituents(id string) []string {
	return ix.members[id]
}

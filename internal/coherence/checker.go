package coherence

import (
	"fmt"
	"sort"

	"github.com/hoferino/manda/internal/graph"
	"github.com/hoferino/manda/pkg/schema"
)

// StatusView is the read side of the artifact store the checker consumes.
// It only ever reads status fields, never content.
type StatusView interface {
	// Status returns the artifact's own lifecycle status.
	Status(id string) schema.ArtifactStatus
	// ContainerStatus returns the status of the section containing id.
	ContainerStatus(id string) schema.ArtifactStatus
	// Constituents returns the sub-artifacts of id (e.g. the slides of a
	// section), or nil for a leaf artifact.
	Constituents(id string) []string
}

// CheckNavigation inspects every reference held by the target artifact and
// its constituents against the prerequisite statuses, and returns ordered
// warnings about incomplete or stale prerequisites. Warnings for the same
// referencing artifact are merged, accumulating the incomplete dependency
// list instead of duplicating entries.
func CheckNavigation(targetID string, g graph.Graph, view StatusView) []schema.NavigationWarning {
	if targetID == "" {
		return nil
	}

	sources := append([]string{targetID}, view.Constituents(targetID)...)

	incomplete := make(map[string]*schema.NavigationWarning)
	var stale []schema.NavigationWarning

	for _, src := range sources {
		for _, ref := range g.DirectReferences(src) {
			containerStatus := view.ContainerStatus(ref)
			if containerStatus != schema.StatusComplete {
				severity := schema.SeverityInfo
				if containerStatus == schema.StatusNotStarted {
					severity = schema.SeverityWarning
				}
				w, ok := incomplete[src]
				if !ok {
					w = &schema.NavigationWarning{
						Kind:     schema.WarnIncompleteDependency,
						SourceID: src,
						Severity: severity,
					}
					incomplete[src] = w
				}
				w.IncompleteDependencies = appendUniqueID(w.IncompleteDependencies, ref)
				if severityRank(severity) > severityRank(w.Severity) {
					w.Severity = severity
				}
				w.Message = fmt.Sprintf("%s references %d prerequisite(s) that are not complete",
					src, len(w.IncompleteDependencies))
			}

			if view.Status(ref) == schema.StatusDraft {
				stale = append(stale, schema.NavigationWarning{
					Kind:                   schema.WarnStaleReference,
					SourceID:               src,
					Message:                fmt.Sprintf("%s references %s, which is still a draft", src, ref),
					Severity:               schema.SeverityInfo,
					IncompleteDependencies: []string{ref},
				})
			}
		}
	}

	var out []schema.NavigationWarning
	for _, w := range incomplete {
		sort.Strings(w.IncompleteDependencies)
		out = append(out, *w)
	}
	out = append(out, stale...)

	sort.SliceStable(out, func(i, j int) bool {
		if ri, rj := severityRank(out[i].Severity), severityRank(out[j].Severity); ri != rj {
			return ri > rj
		}
		if out[i].SourceID != out[j].SourceID {
			return out[i].SourceID < out[j].SourceID
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// RequiresConfirmation reports whether navigation should pause for an
// explicit user confirmation.
func RequiresConfirmation(warnings []schema.NavigationWarning) bool {
	for _, w := range warnings {
		if w.Severity == schema.SeverityWarning || w.Severity == schema.SeverityError {
			return true
		}
	}
	return false
}

func severityRank(s schema.Severity) int {
	switch s {
	case schema.SeverityError:
		return 2
	case schema.SeverityWarning:
		return 1
	default:
		return 0
	}
}

func appendUniqueID(list []string, id string) []string {
	for _, v := range list {
		if v == id {
			return list
		}
	}
	return append(list, id)
}

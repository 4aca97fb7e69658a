package graph

import (
	"fmt"
	"sort"
)

// Graph tracks cross-references between generated artifacts as two mirrored
// adjacency maps. For every a in Dependents[b], b is in References[a] and
// vice versa; no artifact references itself. Mutating methods return a new
// value (clone, mutate, return), so concurrent readers never observe a
// partially updated graph.
type Graph struct {
	// Dependents maps an artifact to the artifacts that depend on it.
	Dependents map[string]map[string]bool `json:"dependents"`
	// References maps an artifact to the artifacts it references.
	References map[string]map[string]bool `json:"references"`
}

// New creates an empty graph.
func New() Graph {
	return Graph{
		Dependents: make(map[string]map[string]bool),
		References: make(map[string]map[string]bool),
	}
}

// Clone deep-copies the graph.
func (g Graph) Clone() Graph {
	out := New()
	for id, set := range g.Dependents {
		out.Dependents[id] = cloneSet(set)
	}
	for id, set := range g.References {
		out.References[id] = cloneSet(set)
	}
	return out
}

// AddDependency records that from references to. Self-references and empty
// IDs are no-ops; insertion is idempotent.
func (g Graph) AddDependency(from, to string) Graph {
	if from == "" || to == "" || from == to {
		return g
	}
	out := g.Clone()
	out.addEdge(from, to)
	return out
}

func (g *Graph) addEdge(from, to string) {
	if g.References[from] == nil {
		g.References[from] = make(map[string]bool)
	}
	g.References[from][to] = true

	if g.Dependents[to] == nil {
		g.Dependents[to] = make(map[string]bool)
	}
	g.Dependents[to][from] = true
}

// RemoveDependency removes the mirrored edge pair. Map keys whose sets
// become empty are deleted entirely.
func (g Graph) RemoveDependency(from, to string) Graph {
	out := g.Clone()
	out.removeEdge(from, to)
	return out
}

func (g *Graph) removeEdge(from, to string) {
	if set, ok := g.References[from]; ok {
		delete(set, to)
		if len(set) == 0 {
			delete(g.References, from)
		}
	}
	if set, ok := g.Dependents[to]; ok {
		delete(set, from)
		if len(set) == 0 {
			delete(g.Dependents, to)
		}
	}
}

// UpdateOnArtifactChange reconciles the edges of id against its re-authored
// reference list: stale edges are removed, new ones added. This is the
// primary mutation path; applying the same refs twice changes nothing.
func (g Graph) UpdateOnArtifactChange(id string, newRefs []string) Graph {
	if id == "" {
		return g
	}
	out := g.Clone()

	desired := make(map[string]bool, len(newRefs))
	for _, ref := range newRefs {
		if ref == "" || ref == id {
			continue
		}
		desired[ref] = true
	}

	for ref := range out.References[id] {
		if !desired[ref] {
			out.removeEdge(id, ref)
		}
	}
	for ref := range desired {
		out.addEdge(id, ref)
	}
	return out
}

// RemoveArtifact purges id from every adjacency set and drops its own
// entries, as on artifact deletion.
func (g Graph) RemoveArtifact(id string) Graph {
	out := g.Clone()

	for ref := range out.References[id] {
		out.removeEdge(id, ref)
	}
	for dep := range out.Dependents[id] {
		out.removeEdge(dep, id)
	}
	delete(out.References, id)
	delete(out.Dependents, id)
	return out
}

// DirectReferences returns the artifacts id references, sorted.
func (g Graph) DirectReferences(id string) []string {
	return sortedKeys(g.References[id])
}

// DirectDependents returns the artifacts depending on id, sorted.
func (g Graph) DirectDependents(id string) []string {
	return sortedKeys(g.Dependents[id])
}

// TransitiveDependents walks the dependents relation breadth-first up to
// maxDepth hops and returns every artifact transitively impacted by a
// change to id, sorted. The visited set terminates traversal even on
// corrupted graphs containing cycles.
func (g Graph) TransitiveDependents(id string, maxDepth int) []string {
	if maxDepth <= 0 || id == "" {
		return nil
	}

	visited := map[string]bool{id: true}
	result := make(map[string]bool)
	frontier := []string{id}

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, cur := range frontier {
			for dep := range g.Dependents[cur] {
				if visited[dep] {
					continue
				}
				visited[dep] = true
				result[dep] = true
				next = append(next, dep)
			}
		}
		frontier = next
	}

	return sortedKeys(result)
}

// Validate walks both maps and reports every asymmetry between Dependents
// and References, plus any self-reference. A consistency check, not a
// runtime gate: graphs built only through this package's operations always
// validate clean.
func (g Graph) Validate() []string {
	var issues []string

	for id, refs := range g.References {
		for ref := range refs {
			if ref == id {
				issues = append(issues, fmt.Sprintf("artifact %s references itself", id))
				continue
			}
			if !g.Dependents[ref][id] {
				issues = append(issues, fmt.Sprintf("references[%s] contains %s but dependents[%s] is missing %s", id, ref, ref, id))
			}
		}
	}
	for id, deps := range g.Dependents {
		for dep := range deps {
			if dep == id {
				issues = append(issues, fmt.Sprintf("artifact %s depends on itself", id))
				continue
			}
			if !g.References[dep][id] {
				issues = append(issues, fmt.Sprintf("dependents[%s] contains %s but references[%s] is missing %s", id, dep, dep, id))
			}
		}
	}

	sort.Strings(issues)
	return issues
}

// Equal reports whether two graphs hold identical edges.
func (g Graph) Equal(other Graph) bool {
	return setsEqual(g.References, other.References) && setsEqual(g.Dependents, other.Dependents)
}

func setsEqual(a, b map[string]map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for id, set := range a {
		otherSet, ok := b[id]
		if !ok || len(set) != len(otherSet) {
			return false
		}
		for k := range set {
			if !otherSet[k] {
				return false
			}
		}
	}
	return true
}

func cloneSet(set map[string]bool) map[string]bool {
	out := make(map[string]bool, len(set))
	for k, v := range set {
		if v {
			out[k] = true
		}
	}
	return out
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddRemoveDependency_RoundTrip(t *testing.T) {
	g := New()
	g2 := g.AddDependency("slide-2", "slide-1")
	g3 := g2.RemoveDependency("slide-2", "slide-1")

	assert.True(t, g3.Equal(g), "add then remove must restore the original graph")
	assert.Empty(t, g3.Validate())
}

func TestAddDependency_MirroredMaps(t *testing.T) {
	g := New().AddDependency("b", "a")

	assert.Equal(t, []string{"a"}, g.DirectReferences("b"))
	assert.Equal(t, []string{"b"}, g.DirectDependents("a"))
	assert.Empty(t, g.Validate())
}

func TestAddDependency_SelfAndEmptyAreNoOps(t *testing.T) {
	g := New()
	assert.True(t, g.AddDependency("a", "a").Equal(g))
	assert.True(t, g.AddDependency("", "a").Equal(g))
	assert.True(t, g.AddDependency("a", "").Equal(g))
}

func TestAddDependency_Idempotent(t *testing.T) {
	g := New().AddDependency("b", "a")
	g2 := g.AddDependency("b", "a")
	assert.True(t, g.Equal(g2))
}

func TestRemoveDependency_DeletesEmptyEntries(t *testing.T) {
	g := New().AddDependency("b", "a").RemoveDependency("b", "a")

	_, hasRefs := g.References["b"]
	_, hasDeps := g.Dependents["a"]
	assert.False(t, hasRefs, "empty reference sets must be dropped")
	assert.False(t, hasDeps, "empty dependent sets must be dropped")
}

func TestUpdateOnArtifactChange_ReconcilesEdges(t *testing.T) {
	g := New().
		AddDependency("summary", "revenue").
		AddDependency("summary", "costs")

	g2 := g.UpdateOnArtifactChange("summary", []string{"revenue", "margins"})

	assert.Equal(t, []string{"margins", "revenue"}, g2.DirectReferences("summary"))
	assert.Empty(t, g2.DirectDependents("costs"))
	assert.Equal(t, []string{"summary"}, g2.DirectDependents("margins"))
	assert.Empty(t, g2.Validate())
}

func TestUpdateOnArtifactChange_Idempotent(t *testing.T) {
	refs := []string{"a", "b", "c"}
	g := New().UpdateOnArtifactChange("x", refs)
	g2 := g.UpdateOnArtifactChange("x", refs)

	assert.True(t, g.Equal(g2), "second application with same refs must change nothing")
}

func TestUpdateOnArtifactChange_FiltersSelfAndEmpty(t *testing.T) {
	g := New().UpdateOnArtifactChange("x", []string{"x", "", "y"})
	assert.Equal(t, []string{"y"}, g.DirectReferences("x"))
	assert.Empty(t, g.Validate())
}

func TestRemoveArtifact_PurgesAllEdges(t *testing.T) {
	g := New().
		AddDependency("b", "a").
		AddDependency("c", "a").
		AddDependency("a", "z")

	g2 := g.RemoveArtifact("a")

	assert.Empty(t, g2.DirectReferences("a"))
	assert.Empty(t, g2.DirectDependents("a"))
	assert.Empty(t, g2.DirectReferences("b"))
	assert.Empty(t, g2.DirectDependents("z"))
	assert.Empty(t, g2.Validate())
}

func TestTransitiveDependents_Chain(t *testing.T) {
	// c depends on b depends on a
	g := New().
		AddDependency("b", "a").
		AddDependency("c", "b")

	assert.Equal(t, []string{"b", "c"}, g.TransitiveDependents("a", 10))
	assert.Equal(t, []string{"b"}, g.TransitiveDependents("a", 1))
	assert.Empty(t, g.TransitiveDependents("c", 10))
}

func TestTransitiveDependents_TerminatesOnCorruptCycle(t *testing.T) {
	// Build a cyclic graph through raw map construction, bypassing the
	// operations that would reject it.
	g := New()
	g.addEdge("a", "b")
	g.addEdge("b", "a")

	deps := g.TransitiveDependents("a", 1000)
	assert.Equal(t, []string{"b"}, deps)
}

func TestValidate_DetectsAsymmetry(t *testing.T) {
	g := New()
	g.References["a"] = map[string]bool{"b": true}
	// Dependents side deliberately missing.

	issues := g.Validate()
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0], "dependents[b] is missing a")
}

func TestValidate_DetectsSelfReference(t *testing.T) {
	g := New()
	g.References["a"] = map[string]bool{"a": true}
	g.Dependents["a"] = map[string]bool{"a": true}

	issues := g.Validate()
	assert.NotEmpty(t, issues)
}

func TestMutationsDoNotAliasOriginal(t *testing.T) {
	g := New().AddDependency("b", "a")
	g2 := g.AddDependency("c", "a")

	assert.Equal(t, []string{"b"}, g.DirectDependents("a"))
	assert.Equal(t, []string{"b", "c"}, g2.DirectDependents("a"))
}

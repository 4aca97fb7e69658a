package artifacts

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hoferino/manda/pkg/schema"
)

func TestStatusIndex_UnknownIDReportsNotStarted(t *testing.T) {
	ix := NewStatusIndex(nil)
	assert.Equal(t, schema.StatusNotStarted, ix.Status("ghost"))
	assert.Equal(t, schema.StatusNotStarted, ix.ContainerStatus("ghost"))
	assert.Nil(t, ix.Constituents("ghost"))
}

func TestStatusIndex_ContainerStatusFollowsSection(t *testing.T) {
	ix := NewStatusIndex([]*Artifact{
		{ID: "sec-finance", Status: schema.StatusInProgress},
		{ID: "slide-1", SectionID: "sec-finance", Status: schema.StatusComplete},
		{ID: "standalone", Status: schema.StatusDraft},
	})

	assert.Equal(t, schema.StatusComplete, ix.Status("slide-1"))
	assert.Equal(t, schema.StatusInProgress, ix.ContainerStatus("slide-1"))
	// A leaf with no section is its own container.
	assert.Equal(t, schema.StatusDraft, ix.ContainerStatus("standalone"))
}

func TestStatusIndex_ConstituentsSorted(t *testing.T) {
	ix := NewStatusIndex([]*Artifact{
		{ID: "sec", Status: schema.StatusDraft},
		{ID: "z-slide", SectionID: "sec", Status: schema.StatusDraft},
		{ID: "a-slide", SectionID: "sec", Status: schema.StatusDraft},
	})
	assert.Equal(t, []string{"a-slide", "z-slide"}, ix.Constituents("sec"))
}

package supervisor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoferino/manda/pkg/schema"
)

func TestClarifySpecialist_AsksForDetail(t *testing.T) {
	s := NewClarifySpecialist()
	assert.Equal(t, schema.SpecialistClarify, s.ID())

	res, err := s.Execute(context.Background(), Request{
		Query:          "numbers?",
		Classification: schema.Classification{Domain: "financial", Complexity: "simple"},
	})
	require.NoError(t, err)
	assert.Contains(t, res.Content, "financial")
	assert.Contains(t, res.Content, "more detail")
}

func TestClarifySpecialist_GeneralDomainOmitsHint(t *testing.T) {
	s := NewClarifySpecialist()

	res, err := s.Execute(context.Background(), Request{
		Query:          "help",
		Classification: schema.Classification{Domain: "general", Complexity: "simple"},
	})
	require.NoError(t, err)
	assert.NotContains(t, res.Content, "general question")
}

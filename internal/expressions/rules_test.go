package expressions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleEngine_MatchesDomainPredicate(t *testing.T) {
	e := NewRuleEngine()
	env := RuleEnv{Query: "what is the normalized EBITDA", Domain: "financial", Complexity: "simple"}

	matched, err := e.Match(context.Background(), `domain == "financial"`, env)
	require.NoError(t, err)
	assert.True(t, matched)

	matched, err = e.Match(context.Background(), `domain == "legal"`, env)
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestRuleEngine_CompoundPredicate(t *testing.T) {
	e := NewRuleEngine()
	env := RuleEnv{
		Query:      "compare revenue against the customer contracts",
		Domain:     "financial",
		Complexity: "complex",
	}

	matched, err := e.Match(context.Background(),
		`complexity == "complex" and (query contains "contract" or domain == "legal")`, env)
	require.NoError(t, err)
	assert.True(t, matched)
}

func TestRuleEngine_EmptyPredicateRejected(t *testing.T) {
	e := NewRuleEngine()
	_, err := e.Match(context.Background(), "", RuleEnv{})
	assert.Error(t, err)
}

func TestRuleEngine_NonBoolPredicateRejected(t *testing.T) {
	e := NewRuleEngine()
	_, err := e.Match(context.Background(), `domain`, RuleEnv{Domain: "financial"})
	assert.Error(t, err)
}

func TestRuleEngine_CompileErrorSurfaces(t *testing.T) {
	e := NewRuleEngine()
	_, err := e.Match(context.Background(), `domain ==`, RuleEnv{})
	assert.Error(t, err)
}

func TestRuleEngine_CachedProgramsGiveSameResult(t *testing.T) {
	e := NewRuleEngine()
	env := RuleEnv{Domain: "market"}
	for i := 0; i < 3; i++ {
		matched, err := e.Match(context.Background(), `domain == "market"`, env)
		require.NoError(t, err)
		assert.True(t, matched)
	}
}

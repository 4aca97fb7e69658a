package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewThreadKey_RoundTrip(t *testing.T) {
	k, err := NewThreadKey(WorkflowChat, "acme", "u-42", "conv-1")
	require.NoError(t, err)

	parsed, err := ParseThreadKey(k.Encode())
	require.NoError(t, err)
	assert.Equal(t, k, parsed)
	assert.False(t, parsed.Shared())
}

func TestNewSharedThreadKey_RoundTrip(t *testing.T) {
	k, err := NewSharedThreadKey(WorkflowDocBuild, "acme", "deck-7")
	require.NoError(t, err)

	parsed, err := ParseThreadKey(k.Encode())
	require.NoError(t, err)
	assert.Equal(t, k, parsed)
	assert.True(t, parsed.Shared())
	assert.Empty(t, parsed.UserID)
}

func TestNewThreadKey_RejectsEmptyComponents(t *testing.T) {
	_, err := NewThreadKey(WorkflowChat, "", "u-1", "c-1")
	assert.Error(t, err)

	_, err = NewThreadKey(WorkflowChat, "acme", "", "c-1")
	assert.Error(t, err)

	_, err = NewThreadKey(WorkflowChat, "acme", "u-1", "")
	assert.Error(t, err)
}

func TestNewThreadKey_RejectsDelimiterCharacters(t *testing.T) {
	_, err := NewThreadKey(WorkflowChat, "acme:corp", "u-1", "c-1")
	require.Error(t, err)

	var agentErr *AgentError
	require.True(t, errors.As(err, &agentErr))
	assert.Equal(t, ErrCodeValidation, agentErr.Code)
}

func TestNewThreadKey_RejectsUnknownKind(t *testing.T) {
	_, err := NewThreadKey(WorkflowKind("mystery"), "acme", "u-1", "c-1")
	assert.Error(t, err)
}

func TestParseThreadKey_Malformed(t *testing.T) {
	for _, raw := range []string{
		"",
		"chat",
		"chat:acme",
		"chat:acme:u:c:extra",
		"chat::c-1",
		"nope:acme:c-1",
	} {
		_, err := ParseThreadKey(raw)
		assert.Error(t, err, "expected %q to be rejected", raw)
	}
}

func TestParseThreadKey_ShapeByComponentCount(t *testing.T) {
	shared, err := ParseThreadKey("docbuild:acme:deck-1")
	require.NoError(t, err)
	assert.True(t, shared.Shared())

	personal, err := ParseThreadKey("chat:acme:u-9:conv-2")
	require.NoError(t, err)
	assert.False(t, personal.Shared())
	assert.Equal(t, "u-9", personal.UserID)
}

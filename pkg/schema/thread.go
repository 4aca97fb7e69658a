package schema

import (
	"strings"
)

// WorkflowKind scopes a thread to one workflow family.
type WorkflowKind string

const (
	WorkflowChat      WorkflowKind = "chat"
	WorkflowDocBuild  WorkflowKind = "docbuild"
	WorkflowKnowledge WorkflowKind = "knowledge"
)

var validWorkflowKinds = map[WorkflowKind]bool{
	WorkflowChat:      true,
	WorkflowDocBuild:  true,
	WorkflowKnowledge: true,
}

const threadSep = ":"

// ThreadKey isolates one conversation's checkpointed state. UserID is empty
// for workflows scoped to a shared collaborative artifact (e.g. a document
// build owned by a team). Immutable once created.
type ThreadKey struct {
	Kind           WorkflowKind
	TenantID       string
	UserID         string
	ConversationID string
}

// NewThreadKey builds a per-user thread key. All components are validated
// before a key is emitted; nothing is silently truncated.
func NewThreadKey(kind WorkflowKind, tenantID, userID, conversationID string) (ThreadKey, error) {
	k := ThreadKey{Kind: kind, TenantID: tenantID, UserID: userID, ConversationID: conversationID}
	if userID == "" {
		return ThreadKey{}, NewError(ErrCodeValidation, "user id is required for per-user threads")
	}
	if err := k.validate(); err != nil {
		return ThreadKey{}, err
	}
	return k, nil
}

// NewSharedThreadKey builds a thread key for a collaborative workflow with
// no per-user scope.
func NewSharedThreadKey(kind WorkflowKind, tenantID, conversationID string) (ThreadKey, error) {
	k := ThreadKey{Kind: kind, TenantID: tenantID, ConversationID: conversationID}
	if err := k.validate(); err != nil {
		return ThreadKey{}, err
	}
	return k, nil
}

func (k ThreadKey) validate() error {
	if !validWorkflowKinds[k.Kind] {
		return NewErrorf(ErrCodeValidation, "unknown workflow kind %q", k.Kind)
	}
	for _, c := range []struct{ name, value string }{
		{"tenant id", k.TenantID},
		{"conversation id", k.ConversationID},
	} {
		if c.value == "" {
			return NewErrorf(ErrCodeValidation, "%s is empty", c.name)
		}
	}
	for _, c := range []struct{ name, value string }{
		{"tenant id", k.TenantID},
		{"user id", k.UserID},
		{"conversation id", k.ConversationID},
	} {
		if c.value == "" {
			continue
		}
		if !validKeyComponent(c.value) {
			return NewErrorf(ErrCodeValidation,
				"%s %q contains characters outside [a-zA-Z0-9_-]", c.name, c.value)
		}
	}
	return nil
}

// validKeyComponent reports whether s round-trips through Encode/ParseThreadKey
// without ambiguity. The separator is excluded by construction.
func validKeyComponent(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return false
		}
	}
	return true
}

// Shared reports whether the key has no per-user scope.
func (k ThreadKey) Shared() bool {
	return k.UserID == ""
}

// Encode serializes the key. Per-user keys have four components, shared
// keys three; ParseThreadKey distinguishes the shapes by component count.
func (k ThreadKey) Encode() string {
	parts := []string{string(k.Kind), k.TenantID}
	if k.UserID != "" {
		parts = append(parts, k.UserID)
	}
	parts = append(parts, k.ConversationID)
	return strings.Join(parts, threadSep)
}

func (k ThreadKey) String() string {
	return k.Encode()
}

// ParseThreadKey decodes an encoded thread key. Malformed input yields a
// validation error rather than a guessed key.
func ParseThreadKey(raw string) (ThreadKey, error) {
	parts := strings.Split(raw, threadSep)
	var k ThreadKey
	switch len(parts) {
	case 3:
		k = ThreadKey{Kind: WorkflowKind(parts[0]), TenantID: parts[1], ConversationID: parts[2]}
	case 4:
		k = ThreadKey{Kind: WorkflowKind(parts[0]), TenantID: parts[1], UserID: parts[2], ConversationID: parts[3]}
	default:
		return ThreadKey{}, NewErrorf(ErrCodeValidation, "malformed thread key %q", raw)
	}
	if err := k.validate(); err != nil {
		return ThreadKey{}, err
	}
	return k, nil
}

package schema

import (
	"fmt"
	"time"
)

// Error codes for structured error reporting. The set is closed: classify
// maps anything unknown onto ErrCodeState, the most conservative code.
const (
	ErrCodeLLM              = "LLM_ERROR"
	ErrCodeTool             = "TOOL_ERROR"
	ErrCodeState            = "STATE_ERROR"
	ErrCodeContext          = "CONTEXT_ERROR"
	ErrCodeCache            = "CACHE_ERROR"
	ErrCodeStreaming        = "STREAMING_ERROR"
	ErrCodeApprovalRejected = "APPROVAL_REJECTED"
	ErrCodeValidation       = "VALIDATION_ERROR"
)

// AgentError is the structured error type for all engine operations.
type AgentError struct {
	Code        string         `json:"code"`
	Message     string         `json:"message"`
	Details     map[string]any `json:"details,omitempty"`
	NodeID      string         `json:"node_id,omitempty"`
	Recoverable bool           `json:"recoverable"`
	Timestamp   time.Time      `json:"timestamp"`
	Cause       error          `json:"-"`
}

func (e *AgentError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.NodeID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AgentError) Unwrap() error {
	return e.Cause
}

// NewError creates a new AgentError. Recoverability follows the code's
// default; override with WithRecoverable for edge cases.
func NewError(code, message string) *AgentError {
	return &AgentError{
		Code:        code,
		Message:     message,
		Recoverable: defaultRecoverable(code),
		Timestamp:   time.Now().UTC(),
	}
}

// NewErrorf creates a new AgentError with a formatted message.
func NewErrorf(code, format string, args ...any) *AgentError {
	return NewError(code, fmt.Sprintf(format, args...))
}

// WithNode attaches the originating component identifier.
func (e *AgentError) WithNode(nodeID string) *AgentError {
	e.NodeID = nodeID
	return e
}

// WithCause attaches an underlying cause.
func (e *AgentError) WithCause(err error) *AgentError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *AgentError) WithDetails(details map[string]any) *AgentError {
	e.Details = details
	return e
}

// WithRecoverable overrides the default recoverability for the code.
func (e *AgentError) WithRecoverable(v bool) *AgentError {
	e.Recoverable = v
	return e
}

func defaultRecoverable(code string) bool {
	switch code {
	case ErrCodeLLM, ErrCodeContext, ErrCodeCache, ErrCodeStreaming:
		return true
	default:
		return false
	}
}

// UserMessage maps an error code to a short message safe to surface to the
// end user. Cache failures are deliberately invisible; callers should not
// show them at all.
func UserMessage(code string) string {
	switch code {
	case ErrCodeLLM:
		return "I'm having trouble thinking, let me try again."
	case ErrCodeTool:
		return "One of my analysis tools failed, so this answer may be incomplete."
	case ErrCodeContext:
		return "I couldn't load part of the conversation context."
	case ErrCodeStreaming:
		return "The connection was interrupted while I was responding."
	case ErrCodeApprovalRejected:
		return "Understood, I won't proceed with that."
	case ErrCodeValidation:
		return "That request doesn't look valid."
	default:
		return "Something went wrong on my side."
	}
}

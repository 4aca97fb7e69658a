package retry

import (
	"context"
	"errors"
	"strings"

	"github.com/hoferino/manda/pkg/schema"
)

// authPatterns mark failures that retrying cannot fix: the credentials are
// wrong, not the timing.
var authPatterns = []string{
	"unauthorized",
	"unauthenticated",
	"authentication",
	"invalid api key",
	"invalid credentials",
	"permission denied",
	"forbidden",
	"401",
	"403",
}

var llmPatterns = []string{
	"rate limit",
	"too many requests",
	"429",
	"overloaded",
	"model",
	"completion",
	"token limit",
	"service unavailable",
	"bad gateway",
	"gateway timeout",
}

var contextPatterns = []string{
	"context load",
	"checkpoint read",
	"history",
	"memory load",
}

var cachePatterns = []string{
	"cache",
}

var streamingPatterns = []string{
	"stream",
	"broken pipe",
	"connection reset",
	"eof",
}

var toolPatterns = []string{
	"tool",
	"search failed",
	"retrieval",
	"extraction",
}

// Classify maps an unstructured failure into the closed error taxonomy by
// message inspection. Typed AgentErrors pass through unchanged. Unknown
// failures default to STATE_ERROR, the most conservative classification.
func Classify(err error) *schema.AgentError {
	if err == nil {
		return nil
	}

	var agentErr *schema.AgentError
	if errors.As(err, &agentErr) {
		return agentErr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return schema.NewError(schema.ErrCodeLLM, "call timed out").WithCause(err)
	}
	if errors.Is(err, context.Canceled) {
		return schema.NewError(schema.ErrCodeState, "call cancelled").WithCause(err)
	}

	msg := strings.ToLower(err.Error())

	if matchAny(msg, authPatterns) {
		// Auth failures ride the LLM code but are never retried.
		return schema.NewError(schema.ErrCodeLLM, err.Error()).
			WithCause(err).
			WithRecoverable(false).
			WithDetails(map[string]any{"auth": true})
	}
	if matchAny(msg, cachePatterns) {
		return schema.NewError(schema.ErrCodeCache, err.Error()).WithCause(err)
	}
	if matchAny(msg, streamingPatterns) {
		return schema.NewError(schema.ErrCodeStreaming, err.Error()).WithCause(err)
	}
	if matchAny(msg, llmPatterns) {
		return schema.NewError(schema.ErrCodeLLM, err.Error()).WithCause(err)
	}
	if matchAny(msg, contextPatterns) {
		return schema.NewError(schema.ErrCodeContext, err.Error()).WithCause(err)
	}
	if matchAny(msg, toolPatterns) {
		return schema.NewError(schema.ErrCodeTool, err.Error()).WithCause(err)
	}

	return schema.NewError(schema.ErrCodeState, err.Error()).WithCause(err)
}

// IsAuthFailure reports whether the classified error is an authentication or
// authorization failure. These are excluded from retry regardless of config.
func IsAuthFailure(err *schema.AgentError) bool {
	if err == nil {
		return false
	}
	if v, ok := err.Details["auth"].(bool); ok && v {
		return true
	}
	return false
}

// ShouldRetry is the default retry predicate: recoverable and not an
// authentication failure.
func ShouldRetry(err error) bool {
	classified := Classify(err)
	if classified == nil {
		return false
	}
	return classified.Recoverable && !IsAuthFailure(classified)
}

func matchAny(msg string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hoferino/manda/internal/artifacts"
	"github.com/hoferino/manda/internal/checkpoint"
	"github.com/hoferino/manda/internal/coherence"
	"github.com/hoferino/manda/internal/streaming"
	"github.com/hoferino/manda/internal/supervisor"
	"github.com/hoferino/manda/internal/workflow"
	"github.com/hoferino/manda/pkg/schema"
)

// handleAsk runs one turn through the supervisor pipeline.
func (s *MandaServer) handleAsk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawKey, err := req.RequireString("thread_key")
	if err != nil {
		return mcp.NewToolResultError("thread_key is required"), nil
	}
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query is required"), nil
	}

	key, keyErr := schema.ParseThreadKey(rawKey)
	if keyErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid thread_key: %v", keyErr)), nil
	}

	// Capture session mapping for push notifications.
	s.captureSession(ctx, key.Encode())

	in := supervisor.TurnInput{Key: key, Query: query}
	domain := req.GetString("domain", "")
	complexity := req.GetString("complexity", "")
	if domain != "" && complexity != "" {
		in.Intent = &schema.Classification{Domain: domain, Complexity: complexity}
	}

	out, turnErr := s.supervisor.HandleTurn(ctx, in)
	if turnErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("turn failed: %v", turnErr)), nil
	}

	return marshalResult(map[string]any{
		"turn_id":         out.TurnID,
		"content":         out.Response.Content,
		"confidence":      out.Response.Confidence,
		"specialists":     out.Response.Specialists,
		"sources":         out.Response.Sources,
		"was_synthesized": out.Response.WasSynthesized,
		"rationale":       out.Decision.Rationale,
		"total_ms":        out.Metrics.TotalMs,
		"errors":          len(out.Errors),
	})
}

// handleUpdateArtifact upserts an artifact and reconciles the graph.
func (s *MandaServer) handleUpdateArtifact(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id is required"), nil
	}
	status, err := req.RequireString("status")
	if err != nil {
		return mcp.NewToolResultError("status is required"), nil
	}

	art := &artifacts.Artifact{
		ID:         id,
		SectionID:  req.GetString("section_id", ""),
		Title:      req.GetString("title", ""),
		Status:     schema.ArtifactStatus(status),
		Content:    req.GetString("content", ""),
		References: req.GetStringSlice("references", nil),
		UpdatedAt:  time.Now().UTC(),
	}

	g, updateErr := s.artifacts.Update(ctx, art)
	if updateErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("update failed: %v", updateErr)), nil
	}

	impacted := g.TransitiveDependents(id, 10)
	s.publishEvent(ctx, "", schema.EventArtifactUpdated, map[string]any{
		"artifact_id": id,
		"status":      status,
		"impacted":    impacted,
	})
	s.notifier.Broadcast(ctx, map[string]any{
		"event":       schema.EventArtifactUpdated,
		"artifact_id": id,
		"impacted":    impacted,
	})

	return marshalResult(map[string]any{
		"id":         id,
		"status":     status,
		"references": g.DirectReferences(id),
		"impacted":   impacted,
	})
}

// handleCheckNavigation runs the coherence checks for a navigation target
// and/or an index jump across the ordered artifact list.
func (s *MandaServer) handleCheckNavigation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	targetID := req.GetString("target_id", "")
	order := req.GetStringSlice("order", nil)

	if targetID == "" && len(order) == 0 {
		return mcp.NewToolResultError("either target_id or order (with from_index/to_index) is required"), nil
	}

	view, viewErr := s.artifacts.View(ctx)
	if viewErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("loading artifact statuses failed: %v", viewErr)), nil
	}

	result := map[string]any{}

	if targetID != "" {
		warnings := coherence.CheckNavigation(targetID, s.artifacts.Graph(), view)
		for _, w := range warnings {
			s.publishEvent(ctx, "", schema.EventCoherenceWarning, map[string]any{
				"kind":      w.Kind,
				"source_id": w.SourceID,
				"severity":  w.Severity,
			})
		}
		result["warnings"] = warnings
		result["requires_confirmation"] = coherence.RequiresConfirmation(warnings)
	}

	if len(order) > 0 {
		from := req.GetInt("from_index", 0)
		to := req.GetInt("to_index", 0)
		jump := coherence.CheckJumpSafety(from, to, order, view)
		result["jump"] = jump
	}

	return marshalResult(result)
}

// handleAdvancePhase advances or jumps the thread's document workflow.
func (s *MandaServer) handleAdvancePhase(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawKey, err := req.RequireString("thread_key")
	if err != nil {
		return mcp.NewToolResultError("thread_key is required"), nil
	}
	key, keyErr := schema.ParseThreadKey(rawKey)
	if keyErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid thread_key: %v", keyErr)), nil
	}

	prior, getErr := s.checkpoints.Get(ctx, key)
	if getErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("loading thread failed: %v", getErr)), nil
	}

	state := workflow.NewState()
	if prior != nil && prior.Workflow != nil {
		state = *prior.Workflow
	}

	var next schema.WorkflowState
	var stateErr error
	if target := req.GetString("target_phase", ""); target != "" {
		next, stateErr = workflow.JumpToPhase(state, schema.WorkflowPhase(target))
	} else {
		next, stateErr = workflow.Advance(state)
	}
	if stateErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("phase transition failed: %v", stateErr)), nil
	}

	snap := checkpoint.Merge(key, prior, checkpoint.Update{Workflow: &next})
	if putErr := s.checkpoints.Put(ctx, key, snap); putErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("saving thread failed: %v", putErr)), nil
	}

	s.publishEvent(ctx, key.Encode(), schema.EventPhaseAdvanced, map[string]any{
		"phase":    next.CurrentPhase,
		"complete": next.IsComplete,
	})

	return marshalResult(map[string]any{
		"current_phase":    next.CurrentPhase,
		"completed_phases": next.CompletedPhases,
		"is_complete":      next.IsComplete,
	})
}

// handleQuery inspects artifacts, the reference graph, or a thread.
func (s *MandaServer) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resource, err := req.RequireString("resource")
	if err != nil {
		return mcp.NewToolResultError("resource is required"), nil
	}

	filter := mcp.ParseStringMap(req, "filter", nil)

	switch resource {
	case "artifacts":
		return s.queryArtifacts(ctx, filter)
	case "graph":
		return s.queryGraph(ctx, filter)
	case "thread":
		return s.queryThread(ctx, filter)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown resource type: %s", resource)), nil
	}
}

// --- Query helpers ---

func (s *MandaServer) queryArtifacts(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	arts, err := s.artifacts.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}

	status, _ := filter["status"].(string)
	sectionID, _ := filter["section_id"].(string)
	limit := extractInt(filter, "limit", 50)

	out := make([]*artifacts.Artifact, 0, len(arts))
	for _, a := range arts {
		if status != "" && string(a.Status) != status {
			continue
		}
		if sectionID != "" && a.SectionID != sectionID {
			continue
		}
		out = append(out, a)
		if len(out) >= limit {
			break
		}
	}
	return marshalResult(map[string]any{"artifacts": out})
}

func (s *MandaServer) queryGraph(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	g := s.artifacts.Graph()

	artifactID, _ := filter["artifact_id"].(string)
	if artifactID == "" {
		// No target: report graph consistency.
		return marshalResult(map[string]any{"issues": g.Validate()})
	}

	depth := extractInt(filter, "depth", 5)
	return marshalResult(map[string]any{
		"artifact_id": artifactID,
		"references":  g.DirectReferences(artifactID),
		"dependents":  g.DirectDependents(artifactID),
		"impacted":    g.TransitiveDependents(artifactID, depth),
	})
}

func (s *MandaServer) queryThread(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	rawKey, _ := filter["thread_key"].(string)
	if rawKey == "" {
		return mcp.NewToolResultError("thread query requires 'thread_key' in filter"), nil
	}
	key, keyErr := schema.ParseThreadKey(rawKey)
	if keyErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid thread_key: %v", keyErr)), nil
	}

	snap, err := s.checkpoints.Get(ctx, key)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	if snap == nil {
		return marshalResult(map[string]any{"thread_key": rawKey, "exists": false})
	}

	limit := extractInt(filter, "limit", 20)
	messages := snap.Messages
	if len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}

	result := map[string]any{
		"thread_key": rawKey,
		"exists":     true,
		"messages":   messages,
		"turns":      len(snap.Decisions),
		"errors":     len(snap.Errors),
		"updated_at": snap.UpdatedAt,
	}
	if snap.Workflow != nil {
		result["workflow"] = snap.Workflow
	}
	return marshalResult(result)
}

// --- Internal helpers ---

// captureSession maps the thread key to its current MCP session for
// notifications.
func (s *MandaServer) captureSession(ctx context.Context, threadID string) {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		s.sessions.Register(threadID, session.SessionID())
	}
}

func (s *MandaServer) publishEvent(ctx context.Context, threadID, eventType string, payload map[string]any) {
	if s.hub == nil {
		return
	}
	_ = s.hub.Publish(ctx, streaming.TurnEvent{
		ThreadID:  threadID,
		EventType: eventType,
		Payload:   payload,
	})
}

// extractInt safely extracts an integer from a filter map.
func extractInt(filter map[string]any, key string, defaultVal int) int {
	if filter == nil {
		return defaultVal
	}
	v, ok := filter[key]
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case float64:
		return int(val)
	case int:
		return val
	case string:
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}

package mcp

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/server"
)

// ThreadNotifier pushes notifications to connected threads.
type ThreadNotifier interface {
	Notify(ctx context.Context, threadID string, payload map[string]any) error
	Broadcast(ctx context.Context, payload map[string]any)
}

// MCPNotifier implements ThreadNotifier using MCP push notifications.
type MCPNotifier struct {
	mcpServer *server.MCPServer
	sessions  *SessionRegistry
}

// NewMCPNotifier creates a notifier that pushes via the MCP server.
func NewMCPNotifier(mcpServer *server.MCPServer, sessions *SessionRegistry) *MCPNotifier {
	return &MCPNotifier{mcpServer: mcpServer, sessions: sessions}
}

// Notify sends a notification to the thread's session.
// Best-effort: returns nil if the thread is not connected.
func (n *MCPNotifier) Notify(_ context.Context, threadID string, payload map[string]any) error {
	sessionID, ok := n.sessions.SessionFor(threadID)
	if !ok {
		return nil // thread not connected, best-effort
	}
	err := n.mcpServer.SendNotificationToSpecificClient(sessionID, "notifications/message", payload)
	if errors.Is(err, server.ErrSessionNotFound) {
		// Session expired between lookup and send, not an error.
		n.sessions.Remove(sessionID)
		return nil
	}
	return err
}

// Broadcast sends a payload to every connected session. Artifact changes can
// affect any open thread, so there is no single target.
func (n *MCPNotifier) Broadcast(_ context.Context, payload map[string]any) {
	for _, sessionID := range n.sessions.All() {
		err := n.mcpServer.SendNotificationToSpecificClient(sessionID, "notifications/message", payload)
		if errors.Is(err, server.ErrSessionNotFound) {
			n.sessions.Remove(sessionID)
		}
	}
}

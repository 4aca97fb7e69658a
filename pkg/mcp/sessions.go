package mcp

import "sync"

// SessionRegistry maps thread keys to MCP session IDs.
// Populated automatically when clients call any tool that includes thread_key.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]string // threadID → sessionID
}

// NewSessionRegistry creates a new empty SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]string)}
}

// Register associates a thread with a session ID.
// If the thread already has a session, it is overwritten (reconnect).
func (r *SessionRegistry) Register(threadID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[threadID] = sessionID
}

// SessionFor returns the session ID for the given thread, if connected.
func (r *SessionRegistry) SessionFor(threadID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sid, ok := r.sessions[threadID]
	return sid, ok
}

// All returns the distinct session IDs currently registered.
func (r *SessionRegistry) All() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{}, len(r.sessions))
	out := make([]string, 0, len(r.sessions))
	for _, sid := range r.sessions {
		if _, dup := seen[sid]; dup {
			continue
		}
		seen[sid] = struct{}{}
		out = append(out, sid)
	}
	return out
}

// Remove deletes all thread mappings for the given session ID.
// Called when a session disconnects.
func (r *SessionRegistry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for tid, sid := range r.sessions {
		if sid == sessionID {
			delete(r.sessions, tid)
		}
	}
}

package bridge

import (
	"fmt"
	"sync"
)

// SessionManager provides thread-safe tracking of live sessions, so both
// the websocket bridge server and the MCP tool surface can enumerate or
// tear down sessions that outlive a single request.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionManager creates an empty SessionManager.
func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: make(map[string]*Session)}
}

// Add registers session under its ID. Returns an error if a session with
// the same ID is already registered.
func (sm *SessionManager) Add(session *Session) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if _, exists := sm.sessions[session.ID]; exists {
		return fmt.Errorf("session with ID %s already exists", session.ID)
	}
	sm.sessions[session.ID] = session
	return nil
}

// Get retrieves a session by ID.
func (sm *SessionManager) Get(id string) (*Session, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	session, exists := sm.sessions[id]
	if !exists {
		return nil, fmt.Errorf("session with ID %s not found", id)
	}
	return session, nil
}

// List returns a snapshot slice of every tracked session.
func (sm *SessionManager) List() []*Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	sessions := make([]*Session, 0, len(sm.sessions))
	for _, session := range sm.sessions {
		sessions = append(sessions, session)
	}
	return sessions
}

// Remove unregisters the session with the given ID and destroys it.
// Destroy runs outside the registry lock, so one slow or stuck connection
// cannot stall lookups or registrations for every other session.
func (sm *SessionManager) Remove(id string) error {
	sm.mu.Lock()
	session, exists := sm.sessions[id]
	if !exists {
		sm.mu.Unlock()
		return fmt.Errorf("session with ID %s not found", id)
	}
	delete(sm.sessions, id)
	sm.mu.Unlock()

	session.Destroy()
	return nil
}

// DisconnectAll unregisters and destroys every tracked session. Typically
// called during server shutdown. Destroy runs outside the registry lock,
// same as Remove.
func (sm *SessionManager) DisconnectAll() {
	sm.mu.Lock()
	sessions := sm.sessions
	sm.sessions = make(map[string]*Session)
	sm.mu.Unlock()

	for _, session := range sessions {
		session.Destroy()
	}
}

// Count returns the number of tracked sessions.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

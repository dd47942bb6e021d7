package http

import (
	"sync"
	"time"

	"github.com/prism-engine/editor-host/logger"
)

// Session tracks one connected event-stream client.
type Session struct {
	ID       string
	Created  time.Time
	LastSeen time.Time
	Stream   *EventStream
}

// SessionManager keeps the live event-stream sessions so stale connections
// can be reaped and the roster inspected.
type SessionManager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
}

func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
	}
}

func (sm *SessionManager) CreateSession(id string, stream *EventStream) *Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	now := time.Now()
	session := &Session{
		ID:       id,
		Created:  now,
		LastSeen: now,
		Stream:   stream,
	}
	sm.sessions[id] = session
	logger.Info("Event stream session created", "session_id", id)
	return session
}

func (sm *SessionManager) GetSession(id string) (*Session, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	session, ok := sm.sessions[id]
	return session, ok
}

func (sm *SessionManager) HasSession(id string) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	_, ok := sm.sessions[id]
	return ok
}

// TouchSession refreshes the session's last-seen time, reporting whether the
// session exists.
func (sm *SessionManager) TouchSession(id string) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	session, ok := sm.sessions[id]
	if !ok {
		return false
	}
	session.LastSeen = time.Now()
	return true
}

func (sm *SessionManager) RemoveSession(id string) {
	sm.mu.Lock()
	session, ok := sm.sessions[id]
	if ok {
		delete(sm.sessions, id)
	}
	sm.mu.Unlock()

	if !ok {
		return
	}
	if session.Stream != nil {
		session.Stream.Close()
	}
	logger.Info("Event stream session removed", "session_id", id)
}

// CleanupSessions removes sessions idle past timeout or whose stream has
// already closed, returning how many were dropped.
func (sm *SessionManager) CleanupSessions(timeout time.Duration) int {
	cutoff := time.Now().Add(-timeout)

	sm.mu.Lock()
	var stale []*Session
	for id, session := range sm.sessions {
		if session.LastSeen.Before(cutoff) || (session.Stream != nil && session.Stream.IsClosed()) {
			stale = append(stale, session)
			delete(sm.sessions, id)
		}
	}
	sm.mu.Unlock()

	for _, session := range stale {
		if session.Stream != nil {
			session.Stream.Close()
		}
		logger.Info("Cleaned up stale event stream session", "session_id", session.ID, "last_seen", session.LastSeen)
	}
	return len(stale)
}

func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

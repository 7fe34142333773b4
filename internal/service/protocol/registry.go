package protocol

import (
	"sync"

	"scribe-mcp-gateway/internal/service/session"
)

// Registry maps session ids to live sessions. It is owned by the
// composition root and shared by the handler and transports.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*session.Session)}
}

// Get returns the session registered under id.
func (r *Registry) Get(id string) (*session.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Put registers s under its id and returns the session it replaced, if any.
func (r *Registry) Put(s *session.Session) *session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.sessions[s.ID()]
	r.sessions[s.ID()] = s
	return prev
}

// Delete removes and returns the session registered under id.
func (r *Registry) Delete(id string) (*session.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	return s, ok
}

// Remove unregisters s only while it is still the session registered under
// its id, and reports whether it was.
func (r *Registry) Remove(s *session.Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[s.ID()]; ok && cur == s {
		delete(r.sessions, s.ID())
		return true
	}
	return false
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll closes and removes every session.
func (r *Registry) CloseAll() int {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*session.Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	return len(sessions)
}

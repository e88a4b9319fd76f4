package client

import (
	"slices"
	"sync"
)

// Store holds the signed-in session on the client. It is written only from server responses
// and never persisted; the cookie jar is the only durable credential.
type Store struct {
	mu        sync.RWMutex
	session   *Session
	listeners []func(Session, bool)
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// Session returns the current session. ok is false when signed out.
func (s *Store) Session() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return Session{}, false
	}
	return *s.session, true
}

// Set replaces the session.
func (s *Store) Set(session Session) {
	s.mu.Lock()
	s.session = &session
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(session, true)
	}
}

// Clear signs the store out.
func (s *Store) Clear() {
	s.mu.Lock()
	was := s.session != nil
	s.session = nil
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()
	if !was {
		return
	}
	for _, fn := range listeners {
		fn(Session{}, false)
	}
}

// Subscribe registers fn to be called after every change.
func (s *Store) Subscribe(fn func(session Session, signedIn bool)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

package store

import (
	"context"
	"sync"
	"time"

	"github.com/efreitasn/depotbroker/internal/domain"
)

// SessionStore holds customer sessions issued by the login service.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.CustomerSession
}

// NewSessionStore creates an empty SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]domain.CustomerSession),
	}
}

// Put inserts or replaces a session.
func (s *SessionStore) Put(sess domain.CustomerSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.SessionID] = sess
}

// Get returns the session or domain.ErrSessionNotFound.
func (s *SessionStore) Get(_ context.Context, sessionID string) (*domain.CustomerSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return &sess, nil
}

// PurgeExpired drops sessions that expired before now.
func (s *SessionStore) PurgeExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

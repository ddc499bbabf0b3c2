package store

import (
	"sort"
	"sync"

	"github.com/calvinwijaya/blackjack-engine/internal/game"
)

// MemoryStore is an in-memory implementation of session storage
type MemoryStore struct {
	sessions map[string]*game.Session
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*game.Session),
	}
}

// SaveSession saves a session to the store
func (s *MemoryStore) SaveSession(sess *game.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sess.ID] = sess
	return nil
}

// GetSession retrieves a session by ID
func (s *MemoryStore) GetSession(id string) (*game.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, exists := s.sessions[id]
	if !exists {
		return nil, ErrNotFound
	}

	return sess, nil
}

// DeleteSession removes a session from the store
func (s *MemoryStore) DeleteSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[id]; !exists {
		return ErrNotFound
	}
	delete(s.sessions, id)

	return nil
}

// GetAllSessions returns all sessions in the store, oldest first
func (s *MemoryStore) GetAllSessions() ([]*game.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]*game.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})

	return sessions, nil
}

package session

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps sessions in a process-wide map. No expiry: a session is
// valid until Destroy or process restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]string)}
}

func (s *MemoryStore) Create(ctx context.Context, userID string) (string, error) {
	_ = ctx
	sessionID := uuid.NewString()
	s.mu.Lock()
	s.sessions[sessionID] = userID
	s.mu.Unlock()
	return sessionID, nil
}

func (s *MemoryStore) Resolve(ctx context.Context, sessionID string) (string, error) {
	_ = ctx
	if sessionID == "" {
		return "", ErrNoSession
	}
	s.mu.RLock()
	userID, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return "", ErrNoSession
	}
	return userID, nil
}

func (s *MemoryStore) Destroy(ctx context.Context, sessionID string) error {
	_ = ctx
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	return nil
}

package session

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
)

type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]Turn
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string][]Turn),
	}
}

func (s *MemoryStore) Create(_ context.Context) (string, error) {
	id := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = nil

	return id, nil
}

func (s *MemoryStore) Append(_ context.Context, sessionID string, turns ...Turn) error {
	if err := validateTurns(turns); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	history, ok := s.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.sessions[sessionID] = append(history, stamp(turns)...)

	return nil
}

func (s *MemoryStore) History(_ context.Context, sessionID string) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}

	return slices.Clone(history), nil
}

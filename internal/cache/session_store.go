package cache

import (
	"context"
	"sync"
)

// SessionStore is tab-scoped string key-value storage for session checkpoints
type SessionStore interface {
	Get(ctx context.Context, tabID, key string) (string, bool, error)
	Set(ctx context.Context, tabID, key, value string) error
	Delete(ctx context.Context, tabID, key string) error
	Clear(ctx context.Context, tabID string) error
}

type memorySessionStore struct {
	mu   sync.RWMutex
	tabs map[string]map[string]string
}

// NewMemorySessionStore keeps checkpoints in process memory
func NewMemorySessionStore() SessionStore {
	return &memorySessionStore{tabs: make(map[string]map[string]string)}
}

func (s *memorySessionStore) Get(ctx context.Context, tabID, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.tabs[tabID][key]
	return v, ok, nil
}

func (s *memorySessionStore) Set(ctx context.Context, tabID, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tabs[tabID] == nil {
		s.tabs[tabID] = make(map[string]string)
	}
	s.tabs[tabID][key] = value
	return nil
}

func (s *memorySessionStore) Delete(ctx context.Context, tabID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tabs[tabID], key)
	return nil
}

func (s *memorySessionStore) Clear(ctx context.Context, tabID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tabs, tabID)
	return nil
}

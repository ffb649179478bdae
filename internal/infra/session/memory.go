package session

import (
	"context"
	"sync"

	"github.com/vietddude/georetry/internal/core/domain"
)

// MemoryStore is an in-process session store.
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[domain.ContainerIdentity]map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[domain.ContainerIdentity]map[string]string)}
}

func (s *MemoryStore) Get(_ context.Context, id domain.ContainerIdentity, partitionKey string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens[id][partitionKey], nil
}

func (s *MemoryStore) Set(_ context.Context, id domain.ContainerIdentity, partitionKey, token string) error {
	if id.IsZero() || token == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	parts, ok := s.tokens[id]
	if !ok {
		parts = make(map[string]string)
		s.tokens[id] = parts
	}
	parts[partitionKey] = Merge(parts[partitionKey], token)
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, id domain.ContainerIdentity, partitionKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if partitionKey == "" {
		delete(s.tokens, id)
		return nil
	}
	if parts, ok := s.tokens[id]; ok {
		delete(parts, partitionKey)
		if len(parts) == 0 {
			delete(s.tokens, id)
		}
	}
	return nil
}

// Len returns the number of identities holding at least one token.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}

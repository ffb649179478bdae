package catalog

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/vietddude/georetry/internal/core/domain"
)

// MemorySource is an in-process collection registry.
type MemorySource struct {
	mu          sync.RWMutex
	collections map[string]domain.ContainerIdentity
}

func NewMemorySource() *MemorySource {
	return &MemorySource{collections: make(map[string]domain.ContainerIdentity)}
}

func (s *MemorySource) Lookup(_ context.Context, link string) (domain.Container, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rid, ok := s.collections[link]
	if !ok {
		return domain.Container{}, ErrCollectionNotFound
	}
	return domain.Container{Link: link, ResourceID: rid}, nil
}

// Put registers link under a fixed identity.
func (s *MemorySource) Put(link string, rid domain.ContainerIdentity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[link] = rid
}

// Recreate deletes link and creates it again under a new identity, which it
// returns.
func (s *MemorySource) Recreate(link string) domain.ContainerIdentity {
	rid := newResourceID()
	s.Put(link, rid)
	return rid
}

func (s *MemorySource) Delete(link string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, link)
}

func newResourceID() domain.ContainerIdentity {
	return domain.ContainerIdentity(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}

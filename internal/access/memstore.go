package access

import (
	"context"
	"sync"

	"server/internal/domain"
)

// MemoryStore is an in-process domain.GenerationStore for development and
// tests.
type MemoryStore struct {
	mu   sync.Mutex
	gens map[string]*domain.Generation
}

var _ domain.GenerationStore = (*MemoryStore)(nil)

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{gens: make(map[string]*domain.Generation)}
}

// Insert stores a new generation record.
func (s *MemoryStore) Insert(_ context.Context, g *domain.Generation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *g
	s.gens[g.ID] = &cp
	return nil
}

// Get returns a copy of the record, or domain.ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, id string) (*domain.Generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.gens[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *g
	return &cp, nil
}

// Transition applies a terminal state. The stored record must still be
// pending.
func (s *MemoryStore) Transition(_ context.Context, g *domain.Generation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.gens[g.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Terminal() {
		return domain.ErrAlreadyTerminal
	}
	cp := *g
	s.gens[g.ID] = &cp
	return nil
}

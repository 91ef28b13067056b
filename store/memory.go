package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps agents in process memory. It backs development and test
// setups where no database is configured.
type MemoryStore struct {
	mu     sync.RWMutex
	agents map[uuid.UUID]Agent
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{agents: make(map[uuid.UUID]Agent)}
}

func (s *MemoryStore) List(_ context.Context) ([]Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Agent, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[id]
	if !ok {
		return Agent{}, ErrNotFound
	}
	return a, nil
}

func (s *MemoryStore) Create(_ context.Context, a Agent) (Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	s.agents[a.ID] = a
	return a, nil
}

func (s *MemoryStore) Update(_ context.Context, a Agent) (Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.agents[a.ID]
	if !ok {
		return Agent{}, ErrNotFound
	}
	a.CreatedAt = prev.CreatedAt
	a.UpdatedAt = time.Now().UTC()
	s.agents[a.ID] = a
	return a, nil
}

func (s *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[id]; !ok {
		return ErrNotFound
	}
	delete(s.agents, id)
	return nil
}

func (s *MemoryStore) SetActive(_ context.Context, id uuid.UUID, active bool) (Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return Agent{}, ErrNotFound
	}
	a.Active = active
	a.UpdatedAt = time.Now().UTC()
	s.agents[id] = a
	return a, nil
}

func (s *MemoryStore) Close() error { return nil }

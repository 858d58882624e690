package profile

import (
	"context"
	"sync"

	"loankyc/internal/client/models"
	id "loankyc/pkg/domain"
	"loankyc/pkg/platform/sentinel"
)

// InMemory keeps client profiles in a map keyed by client id.
type InMemory struct {
	mu       sync.RWMutex
	profiles map[id.ClientID]*models.Profile
}

func NewInMemory() *InMemory {
	return &InMemory{profiles: make(map[id.ClientID]*models.Profile)}
}

// Save inserts or replaces the profile. CreatedAt of an existing row is kept.
func (s *InMemory) Save(_ context.Context, p *models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.profiles[p.ClientID]; ok {
		p.CreatedAt = existing.CreatedAt
	}
	s.profiles[p.ClientID] = p.Clone()
	return nil
}

func (s *InMemory) FindByClientID(_ context.Context, clientID id.ClientID) (*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[clientID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return p.Clone(), nil
}

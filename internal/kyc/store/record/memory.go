package record

import (
	"context"
	"slices"
	"sync"

	"loankyc/internal/kyc/models"
	id "loankyc/pkg/domain"
	"loankyc/pkg/platform/sentinel"
)

// InMemory keeps KYC records in a map. History lives in the history store;
// records held here never carry it.
type InMemory struct {
	mu      sync.RWMutex
	records map[id.ClientID]*models.ClientKycRecord
}

func NewInMemory() *InMemory {
	return &InMemory{records: make(map[id.ClientID]*models.ClientKycRecord)}
}

func (s *InMemory) Create(_ context.Context, rec *models.ClientKycRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.ClientID]; ok {
		return sentinel.ErrAlreadyUsed
	}
	s.records[rec.ClientID] = stripHistory(rec)
	return nil
}

func (s *InMemory) FindByClientID(_ context.Context, clientID id.ClientID) (*models.ClientKycRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[clientID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return rec.Clone(), nil
}

// Update replaces the stored record when its version still equals
// expectedVersion, then bumps rec.Version.
func (s *InMemory) Update(_ context.Context, rec *models.ClientKycRecord, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.records[rec.ClientID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Version != expectedVersion {
		return sentinel.ErrConflict
	}
	rec.Version = expectedVersion + 1
	s.records[rec.ClientID] = stripHistory(rec)
	return nil
}

// ListByStatus returns records in any of statuses, oldest update first.
func (s *InMemory) ListByStatus(_ context.Context, statuses []models.Status) ([]*models.ClientKycRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.ClientKycRecord, 0)
	for _, rec := range s.records {
		if slices.Contains(statuses, rec.Status) {
			out = append(out, rec.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *models.ClientKycRecord) int {
		return a.UpdatedAt.Compare(b.UpdatedAt)
	})
	return out, nil
}

func stripHistory(rec *models.ClientKycRecord) *models.ClientKycRecord {
	c := rec.Clone()
	c.History = nil
	return c
}

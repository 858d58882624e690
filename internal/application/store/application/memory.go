package application

import (
	"context"
	"slices"
	"sync"

	"loankyc/internal/application/models"
	id "loankyc/pkg/domain"
	"loankyc/pkg/platform/sentinel"
)

// InMemory keeps applications in a map. History is held by the history store.
type InMemory struct {
	mu   sync.RWMutex
	apps map[id.ApplicationID]*models.LoanApplication
}

func NewInMemory() *InMemory {
	return &InMemory{apps: make(map[id.ApplicationID]*models.LoanApplication)}
}

func (s *InMemory) Create(_ context.Context, app *models.LoanApplication) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apps[app.ID]; ok {
		return sentinel.ErrAlreadyUsed
	}
	s.apps[app.ID] = stripHistory(app)
	return nil
}

func (s *InMemory) FindByID(_ context.Context, appID id.ApplicationID) (*models.LoanApplication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.apps[appID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return app.Clone(), nil
}

// Update replaces the stored application when its version still equals
// expectedVersion, then bumps app.Version.
func (s *InMemory) Update(_ context.Context, app *models.LoanApplication, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.apps[app.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Version != expectedVersion {
		return sentinel.ErrConflict
	}
	app.Version = expectedVersion + 1
	s.apps[app.ID] = stripHistory(app)
	return nil
}

// ListByClient returns the client's applications, newest first.
func (s *InMemory) ListByClient(_ context.Context, clientID id.ClientID) ([]*models.LoanApplication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.LoanApplication, 0)
	for _, app := range s.apps {
		if app.ClientID == clientID {
			out = append(out, app.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *models.LoanApplication) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

// ListByStatus returns applications in any of statuses, oldest update first.
func (s *InMemory) ListByStatus(_ context.Context, statuses []models.Status) ([]*models.LoanApplication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.LoanApplication, 0)
	for _, app := range s.apps {
		if slices.Contains(statuses, app.Status) {
			out = append(out, app.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *models.LoanApplication) int {
		return a.UpdatedAt.Compare(b.UpdatedAt)
	})
	return out, nil
}

func stripHistory(app *models.LoanApplication) *models.LoanApplication {
	c := app.Clone()
	c.History = nil
	return c
}

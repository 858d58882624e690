package history

import (
	"context"
	"slices"
	"sync"

	"loankyc/internal/application/models"
	id "loankyc/pkg/domain"
	"loankyc/pkg/platform/sentinel"
)

// InMemory is an append-only ledger keyed by application.
type InMemory struct {
	mu     sync.RWMutex
	events map[id.ApplicationID][]models.HistoryEvent
}

func NewInMemory() *InMemory {
	return &InMemory{events: make(map[id.ApplicationID][]models.HistoryEvent)}
}

func (s *InMemory) Append(_ context.Context, ev models.HistoryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.events[ev.ApplicationID] {
		if existing.Sequence == ev.Sequence {
			return sentinel.ErrConflict
		}
	}
	s.events[ev.ApplicationID] = append(s.events[ev.ApplicationID], ev)
	return nil
}

// ListFor returns the application's events oldest first.
func (s *InMemory) ListFor(_ context.Context, appID id.ApplicationID) ([]models.HistoryEvent, error) {
	s.mu.RLock()
	out := slices.Clone(s.events[appID])
	s.mu.RUnlock()
	slices.SortStableFunc(out, func(a, b models.HistoryEvent) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return int(a.Sequence - b.Sequence)
	})
	if out == nil {
		out = []models.HistoryEvent{}
	}
	return out, nil
}

package history

import (
	"context"
	"iter"
	"slices"
	"sync"

	"loankyc/internal/kyc/models"
	id "loankyc/pkg/domain"
	"loankyc/pkg/platform/sentinel"
)

// InMemory is an append-only ledger keyed by client.
type InMemory struct {
	mu     sync.RWMutex
	events map[id.ClientID][]models.HistoryEvent
}

func NewInMemory() *InMemory {
	return &InMemory{events: make(map[id.ClientID][]models.HistoryEvent)}
}

// Append adds ev to its client's ledger. A repeated sequence number is a
// conflict: two writers built on the same record version.
func (s *InMemory) Append(_ context.Context, ev models.HistoryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.events[ev.ClientID] {
		if existing.Sequence == ev.Sequence {
			return sentinel.ErrConflict
		}
	}
	s.events[ev.ClientID] = append(s.events[ev.ClientID], ev)
	return nil
}

// ListFor yields the client's events in order. Each iteration takes a fresh
// snapshot, so the sequence can be ranged over more than once.
func (s *InMemory) ListFor(_ context.Context, clientID id.ClientID, order models.Order) iter.Seq2[models.HistoryEvent, error] {
	return func(yield func(models.HistoryEvent, error) bool) {
		s.mu.RLock()
		snapshot := slices.Clone(s.events[clientID])
		s.mu.RUnlock()

		slices.SortStableFunc(snapshot, func(a, b models.HistoryEvent) int {
			switch {
			case a.Before(b):
				return -1
			case b.Before(a):
				return 1
			}
			return 0
		})
		if order == models.Descending {
			slices.Reverse(snapshot)
		}
		for _, ev := range snapshot {
			if !yield(ev, nil) {
				return
			}
		}
	}
}

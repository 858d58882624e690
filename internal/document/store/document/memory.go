package document

import (
	"context"
	"slices"
	"sync"
	"time"

	"loankyc/internal/document/models"
	id "loankyc/pkg/domain"
	"loankyc/pkg/platform/sentinel"
)

// InMemory keeps documents in a map. Soft-deleted documents stay in the map
// but are invisible to every read.
type InMemory struct {
	mu   sync.RWMutex
	docs map[id.DocumentID]*models.ClientDocument
}

func NewInMemory() *InMemory {
	return &InMemory{docs: make(map[id.DocumentID]*models.ClientDocument)}
}

func (s *InMemory) Create(_ context.Context, doc *models.ClientDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[doc.ID]; ok {
		return sentinel.ErrAlreadyUsed
	}
	s.docs[doc.ID] = doc.Clone()
	return nil
}

func (s *InMemory) FindByID(_ context.Context, docID id.DocumentID) (*models.ClientDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[docID]
	if !ok || doc.IsDeleted {
		return nil, sentinel.ErrNotFound
	}
	return doc.Clone(), nil
}

// Update writes back an active document if it is still at expectedVersion.
func (s *InMemory) Update(_ context.Context, doc *models.ClientDocument, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.docs[doc.ID]
	if !ok || current.IsDeleted {
		return sentinel.ErrNotFound
	}
	if current.Version != expectedVersion {
		return sentinel.ErrConflict
	}
	doc.Version = expectedVersion + 1
	s.docs[doc.ID] = doc.Clone()
	return nil
}

// ListByClient returns active documents, oldest upload first.
func (s *InMemory) ListByClient(_ context.Context, clientID id.ClientID, filter models.Filter) ([]*models.ClientDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.ClientDocument, 0)
	for _, doc := range s.docs {
		if doc.ClientID == clientID && !doc.IsDeleted && filter.Matches(doc) {
			out = append(out, doc.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *models.ClientDocument) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

func (s *InMemory) CountActive(_ context.Context, clientID id.ClientID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, doc := range s.docs {
		if doc.ClientID == clientID && !doc.IsDeleted {
			n++
		}
	}
	return n, nil
}

// CountUploadedSince counts active documents created strictly after since.
func (s *InMemory) CountUploadedSince(_ context.Context, clientID id.ClientID, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, doc := range s.docs {
		if doc.ClientID == clientID && !doc.IsDeleted && doc.CreatedAt.After(since) {
			n++
		}
	}
	return n, nil
}

package application

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"loankyc/internal/application/models"
	id "loankyc/pkg/domain"
	"loankyc/pkg/platform/sentinel"
)

type ApplicationStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func TestApplicationStoreSuite(t *testing.T) {
	suite.Run(t, new(ApplicationStoreSuite))
}

func (s *ApplicationStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func (s *ApplicationStoreSuite) newApp(clientID id.ClientID, at time.Time) *models.LoanApplication {
	app, err := models.NewApplication(clientID, models.Terms{
		Amount:     decimal.NewFromInt(5000),
		TermMonths: 6,
		Purpose:    "school fees",
	}, at)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(s.ctx, app))
	return app
}

func (s *ApplicationStoreSuite) TestOptimisticUpdate() {
	app := s.newApp(id.ClientID(uuid.New()), time.Now())

	s.Run("bumps version", func() {
		app.Purpose = "school fees and uniforms"
		s.Require().NoError(s.store.Update(s.ctx, app, 1))
		s.Equal(int64(2), app.Version)
	})

	s.Run("stale version conflicts", func() {
		stale := app.Clone()
		s.ErrorIs(s.store.Update(s.ctx, stale, 1), sentinel.ErrConflict)
	})

	s.Run("unknown application", func() {
		ghost := app.Clone()
		ghost.ID = id.ApplicationID(uuid.New())
		s.ErrorIs(s.store.Update(s.ctx, ghost, 1), sentinel.ErrNotFound)
	})
}

func (s *ApplicationStoreSuite) TestListing() {
	clientID := id.ClientID(uuid.New())
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	older := s.newApp(clientID, base)
	newer := s.newApp(clientID, base.Add(time.Hour))
	s.newApp(id.ClientID(uuid.New()), base)

	s.Run("by client newest first", func() {
		apps, err := s.store.ListByClient(s.ctx, clientID)
		s.Require().NoError(err)
		s.Require().Len(apps, 2)
		s.Equal(newer.ID, apps[0].ID)
		s.Equal(older.ID, apps[1].ID)
	})

	s.Run("by status", func() {
		apps, err := s.store.ListByStatus(s.ctx, []models.Status{models.StatusSubmitted})
		s.Require().NoError(err)
		s.Empty(apps)

		apps, err = s.store.ListByStatus(s.ctx, []models.Status{models.StatusDraft})
		s.Require().NoError(err)
		s.Len(apps, 3)
	})
}

package service

import (
	"context"
	"errors"
	"log/slog"

	"loankyc/internal/client/models"
	id "loankyc/pkg/domain"
	dErrors "loankyc/pkg/domain-errors"
	"loankyc/pkg/platform/sentinel"
	"loankyc/pkg/requestcontext"
)

type ProfileStore interface {
	Save(ctx context.Context, p *models.Profile) error
	FindByClientID(ctx context.Context, clientID id.ClientID) (*models.Profile, error)
}

// Service manages the personal information used by the KYC checklist.
type Service struct {
	profiles ProfileStore
	logger   *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(profiles ProfileStore, opts ...Option) *Service {
	s := &Service{profiles: profiles}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upsert replaces the client's profile. Partial profiles are accepted;
// readiness reports what is still missing.
func (s *Service) Upsert(ctx context.Context, p *models.Profile) (*models.Profile, error) {
	now := requestcontext.Now(ctx)
	p.Normalize()
	if err := p.Validate(now); err != nil {
		return nil, err
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	if err := s.profiles.Save(ctx, p); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save client profile")
	}
	s.logAudit(ctx, "client_profile_saved",
		"client_id", p.ClientID.String(),
		"user_id", requestcontext.UserID(ctx).String(),
	)
	return p, nil
}

func (s *Service) Get(ctx context.Context, clientID id.ClientID) (*models.Profile, error) {
	p, err := s.profiles.FindByClientID(ctx, clientID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "client profile not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load client profile")
	}
	return p, nil
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	if s.logger != nil {
		s.logger.InfoContext(ctx, event, args...)
	}
}

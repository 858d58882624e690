package service

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	clientmodels "loankyc/internal/client/models"
	"loankyc/internal/kyc/models"
	id "loankyc/pkg/domain"
	dErrors "loankyc/pkg/domain-errors"
	"loankyc/pkg/platform/sentinel"
)

// ReadinessMode controls whether Submit enforces the checklist.
type ReadinessMode string

const (
	// ReadinessAdvisory lets Submit proceed and only reports gaps.
	ReadinessAdvisory ReadinessMode = "advisory"
	// ReadinessEnforced rejects Submit until the checklist is complete.
	ReadinessEnforced ReadinessMode = "enforced"
)

// IsReadyForSubmission evaluates the submission checklist. It reads the
// profile and counts active documents concurrently and never mutates state.
func (s *Service) IsReadyForSubmission(ctx context.Context, clientID id.ClientID) (models.Readiness, error) {
	in, err := s.gatherReadiness(ctx, clientID)
	if err != nil {
		return models.Readiness{}, err
	}
	r := models.EvaluateReadiness(in)
	if s.metrics != nil {
		s.metrics.IncrementReadiness(r.Ready)
	}
	return r, nil
}

func (s *Service) gatherReadiness(ctx context.Context, clientID id.ClientID) (models.ReadinessInput, error) {
	var (
		profile *clientmodels.Profile
		active  int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if s.profiles == nil {
			return nil
		}
		p, err := s.profiles.FindByClientID(gctx, clientID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load client profile")
		}
		profile = p
		return nil
	})
	g.Go(func() error {
		if s.documents == nil {
			return nil
		}
		n, err := s.documents.CountActive(gctx, clientID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to count documents")
		}
		active = n
		return nil
	})
	if err := g.Wait(); err != nil {
		return models.ReadinessInput{}, err
	}

	in := models.ReadinessInput{ActiveDocuments: active}
	if profile != nil {
		in.IdentityNumber = profile.IdentityNumber
		in.DateOfBirth = profile.DateOfBirth
		in.PrimaryPhone = profile.PrimaryPhone
		in.Address = profile.Address
		in.NextOfKinCount = profile.NextOfKinCount()
		in.RefereeCount = profile.RefereeCount()
	}
	return in, nil
}

package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"loankyc/internal/application/metrics"
	"loankyc/internal/application/models"
	"loankyc/internal/authz"
	kycmodels "loankyc/internal/kyc/models"
	"loankyc/internal/notification"
	"loankyc/internal/workflow"
	id "loankyc/pkg/domain"
	dErrors "loankyc/pkg/domain-errors"
	"loankyc/pkg/platform/sentinel"
	"loankyc/pkg/requestcontext"
)

type ApplicationStore interface {
	Create(ctx context.Context, app *models.LoanApplication) error
	FindByID(ctx context.Context, appID id.ApplicationID) (*models.LoanApplication, error)
	Update(ctx context.Context, app *models.LoanApplication, expectedVersion int64) error
	ListByClient(ctx context.Context, clientID id.ClientID) ([]*models.LoanApplication, error)
	ListByStatus(ctx context.Context, statuses []models.Status) ([]*models.LoanApplication, error)
}

type HistoryStore interface {
	Append(ctx context.Context, ev models.HistoryEvent) error
	ListFor(ctx context.Context, appID id.ApplicationID) ([]models.HistoryEvent, error)
}

// KycStatusReader reports a client's KYC status.
type KycStatusReader interface {
	Status(ctx context.Context, clientID id.ClientID) (kycmodels.Status, error)
}

// reviewQueueStatuses are the statuses a reviewer acts on.
var reviewQueueStatuses = []models.Status{models.StatusSubmitted, models.StatusUnderReview}

// Service runs loan applications through the shared submit/review/return
// workflow.
type Service struct {
	apps     ApplicationStore
	history  HistoryStore
	tx       ApplicationStoreTx
	kyc      KycStatusReader
	notifier *notification.Sender
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithNotifier(d *notification.Sender) Option {
	return func(s *Service) {
		s.notifier = d
	}
}

// WithVerifiedKycRequired blocks Submit and Resubmit until the client's KYC
// record is VERIFIED.
func WithVerifiedKycRequired(kyc KycStatusReader) Option {
	return func(s *Service) {
		s.kyc = kyc
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

func New(apps ApplicationStore, history HistoryStore, tx ApplicationStoreTx, opts ...Option) *Service {
	s := &Service{apps: apps, history: history, tx: tx}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("loankyc/application")
	}
	return s
}

// Create opens a DRAFT application for clientID.
func (s *Service) Create(ctx context.Context, clientID id.ClientID, terms models.Terms) (*models.LoanApplication, error) {
	app, err := models.NewApplication(clientID, terms, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.apps.Create(ctx, app); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "application already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create application")
	}
	if s.metrics != nil {
		amount, _ := app.Amount.Float64()
		s.metrics.ObserveCreated(amount)
	}
	s.logAudit(ctx, "application_created",
		"application_id", app.ID.String(),
		"client_id", clientID.String(),
		"amount", app.Amount.String(),
	)
	app.History = []models.HistoryEvent{}
	return app, nil
}

func (s *Service) Get(ctx context.Context, appID id.ApplicationID) (*models.LoanApplication, error) {
	app, err := s.apps.FindByID(ctx, appID)
	if err != nil {
		return nil, s.translate(err)
	}
	history, err := s.history.ListFor(ctx, appID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load application history")
	}
	app.History = history
	return app, nil
}

func (s *Service) ListForClient(ctx context.Context, clientID id.ClientID) ([]*models.LoanApplication, error) {
	apps, err := s.apps.ListByClient(ctx, clientID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list applications")
	}
	return apps, nil
}

func (s *Service) ReviewQueue(ctx context.Context, caps authz.Capabilities) ([]*models.LoanApplication, error) {
	if err := caps.RequireReview(); err != nil {
		return nil, err
	}
	apps, err := s.apps.ListByStatus(ctx, reviewQueueStatuses)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list applications")
	}
	return apps, nil
}

// UpdateTerms edits a DRAFT or RETURNED application. No history event is
// written; only status changes are ledgered.
func (s *Service) UpdateTerms(ctx context.Context, appID id.ApplicationID, terms models.Terms) (*models.LoanApplication, error) {
	var updated *models.LoanApplication
	err := s.tx.RunInTx(ctx, appID, func(ctx context.Context, st TxStores) error {
		app, err := st.Applications.FindByID(ctx, appID)
		if err != nil {
			return err
		}
		expected := app.Version
		if err := app.UpdateTerms(terms, requestcontext.Now(ctx)); err != nil {
			return err
		}
		if err := st.Applications.Update(ctx, app, expected); err != nil {
			return err
		}
		updated = app
		return nil
	})
	if err != nil {
		return nil, s.translate(err)
	}
	s.logAudit(ctx, "application_terms_updated", "application_id", appID.String())
	return s.withHistory(ctx, updated), nil
}

func (s *Service) Submit(ctx context.Context, appID id.ApplicationID, notes string) (*models.LoanApplication, error) {
	return s.transition(ctx, workflow.ActionSubmit, appID, func(ctx context.Context, app *models.LoanApplication, actor id.UserID, now time.Time) (models.HistoryEvent, error) {
		if err := app.Can(workflow.ActionSubmit); err != nil {
			return models.HistoryEvent{}, err
		}
		if err := s.requireVerifiedKyc(ctx, app.ClientID); err != nil {
			return models.HistoryEvent{}, err
		}
		return app.Submit(actor, notes, now)
	})
}

func (s *Service) StartReview(ctx context.Context, caps authz.Capabilities, appID id.ApplicationID) (*models.LoanApplication, error) {
	if err := caps.RequireReview(); err != nil {
		return nil, err
	}
	return s.transition(ctx, workflow.ActionStartReview, appID, func(_ context.Context, app *models.LoanApplication, actor id.UserID, now time.Time) (models.HistoryEvent, error) {
		return app.StartReview(actor, now)
	})
}

func (s *Service) Approve(ctx context.Context, caps authz.Capabilities, appID id.ApplicationID, notes string) (*models.LoanApplication, error) {
	if err := caps.RequireReview(); err != nil {
		return nil, err
	}
	return s.transition(ctx, workflow.ActionApprove, appID, func(_ context.Context, app *models.LoanApplication, actor id.UserID, now time.Time) (models.HistoryEvent, error) {
		return app.Approve(actor, notes, now)
	})
}

func (s *Service) Reject(ctx context.Context, caps authz.Capabilities, appID id.ApplicationID, reason, notes string) (*models.LoanApplication, error) {
	if err := caps.RequireReview(); err != nil {
		return nil, err
	}
	reason, err := workflow.RequireReason(reason)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, workflow.ActionReject, appID, func(_ context.Context, app *models.LoanApplication, actor id.UserID, now time.Time) (models.HistoryEvent, error) {
		return app.Reject(actor, reason, notes, now)
	})
}

func (s *Service) ReturnToClient(ctx context.Context, caps authz.Capabilities, appID id.ApplicationID, reason string, items []workflow.ReturnedItem, notes string) (*models.LoanApplication, error) {
	if err := caps.RequireReview(); err != nil {
		return nil, err
	}
	reason, items, err := workflow.PrepareReturn(reason, items)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, workflow.ActionReturn, appID, func(_ context.Context, app *models.LoanApplication, actor id.UserID, now time.Time) (models.HistoryEvent, error) {
		return app.ReturnToClient(actor, reason, items, notes, now)
	})
}

func (s *Service) Resubmit(ctx context.Context, appID id.ApplicationID) (*models.LoanApplication, error) {
	return s.transition(ctx, workflow.ActionResubmit, appID, func(ctx context.Context, app *models.LoanApplication, actor id.UserID, now time.Time) (models.HistoryEvent, error) {
		if err := app.Can(workflow.ActionResubmit); err != nil {
			return models.HistoryEvent{}, err
		}
		if err := s.requireVerifiedKyc(ctx, app.ClientID); err != nil {
			return models.HistoryEvent{}, err
		}
		return app.Resubmit(actor, now)
	})
}

func (s *Service) requireVerifiedKyc(ctx context.Context, clientID id.ClientID) error {
	if s.kyc == nil {
		return nil
	}
	st, err := s.kyc.Status(ctx, clientID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return dErrors.New(dErrors.CodeValidation, "client has no kyc record")
		}
		return err
	}
	if st != kycmodels.StatusVerified {
		return dErrors.New(dErrors.CodeValidation, "client kyc must be VERIFIED, is "+st.String())
	}
	return nil
}

type applyFunc func(ctx context.Context, app *models.LoanApplication, actor id.UserID, now time.Time) (models.HistoryEvent, error)

func (s *Service) transition(ctx context.Context, action workflow.Action, appID id.ApplicationID, apply applyFunc) (*models.LoanApplication, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "application."+action.String(), trace.WithAttributes(
		attribute.String("application.id", appID.String()),
		attribute.String("application.action", action.String()),
	))
	defer span.End()

	actor := requestcontext.UserID(ctx)
	if actor.IsNil() {
		err := dErrors.New(dErrors.CodeUnauthorized, "authenticated actor required")
		s.finish(span, action, start, err)
		return nil, err
	}
	now := requestcontext.Now(ctx)

	var (
		updated *models.LoanApplication
		event   models.HistoryEvent
	)
	err := s.tx.RunInTx(ctx, appID, func(ctx context.Context, st TxStores) error {
		app, err := st.Applications.FindByID(ctx, appID)
		if err != nil {
			return err
		}
		expected := app.Version
		ev, err := apply(ctx, app, actor, now)
		if err != nil {
			return err
		}
		if err := app.Validate(); err != nil {
			return err
		}
		if err := st.Applications.Update(ctx, app, expected); err != nil {
			return err
		}
		if err := st.History.Append(ctx, ev); err != nil {
			return err
		}
		updated, event = app, ev
		return nil
	})
	if err != nil {
		err = s.translate(err)
		s.finish(span, action, start, err)
		return nil, err
	}
	s.finish(span, action, start, nil)

	s.notify(ctx, event)
	s.logAudit(ctx, "application_"+action.String(),
		"application_id", appID.String(),
		"client_id", updated.ClientID.String(),
		"user_id", actor.String(),
		"from_status", string(event.FromStatus),
		"to_status", string(event.ToStatus),
	)
	return s.withHistory(ctx, updated), nil
}

func (s *Service) withHistory(ctx context.Context, app *models.LoanApplication) *models.LoanApplication {
	history, err := s.history.ListFor(ctx, app.ID)
	if err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "history reload failed", "application_id", app.ID.String(), "error", err)
		}
		history = []models.HistoryEvent{}
	}
	app.History = history
	return app
}

func (s *Service) translate(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "application not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "application changed concurrently; reload and retry")
	case dErrors.Coded(err):
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "application transition failed")
}

func (s *Service) finish(span trace.Span, action workflow.Action, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(dErrors.CodeOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	if s.metrics != nil {
		s.metrics.ObserveTransition(action.String(), outcome, start)
	}
}

func (s *Service) notify(ctx context.Context, ev models.HistoryEvent) {
	if s.notifier == nil {
		return
	}
	s.notifier.Send(ctx, notification.Event{
		ID:          uuid.New(),
		Subject:     notification.SubjectApplication,
		SubjectID:   ev.ApplicationID.String(),
		ClientID:    ev.ClientID.String(),
		Action:      ev.Action.String(),
		FromStatus:  string(ev.FromStatus),
		ToStatus:    string(ev.ToStatus),
		Reason:      ev.Reason,
		PerformedBy: ev.PerformedBy.String(),
		OccurredAt:  ev.CreatedAt,
		RequestID:   requestcontext.RequestID(ctx),
	}, func(ctx context.Context, err error) {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "notification dispatch failed",
				"application_id", ev.ApplicationID.String(),
				"error", err,
			)
		}
	})
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

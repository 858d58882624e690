package service

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"loankyc/internal/authz"
	clientmodels "loankyc/internal/client/models"
	"loankyc/internal/kyc/metrics"
	"loankyc/internal/kyc/models"
	"loankyc/internal/notification"
	"loankyc/internal/workflow"
	id "loankyc/pkg/domain"
	dErrors "loankyc/pkg/domain-errors"
	"loankyc/pkg/platform/sentinel"
	"loankyc/pkg/requestcontext"
)

type RecordStore interface {
	Create(ctx context.Context, rec *models.ClientKycRecord) error
	FindByClientID(ctx context.Context, clientID id.ClientID) (*models.ClientKycRecord, error)
	Update(ctx context.Context, rec *models.ClientKycRecord, expectedVersion int64) error
	ListByStatus(ctx context.Context, statuses []models.Status) ([]*models.ClientKycRecord, error)
}

type HistoryStore interface {
	Append(ctx context.Context, ev models.HistoryEvent) error
	ListFor(ctx context.Context, clientID id.ClientID, order models.Order) iter.Seq2[models.HistoryEvent, error]
}

// StatusCache is an optional read-through cache for Status. Set must keep
// whichever entry has the higher record version.
type StatusCache interface {
	Get(ctx context.Context, clientID id.ClientID) (models.Status, error)
	Set(ctx context.Context, clientID id.ClientID, status models.Status, version int64) error
}

type ProfileReader interface {
	FindByClientID(ctx context.Context, clientID id.ClientID) (*clientmodels.Profile, error)
}

type DocumentCounter interface {
	CountActive(ctx context.Context, clientID id.ClientID) (int, error)
	CountUploadedSince(ctx context.Context, clientID id.ClientID, since time.Time) (int, error)
}

// Service is the KYC transition engine. It holds no per-client state; every
// transition runs as one KycStoreTx unit.
type Service struct {
	records   RecordStore
	history   HistoryStore
	tx        KycStoreTx
	cache     StatusCache
	profiles  ProfileReader
	documents DocumentCounter
	notifier  *notification.Sender
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer

	readinessMode          ReadinessMode
	resubmitRequiresUpload bool
}

type Option func(s *Service)

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

func WithStatusCache(c StatusCache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

func WithNotifier(d *notification.Sender) Option {
	return func(s *Service) {
		s.notifier = d
	}
}

// WithReadinessSources supplies the profile and document data the
// submission checklist reads.
func WithReadinessSources(profiles ProfileReader, documents DocumentCounter) Option {
	return func(s *Service) {
		s.profiles = profiles
		s.documents = documents
	}
}

func WithSubmitReadiness(mode ReadinessMode) Option {
	return func(s *Service) {
		if mode == ReadinessEnforced {
			s.readinessMode = ReadinessEnforced
		}
	}
}

// WithResubmitRequiresUpload makes Resubmit wait for at least one document
// uploaded after the record was returned.
func WithResubmitRequiresUpload(required bool) Option {
	return func(s *Service) {
		s.resubmitRequiresUpload = required
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// New constructs a Service. tx must write through records and history.
func New(records RecordStore, history HistoryStore, tx KycStoreTx, opts ...Option) *Service {
	s := &Service{
		records:       records,
		history:       history,
		tx:            tx,
		readinessMode: ReadinessAdvisory,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("loankyc/kyc")
	}
	return s
}

// Register opens an UNVERIFIED record for a new client.
func (s *Service) Register(ctx context.Context, clientID id.ClientID) (*models.ClientKycRecord, error) {
	rec, err := models.NewRecord(clientID, requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, err.Error())
	}
	if err := s.records.Create(ctx, rec); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "kyc record already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create kyc record")
	}
	s.refreshCache(ctx, rec)
	s.logAudit(ctx, "kyc_registered", "client_id", clientID.String())
	return rec, nil
}

// Get returns the record with its full history, oldest first.
func (s *Service) Get(ctx context.Context, clientID id.ClientID) (*models.ClientKycRecord, error) {
	rec, err := s.records.FindByClientID(ctx, clientID)
	if err != nil {
		return nil, s.translate(err)
	}
	history, err := s.History(ctx, clientID, models.Ascending)
	if err != nil {
		return nil, err
	}
	rec.History = history
	return rec, nil
}

// Status returns the current status, consulting the cache first.
func (s *Service) Status(ctx context.Context, clientID id.ClientID) (models.Status, error) {
	if s.cache != nil {
		st, err := s.cache.Get(ctx, clientID)
		switch {
		case err == nil:
			s.cacheLookup("hit")
			return st, nil
		case errors.Is(err, sentinel.ErrNotFound):
			s.cacheLookup("miss")
		default:
			s.cacheLookup("error")
			s.logWarn(ctx, "status cache read failed", "client_id", clientID.String(), "error", err)
		}
	}
	rec, err := s.records.FindByClientID(ctx, clientID)
	if err != nil {
		return "", s.translate(err)
	}
	s.refreshCache(ctx, rec)
	return rec.Status, nil
}

// History collects the client's ledger in the requested order.
func (s *Service) History(ctx context.Context, clientID id.ClientID, order models.Order) ([]models.HistoryEvent, error) {
	out := make([]models.HistoryEvent, 0)
	for ev, err := range s.history.ListFor(ctx, clientID, order) {
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load kyc history")
		}
		out = append(out, ev)
	}
	return out, nil
}

// ReviewQueue lists records awaiting a reviewer, oldest first.
func (s *Service) ReviewQueue(ctx context.Context, caps authz.Capabilities) ([]*models.ClientKycRecord, error) {
	if err := caps.RequireReview(); err != nil {
		return nil, err
	}
	recs, err := s.records.ListByStatus(ctx, []models.Status{models.StatusPendingReview})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list kyc records")
	}
	return recs, nil
}

// Submit moves UNVERIFIED to PENDING_REVIEW. With enforced readiness an
// incomplete checklist is a validation error.
func (s *Service) Submit(ctx context.Context, clientID id.ClientID, notes string) (*models.ClientKycRecord, error) {
	return s.transition(ctx, workflow.ActionSubmit, clientID, func(_ context.Context, rec *models.ClientKycRecord, actor id.UserID, now time.Time) (models.HistoryEvent, error) {
		if err := rec.Can(workflow.ActionSubmit); err != nil {
			return models.HistoryEvent{}, err
		}
		// Readiness reads profile and document stores outside the record
		// transaction.
		if err := s.requireReady(ctx, clientID); err != nil {
			return models.HistoryEvent{}, err
		}
		return rec.Submit(actor, notes, now)
	})
}

func (s *Service) requireReady(ctx context.Context, clientID id.ClientID) error {
	if s.readinessMode != ReadinessEnforced {
		return nil
	}
	r, err := s.IsReadyForSubmission(ctx, clientID)
	if err != nil {
		return err
	}
	if !r.Ready {
		return dErrors.New(dErrors.CodeValidation, "client is not ready for submission: missing "+joinItems(r.Missing))
	}
	return nil
}

func (s *Service) Approve(ctx context.Context, caps authz.Capabilities, clientID id.ClientID, notes string) (*models.ClientKycRecord, error) {
	if err := caps.RequireReview(); err != nil {
		return nil, err
	}
	return s.transition(ctx, workflow.ActionApprove, clientID, func(_ context.Context, rec *models.ClientKycRecord, actor id.UserID, now time.Time) (models.HistoryEvent, error) {
		return rec.Approve(actor, notes, now)
	})
}

func (s *Service) Reject(ctx context.Context, caps authz.Capabilities, clientID id.ClientID, reason, notes string) (*models.ClientKycRecord, error) {
	if err := caps.RequireReview(); err != nil {
		return nil, err
	}
	reason, err := workflow.RequireReason(reason)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, workflow.ActionReject, clientID, func(_ context.Context, rec *models.ClientKycRecord, actor id.UserID, now time.Time) (models.HistoryEvent, error) {
		return rec.Reject(actor, reason, notes, now)
	})
}

func (s *Service) ReturnToClient(ctx context.Context, caps authz.Capabilities, clientID id.ClientID, reason string, items []workflow.ReturnedItem, notes string) (*models.ClientKycRecord, error) {
	if err := caps.RequireReview(); err != nil {
		return nil, err
	}
	reason, items, err := workflow.PrepareReturn(reason, items)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, workflow.ActionReturn, clientID, func(_ context.Context, rec *models.ClientKycRecord, actor id.UserID, now time.Time) (models.HistoryEvent, error) {
		return rec.ReturnToClient(actor, reason, items, notes, now)
	})
}

// Resubmit moves RETURNED back to PENDING_REVIEW, optionally requiring a
// fresh upload since the return.
func (s *Service) Resubmit(ctx context.Context, clientID id.ClientID) (*models.ClientKycRecord, error) {
	return s.transition(ctx, workflow.ActionResubmit, clientID, func(ctx context.Context, rec *models.ClientKycRecord, actor id.UserID, now time.Time) (models.HistoryEvent, error) {
		if err := rec.Can(workflow.ActionResubmit); err != nil {
			return models.HistoryEvent{}, err
		}
		if s.resubmitRequiresUpload && s.documents != nil && rec.ReturnedAt != nil {
			n, err := s.documents.CountUploadedSince(ctx, clientID, *rec.ReturnedAt)
			if err != nil {
				return models.HistoryEvent{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count documents")
			}
			if n == 0 {
				return models.HistoryEvent{}, dErrors.New(dErrors.CodeValidation, "upload at least one document before resubmitting")
			}
		}
		return rec.Resubmit(actor, now)
	})
}

func (s *Service) UpdateRiskRating(ctx context.Context, caps authz.Capabilities, clientID id.ClientID, rating models.RiskRating, notes string) (*models.ClientKycRecord, error) {
	if err := caps.RequireReview(); err != nil {
		return nil, err
	}
	if !rating.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "risk rating must be one of LOW, MEDIUM, HIGH")
	}
	return s.transition(ctx, workflow.ActionUpdateRiskRating, clientID, func(_ context.Context, rec *models.ClientKycRecord, actor id.UserID, now time.Time) (models.HistoryEvent, error) {
		return rec.UpdateRiskRating(actor, rating, notes, now)
	})
}

type applyFunc func(ctx context.Context, rec *models.ClientKycRecord, actor id.UserID, now time.Time) (models.HistoryEvent, error)

// transition loads, guards, applies and persists one change inside a single
// transaction, then runs the post-commit side effects. Side effects never
// fail the call.
func (s *Service) transition(ctx context.Context, action workflow.Action, clientID id.ClientID, apply applyFunc) (*models.ClientKycRecord, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "kyc."+action.String(), trace.WithAttributes(
		attribute.String("kyc.client_id", clientID.String()),
		attribute.String("kyc.action", action.String()),
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
		updated *models.ClientKycRecord
		event   models.HistoryEvent
	)
	err := s.tx.RunInTx(ctx, clientID, func(ctx context.Context, st TxStores) error {
		rec, err := st.Records.FindByClientID(ctx, clientID)
		if err != nil {
			return err
		}
		expected := rec.Version
		ev, err := apply(ctx, rec, actor, now)
		if err != nil {
			return err
		}
		if err := rec.Validate(); err != nil {
			return err
		}
		if err := st.Records.Update(ctx, rec, expected); err != nil {
			return err
		}
		if err := st.History.Append(ctx, ev); err != nil {
			return err
		}
		updated, event = rec, ev
		return nil
	})
	if err != nil {
		err = s.translate(err)
		s.finish(span, action, start, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("kyc.to_status", string(event.ToStatus)))
	s.finish(span, action, start, nil)

	s.refreshCache(ctx, updated)
	s.notify(ctx, event)
	s.logAudit(ctx, "kyc_"+action.String(),
		"client_id", clientID.String(),
		"user_id", actor.String(),
		"from_status", string(event.FromStatus),
		"to_status", string(event.ToStatus),
	)

	history, err := s.History(ctx, clientID, models.Ascending)
	if err != nil {
		s.logWarn(ctx, "history reload failed", "client_id", clientID.String(), "error", err)
		history = updated.History
	}
	updated.History = history
	return updated, nil
}

// translate maps store facts to coded errors. Already-coded errors pass
// through unchanged.
func (s *Service) translate(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "kyc record not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "kyc record changed concurrently; reload and retry")
	case dErrors.Coded(err):
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "kyc transition failed")
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

func (s *Service) refreshCache(ctx context.Context, rec *models.ClientKycRecord) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, rec.ClientID, rec.Status, rec.Version); err != nil {
		s.logWarn(ctx, "status cache write failed", "client_id", rec.ClientID.String(), "error", err)
	}
}

func (s *Service) notify(ctx context.Context, ev models.HistoryEvent) {
	if s.notifier == nil {
		return
	}
	s.notifier.Send(ctx, notification.Event{
		ID:          uuid.New(),
		Subject:     notification.SubjectKyc,
		SubjectID:   ev.ClientID.String(),
		ClientID:    ev.ClientID.String(),
		Action:      ev.Action.String(),
		FromStatus:  string(ev.FromStatus),
		ToStatus:    string(ev.ToStatus),
		Reason:      ev.Reason,
		PerformedBy: ev.PerformedBy.String(),
		OccurredAt:  ev.CreatedAt,
		RequestID:   requestcontext.RequestID(ctx),
	}, func(ctx context.Context, err error) {
		if s.metrics != nil {
			s.metrics.NotifyFailures.Inc()
		}
		s.logWarn(ctx, "notification dispatch failed", "client_id", ev.ClientID.String(), "error", err)
	})
}

func (s *Service) cacheLookup(result string) {
	if s.metrics != nil {
		s.metrics.IncrementCacheLookup(result)
	}
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

func (s *Service) logWarn(ctx context.Context, msg string, attributes ...any) {
	if s.logger != nil {
		s.logger.WarnContext(ctx, msg, attributes...)
	}
}

func joinItems(items []models.ChecklistItem) string {
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = string(item)
	}
	return strings.Join(parts, ", ")
}

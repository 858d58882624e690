package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	appmodels "loankyc/internal/application/models"
	"loankyc/internal/authz"
	"loankyc/internal/document/metrics"
	"loankyc/internal/document/models"
	"loankyc/internal/document/storage"
	kycmodels "loankyc/internal/kyc/models"
	"loankyc/internal/workflow"
	id "loankyc/pkg/domain"
	dErrors "loankyc/pkg/domain-errors"
	"loankyc/pkg/platform/sentinel"
	"loankyc/pkg/requestcontext"
)

type DocumentStore interface {
	Create(ctx context.Context, doc *models.ClientDocument) error
	FindByID(ctx context.Context, docID id.DocumentID) (*models.ClientDocument, error)
	Update(ctx context.Context, doc *models.ClientDocument, expectedVersion int64) error
	ListByClient(ctx context.Context, clientID id.ClientID, filter models.Filter) ([]*models.ClientDocument, error)
	CountActive(ctx context.Context, clientID id.ClientID) (int, error)
	CountUploadedSince(ctx context.Context, clientID id.ClientID, since time.Time) (int, error)
}

// KycRecordReader decides whether a client's KYC file accepts uploads.
type KycRecordReader interface {
	FindByClientID(ctx context.Context, clientID id.ClientID) (*kycmodels.ClientKycRecord, error)
}

// ApplicationReader decides whether a loan application accepts uploads.
type ApplicationReader interface {
	FindByID(ctx context.Context, appID id.ApplicationID) (*appmodels.LoanApplication, error)
}

// Upload is one incoming file. Content is read exactly once.
type Upload struct {
	ClientID      id.ClientID
	ApplicationID *id.ApplicationID
	Type          id.DocumentType
	FileName      string
	DeclaredType  string
	Content       io.Reader
}

// Service is the document registry.
type Service struct {
	documents    DocumentStore
	files        storage.FileStorage
	records      KycRecordReader
	applications ApplicationReader
	logger       *slog.Logger
	metrics      *metrics.Metrics
	tracer       trace.Tracer
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

// WithApplications enables uploads against loan applications.
func WithApplications(apps ApplicationReader) Option {
	return func(s *Service) {
		s.applications = apps
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

func New(documents DocumentStore, files storage.FileStorage, records KycRecordReader, opts ...Option) *Service {
	s := &Service{documents: documents, files: files, records: records}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("loankyc/document")
	}
	return s
}

// Add stores the content and registers the document. KYC documents are
// accepted while the record is UNVERIFIED or RETURNED; application documents
// while the application is DRAFT or RETURNED.
func (s *Service) Add(ctx context.Context, in Upload) (doc *models.ClientDocument, err error) {
	ctx, span := s.tracer.Start(ctx, "document.add", trace.WithAttributes(
		attribute.String("document.client_id", in.ClientID.String()),
		attribute.String("document.type", string(in.Type)),
	))
	defer span.End()
	defer func() { s.finish(span, "add", err) }()

	actor := requestcontext.UserID(ctx)
	if actor.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authenticated actor required")
	}
	if !in.Type.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unsupported document type")
	}
	if in.Content == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "file is required")
	}
	if err := s.checkOpen(ctx, in.ClientID, in.ApplicationID); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	docID := id.DocumentID(uuid.New())
	fileName := storage.SanitizeFileName(in.FileName)
	key := storage.Key(in.ClientID.String(), docID.String())
	desc, err := s.files.Put(ctx, key, in.Content, storage.Meta{FileName: fileName, DeclaredType: in.DeclaredType})
	if err != nil {
		return nil, s.translate(err)
	}

	doc = &models.ClientDocument{
		ID:            docID,
		ClientID:      in.ClientID,
		ApplicationID: in.ApplicationID,
		Type:          in.Type,
		FileName:      fileName,
		MimeType:      desc.MimeType,
		SizeBytes:     desc.SizeBytes,
		StoragePath:   desc.Key,
		Checksum:      desc.Checksum,
		ScanStatus:    models.ScanPending,
		UploadedBy:    actor,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if in.ApplicationID != nil {
		doc.ReviewStatus = models.ReviewPending
	}
	if err := s.documents.Create(ctx, doc); err != nil {
		if delErr := s.files.Delete(ctx, desc.Key); delErr != nil {
			s.logWarn(ctx, "orphaned upload cleanup failed", "storage_key", desc.Key, "error", delErr)
		}
		return nil, s.translate(err)
	}

	if s.metrics != nil {
		s.metrics.UploadBytes.Observe(float64(desc.SizeBytes))
	}
	s.logAudit(ctx, "document_uploaded",
		"client_id", in.ClientID.String(),
		"document_id", docID.String(),
		"document_type", string(in.Type),
		"user_id", actor.String(),
		"size_bytes", desc.SizeBytes,
	)
	return doc, nil
}

// checkOpen applies the upload window of whichever workflow owns the file.
func (s *Service) checkOpen(ctx context.Context, clientID id.ClientID, appID *id.ApplicationID) error {
	if appID != nil {
		if s.applications == nil {
			return dErrors.New(dErrors.CodeBadRequest, "application documents are not enabled")
		}
		app, err := s.applications.FindByID(ctx, *appID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "loan application not found")
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load loan application")
		}
		if app.ClientID != clientID {
			return dErrors.New(dErrors.CodeNotFound, "loan application not found")
		}
		if !app.AcceptsDocuments() {
			return workflow.NewInvalidTransition(app.Status, workflow.ActionUploadDocument)
		}
		return nil
	}

	rec, err := s.records.FindByClientID(ctx, clientID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "kyc record not found")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load kyc record")
	}
	if !rec.AcceptsDocuments() {
		return workflow.NewInvalidTransition(rec.Status, workflow.ActionUploadDocument)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, docID id.DocumentID) (*models.ClientDocument, error) {
	doc, err := s.documents.FindByID(ctx, docID)
	if err != nil {
		return nil, s.translate(err)
	}
	return doc, nil
}

// Content opens the stored file of an active document. The caller closes it.
func (s *Service) Content(ctx context.Context, docID id.DocumentID) (*models.ClientDocument, io.ReadCloser, error) {
	doc, err := s.Get(ctx, docID)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.files.Open(ctx, doc.StoragePath)
	if err != nil {
		return nil, nil, s.translate(err)
	}
	return doc, rc, nil
}

func (s *Service) List(ctx context.Context, clientID id.ClientID, filter models.Filter) ([]*models.ClientDocument, error) {
	docs, err := s.documents.ListByClient(ctx, clientID, filter)
	if err != nil {
		return nil, s.translate(err)
	}
	return docs, nil
}

func (s *Service) CountActive(ctx context.Context, clientID id.ClientID) (int, error) {
	n, err := s.documents.CountActive(ctx, clientID)
	if err != nil {
		return 0, s.translate(err)
	}
	return n, nil
}

func (s *Service) CountUploadedSince(ctx context.Context, clientID id.ClientID, since time.Time) (int, error) {
	n, err := s.documents.CountUploadedSince(ctx, clientID, since)
	if err != nil {
		return 0, s.translate(err)
	}
	return n, nil
}

// SoftDelete hides the document from every read and count. Stored content is
// retained for audit.
func (s *Service) SoftDelete(ctx context.Context, caps authz.Capabilities, docID id.DocumentID) (err error) {
	ctx, span := s.tracer.Start(ctx, "document.soft_delete", trace.WithAttributes(
		attribute.String("document.id", docID.String()),
	))
	defer span.End()
	defer func() { s.finish(span, "soft_delete", err) }()

	if err := caps.RequireDelete(); err != nil {
		return err
	}
	actor := requestcontext.UserID(ctx)
	if actor.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "authenticated actor required")
	}
	doc, err := s.documents.FindByID(ctx, docID)
	if err != nil {
		return s.translate(err)
	}
	expected := doc.Version
	doc.MarkDeleted(actor, requestcontext.Now(ctx))
	if err := s.documents.Update(ctx, doc, expected); err != nil {
		return s.translate(err)
	}
	s.logAudit(ctx, "document_deleted",
		"client_id", doc.ClientID.String(),
		"document_id", docID.String(),
		"user_id", actor.String(),
	)
	return nil
}

// UpdateScanStatus records the scanner verdict for a document.
func (s *Service) UpdateScanStatus(ctx context.Context, docID id.DocumentID, status models.ScanStatus) (doc *models.ClientDocument, err error) {
	ctx, span := s.tracer.Start(ctx, "document.scan_status", trace.WithAttributes(
		attribute.String("document.id", docID.String()),
		attribute.String("document.scan_status", string(status)),
	))
	defer span.End()
	defer func() { s.finish(span, "scan_status", err) }()

	if !status.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "scan status must be one of pending, clean, infected")
	}
	doc, err = s.applyScanStatus(ctx, docID, status)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.ScanResults.WithLabelValues(string(status)).Inc()
	}
	if status == models.ScanInfected {
		s.logWarn(ctx, "infected document reported",
			"client_id", doc.ClientID.String(), "document_id", docID.String())
	}
	s.logAudit(ctx, "document_scanned",
		"client_id", doc.ClientID.String(),
		"document_id", docID.String(),
		"scan_status", string(status),
	)
	return doc, nil
}

// scanAttempts bounds how often a verdict is reapplied after losing a race
// with a concurrent review or delete.
const scanAttempts = 3

// applyScanStatus reloads and reapplies the verdict when the document changed
// underneath it. The scanner's verdict is never dropped for a stale read.
func (s *Service) applyScanStatus(ctx context.Context, docID id.DocumentID, status models.ScanStatus) (*models.ClientDocument, error) {
	var err error
	for range scanAttempts {
		var doc *models.ClientDocument
		doc, err = s.documents.FindByID(ctx, docID)
		if err != nil {
			return nil, s.translate(err)
		}
		expected := doc.Version
		if err := doc.SetScanStatus(status, requestcontext.Now(ctx)); err != nil {
			return nil, err
		}
		err = s.documents.Update(ctx, doc, expected)
		if err == nil {
			return doc, nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return nil, s.translate(err)
		}
	}
	return nil, s.translate(err)
}

// Review records a reviewer's decision on a loan application document.
func (s *Service) Review(ctx context.Context, caps authz.Capabilities, docID id.DocumentID, status models.ReviewStatus, notes string) (doc *models.ClientDocument, err error) {
	ctx, span := s.tracer.Start(ctx, "document.review", trace.WithAttributes(
		attribute.String("document.id", docID.String()),
		attribute.String("document.review_status", string(status)),
	))
	defer span.End()
	defer func() { s.finish(span, "review", err) }()

	if err := caps.RequireReview(); err != nil {
		return nil, err
	}
	actor := requestcontext.UserID(ctx)
	if actor.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authenticated actor required")
	}
	if !status.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "review status must be one of PENDING, VERIFIED, REJECTED")
	}
	notes = strings.TrimSpace(notes)
	if status == models.ReviewRejected && notes == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "notes are required when rejecting a document")
	}
	doc, err = s.documents.FindByID(ctx, docID)
	if err != nil {
		return nil, s.translate(err)
	}
	expected := doc.Version
	if err := doc.Review(status, notes, actor, requestcontext.Now(ctx)); err != nil {
		return nil, err
	}
	if err := s.documents.Update(ctx, doc, expected); err != nil {
		return nil, s.translate(err)
	}
	s.logAudit(ctx, "document_reviewed",
		"client_id", doc.ClientID.String(),
		"document_id", docID.String(),
		"review_status", string(status),
		"user_id", actor.String(),
	)
	return doc, nil
}

func (s *Service) translate(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "document not found")
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.New(dErrors.CodeConflict, "document already exists")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "document was changed concurrently, reload and retry")
	case dErrors.Coded(err):
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "document operation failed")
}

func (s *Service) finish(span trace.Span, op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(dErrors.CodeOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	if s.metrics != nil {
		s.metrics.ObserveOperation(op, outcome)
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

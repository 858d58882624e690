package service

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	appmodels "loankyc/internal/application/models"
	"loankyc/internal/application/store/application"
	"loankyc/internal/authz"
	"loankyc/internal/document/metrics"
	"loankyc/internal/document/models"
	"loankyc/internal/document/storage"
	"loankyc/internal/document/store/document"
	kycmodels "loankyc/internal/kyc/models"
	"loankyc/internal/kyc/store/record"
	id "loankyc/pkg/domain"
	dErrors "loankyc/pkg/domain-errors"
	"loankyc/pkg/requestcontext"
)

var pdf = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")

type DocumentServiceSuite struct {
	suite.Suite
	docs     *document.InMemory
	records  *record.InMemory
	apps     *application.InMemory
	metrics  *metrics.Metrics
	service  *Service
	ctx      context.Context
	now      time.Time
	clientID id.ClientID
}

func TestDocumentServiceSuite(t *testing.T) {
	suite.Run(t, new(DocumentServiceSuite))
}

func (s *DocumentServiceSuite) SetupTest() {
	files, err := storage.NewLocal(s.T().TempDir())
	s.Require().NoError(err)

	s.docs = document.NewInMemory()
	s.records = record.NewInMemory()
	s.apps = application.NewInMemory()
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.service = New(s.docs, files, s.records, WithApplications(s.apps), WithMetrics(s.metrics))

	s.now = time.Date(2026, 8, 3, 11, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithUserID(context.Background(), id.UserID(uuid.New()))
	s.ctx = requestcontext.WithTime(ctx, s.now)
	s.clientID = id.ClientID(uuid.New())
}

func (s *DocumentServiceSuite) registerKyc(status kycmodels.Status) {
	rec, err := kycmodels.NewRecord(s.clientID, s.now)
	s.Require().NoError(err)
	rec.Status = status
	s.Require().NoError(s.records.Create(s.ctx, rec))
}

func (s *DocumentServiceSuite) openApplication(clientID id.ClientID, status appmodels.Status) id.ApplicationID {
	app, err := appmodels.NewApplication(clientID, appmodels.Terms{
		Amount:     decimal.NewFromInt(5000),
		TermMonths: 12,
		Purpose:    "restock shop",
	}, s.now)
	s.Require().NoError(err)
	app.Status = status
	s.Require().NoError(s.apps.Create(s.ctx, app))
	return app.ID
}

func (s *DocumentServiceSuite) upload(appID *id.ApplicationID, content []byte) (*models.ClientDocument, error) {
	return s.service.Add(s.ctx, Upload{
		ClientID:      s.clientID,
		ApplicationID: appID,
		Type:          id.DocumentNationalID,
		FileName:      "my id.pdf",
		Content:       bytes.NewReader(content),
	})
}

func (s *DocumentServiceSuite) active() int {
	n, err := s.service.CountActive(s.ctx, s.clientID)
	s.Require().NoError(err)
	return n
}

func (s *DocumentServiceSuite) TestAddWhileUnverified() {
	s.registerKyc(kycmodels.StatusUnverified)

	doc, err := s.upload(nil, pdf)
	s.Require().NoError(err)

	s.Equal(models.ScanPending, doc.ScanStatus)
	s.Equal("application/pdf", doc.MimeType)
	s.Equal("my_id.pdf", doc.FileName)
	s.Equal(int64(len(pdf)), doc.SizeBytes)
	s.Len(doc.Checksum, 64)
	s.Empty(doc.ReviewStatus)
	s.Equal(s.now, doc.CreatedAt)
	s.Equal(1, s.active())
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Operations.WithLabelValues("add", "ok")))

	_, rc, err := s.service.Content(s.ctx, doc.ID)
	s.Require().NoError(err)
	defer rc.Close()
	stored, err := io.ReadAll(rc)
	s.Require().NoError(err)
	s.Equal(pdf, stored)
}

func (s *DocumentServiceSuite) TestAddWhileReturned() {
	s.registerKyc(kycmodels.StatusReturned)

	_, err := s.upload(nil, pdf)
	s.Require().NoError(err)
}

func (s *DocumentServiceSuite) TestAddOutsideUploadWindow() {
	for _, status := range []kycmodels.Status{
		kycmodels.StatusPendingReview,
		kycmodels.StatusVerified,
		kycmodels.StatusRejected,
	} {
		s.Run(string(status), func() {
			s.clientID = id.ClientID(uuid.New())
			s.registerKyc(status)

			_, err := s.upload(nil, pdf)

			s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
			s.Equal("cannot upload document from status "+string(status), err.Error())
			s.Equal(0, s.active())
		})
	}
}

func (s *DocumentServiceSuite) TestAddWithoutKycRecord() {
	_, err := s.upload(nil, pdf)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *DocumentServiceSuite) TestAddRequiresActor() {
	s.registerKyc(kycmodels.StatusUnverified)

	_, err := s.service.Add(context.Background(), Upload{
		ClientID: s.clientID,
		Type:     id.DocumentPassport,
		Content:  bytes.NewReader(pdf),
	})
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *DocumentServiceSuite) TestAddRejectsUnsupportedContent() {
	s.registerKyc(kycmodels.StatusUnverified)

	_, err := s.service.Add(s.ctx, Upload{
		ClientID: s.clientID,
		Type:     id.DocumentPayslip,
		FileName: "payslip.pdf",
		Content:  strings.NewReader("not really a pdf"),
	})

	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Equal(0, s.active())
}

func (s *DocumentServiceSuite) TestAddApplicationDocument() {
	appID := s.openApplication(s.clientID, appmodels.StatusDraft)

	doc, err := s.upload(&appID, pdf)
	s.Require().NoError(err)
	s.Equal(models.ReviewPending, doc.ReviewStatus)

	docs, err := s.service.List(s.ctx, s.clientID, models.Filter{ApplicationID: &appID})
	s.Require().NoError(err)
	s.Len(docs, 1)
}

func (s *DocumentServiceSuite) TestAddApplicationDocumentOutsideWindow() {
	appID := s.openApplication(s.clientID, appmodels.StatusSubmitted)

	_, err := s.upload(&appID, pdf)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
}

func (s *DocumentServiceSuite) TestAddApplicationDocumentForAnotherClient() {
	appID := s.openApplication(id.ClientID(uuid.New()), appmodels.StatusDraft)

	_, err := s.upload(&appID, pdf)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *DocumentServiceSuite) TestSoftDelete() {
	s.registerKyc(kycmodels.StatusUnverified)
	doc, err := s.upload(nil, pdf)
	s.Require().NoError(err)

	err = s.service.SoftDelete(s.ctx, authz.For(authz.RoleLoanOfficer), doc.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	s.Equal(1, s.active())

	s.Require().NoError(s.service.SoftDelete(s.ctx, authz.For(authz.RoleManager), doc.ID))

	_, err = s.service.Get(s.ctx, doc.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	s.Equal(0, s.active())

	docs, err := s.service.List(s.ctx, s.clientID, models.Filter{})
	s.Require().NoError(err)
	s.Empty(docs)

	err = s.service.SoftDelete(s.ctx, authz.For(authz.RoleAdmin), doc.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *DocumentServiceSuite) TestUpdateScanStatus() {
	s.registerKyc(kycmodels.StatusUnverified)
	doc, err := s.upload(nil, pdf)
	s.Require().NoError(err)

	updated, err := s.service.UpdateScanStatus(s.ctx, doc.ID, models.ScanClean)
	s.Require().NoError(err)
	s.Equal(models.ScanClean, updated.ScanStatus)

	_, err = s.service.UpdateScanStatus(s.ctx, doc.ID, models.ScanStatus("quarantined"))
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.service.UpdateScanStatus(s.ctx, id.DocumentID(uuid.New()), models.ScanClean)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *DocumentServiceSuite) TestReviewApplicationDocument() {
	appID := s.openApplication(s.clientID, appmodels.StatusDraft)
	doc, err := s.upload(&appID, pdf)
	s.Require().NoError(err)
	officer := authz.For(authz.RoleLoanOfficer)

	_, err = s.service.Review(s.ctx, authz.For(authz.RoleClient), doc.ID, models.ReviewVerified, "")
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	_, err = s.service.Review(s.ctx, officer, doc.ID, models.ReviewVerified, "")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation), "verification waits for a clean scan")

	_, err = s.service.Review(s.ctx, officer, doc.ID, models.ReviewRejected, "  ")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	rejected, err := s.service.Review(s.ctx, officer, doc.ID, models.ReviewRejected, "cropped")
	s.Require().NoError(err)
	s.Equal("cropped", rejected.ReviewNotes)
	s.NotNil(rejected.ReviewedBy)

	_, err = s.service.UpdateScanStatus(s.ctx, doc.ID, models.ScanClean)
	s.Require().NoError(err)

	verified, err := s.service.Review(s.ctx, officer, doc.ID, models.ReviewVerified, "ignored")
	s.Require().NoError(err)
	s.Equal(models.ReviewVerified, verified.ReviewStatus)
	s.Empty(verified.ReviewNotes)
}

// interleavedStore runs between once just before the next Update, as a
// concurrent writer that read the same document would.
type interleavedStore struct {
	*document.InMemory
	between func()
}

func (s *interleavedStore) Update(ctx context.Context, doc *models.ClientDocument, expectedVersion int64) error {
	if fn := s.between; fn != nil {
		s.between = nil
		fn()
	}
	return s.InMemory.Update(ctx, doc, expectedVersion)
}

func (s *DocumentServiceSuite) interleaved() (*Service, *interleavedStore) {
	files, err := storage.NewLocal(s.T().TempDir())
	s.Require().NoError(err)
	store := &interleavedStore{InMemory: s.docs}
	return New(store, files, s.records, WithApplications(s.apps)), store
}

func (s *DocumentServiceSuite) TestScanVerdictDuringReviewIsNotOverwritten() {
	appID := s.openApplication(s.clientID, appmodels.StatusDraft)
	doc, err := s.upload(&appID, pdf)
	s.Require().NoError(err)
	_, err = s.service.UpdateScanStatus(s.ctx, doc.ID, models.ScanClean)
	s.Require().NoError(err)

	svc, store := s.interleaved()
	store.between = func() {
		_, err := svc.UpdateScanStatus(s.ctx, doc.ID, models.ScanInfected)
		s.Require().NoError(err)
	}
	_, err = svc.Review(s.ctx, authz.For(authz.RoleManager), doc.ID, models.ReviewVerified, "")
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	stored, err := s.service.Get(s.ctx, doc.ID)
	s.Require().NoError(err)
	s.Equal(models.ScanInfected, stored.ScanStatus)
	s.Equal(models.ReviewPending, stored.ReviewStatus)

	_, err = svc.Review(s.ctx, authz.For(authz.RoleManager), doc.ID, models.ReviewVerified, "")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation), "a reload sees the infected verdict")
}

func (s *DocumentServiceSuite) TestScanVerdictSurvivesConcurrentReview() {
	appID := s.openApplication(s.clientID, appmodels.StatusDraft)
	doc, err := s.upload(&appID, pdf)
	s.Require().NoError(err)

	svc, store := s.interleaved()
	store.between = func() {
		_, err := svc.Review(s.ctx, authz.For(authz.RoleManager), doc.ID, models.ReviewRejected, "cropped")
		s.Require().NoError(err)
	}
	scanned, err := svc.UpdateScanStatus(s.ctx, doc.ID, models.ScanInfected)
	s.Require().NoError(err)
	s.Equal(models.ScanInfected, scanned.ScanStatus)

	stored, err := s.service.Get(s.ctx, doc.ID)
	s.Require().NoError(err)
	s.Equal(models.ScanInfected, stored.ScanStatus)
	s.Equal(models.ReviewRejected, stored.ReviewStatus)
	s.Equal("cropped", stored.ReviewNotes)
	s.EqualValues(3, stored.Version)
}

func (s *DocumentServiceSuite) TestReviewRejectsKycDocuments() {
	s.registerKyc(kycmodels.StatusUnverified)
	doc, err := s.upload(nil, pdf)
	s.Require().NoError(err)

	_, err = s.service.Review(s.ctx, authz.For(authz.RoleManager), doc.ID, models.ReviewRejected, "blurry")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *DocumentServiceSuite) TestCountUploadedSince() {
	s.registerKyc(kycmodels.StatusUnverified)
	_, err := s.upload(nil, pdf)
	s.Require().NoError(err)

	later := requestcontext.WithTime(s.ctx, s.now.Add(time.Hour))
	_, err = s.service.Add(later, Upload{
		ClientID: s.clientID,
		Type:     id.DocumentPayslip,
		FileName: "payslip.pdf",
		Content:  bytes.NewReader(pdf),
	})
	s.Require().NoError(err)

	n, err := s.service.CountUploadedSince(s.ctx, s.clientID, s.now)
	s.Require().NoError(err)
	s.Equal(1, n)
	s.Equal(2, s.active())
}

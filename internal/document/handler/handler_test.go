package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"loankyc/internal/authz"
	"loankyc/internal/document/service"
	"loankyc/internal/document/storage"
	"loankyc/internal/document/store/document"
	kycmodels "loankyc/internal/kyc/models"
	"loankyc/internal/kyc/store/record"
	id "loankyc/pkg/domain"
	"loankyc/pkg/requestcontext"
)

var pdf = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")

type DocumentHandlerSuite struct {
	suite.Suite
	router   chi.Router
	records  *record.InMemory
	clientID id.ClientID
	role     string
}

func TestDocumentHandlerSuite(t *testing.T) {
	suite.Run(t, new(DocumentHandlerSuite))
}

func (s *DocumentHandlerSuite) SetupTest() {
	files, err := storage.NewLocal(s.T().TempDir(), storage.WithMaxSize(64<<10))
	s.Require().NoError(err)
	s.records = record.NewInMemory()
	svc := service.New(document.NewInMemory(), files, s.records)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s.clientID = id.ClientID(uuid.New())
	rec, err := kycmodels.NewRecord(s.clientID, time.Now())
	s.Require().NoError(err)
	s.Require().NoError(s.records.Create(context.Background(), rec))

	actor := id.UserID(uuid.New())
	s.role = string(authz.RoleLoanOfficer)
	s.router = chi.NewRouter()
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithUserID(r.Context(), actor)
			ctx = requestcontext.WithRole(ctx, s.role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	New(svc, logger, 1<<20).Register(s.router)
}

func (s *DocumentHandlerSuite) upload(fields map[string]string, fileName string, content []byte) *httptest.ResponseRecorder {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		s.Require().NoError(mw.WriteField(k, v))
	}
	if content != nil {
		part, err := mw.CreateFormFile("file", fileName)
		s.Require().NoError(err)
		_, err = part.Write(content)
		s.Require().NoError(err)
	}
	s.Require().NoError(mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/clients/"+s.clientID.String()+"/documents", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *DocumentHandlerSuite) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *DocumentHandlerSuite) decode(rec *httptest.ResponseRecorder) map[string]any {
	var body map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func (s *DocumentHandlerSuite) TestUploadAndDownload() {
	rec := s.upload(map[string]string{"documentType": "national_id"}, "id.pdf", pdf)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	body := s.decode(rec)
	s.Equal("NATIONAL_ID", body["documentType"])
	s.Equal("pending", body["scanStatus"])
	s.Equal("application/pdf", body["mimeType"])
	s.NotContains(body, "storagePath")
	docID := body["id"].(string)

	rec = s.do(http.MethodGet, "/documents/"+docID+"/content", nil)
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("application/pdf", rec.Header().Get("Content-Type"))
	s.Equal(pdf, rec.Body.Bytes())

	rec = s.do(http.MethodGet, "/clients/"+s.clientID.String()+"/documents?type=NATIONAL_ID", nil)
	s.Equal(http.StatusOK, rec.Code)
	s.EqualValues(1, s.decode(rec)["total"])
}

func (s *DocumentHandlerSuite) TestUploadValidation() {
	rec := s.upload(map[string]string{"documentType": "SELFIE"}, "id.pdf", pdf)
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.upload(map[string]string{"documentType": "PASSPORT"}, "", nil)
	s.Equal(http.StatusUnprocessableEntity, rec.Code)

	rec = s.upload(map[string]string{"documentType": "PASSPORT"}, "notes.txt", []byte("plain text"))
	s.Equal(http.StatusUnprocessableEntity, rec.Code)

	rec = s.upload(map[string]string{"documentType": "PASSPORT"}, "huge.pdf", append(pdf, make([]byte, 128<<10)...))
	s.Equal(http.StatusUnprocessableEntity, rec.Code)
}

func (s *DocumentHandlerSuite) TestUploadAfterSubmission() {
	ctx := requestcontext.WithUserID(context.Background(), id.UserID(uuid.New()))
	rec, err := s.records.FindByClientID(ctx, s.clientID)
	s.Require().NoError(err)
	expected := rec.Version
	_, err = rec.Submit(id.UserID(uuid.New()), "", time.Now())
	s.Require().NoError(err)
	s.Require().NoError(s.records.Update(ctx, rec, expected))

	resp := s.upload(map[string]string{"documentType": "PASSPORT"}, "p.pdf", pdf)

	s.Equal(http.StatusConflict, resp.Code)
	body := s.decode(resp)
	s.Equal("invalid_transition", body["error"])
	s.Equal("cannot upload document from status PENDING_REVIEW", body["error_description"])
}

func (s *DocumentHandlerSuite) TestDeleteRequiresPermission() {
	rec := s.upload(map[string]string{"documentType": "PAYSLIP"}, "p.pdf", pdf)
	s.Require().Equal(http.StatusCreated, rec.Code)
	docPath := "/documents/" + s.decode(rec)["id"].(string)

	rec = s.do(http.MethodDelete, docPath, nil)
	s.Equal(http.StatusForbidden, rec.Code)

	s.role = string(authz.RoleAdmin)
	rec = s.do(http.MethodDelete, docPath, nil)
	s.Equal(http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodGet, docPath, nil)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *DocumentHandlerSuite) TestScanStatus() {
	rec := s.upload(map[string]string{"documentType": "PHOTO"}, "p.pdf", pdf)
	s.Require().Equal(http.StatusCreated, rec.Code)
	docPath := "/documents/" + s.decode(rec)["id"].(string)

	rec = s.do(http.MethodPut, docPath+"/scan-status", map[string]string{"status": "clean"})
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("clean", s.decode(rec)["scanStatus"])

	rec = s.do(http.MethodPut, docPath+"/scan-status", map[string]string{"status": "maybe"})
	s.Equal(http.StatusUnprocessableEntity, rec.Code)
}

func (s *DocumentHandlerSuite) TestReviewOfKycDocumentIsRejected() {
	rec := s.upload(map[string]string{"documentType": "PHOTO"}, "p.pdf", pdf)
	s.Require().Equal(http.StatusCreated, rec.Code)
	docPath := "/documents/" + s.decode(rec)["id"].(string)

	rec = s.do(http.MethodPut, docPath+"/review", map[string]string{"status": "REJECTED", "notes": "blurry"})
	s.Equal(http.StatusUnprocessableEntity, rec.Code)
}

func (s *DocumentHandlerSuite) TestInvalidDocumentID() {
	rec := s.do(http.MethodGet, "/documents/nope", nil)
	s.Equal(http.StatusBadRequest, rec.Code)
}

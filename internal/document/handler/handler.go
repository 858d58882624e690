package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"loankyc/internal/authz"
	"loankyc/internal/document/models"
	"loankyc/internal/document/service"
	id "loankyc/pkg/domain"
	dErrors "loankyc/pkg/domain-errors"
	"loankyc/pkg/platform/httputil"
	"loankyc/pkg/platform/validation"
	"loankyc/pkg/requestcontext"
)

// multipartMemory is how much of a multipart body is buffered in memory
// before the rest spills to temporary files.
const multipartMemory = 4 << 20

type Service interface {
	Add(ctx context.Context, in service.Upload) (*models.ClientDocument, error)
	Get(ctx context.Context, docID id.DocumentID) (*models.ClientDocument, error)
	Content(ctx context.Context, docID id.DocumentID) (*models.ClientDocument, io.ReadCloser, error)
	List(ctx context.Context, clientID id.ClientID, filter models.Filter) ([]*models.ClientDocument, error)
	SoftDelete(ctx context.Context, caps authz.Capabilities, docID id.DocumentID) error
	UpdateScanStatus(ctx context.Context, docID id.DocumentID, status models.ScanStatus) (*models.ClientDocument, error)
	Review(ctx context.Context, caps authz.Capabilities, docID id.DocumentID, status models.ReviewStatus, notes string) (*models.ClientDocument, error)
}

type Handler struct {
	service   Service
	logger    *slog.Logger
	maxUpload int64
}

func New(service Service, logger *slog.Logger, maxUpload int64) *Handler {
	return &Handler{service: service, logger: logger, maxUpload: maxUpload}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/clients/{clientID}/documents", func(r chi.Router) {
		r.Post("/", h.handleUpload)
		r.Get("/", h.handleList)
	})
	r.Route("/documents/{documentID}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Get("/content", h.handleContent)
		r.Delete("/", h.handleDelete)
		r.Put("/scan-status", h.handleScanStatus)
		r.Put("/review", h.handleReview)
	})
}

type ListResponse struct {
	Documents []*models.ClientDocument `json:"documents"`
	Total     int                      `json:"total"`
}

type ScanStatusRequest struct {
	Status string `json:"status" validate:"required"`

	status models.ScanStatus
}

func (r *ScanStatusRequest) Validate() error {
	if err := validation.Struct(r); err != nil {
		return err
	}
	st, err := models.ParseScanStatus(r.Status)
	if err != nil {
		return err
	}
	r.status = st
	return nil
}

type ReviewRequest struct {
	Status string `json:"status" validate:"required"`
	Notes  string `json:"notes" validate:"max=2000"`

	status models.ReviewStatus
}

func (r *ReviewRequest) Validate() error {
	r.Notes = strings.TrimSpace(r.Notes)
	if err := validation.Struct(r); err != nil {
		return err
	}
	st, err := models.ParseReviewStatus(r.Status)
	if err != nil {
		return err
	}
	r.status = st
	return nil
}

func capabilities(ctx context.Context) authz.Capabilities {
	return authz.FromRoleName(requestcontext.Role(ctx))
}

func (h *Handler) documentID(w http.ResponseWriter, r *http.Request) (id.DocumentID, bool) {
	docID, err := id.ParseDocumentID(chi.URLParam(r, "documentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.DocumentID{}, false
	}
	return docID, true
}

// handleUpload expects multipart/form-data with a "file" part, a
// "documentType" field and an optional "applicationId" field.
func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientID, err := id.ParseClientID(chi.URLParam(r, "clientID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.fail(w, r, "upload document", dErrors.New(dErrors.CodeValidation, "file exceeds "+strconv.FormatInt(h.maxUpload, 10)+" bytes"))
			return
		}
		h.fail(w, r, "upload document", dErrors.New(dErrors.CodeBadRequest, "expected a multipart form"))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	docType, err := id.ParseDocumentType(r.FormValue("documentType"))
	if err != nil {
		h.fail(w, r, "upload document", err)
		return
	}
	var appID *id.ApplicationID
	if raw := strings.TrimSpace(r.FormValue("applicationId")); raw != "" {
		parsed, err := id.ParseApplicationID(raw)
		if err != nil {
			h.fail(w, r, "upload document", err)
			return
		}
		appID = &parsed
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		h.fail(w, r, "upload document", dErrors.New(dErrors.CodeValidation, "file is required"))
		return
	}
	defer file.Close()

	doc, err := h.service.Add(ctx, service.Upload{
		ClientID:      clientID,
		ApplicationID: appID,
		Type:          docType,
		FileName:      header.Filename,
		DeclaredType:  declaredType(header),
		Content:       file,
	})
	if err != nil {
		h.fail(w, r, "upload document", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, doc)
}

func declaredType(header *multipart.FileHeader) string {
	return header.Header.Get("Content-Type")
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	clientID, err := id.ParseClientID(chi.URLParam(r, "clientID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var filter models.Filter
	q := r.URL.Query()
	if raw := strings.TrimSpace(q.Get("applicationId")); raw != "" {
		appID, err := id.ParseApplicationID(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		filter.ApplicationID = &appID
	}
	if raw := strings.TrimSpace(q.Get("type")); raw != "" {
		docType, err := id.ParseDocumentType(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		filter.Type = docType
	}
	docs, err := h.service.List(r.Context(), clientID, filter)
	if err != nil {
		h.fail(w, r, "list documents", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ListResponse{Documents: docs, Total: len(docs)})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	docID, ok := h.documentID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.Get(r.Context(), docID)
	if err != nil {
		h.fail(w, r, "get document", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) handleContent(w http.ResponseWriter, r *http.Request) {
	docID, ok := h.documentID(w, r)
	if !ok {
		return
	}
	doc, rc, err := h.service.Content(r.Context(), docID)
	if err != nil {
		h.fail(w, r, "download document", err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", doc.MimeType)
	w.Header().Set("Content-Length", strconv.FormatInt(doc.SizeBytes, 10))
	w.Header().Set("Content-Disposition", `attachment; filename="`+doc.FileName+`"`)
	w.Header().Set("Last-Modified", doc.CreatedAt.UTC().Format(time.RFC1123))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.WarnContext(r.Context(), "document download interrupted",
			"request_id", requestcontext.RequestID(r.Context()),
			"document_id", docID.String(),
			"error", err,
		)
	}
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docID, ok := h.documentID(w, r)
	if !ok {
		return
	}
	if err := h.service.SoftDelete(ctx, capabilities(ctx), docID); err != nil {
		h.fail(w, r, "delete document", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleScanStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docID, ok := h.documentID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ScanStatusRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	doc, err := h.service.UpdateScanStatus(ctx, docID, req.status)
	if err != nil {
		h.fail(w, r, "update scan status", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) handleReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docID, ok := h.documentID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ReviewRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	doc, err := h.service.Review(ctx, capabilities(ctx), docID, req.status, req.Notes)
	if err != nil {
		h.fail(w, r, "review document", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	ctx := r.Context()
	status := httputil.StatusFor(dErrors.CodeOf(err))
	attrs := []any{"request_id", requestcontext.RequestID(ctx), "op", op, "error", err}
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, "document request failed", attrs...)
	} else {
		h.logger.WarnContext(ctx, "document request rejected", attrs...)
	}
	httputil.WriteError(w, err)
}

package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"loankyc/internal/application/models"
	"loankyc/internal/authz"
	"loankyc/internal/workflow"
	id "loankyc/pkg/domain"
	dErrors "loankyc/pkg/domain-errors"
	"loankyc/pkg/platform/httputil"
	"loankyc/pkg/platform/validation"
	"loankyc/pkg/requestcontext"
)

type Service interface {
	Create(ctx context.Context, clientID id.ClientID, terms models.Terms) (*models.LoanApplication, error)
	Get(ctx context.Context, appID id.ApplicationID) (*models.LoanApplication, error)
	ListForClient(ctx context.Context, clientID id.ClientID) ([]*models.LoanApplication, error)
	ReviewQueue(ctx context.Context, caps authz.Capabilities) ([]*models.LoanApplication, error)
	UpdateTerms(ctx context.Context, appID id.ApplicationID, terms models.Terms) (*models.LoanApplication, error)
	Submit(ctx context.Context, appID id.ApplicationID, notes string) (*models.LoanApplication, error)
	StartReview(ctx context.Context, caps authz.Capabilities, appID id.ApplicationID) (*models.LoanApplication, error)
	Approve(ctx context.Context, caps authz.Capabilities, appID id.ApplicationID, notes string) (*models.LoanApplication, error)
	Reject(ctx context.Context, caps authz.Capabilities, appID id.ApplicationID, reason, notes string) (*models.LoanApplication, error)
	ReturnToClient(ctx context.Context, caps authz.Capabilities, appID id.ApplicationID, reason string, items []workflow.ReturnedItem, notes string) (*models.LoanApplication, error)
	Resubmit(ctx context.Context, appID id.ApplicationID) (*models.LoanApplication, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/clients/{clientID}/applications", h.handleListForClient)
	r.Route("/applications", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/review-queue", h.handleReviewQueue)
		r.Route("/{applicationID}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Put("/", h.handleUpdate)
			r.Post("/submit", h.handleSubmit)
			r.Post("/start-review", h.handleStartReview)
			r.Post("/approve", h.handleApprove)
			r.Post("/reject", h.handleReject)
			r.Post("/return", h.handleReturn)
			r.Post("/resubmit", h.handleResubmit)
		})
	})
}

// TermsRequest carries the editable application fields.
type TermsRequest struct {
	Amount     decimal.Decimal `json:"amount" validate:"required,gt=0"`
	TermMonths int             `json:"termMonths" validate:"required,min=1,max=120"`
	Purpose    string          `json:"purpose" validate:"required,max=500"`
}

func (r *TermsRequest) Validate() error {
	r.Purpose = strings.TrimSpace(r.Purpose)
	return validation.Struct(r)
}

func (r *TermsRequest) terms() models.Terms {
	return models.Terms{Amount: r.Amount, TermMonths: r.TermMonths, Purpose: r.Purpose}
}

// CreateRequest opens an application for a client.
type CreateRequest struct {
	ClientID string `json:"clientId" validate:"required,uuid"`
	TermsRequest
}

func (r *CreateRequest) Validate() error {
	r.ClientID = strings.TrimSpace(r.ClientID)
	r.Purpose = strings.TrimSpace(r.Purpose)
	return validation.Struct(r)
}

type NotesRequest struct {
	Notes string `json:"notes" validate:"max=2000"`
}

func (r *NotesRequest) Validate() error {
	r.Notes = strings.TrimSpace(r.Notes)
	return validation.Struct(r)
}

type RejectRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
	Notes  string `json:"notes" validate:"max=2000"`
}

func (r *RejectRequest) Validate() error {
	r.Reason = strings.TrimSpace(r.Reason)
	r.Notes = strings.TrimSpace(r.Notes)
	return validation.Struct(r)
}

type ReturnRequest struct {
	Reason string                  `json:"reason" validate:"required,max=1000"`
	Items  []workflow.ReturnedItem `json:"returnedItems" validate:"required,min=1,max=50"`
	Notes  string                  `json:"notes" validate:"max=2000"`
}

func (r *ReturnRequest) Validate() error {
	r.Reason = strings.TrimSpace(r.Reason)
	r.Notes = strings.TrimSpace(r.Notes)
	return validation.Struct(r)
}

// ApplicationResponse adds correction cues to RETURNED applications.
type ApplicationResponse struct {
	*models.LoanApplication
	Cues *workflow.Cues `json:"cues,omitempty"`
}

func toResponse(app *models.LoanApplication) ApplicationResponse {
	resp := ApplicationResponse{LoanApplication: app}
	if app.HasPendingCorrections() {
		cues := app.Cues()
		resp.Cues = &cues
	}
	return resp
}

type ListResponse struct {
	Applications []*models.LoanApplication `json:"applications"`
	Total        int                       `json:"total"`
}

func (h *Handler) appID(w http.ResponseWriter, r *http.Request) (id.ApplicationID, bool) {
	appID, err := id.ParseApplicationID(chi.URLParam(r, "applicationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.ApplicationID{}, false
	}
	return appID, true
}

func capabilities(ctx context.Context) authz.Capabilities {
	return authz.FromRoleName(requestcontext.Role(ctx))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[CreateRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	clientID, err := id.ParseClientID(req.ClientID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	app, err := h.service.Create(ctx, clientID, req.terms())
	if err != nil {
		h.fail(w, r, "create application", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toResponse(app))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	appID, ok := h.appID(w, r)
	if !ok {
		return
	}
	h.respond(w, r, "get application", func() (*models.LoanApplication, error) {
		return h.service.Get(r.Context(), appID)
	})
}

func (h *Handler) handleListForClient(w http.ResponseWriter, r *http.Request) {
	clientID, err := id.ParseClientID(chi.URLParam(r, "clientID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	apps, err := h.service.ListForClient(r.Context(), clientID)
	if err != nil {
		h.fail(w, r, "list applications", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ListResponse{Applications: apps, Total: len(apps)})
}

func (h *Handler) handleReviewQueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	apps, err := h.service.ReviewQueue(ctx, capabilities(ctx))
	if err != nil {
		h.fail(w, r, "list application review queue", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ListResponse{Applications: apps, Total: len(apps)})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.appID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[TermsRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	h.respond(w, r, "update application", func() (*models.LoanApplication, error) {
		return h.service.UpdateTerms(ctx, appID, req.terms())
	})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.appID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[NotesRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	h.respond(w, r, "submit application", func() (*models.LoanApplication, error) {
		return h.service.Submit(ctx, appID, req.Notes)
	})
}

func (h *Handler) handleStartReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.appID(w, r)
	if !ok {
		return
	}
	h.respond(w, r, "start application review", func() (*models.LoanApplication, error) {
		return h.service.StartReview(ctx, capabilities(ctx), appID)
	})
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.appID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[NotesRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	h.respond(w, r, "approve application", func() (*models.LoanApplication, error) {
		return h.service.Approve(ctx, capabilities(ctx), appID, req.Notes)
	})
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.appID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[RejectRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	h.respond(w, r, "reject application", func() (*models.LoanApplication, error) {
		return h.service.Reject(ctx, capabilities(ctx), appID, req.Reason, req.Notes)
	})
}

func (h *Handler) handleReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.appID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ReturnRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	h.respond(w, r, "return application", func() (*models.LoanApplication, error) {
		return h.service.ReturnToClient(ctx, capabilities(ctx), appID, req.Reason, req.Items, req.Notes)
	})
}

func (h *Handler) handleResubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.appID(w, r)
	if !ok {
		return
	}
	h.respond(w, r, "resubmit application", func() (*models.LoanApplication, error) {
		return h.service.Resubmit(ctx, appID)
	})
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, op string, call func() (*models.LoanApplication, error)) {
	app, err := call()
	if err != nil {
		h.fail(w, r, op, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(app))
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	ctx := r.Context()
	attrs := []any{"request_id", requestcontext.RequestID(ctx), "op", op, "error", err}
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "application request failed", attrs...)
	} else {
		h.logger.WarnContext(ctx, "application request rejected", attrs...)
	}
	httputil.WriteError(w, err)
}

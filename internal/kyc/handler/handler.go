package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"loankyc/internal/authz"
	"loankyc/internal/kyc/models"
	"loankyc/internal/workflow"
	id "loankyc/pkg/domain"
	dErrors "loankyc/pkg/domain-errors"
	"loankyc/pkg/platform/httputil"
	"loankyc/pkg/requestcontext"
)

// Service defines the KYC operations exposed over HTTP.
type Service interface {
	Register(ctx context.Context, clientID id.ClientID) (*models.ClientKycRecord, error)
	Get(ctx context.Context, clientID id.ClientID) (*models.ClientKycRecord, error)
	Status(ctx context.Context, clientID id.ClientID) (models.Status, error)
	History(ctx context.Context, clientID id.ClientID, order models.Order) ([]models.HistoryEvent, error)
	IsReadyForSubmission(ctx context.Context, clientID id.ClientID) (models.Readiness, error)
	ReviewQueue(ctx context.Context, caps authz.Capabilities) ([]*models.ClientKycRecord, error)
	Submit(ctx context.Context, clientID id.ClientID, notes string) (*models.ClientKycRecord, error)
	Approve(ctx context.Context, caps authz.Capabilities, clientID id.ClientID, notes string) (*models.ClientKycRecord, error)
	Reject(ctx context.Context, caps authz.Capabilities, clientID id.ClientID, reason, notes string) (*models.ClientKycRecord, error)
	ReturnToClient(ctx context.Context, caps authz.Capabilities, clientID id.ClientID, reason string, items []workflow.ReturnedItem, notes string) (*models.ClientKycRecord, error)
	Resubmit(ctx context.Context, clientID id.ClientID) (*models.ClientKycRecord, error)
	UpdateRiskRating(ctx context.Context, caps authz.Capabilities, clientID id.ClientID, rating models.RiskRating, notes string) (*models.ClientKycRecord, error)
}

// Handler serves the /kyc routes.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the KYC routes. Authentication middleware is applied by
// the caller.
func (h *Handler) Register(r chi.Router) {
	r.Route("/kyc", func(r chi.Router) {
		r.Get("/review-queue", h.handleReviewQueue)
		r.Route("/{clientID}", func(r chi.Router) {
			r.Use(h.requireClientAccess)
			r.Post("/", h.handleRegister)
			r.Get("/", h.handleGet)
			r.Get("/status", h.handleStatus)
			r.Get("/history", h.handleHistory)
			r.Get("/readiness", h.handleReadiness)
			r.Post("/submit", h.handleSubmit)
			r.Post("/approve", h.handleApprove)
			r.Post("/reject", h.handleReject)
			r.Post("/return", h.handleReturn)
			r.Post("/resubmit", h.handleResubmit)
			r.Put("/risk-rating", h.handleRiskRating)
		})
	})
}

func (h *Handler) clientID(w http.ResponseWriter, r *http.Request) (id.ClientID, bool) {
	clientID, err := id.ParseClientID(chi.URLParam(r, "clientID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.ClientID{}, false
	}
	return clientID, true
}

// requireClientAccess keeps CLIENT callers on their own record before any
// per-client route runs.
func (h *Handler) requireClientAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID, ok := h.clientID(w, r)
		if !ok {
			return
		}
		ctx := r.Context()
		if err := authz.RequireClientAccess(requestcontext.Role(ctx), requestcontext.UserID(ctx), clientID); err != nil {
			h.fail(w, r, "authorize client access", err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func capabilities(ctx context.Context) authz.Capabilities {
	return authz.FromRoleName(requestcontext.Role(ctx))
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	clientID, ok := h.clientID(w, r)
	if !ok {
		return
	}
	rec, err := h.service.Register(r.Context(), clientID)
	if err != nil {
		h.fail(w, r, "register kyc record", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toRecordResponse(rec))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	clientID, ok := h.clientID(w, r)
	if !ok {
		return
	}
	rec, err := h.service.Get(r.Context(), clientID)
	if err != nil {
		h.fail(w, r, "get kyc record", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRecordResponse(rec))
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	clientID, ok := h.clientID(w, r)
	if !ok {
		return
	}
	st, err := h.service.Status(r.Context(), clientID)
	if err != nil {
		h.fail(w, r, "get kyc status", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, StatusResponse{ClientID: clientID.String(), Status: st})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	clientID, ok := h.clientID(w, r)
	if !ok {
		return
	}
	order, err := parseOrder(r.URL.Query().Get("order"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	events, err := h.service.History(r.Context(), clientID, order)
	if err != nil {
		h.fail(w, r, "list kyc history", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, HistoryResponse{ClientID: clientID.String(), Events: events})
}

func (h *Handler) handleReadiness(w http.ResponseWriter, r *http.Request) {
	clientID, ok := h.clientID(w, r)
	if !ok {
		return
	}
	readiness, err := h.service.IsReadyForSubmission(r.Context(), clientID)
	if err != nil {
		h.fail(w, r, "evaluate readiness", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, readiness)
}

func (h *Handler) handleReviewQueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recs, err := h.service.ReviewQueue(ctx, capabilities(ctx))
	if err != nil {
		h.fail(w, r, "list review queue", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, QueueResponse{Records: recs, Total: len(recs)})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientID, ok := h.clientID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[NotesRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	h.respond(w, r, "submit", func() (*models.ClientKycRecord, error) {
		return h.service.Submit(ctx, clientID, req.Notes)
	})
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientID, ok := h.clientID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[NotesRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	h.respond(w, r, "approve", func() (*models.ClientKycRecord, error) {
		return h.service.Approve(ctx, capabilities(ctx), clientID, req.Notes)
	})
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientID, ok := h.clientID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[RejectRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	h.respond(w, r, "reject", func() (*models.ClientKycRecord, error) {
		return h.service.Reject(ctx, capabilities(ctx), clientID, req.Reason, req.Notes)
	})
}

func (h *Handler) handleReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientID, ok := h.clientID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ReturnRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	h.respond(w, r, "return to client", func() (*models.ClientKycRecord, error) {
		return h.service.ReturnToClient(ctx, capabilities(ctx), clientID, req.Reason, req.Items, req.Notes)
	})
}

func (h *Handler) handleResubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientID, ok := h.clientID(w, r)
	if !ok {
		return
	}
	h.respond(w, r, "resubmit", func() (*models.ClientKycRecord, error) {
		return h.service.Resubmit(ctx, clientID)
	})
}

func (h *Handler) handleRiskRating(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientID, ok := h.clientID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[RiskRatingRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	h.respond(w, r, "update risk rating", func() (*models.ClientKycRecord, error) {
		return h.service.UpdateRiskRating(ctx, capabilities(ctx), clientID, req.rating, req.Notes)
	})
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, op string, call func() (*models.ClientKycRecord, error)) {
	rec, err := call()
	if err != nil {
		h.fail(w, r, op, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRecordResponse(rec))
}

// fail logs at warn for caller errors and at error for internal ones.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	ctx := r.Context()
	status := httputil.StatusFor(dErrors.CodeOf(err))
	attrs := []any{"request_id", requestcontext.RequestID(ctx), "op", op, "error", err}
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, "kyc request failed", attrs...)
	} else {
		h.logger.WarnContext(ctx, "kyc request rejected", attrs...)
	}
	httputil.WriteError(w, err)
}

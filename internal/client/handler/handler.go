package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"loankyc/internal/client/models"
	id "loankyc/pkg/domain"
	dErrors "loankyc/pkg/domain-errors"
	"loankyc/pkg/platform/httputil"
	"loankyc/pkg/platform/validation"
	"loankyc/pkg/requestcontext"
)

type Service interface {
	Upsert(ctx context.Context, p *models.Profile) (*models.Profile, error)
	Get(ctx context.Context, clientID id.ClientID) (*models.Profile, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/clients/{clientID}/profile", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Put("/", h.handlePut)
	})
}

// ContactRequest is one next-of-kin or referee row.
type ContactRequest struct {
	Name         string `json:"name" validate:"required,max=200"`
	Phone        string `json:"phone" validate:"required,phone"`
	Relationship string `json:"relationship" validate:"max=100"`
}

// ProfileRequest is the full replacement body for a client profile.
// DateOfBirth uses the YYYY-MM-DD layout.
type ProfileRequest struct {
	FullName       string           `json:"fullName" validate:"required,max=200"`
	IdentityNumber string           `json:"identityNumber" validate:"max=64"`
	DateOfBirth    string           `json:"dateOfBirth"`
	PrimaryPhone   string           `json:"primaryPhone" validate:"omitempty,phone"`
	Address        string           `json:"address" validate:"max=500"`
	Employer       string           `json:"employer" validate:"max=200"`
	NextOfKin      []ContactRequest `json:"nextOfKin" validate:"max=10,dive"`
	Referees       []ContactRequest `json:"referees" validate:"max=10,dive"`

	dob *time.Time
}

func (r *ProfileRequest) Validate() error {
	r.FullName = strings.TrimSpace(r.FullName)
	r.PrimaryPhone = strings.TrimSpace(r.PrimaryPhone)
	for i := range r.NextOfKin {
		r.NextOfKin[i].Phone = strings.TrimSpace(r.NextOfKin[i].Phone)
	}
	for i := range r.Referees {
		r.Referees[i].Phone = strings.TrimSpace(r.Referees[i].Phone)
	}
	if err := validation.Struct(r); err != nil {
		return err
	}
	if raw := strings.TrimSpace(r.DateOfBirth); raw != "" {
		t, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return dErrors.New(dErrors.CodeValidation, "dateOfBirth must use YYYY-MM-DD")
		}
		r.dob = &t
	}
	return nil
}

func (r *ProfileRequest) toProfile(clientID id.ClientID) *models.Profile {
	return &models.Profile{
		ClientID:       clientID,
		FullName:       r.FullName,
		IdentityNumber: r.IdentityNumber,
		DateOfBirth:    r.dob,
		PrimaryPhone:   r.PrimaryPhone,
		Address:        r.Address,
		Employer:       r.Employer,
		NextOfKin:      toContacts(r.NextOfKin),
		Referees:       toContacts(r.Referees),
	}
}

func toContacts(in []ContactRequest) []models.Contact {
	out := make([]models.Contact, len(in))
	for i, c := range in {
		out[i] = models.Contact{Name: c.Name, Phone: c.Phone, Relationship: c.Relationship}
	}
	return out
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	clientID, err := id.ParseClientID(chi.URLParam(r, "clientID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	p, err := h.service.Get(r.Context(), clientID)
	if err != nil {
		h.fail(r.Context(), w, "get client profile", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) handlePut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientID, err := id.ParseClientID(chi.URLParam(r, "clientID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[ProfileRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	p, err := h.service.Upsert(ctx, req.toProfile(clientID))
	if err != nil {
		h.fail(ctx, w, "save client profile", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, op string, err error) {
	h.logger.WarnContext(ctx, "client request failed",
		"request_id", requestcontext.RequestID(ctx),
		"op", op,
		"error", err,
	)
	httputil.WriteError(w, err)
}

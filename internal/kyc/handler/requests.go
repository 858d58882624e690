package handler

import (
	"strings"

	"loankyc/internal/kyc/models"
	"loankyc/internal/workflow"
	dErrors "loankyc/pkg/domain-errors"
	"loankyc/pkg/platform/validation"
)

// NotesRequest carries optional reviewer or client notes.
type NotesRequest struct {
	Notes string `json:"notes" validate:"max=2000"`
}

func (r *NotesRequest) Validate() error {
	r.Notes = strings.TrimSpace(r.Notes)
	return validation.Struct(r)
}

// RejectRequest requires a reason. Blank reasons are caught after trimming.
type RejectRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
	Notes  string `json:"notes" validate:"max=2000"`
}

func (r *RejectRequest) Validate() error {
	r.Reason = strings.TrimSpace(r.Reason)
	r.Notes = strings.TrimSpace(r.Notes)
	return validation.Struct(r)
}

// ReturnRequest carries the correction list. Per-item rules are enforced by
// the workflow package so that every caller gets the same checks.
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

// RiskRatingRequest sets a post-verification risk band.
type RiskRatingRequest struct {
	RiskRating string `json:"riskRating" validate:"required"`
	Notes      string `json:"notes" validate:"max=2000"`

	rating models.RiskRating
}

func (r *RiskRatingRequest) Validate() error {
	r.Notes = strings.TrimSpace(r.Notes)
	if err := validation.Struct(r); err != nil {
		return err
	}
	rating, err := models.ParseRiskRating(r.RiskRating)
	if err != nil {
		return err
	}
	r.rating = rating
	return nil
}

func parseOrder(raw string) (models.Order, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "asc", "ascending":
		return models.Ascending, nil
	case "desc", "descending":
		return models.Descending, nil
	}
	return 0, dErrors.New(dErrors.CodeBadRequest, "order must be asc or desc")
}

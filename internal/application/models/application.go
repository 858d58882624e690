package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"loankyc/internal/workflow"
	id "loankyc/pkg/domain"
	dErrors "loankyc/pkg/domain-errors"
)

// Term limits in months.
const (
	MinTermMonths = 1
	MaxTermMonths = 120
)

// LoanApplication follows the same submit/review/return shape as a KYC
// record with its own status vocabulary.
//
// Invariants:
//   - Amount is positive and TermMonths within [MinTermMonths, MaxTermMonths]
//   - DecidedAt and DecidedBy are set exactly while APPROVED or REJECTED
//   - Status RETURNED implies a non-empty ReturnReason and ReturnedItems
//   - terms are editable only while DRAFT or RETURNED
type LoanApplication struct {
	ID            id.ApplicationID        `json:"id"`
	ClientID      id.ClientID             `json:"clientId"`
	Amount        decimal.Decimal         `json:"amount"`
	TermMonths    int                     `json:"termMonths"`
	Purpose       string                  `json:"purpose"`
	Status        Status                  `json:"status"`
	ReturnReason  string                  `json:"returnReason,omitempty"`
	ReturnedItems []workflow.ReturnedItem `json:"returnedItems,omitempty"`
	ReturnedAt    *time.Time              `json:"returnedAt,omitempty"`
	SubmittedAt   *time.Time              `json:"submittedAt,omitempty"`
	DecidedAt     *time.Time              `json:"decidedAt,omitempty"`
	DecidedBy     *id.UserID              `json:"decidedBy,omitempty"`
	History       []HistoryEvent          `json:"history,omitempty"`
	Version       int64                   `json:"version"`
	CreatedAt     time.Time               `json:"createdAt"`
	UpdatedAt     time.Time               `json:"updatedAt"`
}

// Terms are the client-editable parts of an application.
type Terms struct {
	Amount     decimal.Decimal
	TermMonths int
	Purpose    string
}

func (t *Terms) normalize() {
	t.Purpose = strings.TrimSpace(t.Purpose)
	t.Amount = t.Amount.Round(2)
}

func (t Terms) validate() error {
	if !t.Amount.IsPositive() {
		return dErrors.New(dErrors.CodeValidation, "amount must be greater than 0")
	}
	if t.TermMonths < MinTermMonths || t.TermMonths > MaxTermMonths {
		return dErrors.New(dErrors.CodeValidation, "termMonths must be between 1 and 120")
	}
	if t.Purpose == "" {
		return dErrors.New(dErrors.CodeValidation, "purpose is required")
	}
	return nil
}

// NewApplication opens a DRAFT application.
func NewApplication(clientID id.ClientID, terms Terms, now time.Time) (*LoanApplication, error) {
	if clientID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "client id is required")
	}
	terms.normalize()
	if err := terms.validate(); err != nil {
		return nil, err
	}
	return &LoanApplication{
		ID:         id.ApplicationID(uuid.New()),
		ClientID:   clientID,
		Amount:     terms.Amount,
		TermMonths: terms.TermMonths,
		Purpose:    terms.Purpose,
		Status:     StatusDraft,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Editable reports whether the client may change terms or attach documents.
func (a *LoanApplication) Editable() bool {
	return a.Status == StatusDraft || a.Status == StatusReturned
}

// AcceptsDocuments mirrors Editable; uploads follow the same window.
func (a *LoanApplication) AcceptsDocuments() bool {
	return a.Editable()
}

// UpdateTerms replaces the editable fields. It records no history event.
func (a *LoanApplication) UpdateTerms(terms Terms, now time.Time) error {
	terms.normalize()
	if err := terms.validate(); err != nil {
		return err
	}
	if !a.Editable() {
		return dErrors.New(dErrors.CodeInvalidTransition, "application terms cannot change in status "+a.Status.String())
	}
	a.Amount = terms.Amount
	a.TermMonths = terms.TermMonths
	a.Purpose = terms.Purpose
	a.UpdatedAt = now
	return nil
}

// Allows reports whether action is legal from the current status.
func (a *LoanApplication) Allows(action workflow.Action) bool {
	switch a.Status {
	case StatusDraft:
		return action == workflow.ActionSubmit
	case StatusSubmitted:
		return action == workflow.ActionStartReview
	case StatusUnderReview:
		return action == workflow.ActionApprove ||
			action == workflow.ActionReject ||
			action == workflow.ActionReturn
	case StatusReturned:
		return action == workflow.ActionResubmit
	case StatusApproved, StatusRejected:
		return false
	}
	return false
}

func (a *LoanApplication) Can(action workflow.Action) error {
	if !a.Allows(action) {
		return workflow.NewInvalidTransition(a.Status, action)
	}
	return nil
}

func (a *LoanApplication) Submit(actor id.UserID, notes string, now time.Time) (HistoryEvent, error) {
	if err := a.Can(workflow.ActionSubmit); err != nil {
		return HistoryEvent{}, err
	}
	submittedAt := now
	a.SubmittedAt = &submittedAt
	return a.apply(workflow.ActionSubmit, StatusSubmitted, actor, "", notes, now), nil
}

func (a *LoanApplication) StartReview(actor id.UserID, now time.Time) (HistoryEvent, error) {
	if err := a.Can(workflow.ActionStartReview); err != nil {
		return HistoryEvent{}, err
	}
	return a.apply(workflow.ActionStartReview, StatusUnderReview, actor, "", "", now), nil
}

func (a *LoanApplication) Approve(actor id.UserID, notes string, now time.Time) (HistoryEvent, error) {
	if err := a.Can(workflow.ActionApprove); err != nil {
		return HistoryEvent{}, err
	}
	ev := a.apply(workflow.ActionApprove, StatusApproved, actor, "", notes, now)
	a.decide(actor, now)
	return ev, nil
}

func (a *LoanApplication) Reject(actor id.UserID, reason, notes string, now time.Time) (HistoryEvent, error) {
	reason, err := workflow.RequireReason(reason)
	if err != nil {
		return HistoryEvent{}, err
	}
	if err := a.Can(workflow.ActionReject); err != nil {
		return HistoryEvent{}, err
	}
	ev := a.apply(workflow.ActionReject, StatusRejected, actor, reason, notes, now)
	a.decide(actor, now)
	return ev, nil
}

func (a *LoanApplication) ReturnToClient(actor id.UserID, reason string, items []workflow.ReturnedItem, notes string, now time.Time) (HistoryEvent, error) {
	reason, items, err := workflow.PrepareReturn(reason, items)
	if err != nil {
		return HistoryEvent{}, err
	}
	if err := a.Can(workflow.ActionReturn); err != nil {
		return HistoryEvent{}, err
	}
	ev := a.apply(workflow.ActionReturn, StatusReturned, actor, reason, notes, now)
	returnedAt := now
	a.ReturnReason = reason
	a.ReturnedItems = items
	a.ReturnedAt = &returnedAt
	return ev, nil
}

// Resubmit sends a RETURNED application back to SUBMITTED. Return details are
// retained for audit.
func (a *LoanApplication) Resubmit(actor id.UserID, now time.Time) (HistoryEvent, error) {
	if err := a.Can(workflow.ActionResubmit); err != nil {
		return HistoryEvent{}, err
	}
	submittedAt := now
	a.SubmittedAt = &submittedAt
	return a.apply(workflow.ActionResubmit, StatusSubmitted, actor, "", "", now), nil
}

func (a *LoanApplication) HasPendingCorrections() bool {
	return a.Status == StatusReturned && len(a.ReturnedItems) > 0
}

func (a *LoanApplication) Cues() workflow.Cues {
	if !a.HasPendingCorrections() {
		return workflow.Cues{}
	}
	return workflow.SplitCues(a.ReturnedItems)
}

func (a *LoanApplication) decide(actor id.UserID, now time.Time) {
	decidedAt := now
	decidedBy := actor
	a.DecidedAt = &decidedAt
	a.DecidedBy = &decidedBy
}

func (a *LoanApplication) apply(action workflow.Action, to Status, actor id.UserID, reason, notes string, now time.Time) HistoryEvent {
	from := a.Status
	a.Status = to
	a.UpdatedAt = now
	return HistoryEvent{
		ID:            uuid.New(),
		ApplicationID: a.ID,
		ClientID:      a.ClientID,
		Sequence:      a.Version + 1,
		Action:        action,
		FromStatus:    from,
		ToStatus:      to,
		Reason:        reason,
		Notes:         strings.TrimSpace(notes),
		PerformedBy:   actor,
		CreatedAt:     now,
	}
}

// Validate checks the application-level invariants.
func (a *LoanApplication) Validate() error {
	if !a.Status.IsValid() {
		return dErrors.New(dErrors.CodeInvariantViolation, "unknown application status")
	}
	if !a.Amount.IsPositive() {
		return dErrors.New(dErrors.CodeInvariantViolation, "amount must be positive")
	}
	if a.Status.IsTerminal() != (a.DecidedAt != nil) {
		return dErrors.New(dErrors.CodeInvariantViolation, "decidedAt must be set exactly when decided")
	}
	if a.Status == StatusReturned {
		if strings.TrimSpace(a.ReturnReason) == "" || len(a.ReturnedItems) == 0 {
			return dErrors.New(dErrors.CodeInvariantViolation, "returned application requires a reason and items")
		}
	}
	return nil
}

func (a *LoanApplication) Clone() *LoanApplication {
	if a == nil {
		return nil
	}
	c := *a
	c.ReturnedAt = cloneTime(a.ReturnedAt)
	c.SubmittedAt = cloneTime(a.SubmittedAt)
	c.DecidedAt = cloneTime(a.DecidedAt)
	if a.DecidedBy != nil {
		u := *a.DecidedBy
		c.DecidedBy = &u
	}
	c.ReturnedItems = workflow.CloneItems(a.ReturnedItems)
	if a.History != nil {
		c.History = append([]HistoryEvent(nil), a.History...)
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"loankyc/internal/workflow"
	id "loankyc/pkg/domain"
	dErrors "loankyc/pkg/domain-errors"
)

// ClientKycRecord is the aggregate root for one client's verification.
//
// Invariants:
//   - Status is one of the five enumerated values
//   - RiskRating is only set once the record has reached VERIFIED
//   - VerifiedAt and VerifiedBy are set exactly while Status is VERIFIED
//   - Status RETURNED implies a non-empty ReturnReason and ReturnedItems
//   - every status change appends exactly one HistoryEvent, in order
//
// Transition methods check input, then the status guard, and only then mutate.
// A failed call leaves the record untouched.
type ClientKycRecord struct {
	ClientID      id.ClientID             `json:"clientId"`
	Status        Status                  `json:"status"`
	RiskRating    RiskRating              `json:"riskRating,omitempty"`
	VerifiedAt    *time.Time              `json:"verifiedAt,omitempty"`
	VerifiedBy    *id.UserID              `json:"verifiedBy,omitempty"`
	ReturnReason  string                  `json:"returnReason,omitempty"`
	ReturnedItems []workflow.ReturnedItem `json:"returnedItems,omitempty"`
	ReturnedAt    *time.Time              `json:"returnedAt,omitempty"`
	History       []HistoryEvent          `json:"history"`
	Version       int64                   `json:"version"`
	CreatedAt     time.Time               `json:"createdAt"`
	UpdatedAt     time.Time               `json:"updatedAt"`
}

// NewRecord starts a client at UNVERIFIED.
func NewRecord(clientID id.ClientID, now time.Time) (*ClientKycRecord, error) {
	if clientID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "client id is required")
	}
	return &ClientKycRecord{
		ClientID:  clientID,
		Status:    StatusUnverified,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Allows reports whether action is legal from the current status. Every status
// has its own case; an unknown status allows nothing.
func (r *ClientKycRecord) Allows(action workflow.Action) bool {
	switch r.Status {
	case StatusUnverified:
		return action == workflow.ActionSubmit
	case StatusPendingReview:
		return action == workflow.ActionApprove ||
			action == workflow.ActionReject ||
			action == workflow.ActionReturn
	case StatusVerified:
		return action == workflow.ActionUpdateRiskRating
	case StatusRejected:
		return false
	case StatusReturned:
		return action == workflow.ActionResubmit
	}
	return false
}

// Can returns an InvalidTransitionError when action is not allowed.
func (r *ClientKycRecord) Can(action workflow.Action) error {
	if !r.Allows(action) {
		return workflow.NewInvalidTransition(r.Status, action)
	}
	return nil
}

// AcceptsDocuments reports whether uploads are open for this client.
func (r *ClientKycRecord) AcceptsDocuments() bool {
	return r.Status == StatusUnverified || r.Status == StatusReturned
}

// Submit moves UNVERIFIED to PENDING_REVIEW.
func (r *ClientKycRecord) Submit(actor id.UserID, notes string, now time.Time) (HistoryEvent, error) {
	if err := r.Can(workflow.ActionSubmit); err != nil {
		return HistoryEvent{}, err
	}
	return r.apply(workflow.ActionSubmit, StatusPendingReview, actor, "", notes, now), nil
}

// Approve moves PENDING_REVIEW to VERIFIED and stamps the verifier.
func (r *ClientKycRecord) Approve(actor id.UserID, notes string, now time.Time) (HistoryEvent, error) {
	if err := r.Can(workflow.ActionApprove); err != nil {
		return HistoryEvent{}, err
	}
	ev := r.apply(workflow.ActionApprove, StatusVerified, actor, "", notes, now)
	verifiedAt := now
	verifiedBy := actor
	r.VerifiedAt = &verifiedAt
	r.VerifiedBy = &verifiedBy
	return ev, nil
}

// Reject moves PENDING_REVIEW to REJECTED with a mandatory reason.
func (r *ClientKycRecord) Reject(actor id.UserID, reason, notes string, now time.Time) (HistoryEvent, error) {
	reason, err := workflow.RequireReason(reason)
	if err != nil {
		return HistoryEvent{}, err
	}
	if err := r.Can(workflow.ActionReject); err != nil {
		return HistoryEvent{}, err
	}
	return r.apply(workflow.ActionReject, StatusRejected, actor, reason, notes, now), nil
}

// ReturnToClient moves PENDING_REVIEW to RETURNED with a reason and a
// non-empty ordered list of corrections.
func (r *ClientKycRecord) ReturnToClient(actor id.UserID, reason string, items []workflow.ReturnedItem, notes string, now time.Time) (HistoryEvent, error) {
	reason, items, err := workflow.PrepareReturn(reason, items)
	if err != nil {
		return HistoryEvent{}, err
	}
	if err := r.Can(workflow.ActionReturn); err != nil {
		return HistoryEvent{}, err
	}
	ev := r.apply(workflow.ActionReturn, StatusReturned, actor, reason, notes, now)
	returnedAt := now
	r.ReturnReason = reason
	r.ReturnedItems = items
	r.ReturnedAt = &returnedAt
	return ev, nil
}

// Resubmit moves RETURNED back to PENDING_REVIEW. The return reason and items
// stay on the record for audit; all of them count as addressed.
func (r *ClientKycRecord) Resubmit(actor id.UserID, now time.Time) (HistoryEvent, error) {
	if err := r.Can(workflow.ActionResubmit); err != nil {
		return HistoryEvent{}, err
	}
	return r.apply(workflow.ActionResubmit, StatusPendingReview, actor, "", "", now), nil
}

// UpdateRiskRating sets the rating on a VERIFIED record. Repeating the same
// rating still records an audit entry.
func (r *ClientKycRecord) UpdateRiskRating(actor id.UserID, rating RiskRating, notes string, now time.Time) (HistoryEvent, error) {
	if !rating.IsValid() {
		return HistoryEvent{}, dErrors.New(dErrors.CodeValidation, "risk rating must be one of LOW, MEDIUM, HIGH")
	}
	if err := r.Can(workflow.ActionUpdateRiskRating); err != nil {
		return HistoryEvent{}, err
	}
	ev := r.apply(workflow.ActionUpdateRiskRating, StatusVerified, actor, "", notes, now)
	ev.RiskRating = rating
	r.History[len(r.History)-1].RiskRating = rating
	r.RiskRating = rating
	return ev, nil
}

// HasPendingCorrections reports whether returned items still drive client
// prompts. They stop doing so once the record is resubmitted.
func (r *ClientKycRecord) HasPendingCorrections() bool {
	return r.Status == StatusReturned && len(r.ReturnedItems) > 0
}

// Cues returns the edit/upload prompts for a RETURNED record.
func (r *ClientKycRecord) Cues() workflow.Cues {
	if !r.HasPendingCorrections() {
		return workflow.Cues{}
	}
	return workflow.SplitCues(r.ReturnedItems)
}

// apply performs the status change and appends its event. Guards have run.
func (r *ClientKycRecord) apply(action workflow.Action, to Status, actor id.UserID, reason, notes string, now time.Time) HistoryEvent {
	from := r.Status
	if from == StatusVerified && to != StatusVerified {
		r.VerifiedAt = nil
		r.VerifiedBy = nil
	}
	r.Status = to
	r.UpdatedAt = now

	ev := HistoryEvent{
		ID:          uuid.New(),
		ClientID:    r.ClientID,
		Sequence:    r.Version + 1,
		Action:      action,
		FromStatus:  from,
		ToStatus:    to,
		Reason:      reason,
		Notes:       strings.TrimSpace(notes),
		PerformedBy: actor,
		CreatedAt:   now,
	}
	r.History = append(r.History, ev)
	return ev
}

// Validate checks the record-level invariants. Stores call it before writing
// and after decoding.
func (r *ClientKycRecord) Validate() error {
	if !r.Status.IsValid() {
		return dErrors.New(dErrors.CodeInvariantViolation, "unknown kyc status")
	}
	if r.RiskRating != "" {
		if !r.RiskRating.IsValid() {
			return dErrors.New(dErrors.CodeInvariantViolation, "unknown risk rating")
		}
		if !r.wasVerified() {
			return dErrors.New(dErrors.CodeInvariantViolation, "risk rating requires a verified record")
		}
	}
	if (r.Status == StatusVerified) != (r.VerifiedAt != nil) {
		return dErrors.New(dErrors.CodeInvariantViolation, "verifiedAt must be set exactly while verified")
	}
	if r.Status == StatusReturned {
		if strings.TrimSpace(r.ReturnReason) == "" || len(r.ReturnedItems) == 0 {
			return dErrors.New(dErrors.CodeInvariantViolation, "returned record requires a reason and items")
		}
	}
	return nil
}

func (r *ClientKycRecord) wasVerified() bool {
	if r.Status == StatusVerified {
		return true
	}
	for _, ev := range r.History {
		if ev.ToStatus == StatusVerified {
			return true
		}
	}
	return false
}

// Clone returns a deep copy, used by in-memory stores and staged transactions.
func (r *ClientKycRecord) Clone() *ClientKycRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.VerifiedAt != nil {
		t := *r.VerifiedAt
		c.VerifiedAt = &t
	}
	if r.VerifiedBy != nil {
		u := *r.VerifiedBy
		c.VerifiedBy = &u
	}
	if r.ReturnedAt != nil {
		t := *r.ReturnedAt
		c.ReturnedAt = &t
	}
	c.ReturnedItems = workflow.CloneItems(r.ReturnedItems)
	if r.History != nil {
		c.History = append([]HistoryEvent(nil), r.History...)
	}
	return &c
}

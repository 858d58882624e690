package models

import (
	"time"

	"github.com/google/uuid"

	"loankyc/internal/workflow"
	id "loankyc/pkg/domain"
)

// HistoryEvent is one append-only entry in an application's ledger.
type HistoryEvent struct {
	ID            uuid.UUID        `json:"id"`
	ApplicationID id.ApplicationID `json:"applicationId"`
	ClientID      id.ClientID      `json:"clientId"`
	Sequence      int64            `json:"sequence"`
	Action        workflow.Action  `json:"action"`
	FromStatus    Status           `json:"fromStatus"`
	ToStatus      Status           `json:"toStatus"`
	Reason        string           `json:"reason,omitempty"`
	Notes         string           `json:"notes,omitempty"`
	PerformedBy   id.UserID        `json:"performedBy"`
	CreatedAt     time.Time        `json:"createdAt"`
}

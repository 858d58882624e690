package models

import (
	"time"

	"github.com/google/uuid"

	"loankyc/internal/workflow"
	id "loankyc/pkg/domain"
)

// HistoryEvent is one append-only ledger entry. A risk-rating update is
// recorded with FromStatus == ToStatus == VERIFIED.
type HistoryEvent struct {
	ID          uuid.UUID       `json:"id"`
	ClientID    id.ClientID     `json:"clientId"`
	Sequence    int64           `json:"sequence"`
	Action      workflow.Action `json:"action"`
	FromStatus  Status          `json:"fromStatus"`
	ToStatus    Status          `json:"toStatus"`
	Reason      string          `json:"reason,omitempty"`
	Notes       string          `json:"notes,omitempty"`
	RiskRating  RiskRating      `json:"riskRating,omitempty"`
	PerformedBy id.UserID       `json:"performedBy"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Order is the direction a caller wants history in.
type Order int

const (
	// Ascending is oldest first, used for audit trails.
	Ascending Order = iota
	// Descending is newest first, used for "latest status" displays.
	Descending
)

// Before orders events by CreatedAt then Sequence.
func (e HistoryEvent) Before(other HistoryEvent) bool {
	if e.CreatedAt.Equal(other.CreatedAt) {
		return e.Sequence < other.Sequence
	}
	return e.CreatedAt.Before(other.CreatedAt)
}

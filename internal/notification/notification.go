// Package notification fans workflow outcomes out to clients and staff.
// Dispatch is fire-and-forget from the workflow's point of view: a failed
// delivery is logged and never rolls back a committed transition.
package notification

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Subject says which workflow produced the event.
type Subject string

const (
	SubjectKyc         Subject = "kyc"
	SubjectApplication Subject = "application"
)

// Event is the payload every adapter publishes.
type Event struct {
	ID          uuid.UUID `json:"id"`
	Subject     Subject   `json:"subject"`
	SubjectID   string    `json:"subjectId"`
	ClientID    string    `json:"clientId"`
	Action      string    `json:"action"`
	FromStatus  string    `json:"fromStatus"`
	ToStatus    string    `json:"toStatus"`
	Reason      string    `json:"reason,omitempty"`
	PerformedBy string    `json:"performedBy"`
	OccurredAt  time.Time `json:"occurredAt"`
	RequestID   string    `json:"requestId,omitempty"`
}

// Key groups a client's events onto one partition or routing key.
func (e Event) Key() string {
	return e.ClientID
}

func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Dispatcher delivers workflow events.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Dispatch(context.Context, Event) error { return nil }

package models

import (
	"encoding/json"
	"strings"

	dErrors "loankyc/pkg/domain-errors"
)

// Status is the lifecycle state of a loan application.
type Status string

const (
	StatusDraft       Status = "DRAFT"
	StatusSubmitted   Status = "SUBMITTED"
	StatusUnderReview Status = "UNDER_REVIEW"
	StatusApproved    Status = "APPROVED"
	StatusRejected    Status = "REJECTED"
	StatusReturned    Status = "RETURNED"
)

var statusAliases = map[string]Status{
	"RETURNED_TO_CLIENT": StatusReturned,
}

var AllStatuses = []Status{
	StatusDraft,
	StatusSubmitted,
	StatusUnderReview,
	StatusApproved,
	StatusRejected,
	StatusReturned,
}

// ParseStatus trims, upper-cases and folds RETURNED_TO_CLIENT into RETURNED.
func ParseStatus(s string) (Status, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	if norm == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "status cannot be empty")
	}
	if alias, ok := statusAliases[norm]; ok {
		return alias, nil
	}
	st := Status(norm)
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown application status "+s)
	}
	return st, nil
}

func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusUnderReview, StatusApproved, StatusRejected, StatusReturned:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

func (s Status) String() string { return string(s) }

func (s *Status) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "status must be a string")
	}
	st, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

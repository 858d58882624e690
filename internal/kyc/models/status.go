package models

import (
	"encoding/json"
	"strings"

	dErrors "loankyc/pkg/domain-errors"
)

// Status is the verification state of one client.
type Status string

const (
	StatusUnverified    Status = "UNVERIFIED"
	StatusPendingReview Status = "PENDING_REVIEW"
	StatusVerified      Status = "VERIFIED"
	StatusRejected      Status = "REJECTED"
	StatusReturned      Status = "RETURNED"
)

// statusAliases maps wire synonyms to their canonical status.
var statusAliases = map[string]Status{
	"RETURNED_TO_CLIENT": StatusReturned,
}

// AllStatuses lists every valid status, in workflow order.
var AllStatuses = []Status{
	StatusUnverified,
	StatusPendingReview,
	StatusVerified,
	StatusRejected,
	StatusReturned,
}

// ParseStatus is the only way external strings become a Status. It trims,
// upper-cases and folds synonyms.
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
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown kyc status "+s)
	}
	return st, nil
}

func (s Status) IsValid() bool {
	switch s {
	case StatusUnverified, StatusPendingReview, StatusVerified, StatusRejected, StatusReturned:
		return true
	}
	return false
}

func (s Status) String() string { return string(s) }

// UnmarshalJSON routes decoded values through ParseStatus so that synonyms
// never reach the core.
func (s *Status) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	st, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// RiskRating is the post-verification credit risk band.
type RiskRating string

const (
	RiskLow    RiskRating = "LOW"
	RiskMedium RiskRating = "MEDIUM"
	RiskHigh   RiskRating = "HIGH"
)

func ParseRiskRating(s string) (RiskRating, error) {
	r := RiskRating(strings.ToUpper(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "risk rating must be one of LOW, MEDIUM, HIGH")
	}
	return r, nil
}

func (r RiskRating) IsValid() bool {
	return r == RiskLow || r == RiskMedium || r == RiskHigh
}

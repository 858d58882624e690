package models

import "time"

// ChecklistItem names one submission prerequisite.
type ChecklistItem string

const (
	ChecklistIdentityNumber ChecklistItem = "identity_number"
	ChecklistDateOfBirth    ChecklistItem = "date_of_birth"
	ChecklistPrimaryPhone   ChecklistItem = "primary_phone"
	ChecklistAddress        ChecklistItem = "address"
	ChecklistNextOfKin      ChecklistItem = "next_of_kin"
	ChecklistReferees       ChecklistItem = "referees"
	ChecklistDocuments      ChecklistItem = "documents"
)

// Minimums for the counted checklist items.
const (
	MinNextOfKin = 1
	MinReferees  = 2
	MinDocuments = 1
)

// ReadinessInput is the evidence gathered for a readiness check.
type ReadinessInput struct {
	IdentityNumber  string
	DateOfBirth     *time.Time
	PrimaryPhone    string
	Address         string
	NextOfKinCount  int
	RefereeCount    int
	ActiveDocuments int
}

// Readiness is the result of a submission checklist evaluation.
type Readiness struct {
	Ready   bool            `json:"ready"`
	Missing []ChecklistItem `json:"missing"`
}

// EvaluateReadiness is pure: same input, same answer, no side effects.
func EvaluateReadiness(in ReadinessInput) Readiness {
	missing := []ChecklistItem{}
	if in.IdentityNumber == "" {
		missing = append(missing, ChecklistIdentityNumber)
	}
	if in.DateOfBirth == nil || in.DateOfBirth.IsZero() {
		missing = append(missing, ChecklistDateOfBirth)
	}
	if in.PrimaryPhone == "" {
		missing = append(missing, ChecklistPrimaryPhone)
	}
	if in.Address == "" {
		missing = append(missing, ChecklistAddress)
	}
	if in.NextOfKinCount < MinNextOfKin {
		missing = append(missing, ChecklistNextOfKin)
	}
	if in.RefereeCount < MinReferees {
		missing = append(missing, ChecklistReferees)
	}
	if in.ActiveDocuments < MinDocuments {
		missing = append(missing, ChecklistDocuments)
	}
	return Readiness{Ready: len(missing) == 0, Missing: missing}
}

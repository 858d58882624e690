package models

import (
	"strings"
	"time"

	id "loankyc/pkg/domain"
	dErrors "loankyc/pkg/domain-errors"
)

// Contact is a next-of-kin or referee entry.
type Contact struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Relationship string `json:"relationship,omitempty"`
}

func (c Contact) complete() bool {
	return strings.TrimSpace(c.Name) != "" && strings.TrimSpace(c.Phone) != ""
}

// Profile is the personal information a client supplies before KYC review.
// Every field may be incomplete; readiness reports what is missing.
type Profile struct {
	ClientID       id.ClientID `json:"clientId"`
	FullName       string      `json:"fullName"`
	IdentityNumber string      `json:"identityNumber,omitempty"`
	DateOfBirth    *time.Time  `json:"dateOfBirth,omitempty"`
	PrimaryPhone   string      `json:"primaryPhone,omitempty"`
	Address        string      `json:"address,omitempty"`
	Employer       string      `json:"employer,omitempty"`
	NextOfKin      []Contact   `json:"nextOfKin"`
	Referees       []Contact   `json:"referees"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// NextOfKinCount counts entries with both a name and a phone.
func (p *Profile) NextOfKinCount() int {
	return countComplete(p.NextOfKin)
}

// RefereeCount counts entries with both a name and a phone.
func (p *Profile) RefereeCount() int {
	return countComplete(p.Referees)
}

func countComplete(contacts []Contact) int {
	n := 0
	for _, c := range contacts {
		if c.complete() {
			n++
		}
	}
	return n
}

// Normalize trims free text and drops empty contact rows.
func (p *Profile) Normalize() {
	p.FullName = strings.TrimSpace(p.FullName)
	p.IdentityNumber = strings.TrimSpace(p.IdentityNumber)
	p.PrimaryPhone = strings.TrimSpace(p.PrimaryPhone)
	p.Address = strings.TrimSpace(p.Address)
	p.Employer = strings.TrimSpace(p.Employer)
	p.NextOfKin = normalizeContacts(p.NextOfKin)
	p.Referees = normalizeContacts(p.Referees)
}

func normalizeContacts(in []Contact) []Contact {
	out := make([]Contact, 0, len(in))
	for _, c := range in {
		c.Name = strings.TrimSpace(c.Name)
		c.Phone = strings.TrimSpace(c.Phone)
		c.Relationship = strings.TrimSpace(c.Relationship)
		if c.Name == "" && c.Phone == "" {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Validate checks the fields that must hold even on a partial profile.
func (p *Profile) Validate(now time.Time) error {
	if p.ClientID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "client id is required")
	}
	if p.FullName == "" {
		return dErrors.New(dErrors.CodeValidation, "full name is required")
	}
	if p.DateOfBirth != nil && p.DateOfBirth.After(now) {
		return dErrors.New(dErrors.CodeValidation, "date of birth cannot be in the future")
	}
	for _, c := range append(append([]Contact{}, p.NextOfKin...), p.Referees...) {
		if !c.complete() {
			return dErrors.New(dErrors.CodeValidation, "contacts require a name and phone")
		}
	}
	return nil
}

// Clone returns a deep copy.
func (p *Profile) Clone() *Profile {
	c := *p
	if p.DateOfBirth != nil {
		dob := *p.DateOfBirth
		c.DateOfBirth = &dob
	}
	c.NextOfKin = append([]Contact{}, p.NextOfKin...)
	c.Referees = append([]Contact{}, p.Referees...)
	return &c
}

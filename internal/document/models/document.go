package models

import (
	"strings"
	"time"

	id "loankyc/pkg/domain"
	dErrors "loankyc/pkg/domain-errors"
)

// ScanStatus is reported by the virus-scanning collaborator.
type ScanStatus string

const (
	ScanPending  ScanStatus = "pending"
	ScanClean    ScanStatus = "clean"
	ScanInfected ScanStatus = "infected"
)

func ParseScanStatus(s string) (ScanStatus, error) {
	st := ScanStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "scan status must be one of pending, clean, infected")
	}
	return st, nil
}

func (s ScanStatus) IsValid() bool {
	return s == ScanPending || s == ScanClean || s == ScanInfected
}

// ReviewStatus applies to loan-application documents only.
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "PENDING"
	ReviewVerified ReviewStatus = "VERIFIED"
	ReviewRejected ReviewStatus = "REJECTED"
)

func ParseReviewStatus(s string) (ReviewStatus, error) {
	st := ReviewStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "review status must be one of PENDING, VERIFIED, REJECTED")
	}
	return st, nil
}

func (s ReviewStatus) IsValid() bool {
	return s == ReviewPending || s == ReviewVerified || s == ReviewRejected
}

// ClientDocument is one uploaded file. After creation only the scan status,
// the review status and the deleted flag change.
//
// Invariants:
//   - ReviewStatus is set iff ApplicationID is set
//   - ReviewNotes is non-empty only while ReviewStatus is REJECTED
//   - a deleted document is never counted and never returned by lookups
//   - Version grows by one on every stored change
type ClientDocument struct {
	ID            id.DocumentID     `json:"id"`
	ClientID      id.ClientID       `json:"clientId"`
	ApplicationID *id.ApplicationID `json:"applicationId,omitempty"`
	Type          id.DocumentType   `json:"documentType"`
	FileName      string            `json:"fileName"`
	MimeType      string            `json:"mimeType"`
	SizeBytes     int64             `json:"sizeBytes"`
	StoragePath   string            `json:"-"`
	Checksum      string            `json:"checksum"`
	ScanStatus    ScanStatus        `json:"scanStatus"`
	ReviewStatus  ReviewStatus      `json:"reviewStatus,omitempty"`
	ReviewNotes   string            `json:"reviewNotes,omitempty"`
	ReviewedBy    *id.UserID        `json:"reviewedBy,omitempty"`
	ReviewedAt    *time.Time        `json:"reviewedAt,omitempty"`
	UploadedBy    id.UserID         `json:"uploadedBy"`
	IsDeleted     bool              `json:"isDeleted"`
	DeletedAt     *time.Time        `json:"deletedAt,omitempty"`
	DeletedBy     *id.UserID        `json:"deletedBy,omitempty"`
	Version       int64             `json:"version"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// IsApplicationDocument reports whether the document belongs to a loan
// application rather than the client's KYC file.
func (d *ClientDocument) IsApplicationDocument() bool {
	return d.ApplicationID != nil
}

// SetScanStatus records the scanner verdict. A verified review that no
// longer rests on a clean scan goes back to PENDING.
func (d *ClientDocument) SetScanStatus(status ScanStatus, now time.Time) error {
	if !status.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "unknown scan status")
	}
	d.ScanStatus = status
	if status != ScanClean && d.ReviewStatus == ReviewVerified {
		d.ReviewStatus = ReviewPending
		d.ReviewedBy = nil
		d.ReviewedAt = nil
	}
	d.UpdatedAt = now
	return nil
}

// Review sets the review outcome. Notes are kept only for REJECTED.
func (d *ClientDocument) Review(status ReviewStatus, notes string, actor id.UserID, now time.Time) error {
	if !status.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "unknown review status")
	}
	if !d.IsApplicationDocument() {
		return dErrors.New(dErrors.CodeValidation, "only loan application documents are reviewed")
	}
	if status == ReviewVerified && d.ScanStatus != ScanClean {
		return dErrors.New(dErrors.CodeValidation, "document cannot be verified before a clean scan")
	}
	d.ReviewStatus = status
	d.ReviewNotes = ""
	if status == ReviewRejected {
		d.ReviewNotes = strings.TrimSpace(notes)
	}
	if status == ReviewPending {
		d.ReviewedBy = nil
		d.ReviewedAt = nil
	} else {
		reviewedAt := now
		reviewedBy := actor
		d.ReviewedAt = &reviewedAt
		d.ReviewedBy = &reviewedBy
	}
	d.UpdatedAt = now
	return nil
}

// MarkDeleted soft-deletes the document.
func (d *ClientDocument) MarkDeleted(actor id.UserID, now time.Time) {
	deletedAt := now
	deletedBy := actor
	d.IsDeleted = true
	d.DeletedAt = &deletedAt
	d.DeletedBy = &deletedBy
	d.UpdatedAt = now
}

func (d *ClientDocument) Clone() *ClientDocument {
	c := *d
	if d.ApplicationID != nil {
		a := *d.ApplicationID
		c.ApplicationID = &a
	}
	if d.ReviewedBy != nil {
		u := *d.ReviewedBy
		c.ReviewedBy = &u
	}
	if d.ReviewedAt != nil {
		t := *d.ReviewedAt
		c.ReviewedAt = &t
	}
	if d.DeletedAt != nil {
		t := *d.DeletedAt
		c.DeletedAt = &t
	}
	if d.DeletedBy != nil {
		u := *d.DeletedBy
		c.DeletedBy = &u
	}
	return &c
}

// Filter narrows a document listing.
type Filter struct {
	ApplicationID *id.ApplicationID
	Type          id.DocumentType
}

func (f Filter) Matches(d *ClientDocument) bool {
	if f.ApplicationID != nil && (d.ApplicationID == nil || *d.ApplicationID != *f.ApplicationID) {
		return false
	}
	if f.Type != "" && d.Type != f.Type {
		return false
	}
	return true
}

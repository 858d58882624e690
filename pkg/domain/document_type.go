package domain

import (
	"strings"

	dErrors "loankyc/pkg/domain-errors"
)

// DocumentType categorizes an uploaded document. Returned items of type
// "document" point at one of these values.
//
// Usage: construct via ParseDocumentType at trust boundaries; direct casting
// bypasses the allowlist.
type DocumentType string

const (
	DocumentNationalID          DocumentType = "NATIONAL_ID"
	DocumentPassport            DocumentType = "PASSPORT"
	DocumentProofOfResidence    DocumentType = "PROOF_OF_RESIDENCE"
	DocumentPayslip             DocumentType = "PAYSLIP"
	DocumentBankStatement       DocumentType = "BANK_STATEMENT"
	DocumentEmploymentLetter    DocumentType = "EMPLOYMENT_LETTER"
	DocumentPhoto               DocumentType = "PHOTO"
	DocumentLoanApplicationForm DocumentType = "LOAN_APPLICATION_FORM"
	DocumentOther               DocumentType = "OTHER"
)

var validDocumentTypes = map[DocumentType]bool{
	DocumentNationalID:          true,
	DocumentPassport:            true,
	DocumentProofOfResidence:    true,
	DocumentPayslip:             true,
	DocumentBankStatement:       true,
	DocumentEmploymentLetter:    true,
	DocumentPhoto:               true,
	DocumentLoanApplicationForm: true,
	DocumentOther:               true,
}

// ParseDocumentType accepts any casing and surrounding whitespace.
func ParseDocumentType(s string) (DocumentType, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "document type cannot be empty")
	}
	t := DocumentType(s)
	if !t.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unsupported document type")
	}
	return t, nil
}

func (t DocumentType) IsValid() bool { return validDocumentTypes[t] }

func (t DocumentType) String() string { return string(t) }

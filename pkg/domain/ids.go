package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "loankyc/pkg/domain-errors"
)

// Typed identifiers. Each wraps a UUID so that a client ID can never be passed
// where a document ID is expected.
type (
	UserID        uuid.UUID
	ClientID      uuid.UUID
	DocumentID    uuid.UUID
	ApplicationID uuid.UUID
)

// maxIDLength bounds input before it reaches the UUID parser.
const maxIDLength = 64

func parseUUID(kind, s string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	if len(s) > maxIDLength {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	return u, nil
}

// ParseUserID parses an actor identifier at a trust boundary.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID("user_id", s)
	return UserID(u), err
}

// ParseClientID parses a borrower (client) identifier.
func ParseClientID(s string) (ClientID, error) {
	u, err := parseUUID("client_id", s)
	return ClientID(u), err
}

// ParseDocumentID parses a document identifier.
func ParseDocumentID(s string) (DocumentID, error) {
	u, err := parseUUID("document_id", s)
	return DocumentID(u), err
}

// ParseApplicationID parses a loan application identifier.
func ParseApplicationID(s string) (ApplicationID, error) {
	u, err := parseUUID("application_id", s)
	return ApplicationID(u), err
}

func (id UserID) String() string { return uuid.UUID(id).String() }
func (id UserID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id UserID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}
func (id *UserID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid user_id")
	}
	*id = UserID(u)
	return nil
}

func (id ClientID) String() string { return uuid.UUID(id).String() }
func (id ClientID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id ClientID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}
func (id *ClientID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid client_id")
	}
	*id = ClientID(u)
	return nil
}

func (id DocumentID) String() string { return uuid.UUID(id).String() }
func (id DocumentID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id DocumentID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}
func (id *DocumentID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid document_id")
	}
	*id = DocumentID(u)
	return nil
}

func (id ApplicationID) String() string { return uuid.UUID(id).String() }
func (id ApplicationID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id ApplicationID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}
func (id *ApplicationID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid application_id")
	}
	*id = ApplicationID(u)
	return nil
}

// Package authz turns the caller's role into the capabilities the workflow
// engines check. Who the caller is and how the role was asserted is the
// identity provider's business.
package authz

import (
	"strings"

	"github.com/google/uuid"

	id "loankyc/pkg/domain"
	dErrors "loankyc/pkg/domain-errors"
)

// Role is a staff or client role name carried in the bearer token.
type Role string

const (
	RoleAdmin       Role = "ADMIN"
	RoleManager     Role = "MANAGER"
	RoleLoanOfficer Role = "LOAN_OFFICER"
	RoleClient      Role = "CLIENT"
)

// Capabilities is the explicit permission set handed to every transition.
type Capabilities struct {
	MayReview bool
	MayDelete bool
}

var roleCapabilities = map[Role]Capabilities{
	RoleAdmin:       {MayReview: true, MayDelete: true},
	RoleManager:     {MayReview: true, MayDelete: true},
	RoleLoanOfficer: {MayReview: true},
	RoleClient:      {},
}

// ParseRole normalizes a role claim. Unknown roles are rejected rather than
// mapped to an empty capability set.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := roleCapabilities[r]; !ok {
		return "", dErrors.New(dErrors.CodeForbidden, "unknown role")
	}
	return r, nil
}

// For returns the capabilities granted to role. Unknown roles get none.
func For(role Role) Capabilities {
	return roleCapabilities[role]
}

// FromRoleName is ParseRole followed by For, with unknown roles granting nothing.
func FromRoleName(s string) Capabilities {
	r, err := ParseRole(s)
	if err != nil {
		return Capabilities{}
	}
	return For(r)
}

// RequireReview returns a Forbidden error unless review is allowed.
func (c Capabilities) RequireReview() error {
	if !c.MayReview {
		return dErrors.New(dErrors.CodeForbidden, "reviewer role required")
	}
	return nil
}

// RequireDelete returns a Forbidden error unless deletion is allowed.
func (c Capabilities) RequireDelete() error {
	if !c.MayDelete {
		return dErrors.New(dErrors.CodeForbidden, "delete permission required")
	}
	return nil
}

// RequireClientAccess lets staff through and limits CLIENT callers to their
// own record. A client signs in with its client id as user id.
func RequireClientAccess(roleName string, caller id.UserID, clientID id.ClientID) error {
	role, err := ParseRole(roleName)
	if err != nil {
		return err
	}
	if role == RoleClient && uuid.UUID(caller) != uuid.UUID(clientID) {
		return dErrors.New(dErrors.CodeForbidden, "clients may only access their own record")
	}
	return nil
}

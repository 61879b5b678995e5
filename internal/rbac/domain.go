package rbac

import (
	"slices"
	"strings"

	"github.com/odyssey-erp/trustledger/internal/shared"
)

// Role names an administrative capability. Roles gate operations; they do not
// confer voting rights, which belong to the signer set.
type Role string

const (
	RoleAdmin           Role = "Admin"
	RoleVerifier        Role = "Verifier"
	RoleDocumentManager Role = "DocumentManager"
	RoleAuditor         Role = "Auditor"
)

// Roles lists every role in display order.
var Roles = []Role{RoleAdmin, RoleVerifier, RoleDocumentManager, RoleAuditor}

var (
	// ErrUnauthorized is returned when the caller does not hold the Admin role.
	ErrUnauthorized = shared.NewError(shared.ErrUnauthorized, "role_change_unauthorized", "caller does not hold the Admin role")
	// ErrNotAdminAuthority is returned when the caller is not the distinguished admin.
	ErrNotAdminAuthority = shared.NewError(shared.ErrUnauthorized, "not_admin_authority", "caller is not the current admin authority")
	// ErrInvalidRole rejects names outside the role enum.
	ErrInvalidRole = shared.NewError(shared.ErrValidation, "invalid_role", "unknown role")
	// ErrAdminAuthorityRole protects the Admin membership of the distinguished admin.
	ErrAdminAuthorityRole = shared.NewError(shared.ErrInvariant, "admin_authority_role", "the admin authority must keep the Admin role")
	// ErrNotInitialized is returned before Initialize has run.
	ErrNotInitialized = shared.NewError(shared.ErrNotFound, "admin_not_initialized", "admin authority not initialised")
)

// ParseRole resolves a role name case-insensitively.
func ParseRole(raw string) (Role, error) {
	raw = strings.TrimSpace(raw)
	for _, r := range Roles {
		if strings.EqualFold(raw, string(r)) {
			return r, nil
		}
	}
	return "", ErrInvalidRole
}

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	return slices.Contains(Roles, r)
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// Legacy global role strings. These predate dynamic roles and are kept for
// backward compatibility; the permission engine maps them through a static
// compatibility table and flags every use as a deprecated path.
const (
	LegacyRoleUser       = "user"
	LegacyRoleAdmin      = "admin"
	LegacyRoleSuperAdmin = "super_admin"
)

// Principal represents an authenticated actor on whose behalf operations are
// requested. A principal belongs to exactly one organization; OrgID is fixed
// at creation and never changes.
type Principal struct {
	PrincipalID uuid.UUID // UUIDv7
	OrgID       uuid.UUID // UUIDv7, immutable after creation

	Name  string
	Email string

	// LegacyRole is the old global role string ("user", "admin",
	// "super_admin"). Deprecated: superseded by RoleID, kept so accounts
	// that were never migrated keep working.
	LegacyRole string

	// RoleID points at the principal's dynamic role, when assigned.
	RoleID *uuid.UUID

	// Unit is the principal's unit affiliation within the organization
	// (e.g. a chapter or branch). Informational only.
	Unit string

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time // Soft delete
}

// IsSuperAdmin reports whether the principal is the global super-principal,
// which bypasses per-organization scoping (always audited by callers).
func (p *Principal) IsSuperAdmin() bool {
	return p.LegacyRole == LegacyRoleSuperAdmin
}

// IsDeleted returns true if the principal has been soft-deleted.
func (p *Principal) IsDeleted() bool {
	return p.DeletedAt != nil
}

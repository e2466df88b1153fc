package models

import (
	"time"

	"github.com/google/uuid"
)

// Audit action taxonomy. Moderation transitions use TransitionAuditAction
// rather than fixed constants ("PENDING_TO_APPROVED" etc).
const (
	AuditActionImpersonate     = "IMPERSONATE"
	AuditActionSuperBypass     = "SUPER_ADMIN_BYPASS"
	AuditActionLegacyRole      = "LEGACY_ROLE_FALLBACK"
	AuditActionRoleCreated     = "ROLE_CREATED"
	AuditActionRoleUpdated     = "ROLE_UPDATED"
	AuditActionMemorySubmitted = "MEMORY_SUBMITTED"
	AuditActionOrgRegistered   = "ORG_REGISTERED"
	AuditActionOrgDisabled     = "ORG_DISABLED"
	AuditActionOrgDeleted      = "ORG_DELETED"
	AuditActionAuditListViewed = "AUDIT_LOG_VIEWED"
)

// TransitionAuditAction builds the audit action string for a moderation
// transition, e.g. "PENDING_TO_APPROVED".
func TransitionAuditAction(from, to MemoryStatus) string {
	return string(from) + "_TO_" + string(to)
}

// AuditLogEntry is an append-only record of a privileged operation that
// succeeded. There is no update or delete for this entity anywhere in the
// system. OrgID is nil for cross-tenant super-principal actions.
type AuditLogEntry struct {
	EntryID   uuid.UUID  // UUIDv7
	OrgID     *uuid.UUID // nil = cross-tenant action
	ActorID   uuid.UUID
	Action    string
	Details   map[string]string
	CreatedAt time.Time
}

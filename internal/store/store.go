// Package store defines the persistence interfaces for the keepsake core and
// the sentinel errors shared by its implementations.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/keepsakehq/keepsake/internal/models"
)

// Sentinel errors for common error conditions
var (
	ErrOrganizationNotFound      = errors.New("organization not found")
	ErrOrganizationAlreadyExists = errors.New("organization already exists")
	ErrPrincipalNotFound         = errors.New("principal not found")
	ErrPrincipalAlreadyExists    = errors.New("principal already exists")
	ErrRoleNotFound              = errors.New("role not found")
	ErrRoleAlreadyExists         = errors.New("role already exists")
	ErrMemoryNotFound            = errors.New("memory not found")

	// ErrVersionConflict is returned when an optimistic content update lost
	// a race; the caller must refetch and retry.
	ErrVersionConflict = errors.New("memory version conflict")

	// ErrTransitionConflict is returned when a status transition lost a
	// race: the record exists but is no longer in the expected state.
	ErrTransitionConflict = errors.New("concurrent status transition")
)

// OrganizationStore manages tenant records.
type OrganizationStore interface {
	Create(ctx context.Context, org *models.Organization) error
	Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error)
	GetBySlug(ctx context.Context, slug string) (*models.Organization, error)
	Update(ctx context.Context, org *models.Organization) error

	// SetActive soft-disables (or re-enables) an organization.
	SetActive(ctx context.Context, orgID uuid.UUID, active bool) error

	// Delete removes an organization and cascades to its principals,
	// roles and memories. Audit entries are retained with their org scope
	// cleared, keeping the log append-only. Super-principal only; callers
	// enforce that.
	Delete(ctx context.Context, orgID uuid.UUID) error
}

// PrincipalStore manages principals.
type PrincipalStore interface {
	Create(ctx context.Context, principal *models.Principal) error
	Get(ctx context.Context, principalID uuid.UUID) (*models.Principal, error)
	Update(ctx context.Context, principal *models.Principal) error
	ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.Principal, error)

	// FindOrgAdmin returns the oldest non-deleted administrative principal
	// of an organization, used as the impersonation target.
	FindOrgAdmin(ctx context.Context, orgID uuid.UUID) (*models.Principal, error)
}

// RoleStore manages dynamic roles. Matrices are validated by callers before
// they reach the store.
type RoleStore interface {
	Create(ctx context.Context, role *models.Role) error
	Get(ctx context.Context, roleID uuid.UUID) (*models.Role, error)
	Update(ctx context.Context, role *models.Role) error

	// ListByOrg returns the organization's roles plus system-wide roles.
	ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.Role, error)
}

// MemoryFilter narrows a memory listing.
type MemoryFilter struct {
	Status   *models.MemoryStatus
	AuthorID *uuid.UUID

	// PublicOnly restricts the listing to publicly visible (approved)
	// records; used by organization-external read paths.
	PublicOnly bool

	Limit int
}

// MemoryStore manages memory records. Status is only ever changed through
// Transition; UpdateContent deliberately cannot touch it.
type MemoryStore interface {
	Create(ctx context.Context, memory *models.Memory) error
	Get(ctx context.Context, memoryID uuid.UUID) (*models.Memory, error)

	// UpdateContent updates title/content guarded by an optimistic version
	// check and bumps the version. Status and OrgID are never modified.
	// Returns ErrVersionConflict if memory.Version is stale.
	UpdateContent(ctx context.Context, memory *models.Memory) error

	// Transition atomically moves a record from one status to another,
	// guarded by the expected status and version, and appends the given
	// audit entries in the same transaction. Of two concurrent transitions
	// exactly one succeeds; the loser gets ErrTransitionConflict.
	Transition(ctx context.Context, memoryID uuid.UUID, from, to models.MemoryStatus, version int64, entries ...*models.AuditLogEntry) (*models.Memory, error)

	ListByOrg(ctx context.Context, orgID uuid.UUID, filter MemoryFilter) ([]*models.Memory, error)
}

// AuditFilter narrows an audit log listing. OrgID nil means all
// organizations; only the operation layer's super-principal path passes nil.
type AuditFilter struct {
	OrgID   *uuid.UUID
	Action  string
	ActorID *uuid.UUID
	Limit   int
}

// AuditStore is append-only: the interface deliberately exposes no update or
// delete. List returns entries newest-first.
type AuditStore interface {
	Append(ctx context.Context, entry *models.AuditLogEntry) error
	List(ctx context.Context, filter AuditFilter) ([]*models.AuditLogEntry, error)
}

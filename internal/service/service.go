package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/keepsakehq/keepsake/internal/auth"
	"github.com/keepsakehq/keepsake/internal/models"
	"github.com/keepsakehq/keepsake/internal/roleauthor"
	"github.com/keepsakehq/keepsake/internal/store"
	"github.com/keepsakehq/keepsake/internal/telemetry"
	"github.com/keepsakehq/keepsake/internal/vocab"
)

// Config holds operation-layer configuration.
type Config struct {
	// SigningKeyPEM is the ES256 private key used to mint credentials.
	SigningKeyPEM string

	// ImpersonationTTL bounds impersonation credentials. Default: 15m
	ImpersonationTTL time.Duration
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *Config) ApplyDefaults() {
	if c.ImpersonationTTL == 0 {
		c.ImpersonationTTL = 15 * time.Minute
	}
}

// Service is the operation layer. Handlers hold no per-request state; every
// method takes the authenticated principal explicitly and derives the tenant
// scope from it, never from request payloads.
type Service struct {
	orgs       store.OrganizationStore
	principals store.PrincipalStore
	roles      store.RoleStore
	memories   store.MemoryStore
	audit      store.AuditStore

	synth   *roleauthor.Synthesizer
	metrics *telemetry.Metrics
	cfg     Config
}

// New creates the operation layer over the given stores. synth may be nil when
// no generator is configured; SuggestRoleMatrix then fails cleanly.
func New(
	orgs store.OrganizationStore,
	principals store.PrincipalStore,
	roles store.RoleStore,
	memories store.MemoryStore,
	audit store.AuditStore,
	synth *roleauthor.Synthesizer,
	cfg Config,
) *Service {
	cfg.ApplyDefaults()

	return &Service{
		orgs:       orgs,
		principals: principals,
		roles:      roles,
		memories:   memories,
		audit:      audit,
		synth:      synth,
		metrics:    telemetry.GetMetrics(),
		cfg:        cfg,
	}
}

// Principal resolves a principal by id, for the auth middleware.
func (s *Service) Principal(ctx context.Context, principalID uuid.UUID) (*models.Principal, error) {
	p, err := s.principals.Get(ctx, principalID)
	if err != nil {
		if errors.Is(err, store.ErrPrincipalNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// Organization resolves an organization by id, for the auth middleware's
// active-tenant check.
func (s *Service) Organization(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	org, err := s.orgs.Get(ctx, orgID)
	if err != nil {
		if errors.Is(err, store.ErrOrganizationNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return org, nil
}

// resolveRole loads the principal's dynamic role, or nil for legacy-only
// accounts. A dangling RoleID degrades to nil so the account still resolves
// through the legacy table instead of breaking entirely.
func (s *Service) resolveRole(ctx context.Context, principal *models.Principal) (*models.Role, error) {
	if principal.RoleID == nil {
		return nil, nil
	}

	role, err := s.roles.Get(ctx, *principal.RoleID)
	if err != nil {
		if errors.Is(err, store.ErrRoleNotFound) {
			log.Warn().
				Str("principal_id", principal.PrincipalID.String()).
				Str("role_id", principal.RoleID.String()).
				Msg("Principal references a missing role, falling back to legacy table")
			return nil, nil
		}
		return nil, err
	}

	return role, nil
}

// authorize runs a permission check for the actor and converts a deny into an
// AuthorizationError. The returned decision carries the bypass/fallback flags
// the caller must audit on success.
func (s *Service) authorize(ctx context.Context, actor *models.Principal, resource vocab.Resource, action vocab.Action) (auth.Decision, error) {
	role, err := s.resolveRole(ctx, actor)
	if err != nil {
		return auth.Decision{}, err
	}

	decision, err := auth.Check(actor, role, resource, action)
	if err != nil {
		return auth.Decision{}, err
	}

	s.metrics.AuthzChecksTotal.Add(ctx, 1)
	if decision.LegacyFallback {
		s.metrics.LegacyFallbackUse.Add(ctx, 1)
	}

	if !decision.Allow {
		s.metrics.AuthzDeniesTotal.Add(ctx, 1)
		return decision, &AuthorizationError{Reason: decision.Reason}
	}

	if decision.SuperBypass {
		s.metrics.SuperBypassTotal.Add(ctx, 1)
	}

	return decision, nil
}

// guardOrg enforces tenant scoping for a fetched record. The super-principal
// passes; anyone else reaching across organizations gets not-found while the
// attempt is logged as a security event.
func (s *Service) guardOrg(ctx context.Context, actor *models.Principal, recordOrgID uuid.UUID, kind, id string) error {
	if actor.OrgID == recordOrgID || actor.IsSuperAdmin() {
		return nil
	}

	s.metrics.TenantMismatchTotal.Add(ctx, 1)
	log.Warn().
		Str("principal_id", actor.PrincipalID.String()).
		Str("principal_org", actor.OrgID.String()).
		Str("record_org", recordOrgID.String()).
		Str("kind", kind).
		Str("id", id).
		Msg("Cross-tenant access attempt")

	return &TenantMismatchError{Kind: kind, ID: id}
}

// decisionNotes builds the audit entries a privileged decision requires:
// one for a super-principal bypass, one for a legacy-role fallback. They are
// written only once the guarded operation has succeeded.
func decisionNotes(actor *models.Principal, decision auth.Decision, orgID *uuid.UUID, resource vocab.Resource, action vocab.Action) []*models.AuditLogEntry {
	var entries []*models.AuditLogEntry

	if decision.SuperBypass {
		entries = append(entries, &models.AuditLogEntry{
			OrgID:   orgID,
			ActorID: actor.PrincipalID,
			Action:  models.AuditActionSuperBypass,
			Details: map[string]string{
				"resource": string(resource),
				"action":   string(action),
			},
		})
	}

	if decision.LegacyFallback {
		entries = append(entries, &models.AuditLogEntry{
			OrgID:   orgID,
			ActorID: actor.PrincipalID,
			Action:  models.AuditActionLegacyRole,
			Details: map[string]string{
				"legacy_role": actor.LegacyRole,
				"resource":    string(resource),
				"action":      string(action),
			},
		})
	}

	return entries
}

// appendAudit writes entries after a successful operation. An audit write
// failure is returned to the caller; a privileged action without its trail is
// treated as a failed action.
func (s *Service) appendAudit(ctx context.Context, entries ...*models.AuditLogEntry) error {
	for _, entry := range entries {
		if err := s.audit.Append(ctx, entry); err != nil {
			return err
		}
		s.metrics.AuditAppendsTotal.Add(ctx, 1)
	}
	return nil
}

package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/keepsakehq/keepsake/internal/auth"
	"github.com/keepsakehq/keepsake/internal/models"
	"github.com/keepsakehq/keepsake/internal/store"
)

// ImpersonationGrant is a short-lived credential for an organization's admin,
// issued to the super-principal for support work.
type ImpersonationGrant struct {
	Credential string
	Target     *models.Principal
}

// Impersonate issues a credential for the target organization's oldest admin.
// Super-principal only; every grant is audited with the credential's
// fingerprint, never the credential itself. Recovery needs no server state:
// the super-principal simply presents their own credential again.
func (s *Service) Impersonate(ctx context.Context, actor *models.Principal, orgID uuid.UUID) (*ImpersonationGrant, error) {
	if !actor.IsSuperAdmin() {
		return nil, &AuthorizationError{Reason: "impersonation is restricted to the super-principal"}
	}

	if _, err := s.orgs.Get(ctx, orgID); err != nil {
		if errors.Is(err, store.ErrOrganizationNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	target, err := s.principals.FindOrgAdmin(ctx, orgID)
	if err != nil {
		if errors.Is(err, store.ErrPrincipalNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	credential, err := auth.IssueCredential(
		s.cfg.SigningKeyPEM,
		target.PrincipalID.String(),
		orgID.String(),
		actor.PrincipalID.String(),
		s.cfg.ImpersonationTTL,
	)
	if err != nil {
		return nil, err
	}

	entry := &models.AuditLogEntry{
		OrgID:   &orgID,
		ActorID: actor.PrincipalID,
		Action:  models.AuditActionImpersonate,
		Details: map[string]string{
			"target_principal_id":    target.PrincipalID.String(),
			"credential_fingerprint": auth.Fingerprint(credential),
			"ttl":                    s.cfg.ImpersonationTTL.String(),
		},
	}
	if err := s.appendAudit(ctx, entry); err != nil {
		return nil, err
	}

	log.Info().
		Str("actor_id", actor.PrincipalID.String()).
		Str("org_id", orgID.String()).
		Str("target_id", target.PrincipalID.String()).
		Msg("Issued impersonation credential")

	return &ImpersonationGrant{
		Credential: credential,
		Target:     target,
	}, nil
}

package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/keepsakehq/keepsake/internal/models"
	"github.com/keepsakehq/keepsake/internal/store"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// OrgRegistration is the input to RegisterOrganization.
type OrgRegistration struct {
	Name         string
	Slug         string
	LogoURL      string
	PrimaryColor string
	Config       []byte
	MaxMembers   int
	MaxMemories  int
}

// RegisterOrganization provisions a new tenant. Super-principal only;
// tenants cannot create each other.
func (s *Service) RegisterOrganization(ctx context.Context, actor *models.Principal, reg OrgRegistration) (*models.Organization, error) {
	if !actor.IsSuperAdmin() {
		return nil, &AuthorizationError{Reason: "organization registration is restricted to the super-principal"}
	}

	reg.Name = strings.TrimSpace(reg.Name)
	if reg.Name == "" {
		return nil, validationf("name", "organization name is required")
	}
	if !slugPattern.MatchString(reg.Slug) {
		return nil, validationf("slug", "slug must be lowercase letters, digits and hyphens")
	}

	now := time.Now()
	org := &models.Organization{
		OrgID:        uuid.Must(uuid.NewV7()),
		Name:         reg.Name,
		Slug:         reg.Slug,
		LogoURL:      reg.LogoURL,
		PrimaryColor: reg.PrimaryColor,
		Config:       reg.Config,
		MaxMembers:   reg.MaxMembers,
		MaxMemories:  reg.MaxMemories,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.orgs.Create(ctx, org); err != nil {
		if errors.Is(err, store.ErrOrganizationAlreadyExists) {
			return nil, validationf("slug", "slug %q is already taken", reg.Slug)
		}
		return nil, err
	}

	entry := &models.AuditLogEntry{
		OrgID:   &org.OrgID,
		ActorID: actor.PrincipalID,
		Action:  models.AuditActionOrgRegistered,
		Details: map[string]string{
			"slug": org.Slug,
			"name": org.Name,
		},
	}
	if err := s.appendAudit(ctx, entry); err != nil {
		return nil, err
	}

	return org, nil
}

// SetOrganizationActive soft-disables or re-enables a tenant. Disabling does
// not touch its data; authentication for its principals simply stops working
// until it is re-enabled.
func (s *Service) SetOrganizationActive(ctx context.Context, actor *models.Principal, orgID uuid.UUID, active bool) error {
	if !actor.IsSuperAdmin() {
		return &AuthorizationError{Reason: "organization lifecycle is restricted to the super-principal"}
	}

	if err := s.orgs.SetActive(ctx, orgID, active); err != nil {
		if errors.Is(err, store.ErrOrganizationNotFound) {
			return ErrNotFound
		}
		return err
	}

	entry := &models.AuditLogEntry{
		OrgID:   &orgID,
		ActorID: actor.PrincipalID,
		Action:  models.AuditActionOrgDisabled,
		Details: map[string]string{
			"active": boolString(active),
		},
	}
	return s.appendAudit(ctx, entry)
}

// DeleteOrganization removes a tenant and everything it owns except its audit
// trail, which the store retains with the org scope cleared. The deletion
// entry is cross-tenant (nil org) from the start: it records the removal of a
// tenant, not an action within one.
func (s *Service) DeleteOrganization(ctx context.Context, actor *models.Principal, orgID uuid.UUID) error {
	if !actor.IsSuperAdmin() {
		return &AuthorizationError{Reason: "organization deletion is restricted to the super-principal"}
	}

	if err := s.orgs.Delete(ctx, orgID); err != nil {
		if errors.Is(err, store.ErrOrganizationNotFound) {
			return ErrNotFound
		}
		return err
	}

	log.Info().
		Str("actor_id", actor.PrincipalID.String()).
		Str("org_id", orgID.String()).
		Msg("Organization deleted")

	entry := &models.AuditLogEntry{
		ActorID: actor.PrincipalID,
		Action:  models.AuditActionOrgDeleted,
		Details: map[string]string{
			"org_id": orgID.String(),
		},
	}
	return s.appendAudit(ctx, entry)
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

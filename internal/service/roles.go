package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/keepsakehq/keepsake/internal/models"
	"github.com/keepsakehq/keepsake/internal/store"
	"github.com/keepsakehq/keepsake/internal/vocab"
)

// CreateRole creates a dynamic role scoped to the actor's organization. The
// matrix is validated against the vocabulary before anything is persisted;
// requires settings:update.
func (s *Service) CreateRole(ctx context.Context, actor *models.Principal, name string, matrix models.Matrix) (*models.Role, error) {
	decision, err := s.authorize(ctx, actor, vocab.ResourceSettings, vocab.ActionUpdate)
	if err != nil {
		return nil, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationf("name", "role name is required")
	}
	if len(matrix) == 0 {
		return nil, validationf("permissions", "permission matrix is empty")
	}
	if err := matrix.Validate(); err != nil {
		return nil, &ValidationError{Field: "permissions", Msg: err.Error()}
	}

	now := time.Now()
	orgID := actor.OrgID
	role := &models.Role{
		RoleID:      uuid.Must(uuid.NewV7()),
		OrgID:       &orgID,
		Name:        name,
		Permissions: matrix.Clone(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.roles.Create(ctx, role); err != nil {
		return nil, err
	}

	entries := append(
		decisionNotes(actor, decision, &orgID, vocab.ResourceSettings, vocab.ActionUpdate),
		&models.AuditLogEntry{
			OrgID:   &orgID,
			ActorID: actor.PrincipalID,
			Action:  models.AuditActionRoleCreated,
			Details: map[string]string{
				"role_id":   role.RoleID.String(),
				"role_name": role.Name,
			},
		},
	)
	if err := s.appendAudit(ctx, entries...); err != nil {
		return nil, err
	}

	return role, nil
}

// UpdateRole replaces a role's name and matrix. System roles are read-only;
// roles in another organization surface as not-found.
func (s *Service) UpdateRole(ctx context.Context, actor *models.Principal, roleID uuid.UUID, name string, matrix models.Matrix) (*models.Role, error) {
	decision, err := s.authorize(ctx, actor, vocab.ResourceSettings, vocab.ActionUpdate)
	if err != nil {
		return nil, err
	}

	role, err := s.roles.Get(ctx, roleID)
	if err != nil {
		if errors.Is(err, store.ErrRoleNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if role.OrgID == nil {
		// System-wide roles have no owning tenant and are not editable
		// through this surface at all.
		return nil, validationf("role_id", "system-wide roles cannot be edited")
	}
	if err := s.guardOrg(ctx, actor, *role.OrgID, "role", roleID.String()); err != nil {
		return nil, err
	}
	if role.IsSystem {
		return nil, validationf("role_id", "system roles cannot be edited")
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationf("name", "role name is required")
	}
	if err := matrix.Validate(); err != nil {
		return nil, &ValidationError{Field: "permissions", Msg: err.Error()}
	}

	role.Name = name
	role.Permissions = matrix.Clone()

	if err := s.roles.Update(ctx, role); err != nil {
		return nil, err
	}

	entries := append(
		decisionNotes(actor, decision, role.OrgID, vocab.ResourceSettings, vocab.ActionUpdate),
		&models.AuditLogEntry{
			OrgID:   role.OrgID,
			ActorID: actor.PrincipalID,
			Action:  models.AuditActionRoleUpdated,
			Details: map[string]string{
				"role_id":   role.RoleID.String(),
				"role_name": role.Name,
			},
		},
	)
	if err := s.appendAudit(ctx, entries...); err != nil {
		return nil, err
	}

	return role, nil
}

// ListRoles returns the actor's organization roles plus system-wide roles.
func (s *Service) ListRoles(ctx context.Context, actor *models.Principal) ([]*models.Role, error) {
	if _, err := s.authorize(ctx, actor, vocab.ResourceSettings, vocab.ActionRead); err != nil {
		return nil, err
	}
	return s.roles.ListByOrg(ctx, actor.OrgID)
}

// SuggestRoleMatrix asks the generator for a candidate matrix matching the
// description. The candidate is advisory: nothing is persisted, and the
// caller must submit it through CreateRole/UpdateRole which re-validate.
func (s *Service) SuggestRoleMatrix(ctx context.Context, actor *models.Principal, description string) (models.Matrix, error) {
	if _, err := s.authorize(ctx, actor, vocab.ResourceSettings, vocab.ActionUpdate); err != nil {
		return nil, err
	}

	if s.synth == nil {
		return nil, &ExternalServiceError{
			Op:  "matrix synthesis",
			Err: errors.New("no generator configured"),
		}
	}

	org, err := s.orgs.Get(ctx, actor.OrgID)
	if err != nil {
		return nil, err
	}

	s.metrics.MatrixSynthesisTotal.Add(ctx, 1)
	matrix, err := s.synth.Synthesize(ctx, description, org.ParsedConfig())
	if err != nil {
		s.metrics.MatrixSynthesisErrorsTotal.Add(ctx, 1)
		return nil, &ExternalServiceError{
			Op:        "matrix synthesis",
			Err:       err,
			Retryable: true,
		}
	}

	return matrix, nil
}

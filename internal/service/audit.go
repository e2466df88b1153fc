package service

import (
	"context"
	"strconv"

	"github.com/google/uuid"

	"github.com/keepsakehq/keepsake/internal/models"
	"github.com/keepsakehq/keepsake/internal/store"
	"github.com/keepsakehq/keepsake/internal/vocab"
)

// AuditQuery narrows an audit listing. OrgID is honored only for the
// super-principal; everyone else is pinned to their own organization.
type AuditQuery struct {
	OrgID   *uuid.UUID
	Action  string
	ActorID *uuid.UUID
	Limit   int
}

// ListAuditLog returns audit entries newest-first. Requires analytics:read.
// Non-super callers always get an implicit filter to their own organization;
// the super-principal may pass any org or none for a cross-tenant view, and
// each successful view is itself recorded.
func (s *Service) ListAuditLog(ctx context.Context, actor *models.Principal, query AuditQuery) ([]*models.AuditLogEntry, error) {
	decision, err := s.authorize(ctx, actor, vocab.ResourceAnalytics, vocab.ActionRead)
	if err != nil {
		return nil, err
	}

	filter := store.AuditFilter{
		Action:  query.Action,
		ActorID: query.ActorID,
		Limit:   query.Limit,
	}

	if actor.IsSuperAdmin() {
		filter.OrgID = query.OrgID
	} else {
		orgID := actor.OrgID
		filter.OrgID = &orgID
	}

	entries, err := s.audit.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	viewed := &models.AuditLogEntry{
		OrgID:   filter.OrgID,
		ActorID: actor.PrincipalID,
		Action:  models.AuditActionAuditListViewed,
		Details: map[string]string{
			"entries": strconv.Itoa(len(entries)),
		},
	}
	notes := append(
		decisionNotes(actor, decision, filter.OrgID, vocab.ResourceAnalytics, vocab.ActionRead),
		viewed,
	)
	if err := s.appendAudit(ctx, notes...); err != nil {
		return nil, err
	}

	return entries, nil
}

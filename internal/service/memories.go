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

// allowedTransitions is the moderation state machine. Anything absent here is
// rejected before the store is consulted.
var allowedTransitions = map[models.MemoryStatus][]models.MemoryStatus{
	models.MemoryStatusDraft:   {models.MemoryStatusPending},
	models.MemoryStatusPending: {models.MemoryStatusApproved, models.MemoryStatusRejected},
}

func transitionAllowed(from, to models.MemoryStatus) bool {
	for _, t := range allowedTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// SubmitMemory creates a memory record in the actor's organization. The
// organization's moderation flag is snapshotted at creation: enabled means
// the record enters PENDING, disabled means it is immediately APPROVED. A
// later flag change never reclassifies existing records.
func (s *Service) SubmitMemory(ctx context.Context, actor *models.Principal, title, content string) (*models.Memory, error) {
	decision, err := s.authorize(ctx, actor, vocab.ResourceMemories, vocab.ActionCreate)
	if err != nil {
		return nil, err
	}

	title = strings.TrimSpace(title)
	if title == "" {
		return nil, validationf("title", "title is required")
	}
	if strings.TrimSpace(content) == "" {
		return nil, validationf("content", "content is required")
	}

	org, err := s.orgs.Get(ctx, actor.OrgID)
	if err != nil {
		return nil, err
	}

	status := models.MemoryStatusApproved
	if org.ParsedConfig().ModerationEnabled {
		status = models.MemoryStatusPending
	}

	now := time.Now()
	memory := &models.Memory{
		MemoryID:  uuid.Must(uuid.NewV7()),
		OrgID:     actor.OrgID,
		AuthorID:  actor.PrincipalID,
		Title:     title,
		Content:   content,
		Status:    status,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.memories.Create(ctx, memory); err != nil {
		return nil, err
	}

	entries := append(
		decisionNotes(actor, decision, &memory.OrgID, vocab.ResourceMemories, vocab.ActionCreate),
		&models.AuditLogEntry{
			OrgID:   &memory.OrgID,
			ActorID: actor.PrincipalID,
			Action:  models.AuditActionMemorySubmitted,
			Details: map[string]string{
				"memory_id": memory.MemoryID.String(),
				"status":    string(memory.Status),
			},
		},
	)
	if err := s.appendAudit(ctx, entries...); err != nil {
		return nil, err
	}

	return memory, nil
}

// GetMemory retrieves a record in the actor's organization.
func (s *Service) GetMemory(ctx context.Context, actor *models.Principal, memoryID uuid.UUID) (*models.Memory, error) {
	if _, err := s.authorize(ctx, actor, vocab.ResourceMemories, vocab.ActionRead); err != nil {
		return nil, err
	}

	memory, err := s.memories.Get(ctx, memoryID)
	if err != nil {
		if errors.Is(err, store.ErrMemoryNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := s.guardOrg(ctx, actor, memory.OrgID, "memory", memoryID.String()); err != nil {
		return nil, err
	}

	return memory, nil
}

// ListMemories lists records in the actor's organization.
func (s *Service) ListMemories(ctx context.Context, actor *models.Principal, filter store.MemoryFilter) ([]*models.Memory, error) {
	if _, err := s.authorize(ctx, actor, vocab.ResourceMemories, vocab.ActionRead); err != nil {
		return nil, err
	}
	return s.memories.ListByOrg(ctx, actor.OrgID, filter)
}

// ListPublicMemories is the unauthenticated read path: approved records of an
// active organization, looked up by slug. A disabled or missing organization
// is indistinguishable from one with nothing published.
func (s *Service) ListPublicMemories(ctx context.Context, orgSlug string, limit int) ([]*models.Memory, error) {
	org, err := s.orgs.GetBySlug(ctx, orgSlug)
	if err != nil {
		if errors.Is(err, store.ErrOrganizationNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !org.IsActive {
		return nil, ErrNotFound
	}

	return s.memories.ListByOrg(ctx, org.OrgID, store.MemoryFilter{
		PublicOnly: true,
		Limit:      limit,
	})
}

// UpdateMemory edits a record's content under an optimistic version check.
// Edits are status-sticky: a REJECTED record stays REJECTED until a moderator
// explicitly transitions it, and an APPROVED record is not un-published by an
// edit. Only the author (or the super-principal) may edit.
func (s *Service) UpdateMemory(ctx context.Context, actor *models.Principal, memoryID uuid.UUID, title, content string, version int64) (*models.Memory, error) {
	if _, err := s.authorize(ctx, actor, vocab.ResourceMemories, vocab.ActionUpdate); err != nil {
		return nil, err
	}

	memory, err := s.memories.Get(ctx, memoryID)
	if err != nil {
		if errors.Is(err, store.ErrMemoryNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := s.guardOrg(ctx, actor, memory.OrgID, "memory", memoryID.String()); err != nil {
		return nil, err
	}

	if memory.AuthorID != actor.PrincipalID && !actor.IsSuperAdmin() {
		return nil, &AuthorizationError{Reason: "only the author may edit a memory"}
	}

	title = strings.TrimSpace(title)
	if title == "" {
		return nil, validationf("title", "title is required")
	}
	if strings.TrimSpace(content) == "" {
		return nil, validationf("content", "content is required")
	}

	memory.Title = title
	memory.Content = content
	memory.Version = version

	if err := s.memories.UpdateContent(ctx, memory); err != nil {
		if errors.Is(err, store.ErrMemoryNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return memory, nil
}

// TransitionMemoryStatus applies a moderation decision. Requires
// memories:publish; the store guard guarantees exactly one of two concurrent
// decisions wins, and the transition's audit entry lands in the same
// transaction as the status change.
func (s *Service) TransitionMemoryStatus(ctx context.Context, actor *models.Principal, memoryID uuid.UUID, to models.MemoryStatus, version int64) (*models.Memory, error) {
	decision, err := s.authorize(ctx, actor, vocab.ResourceMemories, vocab.ActionPublish)
	if err != nil {
		return nil, err
	}

	if !models.ValidMemoryStatus(to) {
		return nil, validationf("status", "unknown status %q", to)
	}

	memory, err := s.memories.Get(ctx, memoryID)
	if err != nil {
		if errors.Is(err, store.ErrMemoryNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := s.guardOrg(ctx, actor, memory.OrgID, "memory", memoryID.String()); err != nil {
		return nil, err
	}

	from := memory.Status
	if !transitionAllowed(from, to) {
		return nil, validationf("status", "cannot transition %s to %s", from, to)
	}

	entries := append(
		decisionNotes(actor, decision, &memory.OrgID, vocab.ResourceMemories, vocab.ActionPublish),
		&models.AuditLogEntry{
			OrgID:   &memory.OrgID,
			ActorID: actor.PrincipalID,
			Action:  models.TransitionAuditAction(from, to),
			Details: map[string]string{
				"memory_id": memoryID.String(),
			},
		},
	)

	updated, err := s.memories.Transition(ctx, memoryID, from, to, version, entries...)
	if err != nil {
		if errors.Is(err, store.ErrTransitionConflict) {
			s.metrics.TransitionConflictsTotal.Add(ctx, 1)
		}
		if errors.Is(err, store.ErrMemoryNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	s.metrics.TransitionsTotal.Add(ctx, 1)
	s.metrics.AuditAppendsTotal.Add(ctx, int64(len(entries)))

	return updated, nil
}

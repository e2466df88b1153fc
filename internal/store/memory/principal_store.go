package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/keepsakehq/keepsake/internal/models"
	"github.com/keepsakehq/keepsake/internal/store"
)

// PrincipalStore implements store.PrincipalStore using in-memory storage.
type PrincipalStore struct {
	mu sync.RWMutex

	principals map[uuid.UUID]*models.Principal
}

// NewPrincipalStore creates a new in-memory principal store.
func NewPrincipalStore() *PrincipalStore {
	return &PrincipalStore{
		principals: make(map[uuid.UUID]*models.Principal),
	}
}

// Create creates a new principal.
func (s *PrincipalStore) Create(ctx context.Context, principal *models.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.principals[principal.PrincipalID]; exists {
		return store.ErrPrincipalAlreadyExists
	}

	// Clone to avoid external modifications
	clone := *principal
	s.principals[principal.PrincipalID] = &clone

	return nil
}

// Get retrieves a principal by ID.
func (s *PrincipalStore) Get(ctx context.Context, principalID uuid.UUID) (*models.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	principal, exists := s.principals[principalID]
	if !exists || principal.DeletedAt != nil {
		return nil, store.ErrPrincipalNotFound
	}

	clone := *principal
	return &clone, nil
}

// Update updates an existing principal. OrgID is immutable and preserved from
// the stored record regardless of what the caller passes.
func (s *PrincipalStore) Update(ctx context.Context, principal *models.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.principals[principal.PrincipalID]
	if !exists {
		return store.ErrPrincipalNotFound
	}

	principal.UpdatedAt = time.Now()

	clone := *principal
	clone.OrgID = existing.OrgID
	s.principals[principal.PrincipalID] = &clone

	return nil
}

// ListByOrg returns all non-deleted principals for an organization.
func (s *PrincipalStore) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Principal
	for _, p := range s.principals {
		if p.OrgID != orgID || p.DeletedAt != nil {
			continue
		}
		clone := *p
		result = append(result, &clone)
	}

	return result, nil
}

// deleteByOrg removes every principal of an organization, the cascade half of
// OrganizationStore.Delete.
func (s *PrincipalStore) deleteByOrg(orgID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, p := range s.principals {
		if p.OrgID == orgID {
			delete(s.principals, id)
		}
	}
}

// FindOrgAdmin returns the oldest non-deleted admin principal in the
// organization: a dynamic-role holder counts if its legacy string says admin,
// matching how unmigrated organizations still look.
func (s *PrincipalStore) FindOrgAdmin(ctx context.Context, orgID uuid.UUID) (*models.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var admin *models.Principal
	for _, p := range s.principals {
		if p.OrgID != orgID || p.DeletedAt != nil {
			continue
		}
		if p.LegacyRole != models.LegacyRoleAdmin {
			continue
		}
		if admin == nil || p.CreatedAt.Before(admin.CreatedAt) {
			admin = p
		}
	}

	if admin == nil {
		return nil, store.ErrPrincipalNotFound
	}

	clone := *admin
	return &clone, nil
}

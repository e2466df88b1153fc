// Package memory provides in-memory store implementations used for testing
// and development. Data is lost on restart.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/keepsakehq/keepsake/internal/models"
	"github.com/keepsakehq/keepsake/internal/store"
)

// OrganizationStore implements store.OrganizationStore using in-memory maps.
// The sibling stores are injected so Delete can cascade the way the postgres
// foreign keys do.
type OrganizationStore struct {
	mu sync.RWMutex

	orgs       map[uuid.UUID]*models.Organization
	orgsBySlug map[string]*models.Organization

	principals *PrincipalStore
	roles      *RoleStore
	memories   *MemoryStore
	audit      *AuditStore
}

// NewOrganizationStore creates a new in-memory organization store.
func NewOrganizationStore(principals *PrincipalStore, roles *RoleStore, memories *MemoryStore, audit *AuditStore) *OrganizationStore {
	return &OrganizationStore{
		orgs:       make(map[uuid.UUID]*models.Organization),
		orgsBySlug: make(map[string]*models.Organization),
		principals: principals,
		roles:      roles,
		memories:   memories,
		audit:      audit,
	}
}

func cloneOrg(org *models.Organization) *models.Organization {
	clone := *org
	clone.Config = slices.Clone(org.Config)
	return &clone
}

// Create creates a new organization.
func (s *OrganizationStore) Create(ctx context.Context, org *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orgs[org.OrgID]; exists {
		return store.ErrOrganizationAlreadyExists
	}
	if _, exists := s.orgsBySlug[org.Slug]; exists {
		return store.ErrOrganizationAlreadyExists
	}

	clone := cloneOrg(org)
	s.orgs[org.OrgID] = clone
	s.orgsBySlug[org.Slug] = clone

	return nil
}

// Get retrieves an organization by ID.
func (s *OrganizationStore) Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	org, exists := s.orgs[orgID]
	if !exists {
		return nil, store.ErrOrganizationNotFound
	}

	return cloneOrg(org), nil
}

// GetBySlug retrieves an organization by slug.
func (s *OrganizationStore) GetBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	org, exists := s.orgsBySlug[slug]
	if !exists {
		return nil, store.ErrOrganizationNotFound
	}

	return cloneOrg(org), nil
}

// Update updates an existing organization.
func (s *OrganizationStore) Update(ctx context.Context, org *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.orgs[org.OrgID]
	if !exists {
		return store.ErrOrganizationNotFound
	}

	org.UpdatedAt = time.Now()

	if existing.Slug != org.Slug {
		delete(s.orgsBySlug, existing.Slug)
	}

	clone := cloneOrg(org)
	s.orgs[org.OrgID] = clone
	s.orgsBySlug[org.Slug] = clone

	return nil
}

// SetActive soft-disables or re-enables an organization.
func (s *OrganizationStore) SetActive(ctx context.Context, orgID uuid.UUID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	org, exists := s.orgs[orgID]
	if !exists {
		return store.ErrOrganizationNotFound
	}

	org.IsActive = active
	org.UpdatedAt = time.Now()

	return nil
}

// Delete removes an organization and cascades to its principals, roles and
// memories. Audit entries survive with their org scope cleared, mirroring the
// postgres ON DELETE SET NULL.
func (s *OrganizationStore) Delete(ctx context.Context, orgID uuid.UUID) error {
	s.mu.Lock()
	org, exists := s.orgs[orgID]
	if !exists {
		s.mu.Unlock()
		return store.ErrOrganizationNotFound
	}

	delete(s.orgsBySlug, org.Slug)
	delete(s.orgs, orgID)
	s.mu.Unlock()

	s.principals.deleteByOrg(orgID)
	s.roles.deleteByOrg(orgID)
	s.memories.deleteByOrg(orgID)
	s.audit.detachOrg(orgID)

	return nil
}

package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/keepsakehq/keepsake/internal/models"
	"github.com/keepsakehq/keepsake/internal/store"
)

// RoleStore implements store.RoleStore using in-memory storage.
type RoleStore struct {
	mu sync.RWMutex

	roles map[uuid.UUID]*models.Role
}

// NewRoleStore creates a new in-memory role store.
func NewRoleStore() *RoleStore {
	return &RoleStore{
		roles: make(map[uuid.UUID]*models.Role),
	}
}

func cloneRole(role *models.Role) *models.Role {
	clone := *role
	clone.Permissions = role.Permissions.Clone()
	if role.OrgID != nil {
		orgID := *role.OrgID
		clone.OrgID = &orgID
	}
	return &clone
}

// Create creates a new role.
func (s *RoleStore) Create(ctx context.Context, role *models.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.roles[role.RoleID]; exists {
		return store.ErrRoleAlreadyExists
	}

	s.roles[role.RoleID] = cloneRole(role)

	return nil
}

// Get retrieves a role by ID.
func (s *RoleStore) Get(ctx context.Context, roleID uuid.UUID) (*models.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	role, exists := s.roles[roleID]
	if !exists {
		return nil, store.ErrRoleNotFound
	}

	return cloneRole(role), nil
}

// Update updates an existing role.
func (s *RoleStore) Update(ctx context.Context, role *models.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.roles[role.RoleID]; !exists {
		return store.ErrRoleNotFound
	}

	role.UpdatedAt = time.Now()
	s.roles[role.RoleID] = cloneRole(role)

	return nil
}

// deleteByOrg removes the organization's roles. System-wide roles (nil OrgID)
// are untouched.
func (s *RoleStore) deleteByOrg(orgID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, role := range s.roles {
		if role.OrgID != nil && *role.OrgID == orgID {
			delete(s.roles, id)
		}
	}
}

// ListByOrg returns the organization's roles plus system-wide roles.
func (s *RoleStore) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Role
	for _, role := range s.roles {
		if role.OrgID == nil || *role.OrgID == orgID {
			result = append(result, cloneRole(role))
		}
	}

	return result, nil
}

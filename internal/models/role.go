package models

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/keepsakehq/keepsake/internal/vocab"
)

// Matrix maps each resource to the set of actions a role grants on it.
// Absence of an entry is a denial; a matrix never grants anything outside the
// canonical vocabulary.
type Matrix map[vocab.Resource][]vocab.Action

// Grants reports whether the matrix allows action on resource.
func (m Matrix) Grants(resource vocab.Resource, action vocab.Action) bool {
	return slices.Contains(m[resource], action)
}

// Validate checks every resource and action against the vocabulary. This runs
// at every write boundary; a freshly deserialized matrix is never trusted.
func (m Matrix) Validate() error {
	for resource, actions := range m {
		if !vocab.ValidResource(resource) {
			return fmt.Errorf("unknown resource %q in permission matrix", resource)
		}
		seen := make(map[vocab.Action]bool, len(actions))
		for _, action := range actions {
			if !vocab.ValidAction(action) {
				return fmt.Errorf("unknown action %q for resource %q in permission matrix", action, resource)
			}
			if seen[action] {
				return fmt.Errorf("duplicate action %q for resource %q in permission matrix", action, resource)
			}
			seen[action] = true
		}
	}
	return nil
}

// Clone returns a deep copy of the matrix.
func (m Matrix) Clone() Matrix {
	if m == nil {
		return nil
	}
	out := make(Matrix, len(m))
	for resource, actions := range m {
		out[resource] = slices.Clone(actions)
	}
	return out
}

// Role is a named permission matrix. OrgID is nil for system-wide roles;
// IsSystem roles cannot be edited through the role authoring surface.
type Role struct {
	RoleID      uuid.UUID  // UUIDv7
	OrgID       *uuid.UUID // nil = system-wide
	Name        string
	Permissions Matrix
	IsSystem    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/keepsakehq/keepsake/internal/models"
	"github.com/keepsakehq/keepsake/internal/store"
)

// AuditStore implements store.AuditStore using an in-memory slice. Entries
// are never removed; deleting an organization only clears their org scope.
type AuditStore struct {
	mu sync.RWMutex

	entries []*models.AuditLogEntry
}

// NewAuditStore creates a new in-memory audit store.
func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

func cloneEntry(entry *models.AuditLogEntry) *models.AuditLogEntry {
	clone := *entry
	clone.Details = maps.Clone(entry.Details)
	if entry.OrgID != nil {
		orgID := *entry.OrgID
		clone.OrgID = &orgID
	}
	return &clone
}

// Append records an audit entry. A zero EntryID or CreatedAt is filled in.
func (s *AuditStore) Append(ctx context.Context, entry *models.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := cloneEntry(entry)
	if clone.EntryID == uuid.Nil {
		clone.EntryID = uuid.Must(uuid.NewV7())
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}

	entry.EntryID = clone.EntryID
	entry.CreatedAt = clone.CreatedAt

	s.entries = append(s.entries, clone)

	return nil
}

// detachOrg clears the org scope of a deleted organization's entries so they
// become cross-tenant, mirroring the postgres ON DELETE SET NULL.
func (s *AuditStore) detachOrg(orgID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range s.entries {
		if entry.OrgID != nil && *entry.OrgID == orgID {
			entry.OrgID = nil
		}
	}
}

// List returns entries matching the filter, newest first.
func (s *AuditStore) List(ctx context.Context, filter store.AuditFilter) ([]*models.AuditLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.AuditLogEntry
	for i := len(s.entries) - 1; i >= 0; i-- {
		entry := s.entries[i]
		if filter.OrgID != nil && (entry.OrgID == nil || *entry.OrgID != *filter.OrgID) {
			continue
		}
		if filter.Action != "" && entry.Action != filter.Action {
			continue
		}
		if filter.ActorID != nil && entry.ActorID != *filter.ActorID {
			continue
		}
		result = append(result, cloneEntry(entry))
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}

	return result, nil
}

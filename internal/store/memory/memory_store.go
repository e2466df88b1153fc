package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/keepsakehq/keepsake/internal/models"
	"github.com/keepsakehq/keepsake/internal/store"
)

// MemoryStore implements store.MemoryStore using in-memory storage. The audit
// store is injected so Transition can append its entries under the same lock,
// mirroring the single transaction the postgres implementation uses.
type MemoryStore struct {
	mu sync.RWMutex

	memories map[uuid.UUID]*models.Memory
	audit    *AuditStore
}

// NewMemoryStore creates a new in-memory memory store.
func NewMemoryStore(audit *AuditStore) *MemoryStore {
	return &MemoryStore{
		memories: make(map[uuid.UUID]*models.Memory),
		audit:    audit,
	}
}

func cloneMemory(m *models.Memory) *models.Memory {
	clone := *m
	return &clone
}

// Create creates a new memory record.
func (s *MemoryStore) Create(ctx context.Context, memory *models.Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.memories[memory.MemoryID] = cloneMemory(memory)

	return nil
}

// Get retrieves a memory record by ID.
func (s *MemoryStore) Get(ctx context.Context, memoryID uuid.UUID) (*models.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, exists := s.memories[memoryID]
	if !exists {
		return nil, store.ErrMemoryNotFound
	}

	return cloneMemory(m), nil
}

// UpdateContent updates title and content guarded by an optimistic version
// check. Status and OrgID are taken from the stored record, never the caller.
func (s *MemoryStore) UpdateContent(ctx context.Context, memory *models.Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.memories[memory.MemoryID]
	if !exists {
		return store.ErrMemoryNotFound
	}

	if existing.Version != memory.Version {
		return store.ErrVersionConflict
	}

	existing.Title = memory.Title
	existing.Content = memory.Content
	existing.Version++
	existing.UpdatedAt = time.Now()

	memory.Status = existing.Status
	memory.OrgID = existing.OrgID
	memory.Version = existing.Version
	memory.UpdatedAt = existing.UpdatedAt

	return nil
}

// Transition moves a record between moderation states guarded by the expected
// status and version. The audit entries are appended under the same lock so a
// winning transition and its audit trail land together.
func (s *MemoryStore) Transition(ctx context.Context, memoryID uuid.UUID, from, to models.MemoryStatus, version int64, entries ...*models.AuditLogEntry) (*models.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.memories[memoryID]
	if !exists {
		return nil, store.ErrMemoryNotFound
	}

	if existing.Status != from || existing.Version != version {
		return nil, store.ErrTransitionConflict
	}

	existing.Status = to
	existing.Version++
	existing.UpdatedAt = time.Now()

	for _, entry := range entries {
		if err := s.audit.Append(ctx, entry); err != nil {
			return nil, err
		}
	}

	return cloneMemory(existing), nil
}

// deleteByOrg removes every memory record of an organization, the cascade
// half of OrganizationStore.Delete.
func (s *MemoryStore) deleteByOrg(orgID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, m := range s.memories {
		if m.OrgID == orgID {
			delete(s.memories, id)
		}
	}
}

// ListByOrg returns the organization's memory records matching the filter.
func (s *MemoryStore) ListByOrg(ctx context.Context, orgID uuid.UUID, filter store.MemoryFilter) ([]*models.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Memory
	for _, m := range s.memories {
		if m.OrgID != orgID {
			continue
		}
		if filter.Status != nil && m.Status != *filter.Status {
			continue
		}
		if filter.AuthorID != nil && m.AuthorID != *filter.AuthorID {
			continue
		}
		if filter.PublicOnly && !m.PubliclyVisible() {
			continue
		}
		result = append(result, cloneMemory(m))
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}

	return result, nil
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// MemoryStatus is the moderation state of a memory record.
type MemoryStatus string

const (
	MemoryStatusDraft    MemoryStatus = "DRAFT"
	MemoryStatusPending  MemoryStatus = "PENDING"
	MemoryStatusApproved MemoryStatus = "APPROVED"
	MemoryStatusRejected MemoryStatus = "REJECTED"
)

// ValidMemoryStatus reports whether s is a known moderation state.
func ValidMemoryStatus(s MemoryStatus) bool {
	switch s {
	case MemoryStatusDraft, MemoryStatusPending, MemoryStatusApproved, MemoryStatusRejected:
		return true
	}
	return false
}

// Memory is a submitted content record. OrgID is fixed at creation to the
// author's organization and never changes; Version guards concurrent
// moderation decisions and edits (optimistic concurrency).
type Memory struct {
	MemoryID uuid.UUID // UUIDv7
	OrgID    uuid.UUID // UUIDv7, immutable after creation
	AuthorID uuid.UUID

	Title   string
	Content string

	Status  MemoryStatus
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PubliclyVisible reports whether the record may appear on
// organization-external read paths. Only approved records are public.
func (m *Memory) PubliclyVisible() bool {
	return m.Status == MemoryStatusApproved
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/keepsakehq/keepsake/internal/models"
	"github.com/keepsakehq/keepsake/internal/store"
)

// MemoryStore implements store.MemoryStore using PostgreSQL.
type MemoryStore struct {
	pool *pgxpool.Pool
}

// NewMemoryStore creates a new PostgreSQL-backed memory store.
func NewMemoryStore(pool *pgxpool.Pool) *MemoryStore {
	return &MemoryStore{
		pool: pool,
	}
}

const memoryColumns = `
	memory_id, org_id, author_id, title, content, status, version,
	created_at, updated_at
`

func scanMemory(row pgx.Row) (*models.Memory, error) {
	var m models.Memory
	err := row.Scan(
		&m.MemoryID,
		&m.OrgID,
		&m.AuthorID,
		&m.Title,
		&m.Content,
		&m.Status,
		&m.Version,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Create creates a new memory record.
func (s *MemoryStore) Create(ctx context.Context, memory *models.Memory) error {
	query := `
		INSERT INTO memories (
			memory_id, org_id, author_id, title, content, status, version,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
	`

	_, err := s.pool.Exec(ctx, query,
		memory.MemoryID,
		memory.OrgID,
		memory.AuthorID,
		memory.Title,
		memory.Content,
		memory.Status,
		memory.Version,
		memory.CreatedAt,
		memory.UpdatedAt,
	)

	if err != nil {
		if isForeignKeyViolation(err) {
			return store.ErrOrganizationNotFound
		}
		return fmt.Errorf("failed to create memory: %w", mapPostgresError(err))
	}

	return nil
}

// Get retrieves a memory record by ID.
func (s *MemoryStore) Get(ctx context.Context, memoryID uuid.UUID) (*models.Memory, error) {
	query := `
		SELECT ` + memoryColumns + `
		FROM memories
		WHERE memory_id = $1
	`

	m, err := scanMemory(s.pool.QueryRow(ctx, query, memoryID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrMemoryNotFound
		}
		return nil, fmt.Errorf("failed to get memory: %w", mapPostgresError(err))
	}

	return m, nil
}

// UpdateContent updates title and content guarded by an optimistic version
// check. Status and org_id are deliberately absent from the SET list.
func (s *MemoryStore) UpdateContent(ctx context.Context, memory *models.Memory) error {
	query := `
		UPDATE memories SET
			title = $3,
			content = $4,
			version = version + 1,
			updated_at = $5
		WHERE memory_id = $1 AND version = $2
		RETURNING status, org_id, version, updated_at
	`

	now := time.Now()
	err := s.pool.QueryRow(ctx, query,
		memory.MemoryID,
		memory.Version,
		memory.Title,
		memory.Content,
		now,
	).Scan(&memory.Status, &memory.OrgID, &memory.Version, &memory.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return s.classifyMiss(ctx, memory.MemoryID, store.ErrVersionConflict)
		}
		return fmt.Errorf("failed to update memory content: %w", mapPostgresError(err))
	}

	return nil
}

// classifyMiss distinguishes a missing record from a lost optimistic race
// after a guarded UPDATE matched no rows.
func (s *MemoryStore) classifyMiss(ctx context.Context, memoryID uuid.UUID, conflict error) error {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM memories WHERE memory_id = $1)`, memoryID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check memory existence: %w", mapPostgresError(err))
	}
	if !exists {
		return store.ErrMemoryNotFound
	}
	return conflict
}

// Transition atomically moves a record between moderation states, guarded by
// the expected status and version, and appends the given audit entries in the
// same transaction. Of two concurrent transitions exactly one sees its guard
// match; the other gets ErrTransitionConflict.
func (s *MemoryStore) Transition(ctx context.Context, memoryID uuid.UUID, from, to models.MemoryStatus, version int64, entries ...*models.AuditLogEntry) (*models.Memory, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	query := `
		UPDATE memories SET
			status = $4,
			version = version + 1,
			updated_at = $5
		WHERE memory_id = $1 AND status = $2 AND version = $3
		RETURNING ` + memoryColumns

	m, err := scanMemory(tx.QueryRow(ctx, query, memoryID, from, version, to, time.Now()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, s.classifyMiss(ctx, memoryID, store.ErrTransitionConflict)
		}
		return nil, fmt.Errorf("failed to transition memory: %w", mapPostgresError(err))
	}

	for _, entry := range entries {
		if err := appendEntry(ctx, tx, entry); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transition: %w", err)
	}

	log.Debug().
		Str("memory_id", memoryID.String()).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("Transitioned memory status")

	return m, nil
}

// ListByOrg returns the organization's memory records matching the filter,
// newest first.
func (s *MemoryStore) ListByOrg(ctx context.Context, orgID uuid.UUID, filter store.MemoryFilter) ([]*models.Memory, error) {
	status := filter.Status
	if filter.PublicOnly {
		approved := models.MemoryStatusApproved
		status = &approved
	}

	query := `
		SELECT ` + memoryColumns + `
		FROM memories
		WHERE org_id = $1
			AND ($2::text IS NULL OR status = $2)
			AND ($3::uuid IS NULL OR author_id = $3)
		ORDER BY created_at DESC
	`

	args := []any{orgID, status, filter.AuthorID}
	if filter.Limit > 0 {
		query += ` LIMIT $4`
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list memories: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var memories []*models.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}
		memories = append(memories, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memories: %w", err)
	}

	return memories, nil
}

package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keepsakehq/keepsake/internal/models"
	"github.com/keepsakehq/keepsake/internal/store"
)

// execer is satisfied by *pgxpool.Pool and pgx.Tx, so audit entries can be
// appended standalone or inside another store's transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// AuditStore implements store.AuditStore using PostgreSQL. The table is
// append-only; no code path issues UPDATE or DELETE against it.
type AuditStore struct {
	pool *pgxpool.Pool
}

// NewAuditStore creates a new PostgreSQL-backed audit store.
func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{
		pool: pool,
	}
}

// appendEntry inserts an audit entry via the given executor.
func appendEntry(ctx context.Context, q execer, entry *models.AuditLogEntry) error {
	if entry.EntryID == uuid.Nil {
		entry.EntryID = uuid.Must(uuid.NewV7())
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}

	query := `
		INSERT INTO audit_log (
			entry_id, org_id, actor_id, action, details, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
	`

	_, err = q.Exec(ctx, query,
		entry.EntryID,
		entry.OrgID,
		entry.ActorID,
		entry.Action,
		details,
		entry.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", mapPostgresError(err))
	}

	return nil
}

// Append records an audit entry.
func (s *AuditStore) Append(ctx context.Context, entry *models.AuditLogEntry) error {
	return appendEntry(ctx, s.pool, entry)
}

// List returns entries matching the filter, newest first.
func (s *AuditStore) List(ctx context.Context, filter store.AuditFilter) ([]*models.AuditLogEntry, error) {
	query := `
		SELECT entry_id, org_id, actor_id, action, details, created_at
		FROM audit_log
		WHERE ($1::uuid IS NULL OR org_id = $1)
			AND ($2 = '' OR action = $2)
			AND ($3::uuid IS NULL OR actor_id = $3)
		ORDER BY created_at DESC, entry_id DESC
	`

	args := []any{filter.OrgID, filter.Action, filter.ActorID}
	if filter.Limit > 0 {
		query += ` LIMIT $4`
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var entries []*models.AuditLogEntry
	for rows.Next() {
		entry, err := scanAuditEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}

	return entries, nil
}

func scanAuditEntry(row pgx.Row) (*models.AuditLogEntry, error) {
	var (
		entry   models.AuditLogEntry
		details []byte
	)
	err := row.Scan(
		&entry.EntryID,
		&entry.OrgID,
		&entry.ActorID,
		&entry.Action,
		&details,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(details) > 0 {
		if err := json.Unmarshal(details, &entry.Details); err != nil {
			return nil, fmt.Errorf("failed to decode audit details: %w", err)
		}
	}

	return &entry, nil
}

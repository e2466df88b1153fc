package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keepsakehq/keepsake/internal/models"
	"github.com/keepsakehq/keepsake/internal/store"
)

// RoleStore implements store.RoleStore using PostgreSQL. Permission matrices
// are stored as JSONB.
type RoleStore struct {
	pool *pgxpool.Pool
}

// NewRoleStore creates a new PostgreSQL-backed role store.
func NewRoleStore(pool *pgxpool.Pool) *RoleStore {
	return &RoleStore{
		pool: pool,
	}
}

func scanRole(row pgx.Row) (*models.Role, error) {
	var (
		role        models.Role
		permissions []byte
	)
	err := row.Scan(
		&role.RoleID,
		&role.OrgID,
		&role.Name,
		&permissions,
		&role.IsSystem,
		&role.CreatedAt,
		&role.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(permissions, &role.Permissions); err != nil {
		return nil, fmt.Errorf("failed to decode permission matrix: %w", err)
	}

	return &role, nil
}

// Create creates a new role in the database.
func (s *RoleStore) Create(ctx context.Context, role *models.Role) error {
	permissions, err := json.Marshal(role.Permissions)
	if err != nil {
		return fmt.Errorf("failed to encode permission matrix: %w", err)
	}

	query := `
		INSERT INTO roles (
			role_id, org_id, name, permissions, is_system, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
	`

	_, err = s.pool.Exec(ctx, query,
		role.RoleID,
		role.OrgID,
		role.Name,
		permissions,
		role.IsSystem,
		role.CreatedAt,
		role.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrRoleAlreadyExists
		}
		if isForeignKeyViolation(err) {
			return store.ErrOrganizationNotFound
		}
		return fmt.Errorf("failed to create role: %w", mapPostgresError(err))
	}

	return nil
}

// Get retrieves a role by ID.
func (s *RoleStore) Get(ctx context.Context, roleID uuid.UUID) (*models.Role, error) {
	query := `
		SELECT role_id, org_id, name, permissions, is_system, created_at, updated_at
		FROM roles
		WHERE role_id = $1
	`

	role, err := scanRole(s.pool.QueryRow(ctx, query, roleID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrRoleNotFound
		}
		return nil, fmt.Errorf("failed to get role: %w", mapPostgresError(err))
	}

	return role, nil
}

// Update updates an existing role.
func (s *RoleStore) Update(ctx context.Context, role *models.Role) error {
	permissions, err := json.Marshal(role.Permissions)
	if err != nil {
		return fmt.Errorf("failed to encode permission matrix: %w", err)
	}

	role.UpdatedAt = time.Now()

	query := `
		UPDATE roles SET
			name = $2,
			permissions = $3,
			is_system = $4,
			updated_at = $5
		WHERE role_id = $1
	`

	result, err := s.pool.Exec(ctx, query,
		role.RoleID,
		role.Name,
		permissions,
		role.IsSystem,
		role.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to update role: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrRoleNotFound
	}

	return nil
}

// ListByOrg returns the organization's roles plus system-wide roles
// (org_id IS NULL).
func (s *RoleStore) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.Role, error) {
	query := `
		SELECT role_id, org_id, name, permissions, is_system, created_at, updated_at
		FROM roles
		WHERE org_id = $1 OR org_id IS NULL
		ORDER BY created_at
	`

	rows, err := s.pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var roles []*models.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating roles: %w", err)
	}

	return roles, nil
}

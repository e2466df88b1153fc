package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keepsakehq/keepsake/internal/models"
	"github.com/keepsakehq/keepsake/internal/store"
)

// PrincipalStore implements store.PrincipalStore using PostgreSQL.
type PrincipalStore struct {
	pool *pgxpool.Pool
}

// NewPrincipalStore creates a new PostgreSQL-backed principal store.
func NewPrincipalStore(pool *pgxpool.Pool) *PrincipalStore {
	return &PrincipalStore{
		pool: pool,
	}
}

const principalColumns = `
	principal_id, org_id, name, email, legacy_role, role_id, unit,
	created_at, updated_at, deleted_at
`

func scanPrincipal(row pgx.Row) (*models.Principal, error) {
	var p models.Principal
	err := row.Scan(
		&p.PrincipalID,
		&p.OrgID,
		&p.Name,
		&p.Email,
		&p.LegacyRole,
		&p.RoleID,
		&p.Unit,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create creates a new principal in the database.
func (s *PrincipalStore) Create(ctx context.Context, principal *models.Principal) error {
	query := `
		INSERT INTO principals (
			principal_id, org_id, name, email, legacy_role, role_id, unit,
			created_at, updated_at, deleted_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
	`

	_, err := s.pool.Exec(ctx, query,
		principal.PrincipalID,
		principal.OrgID,
		principal.Name,
		principal.Email,
		principal.LegacyRole,
		principal.RoleID,
		principal.Unit,
		principal.CreatedAt,
		principal.UpdatedAt,
		principal.DeletedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrPrincipalAlreadyExists
		}
		if isForeignKeyViolation(err) {
			return store.ErrOrganizationNotFound
		}
		return fmt.Errorf("failed to create principal: %w", mapPostgresError(err))
	}

	return nil
}

// Get retrieves a principal by ID. Soft-deleted principals are not returned.
func (s *PrincipalStore) Get(ctx context.Context, principalID uuid.UUID) (*models.Principal, error) {
	query := `
		SELECT ` + principalColumns + `
		FROM principals
		WHERE principal_id = $1 AND deleted_at IS NULL
	`

	p, err := scanPrincipal(s.pool.QueryRow(ctx, query, principalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("failed to get principal: %w", mapPostgresError(err))
	}

	return p, nil
}

// Update updates an existing principal. org_id is deliberately absent from the
// SET list; tenant membership never changes.
func (s *PrincipalStore) Update(ctx context.Context, principal *models.Principal) error {
	principal.UpdatedAt = time.Now()

	query := `
		UPDATE principals SET
			name = $2,
			email = $3,
			legacy_role = $4,
			role_id = $5,
			unit = $6,
			updated_at = $7,
			deleted_at = $8
		WHERE principal_id = $1
	`

	result, err := s.pool.Exec(ctx, query,
		principal.PrincipalID,
		principal.Name,
		principal.Email,
		principal.LegacyRole,
		principal.RoleID,
		principal.Unit,
		principal.UpdatedAt,
		principal.DeletedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to update principal: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrPrincipalNotFound
	}

	return nil
}

// ListByOrg returns all non-deleted principals for an organization.
func (s *PrincipalStore) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.Principal, error) {
	query := `
		SELECT ` + principalColumns + `
		FROM principals
		WHERE org_id = $1 AND deleted_at IS NULL
		ORDER BY created_at
	`

	rows, err := s.pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list principals: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var principals []*models.Principal
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan principal: %w", err)
		}
		principals = append(principals, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating principals: %w", err)
	}

	return principals, nil
}

// FindOrgAdmin returns the oldest non-deleted administrative principal of an
// organization, used as the impersonation target.
func (s *PrincipalStore) FindOrgAdmin(ctx context.Context, orgID uuid.UUID) (*models.Principal, error) {
	query := `
		SELECT ` + principalColumns + `
		FROM principals
		WHERE org_id = $1 AND deleted_at IS NULL AND legacy_role = $2
		ORDER BY created_at
		LIMIT 1
	`

	p, err := scanPrincipal(s.pool.QueryRow(ctx, query, orgID, models.LegacyRoleAdmin))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("failed to find organization admin: %w", mapPostgresError(err))
	}

	return p, nil
}

// Package postgres provides PostgreSQL-backed store implementations sharing a
// single pgx connection pool.
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

// OrganizationStore implements store.OrganizationStore using PostgreSQL.
type OrganizationStore struct {
	pool *pgxpool.Pool
}

// NewOrganizationStore creates a new PostgreSQL-backed organization store.
// It shares the connection pool with other stores.
func NewOrganizationStore(pool *pgxpool.Pool) *OrganizationStore {
	return &OrganizationStore{
		pool: pool,
	}
}

// Create creates a new organization in the database.
func (s *OrganizationStore) Create(ctx context.Context, org *models.Organization) error {
	query := `
		INSERT INTO organizations (
			org_id, name, slug, logo_url, primary_color, config,
			max_members, max_memories, is_active, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
	`

	_, err := s.pool.Exec(ctx, query,
		org.OrgID,
		org.Name,
		org.Slug,
		org.LogoURL,
		org.PrimaryColor,
		org.Config,
		org.MaxMembers,
		org.MaxMemories,
		org.IsActive,
		org.CreatedAt,
		org.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrOrganizationAlreadyExists
		}
		return fmt.Errorf("failed to create organization: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("org_id", org.OrgID.String()).
		Str("slug", org.Slug).
		Msg("Created organization")

	return nil
}

// Get retrieves an organization by ID.
func (s *OrganizationStore) Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	query := `
		SELECT org_id, name, slug, logo_url, primary_color, config,
			max_members, max_memories, is_active, created_at, updated_at
		FROM organizations
		WHERE org_id = $1
	`

	return s.scanOne(s.pool.QueryRow(ctx, query, orgID))
}

// GetBySlug retrieves an organization by its URL-safe slug.
func (s *OrganizationStore) GetBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	query := `
		SELECT org_id, name, slug, logo_url, primary_color, config,
			max_members, max_memories, is_active, created_at, updated_at
		FROM organizations
		WHERE slug = $1
	`

	return s.scanOne(s.pool.QueryRow(ctx, query, slug))
}

func (s *OrganizationStore) scanOne(row pgx.Row) (*models.Organization, error) {
	var org models.Organization
	err := row.Scan(
		&org.OrgID,
		&org.Name,
		&org.Slug,
		&org.LogoURL,
		&org.PrimaryColor,
		&org.Config,
		&org.MaxMembers,
		&org.MaxMemories,
		&org.IsActive,
		&org.CreatedAt,
		&org.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("failed to get organization: %w", mapPostgresError(err))
	}

	return &org, nil
}

// Update updates an existing organization.
func (s *OrganizationStore) Update(ctx context.Context, org *models.Organization) error {
	org.UpdatedAt = time.Now()

	query := `
		UPDATE organizations SET
			name = $2,
			slug = $3,
			logo_url = $4,
			primary_color = $5,
			config = $6,
			max_members = $7,
			max_memories = $8,
			is_active = $9,
			updated_at = $10
		WHERE org_id = $1
	`

	result, err := s.pool.Exec(ctx, query,
		org.OrgID,
		org.Name,
		org.Slug,
		org.LogoURL,
		org.PrimaryColor,
		org.Config,
		org.MaxMembers,
		org.MaxMemories,
		org.IsActive,
		org.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrOrganizationAlreadyExists
		}
		return fmt.Errorf("failed to update organization: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrOrganizationNotFound
	}

	return nil
}

// SetActive soft-disables or re-enables an organization.
func (s *OrganizationStore) SetActive(ctx context.Context, orgID uuid.UUID, active bool) error {
	query := `
		UPDATE organizations SET
			is_active = $2,
			updated_at = $3
		WHERE org_id = $1
	`

	result, err := s.pool.Exec(ctx, query, orgID, active, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set organization active state: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrOrganizationNotFound
	}

	log.Info().
		Str("org_id", orgID.String()).
		Bool("active", active).
		Msg("Changed organization active state")

	return nil
}

// Delete deletes an organization by ID. Principals, roles, memories and audit
// entries cascade via FK constraints.
func (s *OrganizationStore) Delete(ctx context.Context, orgID uuid.UUID) error {
	query := `DELETE FROM organizations WHERE org_id = $1`

	result, err := s.pool.Exec(ctx, query, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete organization: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrOrganizationNotFound
	}

	log.Info().
		Str("org_id", orgID.String()).
		Msg("Deleted organization and all dependent records")

	return nil
}

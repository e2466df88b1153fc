package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Stores bundles every PostgreSQL-backed store over one shared connection
// pool. New runs pending migrations before returning.
type Stores struct {
	Organizations *OrganizationStore
	Principals    *PrincipalStore
	Roles         *RoleStore
	Memories      *MemoryStore
	Audit         *AuditStore

	pool *pgxpool.Pool
}

// New connects to PostgreSQL, applies migrations and returns the store set.
func New(ctx context.Context, cfg *PoolConfig) (*Stores, error) {
	pool, err := NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := runMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Stores{
		Organizations: NewOrganizationStore(pool),
		Principals:    NewPrincipalStore(pool),
		Roles:         NewRoleStore(pool),
		Memories:      NewMemoryStore(pool),
		Audit:         NewAuditStore(pool),
		pool:          pool,
	}, nil
}

// Ping verifies database connectivity, used by the health endpoint.
func (s *Stores) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the underlying connection pool.
func (s *Stores) Close() {
	s.pool.Close()
}

package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/keepsakehq/keepsake/internal/models"
	"github.com/keepsakehq/keepsake/internal/roleauthor"
	"github.com/keepsakehq/keepsake/internal/store"
	memstore "github.com/keepsakehq/keepsake/internal/store/memory"
	"github.com/keepsakehq/keepsake/internal/vocab"
)

func auditByAction(orgID uuid.UUID, action string) store.AuditFilter {
	return store.AuditFilter{OrgID: &orgID, Action: action}
}

type fixture struct {
	svc        *Service
	orgs       *memstore.OrganizationStore
	principals *memstore.PrincipalStore
	roles      *memstore.RoleStore
	memories   *memstore.MemoryStore
	audit      *memstore.AuditStore

	signingPEM string
	publicPEM  string
}

func newFixture(t *testing.T, synth *roleauthor.Synthesizer) *fixture {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)

	f := &fixture{
		principals: memstore.NewPrincipalStore(),
		roles:      memstore.NewRoleStore(),
		audit:      memstore.NewAuditStore(),
		signingPEM: string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})),
		publicPEM:  string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})),
	}
	f.memories = memstore.NewMemoryStore(f.audit)
	f.orgs = memstore.NewOrganizationStore(f.principals, f.roles, f.memories, f.audit)

	f.svc = New(f.orgs, f.principals, f.roles, f.memories, f.audit, synth, Config{
		SigningKeyPEM: f.signingPEM,
	})

	return f
}

func (f *fixture) addOrg(t *testing.T, slug string, moderation bool) *models.Organization {
	t.Helper()

	config := []byte(`{"moderationEnabled":false}`)
	if moderation {
		config = []byte(`{"moderationEnabled":true}`)
	}

	now := time.Now()
	org := &models.Organization{
		OrgID:     uuid.Must(uuid.NewV7()),
		Name:      slug,
		Slug:      slug,
		Config:    config,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, f.orgs.Create(context.Background(), org))
	return org
}

func (f *fixture) addPrincipal(t *testing.T, orgID uuid.UUID, legacyRole string, roleID *uuid.UUID) *models.Principal {
	t.Helper()

	now := time.Now()
	p := &models.Principal{
		PrincipalID: uuid.Must(uuid.NewV7()),
		OrgID:       orgID,
		Name:        "test principal",
		Email:       "p@example.com",
		LegacyRole:  legacyRole,
		RoleID:      roleID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, f.principals.Create(context.Background(), p))
	return p
}

func (f *fixture) addRole(t *testing.T, orgID uuid.UUID, name string, matrix models.Matrix) *models.Role {
	t.Helper()

	now := time.Now()
	role := &models.Role{
		RoleID:      uuid.Must(uuid.NewV7()),
		OrgID:       &orgID,
		Name:        name,
		Permissions: matrix,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, f.roles.Create(context.Background(), role))
	return role
}

func moderatorMatrix() models.Matrix {
	return models.Matrix{
		vocab.ResourceMemories: {vocab.ActionCreate, vocab.ActionRead, vocab.ActionUpdate, vocab.ActionPublish},
	}
}

func TestCreateRoleValidatesMatrix(t *testing.T) {
	f := newFixture(t, nil)
	org := f.addOrg(t, "valley-archive", true)
	admin := f.addPrincipal(t, org.OrgID, models.LegacyRoleAdmin, nil)

	ctx := context.Background()

	t.Run("valid matrix persists and audits", func(t *testing.T) {
		role, err := f.svc.CreateRole(ctx, admin, "Moderator", moderatorMatrix())
		require.NoError(t, err)
		require.Equal(t, &org.OrgID, role.OrgID)

		got, err := f.roles.Get(ctx, role.RoleID)
		require.NoError(t, err)
		require.True(t, got.Permissions.Grants(vocab.ResourceMemories, vocab.ActionPublish))

		entries, err := f.audit.List(ctx, auditByAction(org.OrgID, models.AuditActionRoleCreated))
		require.NoError(t, err)
		require.Len(t, entries, 1)
	})

	t.Run("out-of-vocabulary matrix rejected", func(t *testing.T) {
		bad := models.Matrix{"spaceships": {vocab.ActionRead}}
		_, err := f.svc.CreateRole(ctx, admin, "Pilot", bad)

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
	})

	t.Run("empty matrix rejected", func(t *testing.T) {
		_, err := f.svc.CreateRole(ctx, admin, "Nobody", models.Matrix{})

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
	})

	t.Run("volunteer without settings grant denied", func(t *testing.T) {
		volunteer := f.addPrincipal(t, org.OrgID, models.LegacyRoleUser, nil)
		_, err := f.svc.CreateRole(ctx, volunteer, "Sneaky", moderatorMatrix())

		var aerr *AuthorizationError
		require.ErrorAs(t, err, &aerr)
	})
}

func TestUpdateRoleScoping(t *testing.T) {
	f := newFixture(t, nil)
	orgA := f.addOrg(t, "org-a", true)
	orgB := f.addOrg(t, "org-b", true)
	adminA := f.addPrincipal(t, orgA.OrgID, models.LegacyRoleAdmin, nil)
	roleB := f.addRole(t, orgB.OrgID, "Other Org Role", moderatorMatrix())

	ctx := context.Background()

	// Reaching a role in another organization looks like not-found.
	_, err := f.svc.UpdateRole(ctx, adminA, roleB.RoleID, "Hijacked", moderatorMatrix())
	require.ErrorIs(t, err, ErrNotFound)

	// The role is untouched.
	got, err := f.roles.Get(ctx, roleB.RoleID)
	require.NoError(t, err)
	require.Equal(t, "Other Org Role", got.Name)
}

func TestUpdateRoleRejectsSystemRoles(t *testing.T) {
	f := newFixture(t, nil)
	org := f.addOrg(t, "org-sys", true)
	admin := f.addPrincipal(t, org.OrgID, models.LegacyRoleAdmin, nil)

	ctx := context.Background()

	now := time.Now()
	systemWide := &models.Role{
		RoleID:      uuid.Must(uuid.NewV7()),
		Name:        "Platform Default",
		Permissions: moderatorMatrix(),
		IsSystem:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, f.roles.Create(ctx, systemWide))

	_, err := f.svc.UpdateRole(ctx, admin, systemWide.RoleID, "Renamed", moderatorMatrix())
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestDynamicRoleOverridesLegacy(t *testing.T) {
	f := newFixture(t, nil)
	org := f.addOrg(t, "org-dyn", true)

	// An admin whose dynamic role grants almost nothing: the matrix wins,
	// the legacy table is not consulted.
	narrow := f.addRole(t, org.OrgID, "Narrow", models.Matrix{
		vocab.ResourceMemories: {vocab.ActionRead},
	})
	admin := f.addPrincipal(t, org.OrgID, models.LegacyRoleAdmin, &narrow.RoleID)

	ctx := context.Background()
	_, err := f.svc.SubmitMemory(ctx, admin, "a title", "content")

	var aerr *AuthorizationError
	require.ErrorAs(t, err, &aerr)
}

func TestLegacyFallbackAuditedOnSuccess(t *testing.T) {
	f := newFixture(t, nil)
	org := f.addOrg(t, "org-legacy", false)
	volunteer := f.addPrincipal(t, org.OrgID, models.LegacyRoleUser, nil)

	ctx := context.Background()
	_, err := f.svc.SubmitMemory(ctx, volunteer, "first day", "we planted the oak")
	require.NoError(t, err)

	entries, err := f.audit.List(ctx, auditByAction(org.OrgID, models.AuditActionLegacyRole))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, models.LegacyRoleUser, entries[0].Details["legacy_role"])
}

func TestSuperBypassAuditedOnSuccess(t *testing.T) {
	f := newFixture(t, nil)
	org := f.addOrg(t, "org-super", false)
	super := f.addPrincipal(t, org.OrgID, models.LegacyRoleSuperAdmin, nil)

	ctx := context.Background()
	_, err := f.svc.SubmitMemory(ctx, super, "platform note", "posted by support")
	require.NoError(t, err)

	entries, err := f.audit.List(ctx, auditByAction(org.OrgID, models.AuditActionSuperBypass))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestSuggestRoleMatrix(t *testing.T) {
	gen := &staticGenerator{completion: `{"memories": ["read", "warp"]}`}
	f := newFixture(t, roleauthor.NewSynthesizer(gen))
	org := f.addOrg(t, "org-ai", true)
	admin := f.addPrincipal(t, org.OrgID, models.LegacyRoleAdmin, nil)

	ctx := context.Background()

	t.Run("candidate returned with invented grants dropped", func(t *testing.T) {
		matrix, err := f.svc.SuggestRoleMatrix(ctx, admin, "an archivist who reads")
		require.NoError(t, err)
		require.True(t, matrix.Grants(vocab.ResourceMemories, vocab.ActionRead))
		require.Len(t, matrix[vocab.ResourceMemories], 1)
	})

	t.Run("nothing persisted", func(t *testing.T) {
		roles, err := f.roles.ListByOrg(ctx, org.OrgID)
		require.NoError(t, err)
		require.Empty(t, roles)
	})

	t.Run("generator failure is retryable", func(t *testing.T) {
		gen.fail = true
		_, err := f.svc.SuggestRoleMatrix(ctx, admin, "anything")

		var eerr *ExternalServiceError
		require.ErrorAs(t, err, &eerr)
		require.True(t, eerr.Retryable)
	})
}

type staticGenerator struct {
	completion string
	fail       bool
}

func (g *staticGenerator) GenerateMatrix(ctx context.Context, prompt string) ([]byte, error) {
	if g.fail {
		return nil, context.DeadlineExceeded
	}
	return []byte(g.completion), nil
}

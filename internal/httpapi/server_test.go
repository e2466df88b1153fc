package httpapi

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/keepsakehq/keepsake/internal/auth"
	"github.com/keepsakehq/keepsake/internal/models"
	"github.com/keepsakehq/keepsake/internal/service"
	memstore "github.com/keepsakehq/keepsake/internal/store/memory"
)

type apiFixture struct {
	server     *Server
	signingPEM string

	orgs       *memstore.OrganizationStore
	principals *memstore.PrincipalStore
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)

	signingPEM := string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}))
	publicPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))

	principals := memstore.NewPrincipalStore()
	roles := memstore.NewRoleStore()
	audit := memstore.NewAuditStore()
	memories := memstore.NewMemoryStore(audit)
	orgs := memstore.NewOrganizationStore(principals, roles, memories, audit)

	svc := service.New(orgs, principals, roles, memories, audit, nil, service.Config{
		SigningKeyPEM: signingPEM,
	})

	server := NewServer(svc, nil, zerolog.Nop(), Config{
		Listen:       ":0",
		PublicKeyPEM: publicPEM,
	})

	return &apiFixture{
		server:     server,
		signingPEM: signingPEM,
		orgs:       orgs,
		principals: principals,
	}
}

func (f *apiFixture) addOrg(t *testing.T, slug string, moderation bool) *models.Organization {
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

func (f *apiFixture) addPrincipal(t *testing.T, orgID uuid.UUID, legacyRole string) *models.Principal {
	t.Helper()

	now := time.Now()
	p := &models.Principal{
		PrincipalID: uuid.Must(uuid.NewV7()),
		OrgID:       orgID,
		Name:        "api test principal",
		Email:       "api@example.com",
		LegacyRole:  legacyRole,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, f.principals.Create(context.Background(), p))
	return p
}

func (f *apiFixture) credential(t *testing.T, p *models.Principal) string {
	t.Helper()

	token, err := auth.IssueCredential(f.signingPEM, p.PrincipalID.String(), p.OrgID.String(), "", time.Hour)
	require.NoError(t, err)
	return token
}

func jsonRequest(t *testing.T, method, path, bearer string, body any) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return req
}

func TestHealthEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	resp, err := f.server.App().Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthRequired(t *testing.T) {
	f := newAPIFixture(t)

	t.Run("missing credential", func(t *testing.T) {
		resp, err := f.server.App().Test(httptest.NewRequest(http.MethodGet, "/api/v1/memories", nil))
		require.NoError(t, err)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("garbage credential", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/memories", nil)
		req.Header.Set("Authorization", "Bearer not-a-token")
		resp, err := f.server.App().Test(req)
		require.NoError(t, err)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("disabled org rejected", func(t *testing.T) {
		org := f.addOrg(t, "disabled-org", false)
		member := f.addPrincipal(t, org.OrgID, models.LegacyRoleUser)
		token := f.credential(t, member)
		require.NoError(t, f.orgs.SetActive(context.Background(), org.OrgID, false))

		resp, err := f.server.App().Test(jsonRequest(t, http.MethodGet, "/api/v1/memories", token, nil))
		require.NoError(t, err)
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}

func TestSubmitAndReadMemory(t *testing.T) {
	f := newAPIFixture(t)
	org := f.addOrg(t, "api-org", true)
	author := f.addPrincipal(t, org.OrgID, models.LegacyRoleAdmin)
	token := f.credential(t, author)

	var created memoryResponse

	t.Run("submit enters pending", func(t *testing.T) {
		req := jsonRequest(t, http.MethodPost, "/api/v1/memories", token, fiberMap{
			"title":   "the old bridge",
			"content": "it creaked in winter",
		})
		resp, err := f.server.App().Test(req)
		require.NoError(t, err)
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
		require.Equal(t, "PENDING", created.Status)
		require.Equal(t, org.OrgID.String(), created.OrgID)
	})

	t.Run("read it back", func(t *testing.T) {
		resp, err := f.server.App().Test(jsonRequest(t, http.MethodGet, "/api/v1/memories/"+created.MemoryID, token, nil))
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("cross-tenant read is 404", func(t *testing.T) {
		other := f.addOrg(t, "other-org", false)
		stranger := f.addPrincipal(t, other.OrgID, models.LegacyRoleAdmin)
		strangerToken := f.credential(t, stranger)

		resp, err := f.server.App().Test(jsonRequest(t, http.MethodGet, "/api/v1/memories/"+created.MemoryID, strangerToken, nil))
		require.NoError(t, err)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("validation failure is 400", func(t *testing.T) {
		req := jsonRequest(t, http.MethodPost, "/api/v1/memories", token, fiberMap{"title": ""})
		resp, err := f.server.App().Test(req)
		require.NoError(t, err)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("public listing hides pending", func(t *testing.T) {
		resp, err := f.server.App().Test(httptest.NewRequest(http.MethodGet, "/api/v1/public/memories?org=api-org", nil))
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var listed []memoryResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&listed))
		require.Empty(t, listed)
	})
}

type fiberMap = map[string]any

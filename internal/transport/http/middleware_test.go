// Copyright 2026 The TenantGrid Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenantgrid/tenantgrid/internal/audit"
	"github.com/tenantgrid/tenantgrid/internal/tenant"
)

const (
	testJWTSecret = "test-signing-secret"
	testJWTIssuer = "tenantgrid-test"
)

// stubTenantRepo is an in-memory tenant.Repository.
type stubTenantRepo struct {
	mu      sync.Mutex
	tenants map[string]*tenant.Tenant
}

func newStubTenantRepo(tenants ...*tenant.Tenant) *stubTenantRepo {
	r := &stubTenantRepo{tenants: make(map[string]*tenant.Tenant)}
	for _, t := range tenants {
		r.tenants[t.ID] = t
	}
	return r
}

func (r *stubTenantRepo) Create(ctx context.Context, t *tenant.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tenants[t.ID] = t
	return nil
}

func (r *stubTenantRepo) GetByID(ctx context.Context, id string) (*tenant.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[id]
	if !ok {
		return nil, tenant.ErrTenantNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *stubTenantRepo) Update(ctx context.Context, t *tenant.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tenants[t.ID]; !ok {
		return tenant.ErrTenantNotFound
	}
	r.tenants[t.ID] = t
	return nil
}

func (r *stubTenantRepo) List(ctx context.Context, limit, offset int) ([]*tenant.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*tenant.Tenant
	for _, t := range r.tenants {
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (r *stubTenantRepo) ListExpiring(ctx context.Context, before time.Time) ([]*tenant.Tenant, error) {
	return nil, nil
}

// stubRecorder captures synchronously recorded audit events.
type stubRecorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *stubRecorder) Record(ctx context.Context, event audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *stubRecorder) recorded() []audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audit.Event(nil), r.events...)
}

func newTestRouter(t *testing.T, repo *stubTenantRepo, recorder *stubRecorder) http.Handler {
	t.Helper()
	auditLogger := audit.NewSlogLogger()
	guard := tenant.NewGuard(recorder, auditLogger)
	tenantService := tenant.NewService(repo, guard, auditLogger, 14*24*time.Hour)

	h := NewHandler(tenantService, nil, nil, nil, auditLogger, nil, testJWTSecret, testJWTIssuer, "STARTER")
	return NewRouter(h, NewRateLimiter(1000, 1000))
}

func signToken(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func validClaims(tenantID string) Claims {
	return Claims{
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    testJWTIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func doRequest(router http.Handler, method, path, token string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck_IsPublic(t *testing.T) {
	router := newTestRouter(t, newStubTenantRepo(), &stubRecorder{})

	rec := doRequest(router, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

// TestPurpose: Validates that tenant-scoped endpoints reject unauthenticated
//              and malformed credentials before any handler runs.
// Scope: Integration Test (router + middleware)
// Security: Authentication boundary
// Expected: 401 for missing, forged, expiry-free, wrong-issuer and unbound tokens.
// Test Case ID: SEC-01
func TestAuthMiddleware_RejectsInvalidCredentials(t *testing.T) {
	router := newTestRouter(t, newStubTenantRepo(&tenant.Tenant{ID: "tenant-a", Status: tenant.StatusActive}), &stubRecorder{})

	t.Run("missing token", func(t *testing.T) {
		rec := doRequest(router, http.MethodGet, "/api/v1/tenant", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("forged signature", func(t *testing.T) {
		token := signToken(t, "wrong-secret", validClaims("tenant-a"))
		rec := doRequest(router, http.MethodGet, "/api/v1/tenant", token, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		claims := validClaims("tenant-a")
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
		rec := doRequest(router, http.MethodGet, "/api/v1/tenant", signToken(t, testJWTSecret, claims), nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("token without expiry", func(t *testing.T) {
		claims := validClaims("tenant-a")
		claims.ExpiresAt = nil
		rec := doRequest(router, http.MethodGet, "/api/v1/tenant", signToken(t, testJWTSecret, claims), nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		claims := validClaims("tenant-a")
		claims.Issuer = "someone-else"
		rec := doRequest(router, http.MethodGet, "/api/v1/tenant", signToken(t, testJWTSecret, claims), nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("token with no tenant binding", func(t *testing.T) {
		rec := doRequest(router, http.MethodGet, "/api/v1/tenant", signToken(t, testJWTSecret, validClaims("")), nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "no tenant binding")
	})
}

func TestGetTenant_OwnTenant(t *testing.T) {
	repo := newStubTenantRepo(&tenant.Tenant{ID: "tenant-a", CompanyName: "Acme ISP", Status: tenant.StatusActive})
	router := newTestRouter(t, repo, &stubRecorder{})

	rec := doRequest(router, http.MethodGet, "/api/v1/tenant", signToken(t, testJWTSecret, validClaims("tenant-a")), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Acme ISP")
}

// TestPurpose: Validates that a regular tenant cannot read another tenant's record
//              even when the target exists, and that the response is indistinguishable
//              from a missing tenant.
// Scope: Integration Test (router + guard)
// Security: Multi-tenant boundary enforcement
// Expected: 404 "tenant not found" with no bypass audit recorded.
// Test Case ID: SEC-02
func TestGetTenant_CrossTenantMaskedForRegularCaller(t *testing.T) {
	repo := newStubTenantRepo(
		&tenant.Tenant{ID: "tenant-a", CompanyName: "Acme ISP", Status: tenant.StatusActive},
		&tenant.Tenant{ID: "tenant-b", CompanyName: "Rival Networks", Status: tenant.StatusActive},
	)
	recorder := &stubRecorder{}
	router := newTestRouter(t, repo, recorder)

	rec := doRequest(router, http.MethodGet, "/api/v1/tenant",
		signToken(t, testJWTSecret, validClaims("tenant-a")),
		map[string]string{"X-Target-Tenant": "tenant-b", "X-Audit-Reason": "curiosity"})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "tenant not found")
	assert.NotContains(t, rec.Body.String(), "Rival Networks")
	assert.Empty(t, recorder.recorded(), "a masked denial must not look like a bypass")
}

// TestPurpose: Validates the platform-admin cross-tenant path end to end: the reason
//              header is mandatory and the bypass is recorded before data is returned.
// Scope: Integration Test (router + guard + recorder)
// Security: Break-glass auditability
// Expected: 400 without X-Audit-Reason; 200 with it plus a persisted admin_bypass event.
// Test Case ID: SEC-03
func TestGetTenant_AdminBypass(t *testing.T) {
	repo := newStubTenantRepo(&tenant.Tenant{ID: "tenant-b", CompanyName: "Rival Networks", Status: tenant.StatusActive})
	recorder := &stubRecorder{}
	router := newTestRouter(t, repo, recorder)

	adminClaims := validClaims("")
	adminClaims.PlatformAdmin = true
	adminClaims.Subject = "admin-1"
	token := signToken(t, testJWTSecret, adminClaims)

	t.Run("reason header is mandatory", func(t *testing.T) {
		rec := doRequest(router, http.MethodGet, "/api/v1/tenant", token,
			map[string]string{"X-Target-Tenant": "tenant-b"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "X-Audit-Reason")
		assert.Empty(t, recorder.recorded())
	})

	t.Run("bypass with reason succeeds and is recorded", func(t *testing.T) {
		rec := doRequest(router, http.MethodGet, "/api/v1/tenant", token,
			map[string]string{"X-Target-Tenant": "tenant-b", "X-Audit-Reason": "billing dispute #4521"})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Rival Networks")

		events := recorder.recorded()
		require.Len(t, events, 1)
		assert.Equal(t, audit.TypeAdminBypass, events[0].Type)
		assert.Equal(t, "tenant-b", events[0].TenantID)
		assert.Equal(t, "admin-1", events[0].ActorID)
		assert.Equal(t, "billing dispute #4521", events[0].Reason)
	})
}

func TestListTenants_EmptyForRegularCaller(t *testing.T) {
	repo := newStubTenantRepo(
		&tenant.Tenant{ID: "tenant-a", Status: tenant.StatusActive},
		&tenant.Tenant{ID: "tenant-b", Status: tenant.StatusActive},
	)
	router := newTestRouter(t, repo, &stubRecorder{})

	rec := doRequest(router, http.MethodGet, "/api/v1/tenants", signToken(t, testJWTSecret, validClaims("tenant-a")), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

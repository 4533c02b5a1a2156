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
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/tenantgrid/tenantgrid/internal/observability/logger"
	"github.com/tenantgrid/tenantgrid/internal/tenant"
)

// Tenant Context Resolution Principles:
// 1. Tenant context is derived EXCLUSIVELY from verified token claims
// 2. A cross-tenant target is an explicit, separate input (X-Target-Tenant),
//    resolved by the isolation guard, never by the transport layer
// 3. Headers never elevate privileges; platform_admin comes from the token
//
// Anti-Patterns (FORBIDDEN):
// - Magic tenant IDs (e.g., "default", "system", "platform")
// - Trusting an X-Tenant-ID style header as the caller's own tenant

// Claims are the verified token claims TenantGrid consumes.
type Claims struct {
	TenantID      string `json:"tenant_id"`
	PlatformAdmin bool   `json:"platform_admin"`
	jwt.RegisteredClaims
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			slog.InfoContext(r.Context(), "http_request_start",
				logger.RequestID(middleware.GetReqID(r.Context())),
				logger.Method(r.Method),
				logger.Path(r.URL.Path),
				logger.RemoteAddr(r.RemoteAddr),
			)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				slog.InfoContext(r.Context(), "http_request_end",
					logger.RequestID(middleware.GetReqID(r.Context())),
					logger.Method(r.Method),
					logger.Path(r.URL.Path),
					logger.RemoteAddr(r.RemoteAddr),
					logger.UserAgent(r.UserAgent()),
					logger.StatusCode(ww.Status()),
					logger.Duration(time.Since(start).Milliseconds()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// AuthMiddleware verifies the bearer token and installs the tenant context.
// Requests without a valid token never reach a tenant-scoped handler.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			respondError(w, http.StatusUnauthorized, "not authenticated")
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return []byte(h.jwtSecret), nil
		}, jwt.WithIssuer(h.jwtIssuer), jwt.WithExpirationRequired())
		if err != nil || !token.Valid {
			respondError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		// A token must bind to a tenant or carry the platform admin claim;
		// anything else is unresolvable and rejected here rather than deeper in.
		if claims.TenantID == "" && !claims.PlatformAdmin {
			respondError(w, http.StatusUnauthorized, "token carries no tenant binding")
			return
		}

		tc := tenantContextFromClaims(claims)
		next.ServeHTTP(w, r.WithContext(WithTenantContext(r.Context(), tc)))
	})
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return auth[7:]
	}
	return ""
}

func tenantContextFromClaims(claims *Claims) tenant.Context {
	return tenant.Context{
		TenantID:      claims.TenantID,
		ActorID:       claims.Subject,
		PlatformAdmin: claims.PlatformAdmin,
	}
}

// targetTenant reads the explicit cross-tenant target and the mandatory audit
// reason that accompanies it. Both are inert for non-admin callers: the guard
// masks the target as not-found.
func targetTenant(r *http.Request) (tenantID, reason string) {
	return r.Header.Get("X-Target-Tenant"), r.Header.Get("X-Audit-Reason")
}

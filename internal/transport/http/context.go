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

	"github.com/tenantgrid/tenantgrid/internal/tenant"
)

type contextKey string

const tenantContextKey contextKey = "tenant_context"

// WithTenantContext stores the authenticated tenant context on the request
// context. Set exclusively by AuthMiddleware from verified token claims;
// never from request headers or parameters.
func WithTenantContext(ctx context.Context, tc tenant.Context) context.Context {
	return context.WithValue(ctx, tenantContextKey, tc)
}

// GetTenantContext retrieves the tenant context. The zero value is returned
// for unauthenticated requests and fails guard resolution downstream.
func GetTenantContext(ctx context.Context) tenant.Context {
	if tc, ok := ctx.Value(tenantContextKey).(tenant.Context); ok {
		return tc
	}
	return tenant.Context{}
}

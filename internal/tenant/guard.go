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

package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/tenantgrid/tenantgrid/internal/audit"
)

// ErrBypassReasonRequired is returned when a platform admin attempts a
// cross-tenant operation without stating a reason. The reason is mandatory
// for auditability.
var ErrBypassReasonRequired = errors.New("audit reason required for cross-tenant access")

// Guard enforces tenant isolation. Every tenant-scoped read or write resolves
// its target tenant through Scope before touching storage; the check is
// synchronous and precedes all data access.
type Guard struct {
	recorder audit.Recorder
	logger   audit.Logger
}

// NewGuard creates an isolation guard. The recorder persists platform-admin
// bypass records; the logger captures isolation violations server-side.
func NewGuard(recorder audit.Recorder, logger audit.Logger) *Guard {
	return &Guard{recorder: recorder, logger: logger}
}

// Scope returns the tenant id the caller may operate on. An empty target
// means the caller's own tenant. A cross-tenant target is allowed only for
// platform admins, requires a reason, and is recorded synchronously before
// this function returns; if the record cannot be written the access is
// refused. For everyone else a cross-tenant target resolves to
// ErrTenantNotFound, never "forbidden", so existence is not leaked.
func (g *Guard) Scope(ctx context.Context, tc Context, targetTenantID, action, reason string) (string, error) {
	if !tc.Resolved() {
		return "", ErrContextMissing
	}

	if targetTenantID == "" || targetTenantID == tc.TenantID {
		if tc.TenantID == "" {
			// Platform admin without an explicit target has nothing to scope to.
			return "", ErrContextMissing
		}
		return tc.TenantID, nil
	}

	if !tc.PlatformAdmin {
		// Full detail stays server-side; the caller only ever sees not-found.
		g.logger.Log(ctx, audit.Event{
			Type:     audit.TypeIsolationViolation,
			TenantID: targetTenantID,
			ActorID:  tc.ActorID,
			Resource: action,
			Metadata: map[string]any{"requesting_tenant_id": tc.TenantID},
		})
		return "", ErrTenantNotFound
	}

	if reason == "" {
		return "", ErrBypassReasonRequired
	}
	if err := g.recorder.Record(ctx, audit.Event{
		Type:     audit.TypeAdminBypass,
		TenantID: targetTenantID,
		ActorID:  tc.ActorID,
		Resource: action,
		Reason:   reason,
	}); err != nil {
		return "", fmt.Errorf("failed to record bypass audit: %w", err)
	}
	return targetTenantID, nil
}

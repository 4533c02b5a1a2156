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

package audit

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Event types
const (
	TypeTenantCreated       = "tenant_created"
	TypeTenantConverted     = "tenant_converted"
	TypeTenantSuspended     = "tenant_suspended"
	TypeTenantReactivated   = "tenant_reactivated"
	TypeTenantCancelled     = "tenant_cancelled"
	TypeTenantExpired       = "tenant_expired"
	TypeSubscriptionExpired = "subscription_expired"
	TypeModuleEnabled       = "module_enabled"
	TypeModuleDisabled      = "module_disabled"
	TypeAccessDenied        = "access_denied"
	TypeQuotaExceeded       = "quota_exceeded"
	TypeQuotaRollover       = "quota_rollover"
	TypeAdminBypass         = "admin_bypass"
	TypeIsolationViolation  = "isolation_violation"
)

// Event represents an auditable action
type Event struct {
	Type      string
	TenantID  string
	ActorID   string
	Resource  string
	Reason    string
	Metadata  map[string]any
	Timestamp time.Time
}

// Logger defines the interface for audit logging. Logging is best-effort;
// implementations must not fail the calling operation.
type Logger interface {
	Log(ctx context.Context, event Event)
}

// Recorder persists audit events synchronously. A platform-admin isolation
// bypass must be recorded through a Recorder before the bypassed action runs;
// if Record fails the action does not proceed.
type Recorder interface {
	Record(ctx context.Context, event Event) error
}

// SlogLogger implements Logger using slog
type SlogLogger struct{}

// NewSlogLogger creates a new audit logger
func NewSlogLogger() *SlogLogger {
	return &SlogLogger{}
}

// Log records an audit event
func (l *SlogLogger) Log(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	attrs := []any{
		slog.String("audit_type", event.Type),
		slog.String("tenant_id", event.TenantID),
		slog.String("actor_id", event.ActorID),
		slog.String("resource", event.Resource),
		slog.Time("timestamp", event.Timestamp),
	}

	if event.Reason != "" {
		attrs = append(attrs, slog.String("reason", event.Reason))
	}

	// Flatten metadata
	if len(event.Metadata) > 0 {
		group := []any{}
		for k, v := range event.Metadata {
			// Redact secrets
			if isSecret(k) {
				v = "[REDACTED]"
			}
			group = append(group, slog.Any(k, v))
		}
		attrs = append(attrs, slog.Group("metadata", group...))
	}

	// Log at INFO level with "audit" component
	slog.InfoContext(ctx, "AUDIT_EVENT", append(attrs, slog.String("component", "audit"))...)
}

// isSecret checks if a key likely contains a secret
func isSecret(key string) bool {
	k := strings.ToLower(key)
	secrets := []string{"password", "secret", "token", "key", "authorization"}
	for _, s := range secrets {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

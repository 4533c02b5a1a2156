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

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/tenantgrid/tenantgrid/internal/audit"
	"github.com/tenantgrid/tenantgrid/internal/id"
)

// AuditRepository implements audit.Recorder. Record is synchronous: callers
// that must not proceed without a persisted trail (admin bypass) fail closed
// on its error.
type AuditRepository struct {
	db *DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Record persists an audit event
func (r *AuditRepository) Record(ctx context.Context, event audit.Event) error {
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	var tenantID *string
	if event.TenantID != "" {
		tenantID = &event.TenantID
	}

	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO audit_log (
			id, event_type, tenant_id, actor_id, resource, reason, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		id.NewUUIDv7(), event.Type, tenantID, event.ActorID,
		event.Resource, event.Reason, event.Metadata, ts,
	)
	if err != nil {
		return fmt.Errorf("failed to record audit event: %w", err)
	}
	return nil
}

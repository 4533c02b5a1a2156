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

	"github.com/jackc/pgx/v5"
	"github.com/tenantgrid/tenantgrid/internal/quota"
)

// QuotaRepository implements quota.Ledger
type QuotaRepository struct {
	db *DB
}

// NewQuotaRepository creates a new quota repository
func NewQuotaRepository(db *DB) *QuotaRepository {
	return &QuotaRepository{db: db}
}

// Get retrieves the usage row for a tenant and quota type
func (r *QuotaRepository) Get(ctx context.Context, tenantID, quotaType string) (*quota.Usage, error) {
	u, err := scanUsage(r.db.pool.QueryRow(ctx, `
		SELECT tenant_id, quota_type, allocated_quantity, current_usage,
			overage_quantity, overage_charges, version, updated_at
		FROM quota_usage
		WHERE tenant_id = $1 AND quota_type = $2
	`, tenantID, quotaType))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, quota.ErrUsageNotFound
		}
		return nil, fmt.Errorf("failed to get quota usage: %w", err)
	}
	return u, nil
}

// Upsert creates the usage row or re-allocates an existing one. Usage
// counters survive a re-allocation; only the allocation changes.
func (r *QuotaRepository) Upsert(ctx context.Context, u *quota.Usage) error {
	err := r.db.pool.QueryRow(ctx, `
		INSERT INTO quota_usage (
			tenant_id, quota_type, allocated_quantity, current_usage,
			overage_quantity, overage_charges, version, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, 1, $7)
		ON CONFLICT (tenant_id, quota_type) DO UPDATE SET
			allocated_quantity = EXCLUDED.allocated_quantity,
			version = quota_usage.version + 1,
			updated_at = EXCLUDED.updated_at
		RETURNING version
	`,
		u.TenantID, u.QuotaType, u.Allocated, u.CurrentUsage,
		u.OverageQuantity, u.OverageCharges, u.UpdatedAt,
	).Scan(&u.Version)
	if err != nil {
		return fmt.Errorf("failed to upsert quota usage: %w", err)
	}
	return nil
}

// Apply writes the row's counters iff the stored version still matches
// expectedVersion, then bumps the version
func (r *QuotaRepository) Apply(ctx context.Context, u *quota.Usage, expectedVersion int64) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE quota_usage SET
			current_usage = $3,
			overage_quantity = $4,
			overage_charges = $5,
			version = version + 1,
			updated_at = $6
		WHERE tenant_id = $1 AND quota_type = $2 AND version = $7
	`,
		u.TenantID, u.QuotaType, u.CurrentUsage,
		u.OverageQuantity, u.OverageCharges, time.Now(), expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to apply quota usage: %w", err)
	}
	if result.RowsAffected() == 0 {
		return quota.ErrConflict
	}

	u.Version = expectedVersion + 1

	return nil
}

// List returns every usage row for a tenant
func (r *QuotaRepository) List(ctx context.Context, tenantID string) ([]*quota.Usage, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT tenant_id, quota_type, allocated_quantity, current_usage,
			overage_quantity, overage_charges, version, updated_at
		FROM quota_usage
		WHERE tenant_id = $1
		ORDER BY quota_type
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list quota usage: %w", err)
	}
	defer rows.Close()

	usages := make([]*quota.Usage, 0)
	for rows.Next() {
		u, err := scanUsage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quota usage: %w", err)
		}
		usages = append(usages, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read quota usage: %w", err)
	}
	return usages, nil
}

// SaveSnapshot records a closed billing period's final counters
func (r *QuotaRepository) SaveSnapshot(ctx context.Context, snap *quota.PeriodSnapshot) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO quota_period_snapshots (
			id, tenant_id, quota_type, usage,
			overage_quantity, overage_charges, period_ended_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		snap.ID, snap.TenantID, snap.QuotaType, snap.Usage,
		snap.OverageQuantity, snap.OverageCharges, snap.PeriodEndedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save quota snapshot: %w", err)
	}
	return nil
}

func scanUsage(row pgx.Row) (*quota.Usage, error) {
	var u quota.Usage
	err := row.Scan(
		&u.TenantID, &u.QuotaType, &u.Allocated, &u.CurrentUsage,
		&u.OverageQuantity, &u.OverageCharges, &u.Version, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

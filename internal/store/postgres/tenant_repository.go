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
	"github.com/tenantgrid/tenantgrid/internal/tenant"
)

// TenantRepository implements tenant.Repository
type TenantRepository struct {
	db *DB
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(db *DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// Create inserts a new tenant
func (r *TenantRepository) Create(ctx context.Context, t *tenant.Tenant) error {
	now := time.Now()
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO tenants (
			id, company_name, status, trial_ends_at,
			suspended_at, cancelled_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		t.ID, t.CompanyName, t.Status, t.TrialEndsAt,
		t.SuspendedAt, t.CancelledAt, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert tenant: %w", err)
	}

	t.CreatedAt = now
	t.UpdatedAt = now

	return nil
}

// GetByID retrieves a tenant by ID
func (r *TenantRepository) GetByID(ctx context.Context, id string) (*tenant.Tenant, error) {
	t, err := scanTenant(r.db.pool.QueryRow(ctx, `
		SELECT id, company_name, status, trial_ends_at,
			suspended_at, cancelled_at, created_at, updated_at
		FROM tenants
		WHERE id = $1
	`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, tenant.ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return t, nil
}

// Update persists lifecycle changes to a tenant
func (r *TenantRepository) Update(ctx context.Context, t *tenant.Tenant) error {
	now := time.Now()
	result, err := r.db.pool.Exec(ctx, `
		UPDATE tenants SET
			company_name = $2,
			status = $3,
			trial_ends_at = $4,
			suspended_at = $5,
			cancelled_at = $6,
			updated_at = $7
		WHERE id = $1
	`,
		t.ID, t.CompanyName, t.Status, t.TrialEndsAt,
		t.SuspendedAt, t.CancelledAt, now,
	)
	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}
	if result.RowsAffected() == 0 {
		return tenant.ErrTenantNotFound
	}

	t.UpdatedAt = now

	return nil
}

// List returns tenants ordered by creation time
func (r *TenantRepository) List(ctx context.Context, limit, offset int) ([]*tenant.Tenant, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, company_name, status, trial_ends_at,
			suspended_at, cancelled_at, created_at, updated_at
		FROM tenants
		ORDER BY created_at
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	return collectTenants(rows)
}

// ListExpiring returns trial tenants whose trial ended before the given instant
func (r *TenantRepository) ListExpiring(ctx context.Context, before time.Time) ([]*tenant.Tenant, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, company_name, status, trial_ends_at,
			suspended_at, cancelled_at, created_at, updated_at
		FROM tenants
		WHERE status = $1 AND trial_ends_at < $2
		ORDER BY trial_ends_at
	`, tenant.StatusTrial, before)
	if err != nil {
		return nil, fmt.Errorf("failed to list expiring tenants: %w", err)
	}
	defer rows.Close()

	return collectTenants(rows)
}

func scanTenant(row pgx.Row) (*tenant.Tenant, error) {
	var t tenant.Tenant
	err := row.Scan(
		&t.ID, &t.CompanyName, &t.Status, &t.TrialEndsAt,
		&t.SuspendedAt, &t.CancelledAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func collectTenants(rows pgx.Rows) ([]*tenant.Tenant, error) {
	tenants := make([]*tenant.Tenant, 0)
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tenants: %w", err)
	}
	return tenants, nil
}

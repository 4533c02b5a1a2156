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
	"github.com/tenantgrid/tenantgrid/internal/subscription"
)

// SubscriptionRepository implements subscription.Repository
type SubscriptionRepository struct {
	db *DB
}

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(db *DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// Create inserts a new subscription and its module rows. Any previous current
// subscription for the tenant is demoted in the same transaction.
func (r *SubscriptionRepository) Create(ctx context.Context, sub *subscription.Subscription) error {
	tx, err := r.db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()

	_, err = tx.Exec(ctx, `
		UPDATE tenant_subscriptions SET is_current = FALSE, updated_at = $2
		WHERE tenant_id = $1 AND is_current
	`, sub.TenantID, now)
	if err != nil {
		return fmt.Errorf("failed to demote current subscription: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO tenant_subscriptions (
			id, tenant_id, plan_code, status, billing_cycle, monthly_price,
			current_period_start, current_period_end, is_current, version,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, 1, $9, $9)
	`,
		sub.ID, sub.TenantID, sub.PlanCode, sub.Status, sub.BillingCycle,
		sub.MonthlyPrice, sub.CurrentPeriodStart, sub.CurrentPeriodEnd, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert subscription: %w", err)
	}

	if err := insertModules(ctx, tx, sub.ID, sub.Modules); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit subscription: %w", err)
	}

	sub.Version = 1
	sub.CreatedAt = now
	sub.UpdatedAt = now

	return nil
}

// GetCurrent returns the tenant's single current subscription
func (r *SubscriptionRepository) GetCurrent(ctx context.Context, tenantID string) (*subscription.Subscription, error) {
	var sub subscription.Subscription
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, tenant_id, plan_code, status, billing_cycle, monthly_price,
			current_period_start, current_period_end, version, created_at, updated_at
		FROM tenant_subscriptions
		WHERE tenant_id = $1 AND is_current
	`, tenantID).Scan(
		&sub.ID, &sub.TenantID, &sub.PlanCode, &sub.Status, &sub.BillingCycle,
		&sub.MonthlyPrice, &sub.CurrentPeriodStart, &sub.CurrentPeriodEnd,
		&sub.Version, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, subscription.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	rows, err := r.db.pool.Query(ctx, `
		SELECT module_code, enabled
		FROM subscription_modules
		WHERE subscription_id = $1
		ORDER BY position
	`, sub.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription modules: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m subscription.Module
		if err := rows.Scan(&m.ModuleCode, &m.Enabled); err != nil {
			return nil, fmt.Errorf("failed to scan subscription module: %w", err)
		}
		sub.Modules = append(sub.Modules, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read subscription modules: %w", err)
	}

	return &sub, nil
}

// ReplaceModules swaps the subscription's module set in one transaction,
// guarded by the optimistic version. The version bump and the module rewrite
// commit together or not at all.
func (r *SubscriptionRepository) ReplaceModules(ctx context.Context, subscriptionID string, modules []subscription.Module, expectedVersion int64) error {
	tx, err := r.db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, `
		UPDATE tenant_subscriptions
		SET version = version + 1, updated_at = $3
		WHERE id = $1 AND version = $2
	`, subscriptionID, expectedVersion, time.Now())
	if err != nil {
		return fmt.Errorf("failed to bump subscription version: %w", err)
	}
	if result.RowsAffected() == 0 {
		return subscription.ErrConflict
	}

	_, err = tx.Exec(ctx, `
		DELETE FROM subscription_modules WHERE subscription_id = $1
	`, subscriptionID)
	if err != nil {
		return fmt.Errorf("failed to clear subscription modules: %w", err)
	}

	if err := insertModules(ctx, tx, subscriptionID, modules); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit module change: %w", err)
	}
	return nil
}

// UpdateStatus sets the subscription status
func (r *SubscriptionRepository) UpdateStatus(ctx context.Context, subscriptionID, status string) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE tenant_subscriptions
		SET status = $2, updated_at = $3
		WHERE id = $1
	`, subscriptionID, status, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update subscription status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return subscription.ErrNotFound
	}
	return nil
}

// UpdatePeriod advances the billing period boundaries
func (r *SubscriptionRepository) UpdatePeriod(ctx context.Context, subscriptionID string, start, end time.Time) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE tenant_subscriptions
		SET current_period_start = $2, current_period_end = $3, updated_at = $4
		WHERE id = $1
	`, subscriptionID, start, end, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update subscription period: %w", err)
	}
	if result.RowsAffected() == 0 {
		return subscription.ErrNotFound
	}
	return nil
}

// ListDue returns current TRIAL or ACTIVE subscriptions whose billing period
// ended before the given instant. Module rows are not loaded; the renewal
// sweep does not need them.
func (r *SubscriptionRepository) ListDue(ctx context.Context, before time.Time) ([]*subscription.Subscription, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, tenant_id, plan_code, status, billing_cycle, monthly_price,
			current_period_start, current_period_end, version, created_at, updated_at
		FROM tenant_subscriptions
		WHERE is_current AND status IN ($1, $2) AND current_period_end < $3
		ORDER BY current_period_end
	`, subscription.StatusTrial, subscription.StatusActive, before)
	if err != nil {
		return nil, fmt.Errorf("failed to list due subscriptions: %w", err)
	}
	return collectSubscriptions(rows)
}

// ListSuspendedDue returns current SUSPENDED subscriptions whose billing
// period ended before the given instant. They are swept into EXPIRED rather
// than renewed.
func (r *SubscriptionRepository) ListSuspendedDue(ctx context.Context, before time.Time) ([]*subscription.Subscription, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, tenant_id, plan_code, status, billing_cycle, monthly_price,
			current_period_start, current_period_end, version, created_at, updated_at
		FROM tenant_subscriptions
		WHERE is_current AND status = $1 AND current_period_end < $2
		ORDER BY current_period_end
	`, subscription.StatusSuspended, before)
	if err != nil {
		return nil, fmt.Errorf("failed to list past-due suspended subscriptions: %w", err)
	}
	return collectSubscriptions(rows)
}

func collectSubscriptions(rows pgx.Rows) ([]*subscription.Subscription, error) {
	defer rows.Close()

	subs := make([]*subscription.Subscription, 0)
	for rows.Next() {
		var sub subscription.Subscription
		err := rows.Scan(
			&sub.ID, &sub.TenantID, &sub.PlanCode, &sub.Status, &sub.BillingCycle,
			&sub.MonthlyPrice, &sub.CurrentPeriodStart, &sub.CurrentPeriodEnd,
			&sub.Version, &sub.CreatedAt, &sub.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, &sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read due subscriptions: %w", err)
	}
	return subs, nil
}

func insertModules(ctx context.Context, tx pgx.Tx, subscriptionID string, modules []subscription.Module) error {
	for i, m := range modules {
		_, err := tx.Exec(ctx, `
			INSERT INTO subscription_modules (subscription_id, module_code, enabled, position)
			VALUES ($1, $2, $3, $4)
		`, subscriptionID, m.ModuleCode, m.Enabled, i)
		if err != nil {
			return fmt.Errorf("failed to insert subscription module: %w", err)
		}
	}
	return nil
}

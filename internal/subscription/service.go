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

package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tenantgrid/tenantgrid/internal/audit"
	"github.com/tenantgrid/tenantgrid/internal/catalog"
	"github.com/tenantgrid/tenantgrid/internal/id"
	"github.com/tenantgrid/tenantgrid/internal/observability/logger"
	"github.com/tenantgrid/tenantgrid/internal/tenant"
)

// maxModuleRetries bounds the optimistic-concurrency retry loop for module
// enable/disable. Conflicts only occur between writers on the same
// subscription, so contention is naturally low.
const maxModuleRetries = 3

// QuotaProvisioner is the quota-side hook the subscription registry calls
// when a subscription is activated (usage rows come into existence) and when
// a billing period rolls over. Implemented by the quota engine.
type QuotaProvisioner interface {
	Provision(ctx context.Context, tenantID string, allocations map[string]int64) error
	Rollover(ctx context.Context, tenantID string) error
}

// TenantExpirer is the tenant-side hook the expiry sweep calls so the owning
// tenant's lifecycle follows its lapsed subscription. Implemented by the
// tenant service.
type TenantExpirer interface {
	ExpireTenant(ctx context.Context, tenantID string) error
}

// Service provides subscription management business logic
type Service struct {
	repo        Repository
	cat         *catalog.Catalog
	guard       *tenant.Guard
	auditLogger audit.Logger
	quotas      QuotaProvisioner
	expirer     TenantExpirer
}

// NewService creates a new subscription service
func NewService(repo Repository, cat *catalog.Catalog, guard *tenant.Guard, auditLogger audit.Logger, quotas QuotaProvisioner) *Service {
	return &Service{
		repo:        repo,
		cat:         cat,
		guard:       guard,
		auditLogger: auditLogger,
		quotas:      quotas,
	}
}

// SetTenantExpirer wires the tenant-side expirer. Separate from the
// constructor because tenant and subscription services reference each other.
func (s *Service) SetTenantExpirer(e TenantExpirer) {
	s.expirer = e
}

// Activate creates the tenant's current subscription on the given plan and
// provisions a quota usage row for every quota type the plan allocates.
func (s *Service) Activate(ctx context.Context, tenantID, planCode, status string) (*Subscription, error) {
	plan, ok := s.cat.Plan(planCode)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlan, planCode)
	}

	now := time.Now()
	sub := &Subscription{
		ID:                 id.NewUUIDv7(),
		TenantID:           tenantID,
		PlanCode:           plan.Code,
		Status:             status,
		BillingCycle:       plan.BillingCycle,
		MonthlyPrice:       plan.MonthlyPrice,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   periodEnd(now, plan.BillingCycle),
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}

	if err := s.quotas.Provision(ctx, tenantID, plan.Quotas); err != nil {
		return nil, fmt.Errorf("failed to provision quotas: %w", err)
	}

	return sub, nil
}

// Current returns the caller's current subscription.
func (s *Service) Current(ctx context.Context, tc tenant.Context, targetTenantID, reason string) (*Subscription, error) {
	scoped, err := s.guard.Scope(ctx, tc, targetTenantID, "subscription.get", reason)
	if err != nil {
		return nil, err
	}
	return s.repo.GetCurrent(ctx, scoped)
}

// EnableModule enables a module on the tenant's current subscription. All
// transitive dependencies must already be enabled (core modules count as
// always enabled); the module set is replaced in a single atomic write, so a
// partially applied change is never observable. A stale concurrent write
// causes a reload and full re-validation rather than an overwrite.
func (s *Service) EnableModule(ctx context.Context, tc tenant.Context, targetTenantID, moduleCode, reason string) error {
	scoped, err := s.guard.Scope(ctx, tc, targetTenantID, "module.enable", reason)
	if err != nil {
		return err
	}

	mod, ok := s.cat.Module(moduleCode)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownModule, moduleCode)
	}
	if mod.Core {
		return ErrCoreModule
	}

	for attempt := 0; attempt < maxModuleRetries; attempt++ {
		sub, err := s.repo.GetCurrent(ctx, scoped)
		if err != nil {
			return err
		}

		if missing := s.missingDependencies(sub, moduleCode); len(missing) > 0 {
			return &DependencyUnmetError{Module: moduleCode, Missing: missing}
		}

		modules := setEnabled(sub.Modules, moduleCode, true)
		err = s.repo.ReplaceModules(ctx, sub.ID, modules, sub.Version)
		if err == ErrConflict {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to enable module: %w", err)
		}

		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeModuleEnabled,
			TenantID: scoped,
			ActorID:  tc.ActorID,
			Resource: moduleCode,
		})
		return nil
	}
	return ErrConflict
}

// DisableModule disables a module unless another enabled module still
// depends on it.
func (s *Service) DisableModule(ctx context.Context, tc tenant.Context, targetTenantID, moduleCode, reason string) error {
	scoped, err := s.guard.Scope(ctx, tc, targetTenantID, "module.disable", reason)
	if err != nil {
		return err
	}

	mod, ok := s.cat.Module(moduleCode)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownModule, moduleCode)
	}
	if mod.Core {
		return ErrCoreModule
	}

	for attempt := 0; attempt < maxModuleRetries; attempt++ {
		sub, err := s.repo.GetCurrent(ctx, scoped)
		if err != nil {
			return err
		}

		var dependents []string
		for _, code := range sub.EnabledModules() {
			if code == moduleCode {
				continue
			}
			if s.cat.DependsOn(code, moduleCode) {
				dependents = append(dependents, code)
			}
		}
		if len(dependents) > 0 {
			return &DependencyInUseError{Module: moduleCode, Dependents: dependents}
		}

		modules := setEnabled(sub.Modules, moduleCode, false)
		err = s.repo.ReplaceModules(ctx, sub.ID, modules, sub.Version)
		if err == ErrConflict {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to disable module: %w", err)
		}

		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeModuleDisabled,
			TenantID: scoped,
			ActorID:  tc.ActorID,
			Resource: moduleCode,
		})
		return nil
	}
	return ErrConflict
}

// MirrorTenantStatus implements tenant.StatusMirror: the current
// subscription's status always follows the owning tenant's lifecycle.
func (s *Service) MirrorTenantStatus(ctx context.Context, tenantID, tenantStatus string) error {
	status := StatusForTenant(tenantStatus)
	if status == "" {
		return fmt.Errorf("no subscription status for tenant status %q", tenantStatus)
	}
	sub, err := s.repo.GetCurrent(ctx, tenantID)
	if err != nil {
		return err
	}
	return s.repo.UpdateStatus(ctx, sub.ID, status)
}

// Renew starts the next billing period and rolls the tenant's quota ledger
// over: usage and overage reset, the previous period's overage charge is
// snapshotted for billing.
func (s *Service) Renew(ctx context.Context, tenantID string) (*Subscription, error) {
	sub, err := s.repo.GetCurrent(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if sub.Status == StatusCancelled {
		return nil, fmt.Errorf("cannot renew a cancelled subscription")
	}

	start := sub.CurrentPeriodEnd
	end := periodEnd(start, sub.BillingCycle)
	if err := s.repo.UpdatePeriod(ctx, sub.ID, start, end); err != nil {
		return nil, fmt.Errorf("failed to advance billing period: %w", err)
	}

	if err := s.quotas.Rollover(ctx, tenantID); err != nil {
		return nil, fmt.Errorf("failed to roll over quotas: %w", err)
	}

	sub.CurrentPeriodStart = start
	sub.CurrentPeriodEnd = end
	return sub, nil
}

// RenewDue renews every subscription whose billing period ended before now.
// Invoked by the periodic rollover job, not by request handlers.
func (s *Service) RenewDue(ctx context.Context, now time.Time) (int, error) {
	due, err := s.repo.ListDue(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list due subscriptions: %w", err)
	}

	renewed := 0
	for _, sub := range due {
		if _, err := s.Renew(ctx, sub.TenantID); err != nil {
			slog.ErrorContext(ctx, "failed to renew subscription",
				logger.TenantID(sub.TenantID), logger.SubscriptionID(sub.ID), logger.Error(err))
			continue
		}
		renewed++
	}
	return renewed, nil
}

// ExpireDue expires every suspended subscription whose billing period ended
// before now. Suspended subscriptions are skipped by the renewal sweep; once
// the paid-up period lapses without reactivation they are terminal. The
// owning tenant expires with them, and the quota ledger takes a final
// rollover so the closing period's overage charge is snapshotted for billing.
func (s *Service) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	due, err := s.repo.ListSuspendedDue(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list past-due suspended subscriptions: %w", err)
	}

	expired := 0
	for _, sub := range due {
		if err := s.expire(ctx, sub); err != nil {
			slog.ErrorContext(ctx, "failed to expire subscription",
				logger.TenantID(sub.TenantID), logger.SubscriptionID(sub.ID), logger.Error(err))
			continue
		}
		expired++
	}
	return expired, nil
}

func (s *Service) expire(ctx context.Context, sub *Subscription) error {
	if err := s.repo.UpdateStatus(ctx, sub.ID, StatusExpired); err != nil {
		return fmt.Errorf("failed to expire subscription: %w", err)
	}

	if s.expirer != nil {
		if err := s.expirer.ExpireTenant(ctx, sub.TenantID); err != nil {
			return fmt.Errorf("failed to expire tenant: %w", err)
		}
	}

	if err := s.quotas.Rollover(ctx, sub.TenantID); err != nil {
		return fmt.Errorf("failed to roll over quotas: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeSubscriptionExpired,
		TenantID: sub.TenantID,
		Resource: sub.ID,
	})
	return nil
}

// missingDependencies returns the transitive dependencies of moduleCode that
// are not yet enabled on the subscription, in topological order. Core
// modules are never missing.
func (s *Service) missingDependencies(sub *Subscription, moduleCode string) []string {
	var missing []string
	for _, dep := range s.cat.Dependencies(moduleCode) {
		if m, ok := s.cat.Module(dep); ok && m.Core {
			continue
		}
		if !sub.ModuleEnabled(dep) {
			missing = append(missing, dep)
		}
	}
	return missing
}

// setEnabled returns a copy of the module set with the given code set to the
// desired state, appending a row if the code was never on the subscription.
func setEnabled(modules []Module, code string, enabled bool) []Module {
	out := make([]Module, len(modules))
	copy(out, modules)
	for i := range out {
		if out[i].ModuleCode == code {
			out[i].Enabled = enabled
			return out
		}
	}
	if enabled {
		out = append(out, Module{ModuleCode: code, Enabled: true})
	}
	return out
}

func periodEnd(start time.Time, cycle string) time.Time {
	if cycle == CycleYearly {
		return start.AddDate(1, 0, 0)
	}
	return start.AddDate(0, 1, 0)
}

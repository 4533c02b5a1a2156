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

package quota

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tenantgrid/tenantgrid/internal/audit"
	"github.com/tenantgrid/tenantgrid/internal/catalog"
	"github.com/tenantgrid/tenantgrid/internal/id"
	"github.com/tenantgrid/tenantgrid/internal/observability/logger"
	"github.com/tenantgrid/tenantgrid/internal/tenant"
)

// numStripes sizes the lock table. A stripe collision between two distinct
// (tenant, quota type) pairs only adds harmless serialization.
const numStripes = 128

// maxApplyRetries bounds the optimistic retry loop against the ledger store.
const maxApplyRetries = 5

// Engine admits, denies or overage-bills quota reservations against the
// ledger. Reservations for one (tenant, quota type) pair execute serially:
// a striped in-process lock plus a version-checked conditional write at the
// storage boundary, re-running admission after any conflict.
type Engine struct {
	cat         *catalog.Catalog
	ledger      Ledger
	guard       *tenant.Guard
	auditLogger audit.Logger
	stripes     [numStripes]sync.Mutex
}

// NewEngine creates a quota policy engine.
func NewEngine(cat *catalog.Catalog, ledger Ledger, guard *tenant.Guard, auditLogger audit.Logger) *Engine {
	return &Engine{
		cat:         cat,
		ledger:      ledger,
		guard:       guard,
		auditLogger: auditLogger,
	}
}

// Reserve admits delta units against the tenant's quota. Within the
// allocation it admits; past it, it admits with an incremental overage
// charge when the quota type allows overage, otherwise it denies without
// mutating the ledger. A denial is a result value, not an error.
func (e *Engine) Reserve(ctx context.Context, tc tenant.Context, targetTenantID, quotaType string, delta int64, reason string) (*Admission, error) {
	if delta <= 0 {
		return nil, fmt.Errorf("reserve delta must be positive, got %d", delta)
	}

	scoped, err := e.guard.Scope(ctx, tc, targetTenantID, "quota.reserve", reason)
	if err != nil {
		return nil, err
	}
	def, ok := e.cat.Quota(quotaType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownQuotaType, quotaType)
	}

	unlock := e.lock(scoped, quotaType)
	defer unlock()

	for attempt := 0; attempt < maxApplyRetries; attempt++ {
		u, err := e.ledger.Get(ctx, scoped, quotaType)
		if err != nil {
			return nil, err
		}

		newUsage := u.CurrentUsage + delta
		if newUsage > u.Allocated && !def.OverageAllowed {
			// Hard limit: deny, ledger untouched.
			e.auditLogger.Log(ctx, audit.Event{
				Type:     audit.TypeQuotaExceeded,
				TenantID: scoped,
				ActorID:  tc.ActorID,
				Resource: quotaType,
				Metadata: map[string]any{
					"delta":     delta,
					"usage":     u.CurrentUsage,
					"allocated": u.Allocated,
				},
			})
			return &Admission{
				Outcome:      OutcomeDenied,
				Reason:       ReasonQuotaExceeded,
				Remaining:    u.Remaining(),
				Utilization:  u.Utilization(),
				WarningLevel: WarningLevel(u.Utilization()),
			}, nil
		}

		prevCharges := u.OverageCharges
		u.CurrentUsage = newUsage
		e.settle(u, def)

		if err := e.ledger.Apply(ctx, u, u.Version); err != nil {
			if err == ErrConflict {
				continue
			}
			return nil, fmt.Errorf("failed to apply reservation: %w", err)
		}

		adm := &Admission{
			Outcome:       OutcomeAdmitted,
			Remaining:     u.Remaining(),
			OverageCharge: u.OverageCharges.Sub(prevCharges),
			Utilization:   u.Utilization(),
			WarningLevel:  WarningLevel(u.Utilization()),
		}
		if u.OverageQuantity > 0 {
			adm.Outcome = OutcomeAdmittedWithOverage
		}
		e.notify(ctx, u, adm.WarningLevel)
		return adm, nil
	}
	return nil, ErrConflict
}

// Release returns delta units to the tenant's quota. Usage floors at zero;
// overage quantity and charges unwind before base usage through the ledger
// invariants.
func (e *Engine) Release(ctx context.Context, tc tenant.Context, targetTenantID, quotaType string, delta int64, reason string) (*Admission, error) {
	if delta <= 0 {
		return nil, fmt.Errorf("release delta must be positive, got %d", delta)
	}

	scoped, err := e.guard.Scope(ctx, tc, targetTenantID, "quota.release", reason)
	if err != nil {
		return nil, err
	}
	def, ok := e.cat.Quota(quotaType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownQuotaType, quotaType)
	}

	unlock := e.lock(scoped, quotaType)
	defer unlock()

	for attempt := 0; attempt < maxApplyRetries; attempt++ {
		u, err := e.ledger.Get(ctx, scoped, quotaType)
		if err != nil {
			return nil, err
		}

		u.CurrentUsage -= delta
		if u.CurrentUsage < 0 {
			u.CurrentUsage = 0
		}
		e.settle(u, def)

		if err := e.ledger.Apply(ctx, u, u.Version); err != nil {
			if err == ErrConflict {
				continue
			}
			return nil, fmt.Errorf("failed to apply release: %w", err)
		}

		return &Admission{
			Outcome:      OutcomeAdmitted,
			Remaining:    u.Remaining(),
			Utilization:  u.Utilization(),
			WarningLevel: WarningLevel(u.Utilization()),
		}, nil
	}
	return nil, ErrConflict
}

// Summary reports every quota type's standing for the scoped tenant.
func (e *Engine) Summary(ctx context.Context, tc tenant.Context, targetTenantID, reason string) ([]SummaryRow, error) {
	scoped, err := e.guard.Scope(ctx, tc, targetTenantID, "quota.summary", reason)
	if err != nil {
		return nil, err
	}

	usages, err := e.ledger.List(ctx, scoped)
	if err != nil {
		return nil, err
	}
	byType := make(map[string]*Usage, len(usages))
	for _, u := range usages {
		byType[u.QuotaType] = u
	}

	rows := make([]SummaryRow, 0, len(usages))
	for _, def := range e.cat.Quotas() {
		u, ok := byType[def.Type]
		if !ok {
			continue
		}
		rows = append(rows, SummaryRow{
			QuotaType:      u.QuotaType,
			Allocated:      u.Allocated,
			Used:           u.CurrentUsage,
			Remaining:      u.Remaining(),
			Utilization:    u.Utilization(),
			WarningLevel:   WarningLevel(u.Utilization()),
			Exceeded:       u.Exceeded(),
			OverageAllowed: def.OverageAllowed,
			OverageCharges: u.OverageCharges,
		})
	}
	return rows, nil
}

// Provision creates (or re-allocates) the usage rows for a subscription's
// plan allocations. Implements subscription.QuotaProvisioner.
func (e *Engine) Provision(ctx context.Context, tenantID string, allocations map[string]int64) error {
	for _, def := range e.cat.Quotas() {
		allocated, ok := allocations[def.Type]
		if !ok {
			continue
		}
		u := &Usage{
			TenantID:       tenantID,
			QuotaType:      def.Type,
			Allocated:      allocated,
			OverageCharges: decimal.Zero,
			UpdatedAt:      time.Now(),
		}
		if err := e.ledger.Upsert(ctx, u); err != nil {
			return fmt.Errorf("failed to provision quota %s: %w", def.Type, err)
		}
	}
	return nil
}

// Rollover resets every usage row for the tenant at the start of a new
// billing period, snapshotting the closed period's overage first so billing
// can settle it.
func (e *Engine) Rollover(ctx context.Context, tenantID string) error {
	usages, err := e.ledger.List(ctx, tenantID)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, u := range usages {
		unlock := e.lock(tenantID, u.QuotaType)

		err := func() error {
			// Re-read under the lock; the listing above may be stale.
			u, err := e.ledger.Get(ctx, tenantID, u.QuotaType)
			if err != nil {
				return err
			}

			if err := e.ledger.SaveSnapshot(ctx, &PeriodSnapshot{
				ID:              id.NewUUIDv7(),
				TenantID:        u.TenantID,
				QuotaType:       u.QuotaType,
				Usage:           u.CurrentUsage,
				OverageQuantity: u.OverageQuantity,
				OverageCharges:  u.OverageCharges,
				PeriodEndedAt:   now,
			}); err != nil {
				return fmt.Errorf("failed to snapshot quota %s: %w", u.QuotaType, err)
			}

			u.CurrentUsage = 0
			u.OverageQuantity = 0
			u.OverageCharges = decimal.Zero
			if err := e.ledger.Apply(ctx, u, u.Version); err != nil {
				return fmt.Errorf("failed to reset quota %s: %w", u.QuotaType, err)
			}
			return nil
		}()
		unlock()
		if err != nil {
			return err
		}
	}

	e.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeQuotaRollover,
		TenantID: tenantID,
		Metadata: map[string]any{"quota_types": len(usages)},
	})
	return nil
}

// settle re-establishes the overage invariants after a usage change.
func (e *Engine) settle(u *Usage, def *catalog.QuotaDef) {
	u.OverageQuantity = u.CurrentUsage - u.Allocated
	if u.OverageQuantity < 0 {
		u.OverageQuantity = 0
	}
	u.OverageCharges = def.OverageRate.Mul(decimal.NewFromInt(u.OverageQuantity))
	u.UpdatedAt = time.Now()
}

// notify surfaces threshold crossings to the log pipeline. Notifications
// never block or fail a reservation.
func (e *Engine) notify(ctx context.Context, u *Usage, level string) {
	switch level {
	case WarnMedium:
		slog.InfoContext(ctx, "quota utilization warning",
			logger.TenantID(u.TenantID), logger.QuotaType(u.QuotaType),
			logger.Usage(u.CurrentUsage), logger.Allocated(u.Allocated),
			logger.String("warning_level", level))
	case WarnHigh, WarnCritical:
		slog.WarnContext(ctx, "quota utilization warning",
			logger.TenantID(u.TenantID), logger.QuotaType(u.QuotaType),
			logger.Usage(u.CurrentUsage), logger.Allocated(u.Allocated),
			logger.String("warning_level", level))
	}
}

// lock serializes work on one (tenant, quota type) pair and returns the
// unlock function.
func (e *Engine) lock(tenantID, quotaType string) func() {
	h := fnv.New32a()
	h.Write([]byte(tenantID))
	h.Write([]byte{0})
	h.Write([]byte(quotaType))
	m := &e.stripes[h.Sum32()%numStripes]
	m.Lock()
	return m.Unlock
}

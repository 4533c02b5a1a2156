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
	"fmt"
	"log/slog"
	"time"

	"github.com/tenantgrid/tenantgrid/internal/audit"
	"github.com/tenantgrid/tenantgrid/internal/id"
	"github.com/tenantgrid/tenantgrid/internal/observability/logger"
)

// StatusMirror propagates tenant lifecycle changes to the tenant's current
// subscription. Implemented by the subscription service; wired at startup.
type StatusMirror interface {
	MirrorTenantStatus(ctx context.Context, tenantID, status string) error
}

// Service provides tenant lifecycle business logic
type Service struct {
	repo        Repository
	guard       *Guard
	auditLogger audit.Logger
	mirror      StatusMirror
	trialPeriod time.Duration
}

// NewService creates a new tenant service
func NewService(repo Repository, guard *Guard, auditLogger audit.Logger, trialPeriod time.Duration) *Service {
	return &Service{
		repo:        repo,
		guard:       guard,
		auditLogger: auditLogger,
		trialPeriod: trialPeriod,
	}
}

// SetStatusMirror wires the subscription-side mirror. Separate from the
// constructor because tenant and subscription services reference each other.
func (s *Service) SetStatusMirror(m StatusMirror) {
	s.mirror = m
}

// Signup creates a new tenant in trial status.
func (s *Service) Signup(ctx context.Context, companyName string) (*Tenant, error) {
	if companyName == "" {
		return nil, fmt.Errorf("company name is required")
	}

	now := time.Now()
	trialEnd := now.Add(s.trialPeriod)
	t := &Tenant{
		ID:          id.NewUUIDv7(),
		CompanyName: companyName,
		Status:      StatusTrial,
		TrialEndsAt: &trialEnd,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTenantCreated,
		TenantID: t.ID,
		Resource: companyName,
	})

	return t, nil
}

// Get retrieves a tenant within the caller's scope. A lookup of another
// tenant's record resolves to ErrTenantNotFound unless the caller is a
// platform admin with a stated reason.
func (s *Service) Get(ctx context.Context, tc Context, targetTenantID, reason string) (*Tenant, error) {
	scoped, err := s.guard.Scope(ctx, tc, targetTenantID, "tenant.get", reason)
	if err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, scoped)
}

// ListAccessible lists tenants visible to the caller: all of them for a
// platform admin, none for anyone else.
func (s *Service) ListAccessible(ctx context.Context, tc Context, limit, offset int) ([]*Tenant, error) {
	if !tc.Resolved() {
		return nil, ErrContextMissing
	}
	if !tc.PlatformAdmin {
		return []*Tenant{}, nil
	}
	return s.repo.List(ctx, limit, offset)
}

// Convert moves a trial tenant to active.
func (s *Service) Convert(ctx context.Context, tc Context, targetTenantID, reason string) (*Tenant, error) {
	return s.transition(ctx, tc, targetTenantID, StatusActive, audit.TypeTenantConverted, reason)
}

// Suspend moves an active tenant to suspended.
func (s *Service) Suspend(ctx context.Context, tc Context, targetTenantID, reason string) (*Tenant, error) {
	return s.transition(ctx, tc, targetTenantID, StatusSuspended, audit.TypeTenantSuspended, reason)
}

// Reactivate moves a suspended tenant back to active.
func (s *Service) Reactivate(ctx context.Context, tc Context, targetTenantID, reason string) (*Tenant, error) {
	t, err := s.get(ctx, tc, targetTenantID, "tenant.reactivate", reason)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusSuspended {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, StatusActive)
	}
	return s.apply(ctx, t, StatusActive, audit.TypeTenantReactivated, tc.ActorID)
}

// ExpireTenant moves a tenant to expired on behalf of the lifecycle sweeps.
// Not reachable from request handlers; there is no actor to attribute.
func (s *Service) ExpireTenant(ctx context.Context, tenantID string) error {
	t, err := s.repo.GetByID(ctx, tenantID)
	if err != nil {
		return err
	}
	_, err = s.apply(ctx, t, StatusExpired, audit.TypeTenantExpired, "")
	return err
}

// Cancel soft-cancels a tenant. Terminal; the row is kept forever.
// Outstanding quota usage does not block cancellation; final charges are
// settled by the billing subsystem.
func (s *Service) Cancel(ctx context.Context, tc Context, targetTenantID, reason string) (*Tenant, error) {
	return s.transition(ctx, tc, targetTenantID, StatusCancelled, audit.TypeTenantCancelled, reason)
}

// ExpireOverdue expires every trial tenant whose trial ended before now.
// Invoked by the periodic sweep, not by request handlers.
func (s *Service) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	overdue, err := s.repo.ListExpiring(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list expiring tenants: %w", err)
	}

	expired := 0
	for _, t := range overdue {
		if _, err := s.apply(ctx, t, StatusExpired, audit.TypeTenantExpired, ""); err != nil {
			slog.ErrorContext(ctx, "failed to expire tenant", logger.TenantID(t.ID), logger.Error(err))
			continue
		}
		expired++
	}
	return expired, nil
}

func (s *Service) transition(ctx context.Context, tc Context, targetTenantID, to, eventType, reason string) (*Tenant, error) {
	t, err := s.get(ctx, tc, targetTenantID, "tenant."+to, reason)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, t, to, eventType, tc.ActorID)
}

func (s *Service) get(ctx context.Context, tc Context, targetTenantID, action, reason string) (*Tenant, error) {
	scoped, err := s.guard.Scope(ctx, tc, targetTenantID, action, reason)
	if err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, scoped)
}

// apply performs a validated status change, mirrors it onto the current
// subscription and records an audit event.
func (s *Service) apply(ctx context.Context, t *Tenant, to, eventType, actorID string) (*Tenant, error) {
	if !CanTransition(t.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, to)
	}

	from := t.Status
	now := time.Now()
	t.Status = to
	t.UpdatedAt = now
	switch to {
	case StatusSuspended:
		t.SuspendedAt = &now
	case StatusActive:
		t.SuspendedAt = nil
	case StatusCancelled:
		t.CancelledAt = &now
	}

	if err := s.repo.Update(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to update tenant status: %w", err)
	}

	if s.mirror != nil {
		if err := s.mirror.MirrorTenantStatus(ctx, t.ID, to); err != nil {
			slog.ErrorContext(ctx, "failed to mirror tenant status to subscription",
				logger.TenantID(t.ID), logger.Error(err))
		}
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     eventType,
		TenantID: t.ID,
		ActorID:  actorID,
		Metadata: map[string]any{"from": from, "to": to},
	})

	return t, nil
}

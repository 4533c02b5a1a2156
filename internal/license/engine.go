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

package license

import (
	"context"

	"github.com/tenantgrid/tenantgrid/internal/catalog"
	"github.com/tenantgrid/tenantgrid/internal/subscription"
	"github.com/tenantgrid/tenantgrid/internal/tenant"
)

// Denial reasons. These are values callers branch on to drive feature-gated
// UI state; they are never Go errors.
const (
	ReasonSubscriptionNotActive = "SubscriptionNotActive"
	ReasonModuleNotLicensed     = "ModuleNotLicensed"
)

// Decision is the outcome of an access check.
type Decision struct {
	Granted bool   `json:"granted"`
	Reason  string `json:"reason,omitempty"`
}

// Granted is the positive decision.
var Granted = Decision{Granted: true}

// Denied builds a negative decision with the given reason.
func Denied(reason string) Decision {
	return Decision{Granted: false, Reason: reason}
}

// SubscriptionSource yields the tenant's current subscription. Satisfied by
// subscription.Repository.
type SubscriptionSource interface {
	GetCurrent(ctx context.Context, tenantID string) (*subscription.Subscription, error)
}

// Engine decides module and feature access from the catalog and the tenant's
// current subscription. Decisions are pure: the engine performs no writes
// and no side effects; callers act on the result.
type Engine struct {
	cat   *catalog.Catalog
	subs  SubscriptionSource
	guard *tenant.Guard
}

// NewEngine creates a license policy engine.
func NewEngine(cat *catalog.Catalog, subs SubscriptionSource, guard *tenant.Guard) *Engine {
	return &Engine{cat: cat, subs: subs, guard: guard}
}

// CheckModule decides whether the scoped tenant may use a module.
// Decision order: subscription must be ACTIVE or TRIAL; core modules are
// always granted; otherwise the module must be enabled on the subscription.
func (e *Engine) CheckModule(ctx context.Context, tc tenant.Context, targetTenantID, moduleCode, reason string) (Decision, error) {
	return e.check(ctx, tc, targetTenantID, reason, func(sub *subscription.Subscription) bool {
		mod, ok := e.cat.Module(moduleCode)
		if !ok {
			return false
		}
		return mod.Core || sub.ModuleEnabled(moduleCode)
	})
}

// CheckFeature decides feature access against the flattened feature set of
// the subscription's enabled modules (core modules included).
func (e *Engine) CheckFeature(ctx context.Context, tc tenant.Context, targetTenantID, featureCode, reason string) (Decision, error) {
	return e.check(ctx, tc, targetTenantID, reason, func(sub *subscription.Subscription) bool {
		for _, code := range e.cat.FeatureModules(featureCode) {
			if mod, ok := e.cat.Module(code); ok && mod.Core {
				return true
			}
			if sub.ModuleEnabled(code) {
				return true
			}
		}
		return false
	})
}

// check resolves scope, loads the subscription and applies the grant
// predicate. "No subscription" and an inactive subscription both deny with
// SubscriptionNotActive before the module list is even consulted.
func (e *Engine) check(ctx context.Context, tc tenant.Context, targetTenantID, reason string, granted func(*subscription.Subscription) bool) (Decision, error) {
	scoped, err := e.guard.Scope(ctx, tc, targetTenantID, "license.check", reason)
	if err != nil {
		return Decision{}, err
	}

	sub, err := e.subs.GetCurrent(ctx, scoped)
	if err == subscription.ErrNotFound {
		return Denied(ReasonSubscriptionNotActive), nil
	}
	if err != nil {
		return Decision{}, err
	}
	if !sub.Active() {
		return Denied(ReasonSubscriptionNotActive), nil
	}

	if granted(sub) {
		return Granted, nil
	}
	return Denied(ReasonModuleNotLicensed), nil
}

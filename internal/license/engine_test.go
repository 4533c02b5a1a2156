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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tenantgrid/tenantgrid/internal/audit"
	"github.com/tenantgrid/tenantgrid/internal/catalog"
	"github.com/tenantgrid/tenantgrid/internal/subscription"
	"github.com/tenantgrid/tenantgrid/internal/tenant"
)

// mockSubs implements SubscriptionSource for testing
type mockSubs struct {
	mock.Mock
}

func (m *mockSubs) GetCurrent(ctx context.Context, tenantID string) (*subscription.Subscription, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.Subscription), args.Error(1)
}

// mockAuditLogger implements audit.Logger for testing
type mockAuditLogger struct {
	mock.Mock
}

func (m *mockAuditLogger) Log(ctx context.Context, event audit.Event) {
	m.Called(ctx, event)
}

// mockAuditRecorder implements audit.Recorder for testing
type mockAuditRecorder struct {
	mock.Mock
}

func (m *mockAuditRecorder) Record(ctx context.Context, event audit.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func testEngine(t *testing.T, subs *mockSubs) *Engine {
	t.Helper()
	cat, err := catalog.New([]catalog.Module{
		{Code: "CORE_BILLING", Core: true, Features: []string{"invoicing"}},
		{Code: "NETWORK_MONITORING", Features: []string{"device_polling"}},
		{Code: "ADVANCED_BILLING", Dependencies: []string{"CORE_BILLING"}, Features: []string{"usage_based_invoicing"}},
	}, nil, nil)
	require.NoError(t, err)

	guard := tenant.NewGuard(new(mockAuditRecorder), new(mockAuditLogger))
	return NewEngine(cat, subs, guard)
}

func activeSub(modules ...subscription.Module) *subscription.Subscription {
	return &subscription.Subscription{
		ID: "sub-1", TenantID: "tenant-a",
		Status:  subscription.StatusActive,
		Modules: modules,
	}
}

func TestEngine_CheckModule_CoreAlwaysGranted(t *testing.T) {
	subs := new(mockSubs)
	engine := testEngine(t, subs)
	ctx := context.Background()
	tc := tenant.Context{TenantID: "tenant-a", ActorID: "user-1"}

	// Core modules are granted even with an empty module set.
	subs.On("GetCurrent", ctx, "tenant-a").Return(activeSub(), nil)

	d, err := engine.CheckModule(ctx, tc, "", "CORE_BILLING", "")
	require.NoError(t, err)
	assert.True(t, d.Granted)
	assert.Empty(t, d.Reason)
}

func TestEngine_CheckModule_EnabledAndDisabled(t *testing.T) {
	subs := new(mockSubs)
	engine := testEngine(t, subs)
	ctx := context.Background()
	tc := tenant.Context{TenantID: "tenant-a", ActorID: "user-1"}

	subs.On("GetCurrent", ctx, "tenant-a").Return(activeSub(
		subscription.Module{ModuleCode: "ADVANCED_BILLING", Enabled: true},
		subscription.Module{ModuleCode: "NETWORK_MONITORING", Enabled: false},
	), nil)

	d, err := engine.CheckModule(ctx, tc, "", "ADVANCED_BILLING", "")
	require.NoError(t, err)
	assert.True(t, d.Granted)

	d, err = engine.CheckModule(ctx, tc, "", "NETWORK_MONITORING", "")
	require.NoError(t, err)
	assert.False(t, d.Granted)
	assert.Equal(t, ReasonModuleNotLicensed, d.Reason)

	d, err = engine.CheckModule(ctx, tc, "", "GHOST", "")
	require.NoError(t, err)
	assert.False(t, d.Granted)
	assert.Equal(t, ReasonModuleNotLicensed, d.Reason)
}

// TestPurpose: Validates that a suspended subscription denies everything, including core
//              modules, with SubscriptionNotActive taking precedence over module state.
// Scope: Unit Test
// Expected: Denied with reason SubscriptionNotActive; the denial is a value, not an error.
// Test Case ID: LIC-01
func TestEngine_CheckModule_SuspendedDeniesEverything(t *testing.T) {
	subs := new(mockSubs)
	engine := testEngine(t, subs)
	ctx := context.Background()
	tc := tenant.Context{TenantID: "tenant-a", ActorID: "user-1"}

	subs.On("GetCurrent", ctx, "tenant-a").Return(&subscription.Subscription{
		ID: "sub-1", TenantID: "tenant-a",
		Status: subscription.StatusSuspended,
		Modules: []subscription.Module{
			{ModuleCode: "ADVANCED_BILLING", Enabled: true},
		},
	}, nil)

	for _, code := range []string{"CORE_BILLING", "ADVANCED_BILLING"} {
		d, err := engine.CheckModule(ctx, tc, "", code, "")
		require.NoError(t, err)
		assert.False(t, d.Granted, "module %s must be denied while suspended", code)
		assert.Equal(t, ReasonSubscriptionNotActive, d.Reason)
	}
}

func TestEngine_CheckModule_TrialGrantsAccess(t *testing.T) {
	subs := new(mockSubs)
	engine := testEngine(t, subs)
	ctx := context.Background()
	tc := tenant.Context{TenantID: "tenant-a"}

	subs.On("GetCurrent", ctx, "tenant-a").Return(&subscription.Subscription{
		ID: "sub-1", Status: subscription.StatusTrial,
		Modules: []subscription.Module{{ModuleCode: "ADVANCED_BILLING", Enabled: true}},
	}, nil)

	d, err := engine.CheckModule(ctx, tc, "", "ADVANCED_BILLING", "")
	require.NoError(t, err)
	assert.True(t, d.Granted)
}

func TestEngine_CheckModule_NoSubscriptionDenies(t *testing.T) {
	subs := new(mockSubs)
	engine := testEngine(t, subs)
	ctx := context.Background()
	tc := tenant.Context{TenantID: "tenant-a"}

	subs.On("GetCurrent", ctx, "tenant-a").Return(nil, subscription.ErrNotFound)

	d, err := engine.CheckModule(ctx, tc, "", "CORE_BILLING", "")
	require.NoError(t, err)
	assert.False(t, d.Granted)
	assert.Equal(t, ReasonSubscriptionNotActive, d.Reason)
}

func TestEngine_CheckFeature(t *testing.T) {
	subs := new(mockSubs)
	engine := testEngine(t, subs)
	ctx := context.Background()
	tc := tenant.Context{TenantID: "tenant-a"}

	subs.On("GetCurrent", ctx, "tenant-a").Return(activeSub(
		subscription.Module{ModuleCode: "ADVANCED_BILLING", Enabled: true},
	), nil)

	// Feature of an enabled module.
	d, err := engine.CheckFeature(ctx, tc, "", "usage_based_invoicing", "")
	require.NoError(t, err)
	assert.True(t, d.Granted)

	// Feature of a core module: always reachable.
	d, err = engine.CheckFeature(ctx, tc, "", "invoicing", "")
	require.NoError(t, err)
	assert.True(t, d.Granted)

	// Feature of a disabled module.
	d, err = engine.CheckFeature(ctx, tc, "", "device_polling", "")
	require.NoError(t, err)
	assert.False(t, d.Granted)
	assert.Equal(t, ReasonModuleNotLicensed, d.Reason)

	// Unknown feature.
	d, err = engine.CheckFeature(ctx, tc, "", "teleportation", "")
	require.NoError(t, err)
	assert.False(t, d.Granted)
}

// TestPurpose: Validates that license checks cannot cross the tenant boundary.
// Scope: Unit Test
// Security: Multi-tenant boundary enforcement
// Expected: A cross-tenant check resolves to tenant.ErrTenantNotFound before any
//           subscription lookup happens.
// Test Case ID: LIC-02
func TestEngine_Check_CrossTenantMasked(t *testing.T) {
	subs := new(mockSubs)
	cat, err := catalog.New([]catalog.Module{{Code: "CORE_BILLING", Core: true}}, nil, nil)
	require.NoError(t, err)

	auditLogger := new(mockAuditLogger)
	auditLogger.On("Log", mock.Anything, mock.Anything).Return()
	guard := tenant.NewGuard(new(mockAuditRecorder), auditLogger)
	engine := NewEngine(cat, subs, guard)

	_, err = engine.CheckModule(context.Background(), tenant.Context{TenantID: "tenant-a"}, "tenant-b", "CORE_BILLING", "")
	assert.ErrorIs(t, err, tenant.ErrTenantNotFound)
	subs.AssertNotCalled(t, "GetCurrent", mock.Anything, mock.Anything)
}

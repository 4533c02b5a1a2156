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
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tenantgrid/tenantgrid/internal/audit"
	"github.com/tenantgrid/tenantgrid/internal/catalog"
	"github.com/tenantgrid/tenantgrid/internal/tenant"
)

// fakeLedger is a thread-safe in-memory Ledger with the same version-checked
// Apply semantics as the Postgres store. forceConflicts makes the next N
// Apply calls fail with ErrConflict to exercise the retry loop.
type fakeLedger struct {
	mu             sync.Mutex
	rows           map[string]*Usage
	snaps          []*PeriodSnapshot
	forceConflicts int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{rows: make(map[string]*Usage)}
}

func ledgerKey(tenantID, quotaType string) string {
	return tenantID + "|" + quotaType
}

func (l *fakeLedger) Get(ctx context.Context, tenantID, quotaType string) (*Usage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.rows[ledgerKey(tenantID, quotaType)]
	if !ok {
		return nil, ErrUsageNotFound
	}
	cp := *u
	return &cp, nil
}

func (l *fakeLedger) Upsert(ctx context.Context, usage *Usage) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := ledgerKey(usage.TenantID, usage.QuotaType)
	if existing, ok := l.rows[key]; ok {
		existing.Allocated = usage.Allocated
		existing.Version++
		return nil
	}
	cp := *usage
	cp.Version = 1
	l.rows[key] = &cp
	return nil
}

func (l *fakeLedger) Apply(ctx context.Context, usage *Usage, expectedVersion int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.forceConflicts > 0 {
		l.forceConflicts--
		return ErrConflict
	}
	key := ledgerKey(usage.TenantID, usage.QuotaType)
	existing, ok := l.rows[key]
	if !ok || existing.Version != expectedVersion {
		return ErrConflict
	}
	cp := *usage
	cp.Version = expectedVersion + 1
	l.rows[key] = &cp
	usage.Version = cp.Version
	return nil
}

func (l *fakeLedger) List(ctx context.Context, tenantID string) ([]*Usage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*Usage
	for _, u := range l.rows {
		if u.TenantID == tenantID {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (l *fakeLedger) SaveSnapshot(ctx context.Context, snap *PeriodSnapshot) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *snap
	l.snaps = append(l.snaps, &cp)
	return nil
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

func testQuotaCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New(nil, []catalog.QuotaDef{
		{Type: "customers", OverageAllowed: true, OverageRate: decimal.RequireFromString("0.50")},
		{Type: "users"},
	}, nil)
	require.NoError(t, err)
	return cat
}

func newTestEngine(t *testing.T, ledger Ledger, auditLogger *mockAuditLogger) *Engine {
	t.Helper()
	guard := tenant.NewGuard(new(mockAuditRecorder), auditLogger)
	return NewEngine(testQuotaCatalog(t), ledger, guard, auditLogger)
}

func TestEngine_Reserve_WithinAllocation(t *testing.T) {
	ledger := newFakeLedger()
	engine := newTestEngine(t, ledger, new(mockAuditLogger))
	ctx := context.Background()
	tc := tenant.Context{TenantID: "tenant-a", ActorID: "user-1"}

	require.NoError(t, engine.Provision(ctx, "tenant-a", map[string]int64{"customers": 100}))

	adm, err := engine.Reserve(ctx, tc, "", "customers", 30, "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAdmitted, adm.Outcome)
	assert.True(t, adm.Admitted())
	assert.Equal(t, int64(70), adm.Remaining)
	assert.True(t, adm.OverageCharge.IsZero())
	assert.Equal(t, WarnNone, adm.WarningLevel)

	u, err := ledger.Get(ctx, "tenant-a", "customers")
	require.NoError(t, err)
	assert.Equal(t, int64(30), u.CurrentUsage)
	assert.Zero(t, u.OverageQuantity)
}

func TestEngine_Reserve_OverageBilledIncrementally(t *testing.T) {
	ledger := newFakeLedger()
	engine := newTestEngine(t, ledger, new(mockAuditLogger))
	ctx := context.Background()
	tc := tenant.Context{TenantID: "tenant-a", ActorID: "user-1"}

	require.NoError(t, engine.Provision(ctx, "tenant-a", map[string]int64{"customers": 10}))

	adm, err := engine.Reserve(ctx, tc, "", "customers", 8, "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAdmitted, adm.Outcome)

	// Crosses the allocation: 8 -> 12, two overage units at 0.50.
	adm, err = engine.Reserve(ctx, tc, "", "customers", 4, "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAdmittedWithOverage, adm.Outcome)
	assert.True(t, adm.Admitted())
	assert.Zero(t, adm.Remaining)
	assert.True(t, adm.OverageCharge.Equal(decimal.RequireFromString("1.00")), "got %s", adm.OverageCharge)
	assert.Equal(t, WarnCritical, adm.WarningLevel)

	// Already in overage: only the three new units are charged.
	adm, err = engine.Reserve(ctx, tc, "", "customers", 3, "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAdmittedWithOverage, adm.Outcome)
	assert.True(t, adm.OverageCharge.Equal(decimal.RequireFromString("1.50")), "got %s", adm.OverageCharge)

	u, err := ledger.Get(ctx, "tenant-a", "customers")
	require.NoError(t, err)
	assert.Equal(t, int64(15), u.CurrentUsage)
	assert.Equal(t, int64(5), u.OverageQuantity)
	assert.True(t, u.OverageCharges.Equal(decimal.RequireFromString("2.50")), "got %s", u.OverageCharges)
}

// TestPurpose: Validates the hard-limit path for quota types that disallow overage.
// Scope: Unit Test
// Expected: The reservation is denied as a value (no error), the ledger row is
//           untouched, and the denial is audited.
// Test Case ID: QTA-01
func TestEngine_Reserve_HardLimitDeniesWithoutMutation(t *testing.T) {
	ledger := newFakeLedger()
	auditLogger := new(mockAuditLogger)
	engine := newTestEngine(t, ledger, auditLogger)
	ctx := context.Background()
	tc := tenant.Context{TenantID: "tenant-a", ActorID: "user-1"}

	require.NoError(t, engine.Provision(ctx, "tenant-a", map[string]int64{"users": 10}))

	adm, err := engine.Reserve(ctx, tc, "", "users", 10, "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAdmitted, adm.Outcome, "filling the allocation exactly is admitted")
	assert.Equal(t, WarnCritical, adm.WarningLevel)

	auditLogger.On("Log", ctx, mock.MatchedBy(func(e audit.Event) bool {
		return e.Type == audit.TypeQuotaExceeded &&
			e.TenantID == "tenant-a" &&
			e.Resource == "users"
	})).Return()

	adm, err = engine.Reserve(ctx, tc, "", "users", 1, "")
	require.NoError(t, err, "a denial is a result value, not an error")
	assert.Equal(t, OutcomeDenied, adm.Outcome)
	assert.False(t, adm.Admitted())
	assert.Equal(t, ReasonQuotaExceeded, adm.Reason)

	u, err := ledger.Get(ctx, "tenant-a", "users")
	require.NoError(t, err)
	assert.Equal(t, int64(10), u.CurrentUsage, "a denied reservation must not touch the ledger")
	auditLogger.AssertExpectations(t)
}

func TestEngine_Release_FloorsAtZeroAndUnwindsOverage(t *testing.T) {
	ledger := newFakeLedger()
	engine := newTestEngine(t, ledger, new(mockAuditLogger))
	ctx := context.Background()
	tc := tenant.Context{TenantID: "tenant-a", ActorID: "user-1"}

	require.NoError(t, engine.Provision(ctx, "tenant-a", map[string]int64{"customers": 10}))
	_, err := engine.Reserve(ctx, tc, "", "customers", 14, "")
	require.NoError(t, err)

	// Dropping back under the allocation clears the overage counters.
	adm, err := engine.Release(ctx, tc, "", "customers", 6, "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAdmitted, adm.Outcome)
	assert.Equal(t, int64(2), adm.Remaining)

	u, err := ledger.Get(ctx, "tenant-a", "customers")
	require.NoError(t, err)
	assert.Equal(t, int64(8), u.CurrentUsage)
	assert.Zero(t, u.OverageQuantity)
	assert.True(t, u.OverageCharges.IsZero())

	// Releasing more than is used floors at zero instead of going negative.
	_, err = engine.Release(ctx, tc, "", "customers", 100, "")
	require.NoError(t, err)

	u, err = ledger.Get(ctx, "tenant-a", "customers")
	require.NoError(t, err)
	assert.Zero(t, u.CurrentUsage)
}

func TestEngine_Reserve_RejectsBadInput(t *testing.T) {
	ledger := newFakeLedger()
	engine := newTestEngine(t, ledger, new(mockAuditLogger))
	ctx := context.Background()
	tc := tenant.Context{TenantID: "tenant-a"}

	_, err := engine.Reserve(ctx, tc, "", "customers", 0, "")
	assert.ErrorContains(t, err, "must be positive")

	_, err = engine.Reserve(ctx, tc, "", "customers", -5, "")
	assert.ErrorContains(t, err, "must be positive")

	_, err = engine.Release(ctx, tc, "", "customers", 0, "")
	assert.ErrorContains(t, err, "must be positive")

	_, err = engine.Reserve(ctx, tc, "", "carrier_pigeons", 1, "")
	assert.ErrorIs(t, err, ErrUnknownQuotaType)

	// Provisioned types only: no row means not found, not silent creation.
	_, err = engine.Reserve(ctx, tc, "", "customers", 1, "")
	assert.ErrorIs(t, err, ErrUsageNotFound)
}

func TestEngine_Reserve_RetriesOnVersionConflict(t *testing.T) {
	ledger := newFakeLedger()
	engine := newTestEngine(t, ledger, new(mockAuditLogger))
	ctx := context.Background()
	tc := tenant.Context{TenantID: "tenant-a"}

	require.NoError(t, engine.Provision(ctx, "tenant-a", map[string]int64{"customers": 100}))

	ledger.forceConflicts = 2
	adm, err := engine.Reserve(ctx, tc, "", "customers", 5, "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAdmitted, adm.Outcome)

	u, err := ledger.Get(ctx, "tenant-a", "customers")
	require.NoError(t, err)
	assert.Equal(t, int64(5), u.CurrentUsage)

	// Persistent conflicts exhaust the retry budget.
	ledger.forceConflicts = maxApplyRetries
	_, err = engine.Reserve(ctx, tc, "", "customers", 5, "")
	assert.ErrorIs(t, err, ErrConflict)
}

// TestPurpose: Validates that concurrent reservations on one quota row never lose updates.
// Scope: Unit Test
// Expected: After N concurrent single-unit reservations the ledger reads exactly N.
// Test Case ID: QTA-02
func TestEngine_Reserve_ConcurrentReservationsAreSerialized(t *testing.T) {
	ledger := newFakeLedger()
	engine := newTestEngine(t, ledger, new(mockAuditLogger))
	ctx := context.Background()
	tc := tenant.Context{TenantID: "tenant-a"}

	const workers = 50
	require.NoError(t, engine.Provision(ctx, "tenant-a", map[string]int64{"customers": 1000}))

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Reserve(ctx, tc, "", "customers", 1, "")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	u, err := ledger.Get(ctx, "tenant-a", "customers")
	require.NoError(t, err)
	assert.Equal(t, int64(workers), u.CurrentUsage)
}

func TestEngine_Summary(t *testing.T) {
	ledger := newFakeLedger()
	engine := newTestEngine(t, ledger, new(mockAuditLogger))
	ctx := context.Background()
	tc := tenant.Context{TenantID: "tenant-a"}

	require.NoError(t, engine.Provision(ctx, "tenant-a", map[string]int64{"customers": 10, "users": 5}))
	_, err := engine.Reserve(ctx, tc, "", "customers", 12, "")
	require.NoError(t, err)

	rows, err := engine.Summary(ctx, tc, "", "")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// Rows follow catalog declaration order.
	customers, users := rows[0], rows[1]
	assert.Equal(t, "customers", customers.QuotaType)
	assert.Equal(t, int64(12), customers.Used)
	assert.Zero(t, customers.Remaining)
	assert.True(t, customers.Exceeded)
	assert.True(t, customers.OverageAllowed)
	assert.Equal(t, WarnCritical, customers.WarningLevel)
	assert.True(t, customers.OverageCharges.Equal(decimal.RequireFromString("1.00")))

	assert.Equal(t, "users", users.QuotaType)
	assert.Equal(t, int64(5), users.Remaining)
	assert.False(t, users.Exceeded)
	assert.False(t, users.OverageAllowed)
}

func TestEngine_Provision_ReallocationPreservesCounters(t *testing.T) {
	ledger := newFakeLedger()
	engine := newTestEngine(t, ledger, new(mockAuditLogger))
	ctx := context.Background()
	tc := tenant.Context{TenantID: "tenant-a"}

	require.NoError(t, engine.Provision(ctx, "tenant-a", map[string]int64{"customers": 10}))
	_, err := engine.Reserve(ctx, tc, "", "customers", 7, "")
	require.NoError(t, err)

	// Plan change: allocation grows, usage carries over.
	require.NoError(t, engine.Provision(ctx, "tenant-a", map[string]int64{"customers": 50}))

	u, err := ledger.Get(ctx, "tenant-a", "customers")
	require.NoError(t, err)
	assert.Equal(t, int64(50), u.Allocated)
	assert.Equal(t, int64(7), u.CurrentUsage)
}

func TestEngine_Rollover_SnapshotsThenResets(t *testing.T) {
	ledger := newFakeLedger()
	auditLogger := new(mockAuditLogger)
	engine := newTestEngine(t, ledger, auditLogger)
	ctx := context.Background()
	tc := tenant.Context{TenantID: "tenant-a"}

	require.NoError(t, engine.Provision(ctx, "tenant-a", map[string]int64{"customers": 10}))
	_, err := engine.Reserve(ctx, tc, "", "customers", 13, "")
	require.NoError(t, err)

	auditLogger.On("Log", ctx, mock.MatchedBy(func(e audit.Event) bool {
		return e.Type == audit.TypeQuotaRollover && e.TenantID == "tenant-a"
	})).Return()

	require.NoError(t, engine.Rollover(ctx, "tenant-a"))

	require.Len(t, ledger.snaps, 1)
	snap := ledger.snaps[0]
	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, int64(13), snap.Usage)
	assert.Equal(t, int64(3), snap.OverageQuantity)
	assert.True(t, snap.OverageCharges.Equal(decimal.RequireFromString("1.50")))

	u, err := ledger.Get(ctx, "tenant-a", "customers")
	require.NoError(t, err)
	assert.Zero(t, u.CurrentUsage)
	assert.Zero(t, u.OverageQuantity)
	assert.True(t, u.OverageCharges.IsZero())
	assert.Equal(t, int64(10), u.Allocated, "rollover resets counters, never the allocation")
	auditLogger.AssertExpectations(t)
}

func TestWarningLevel_Thresholds(t *testing.T) {
	cases := []struct {
		utilization float64
		want        string
	}{
		{0, WarnNone},
		{79.9, WarnNone},
		{80, WarnMedium},
		{89.9, WarnMedium},
		{90, WarnHigh},
		{99.9, WarnHigh},
		{100, WarnCritical},
		{150, WarnCritical},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, WarningLevel(c.utilization), "utilization %.1f", c.utilization)
	}
}

func TestUsage_Utilization_ZeroAllocation(t *testing.T) {
	u := &Usage{Allocated: 0, CurrentUsage: 0}
	assert.Zero(t, u.Utilization())
	assert.Zero(t, u.Remaining())

	u.CurrentUsage = 1
	assert.Equal(t, float64(100), u.Utilization(), "any usage against a zero allocation is full")
	assert.True(t, u.Exceeded())
}

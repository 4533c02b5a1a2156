package quota

import (
	"context"
	"errors"
)

var (
	ErrUsageNotFound    = errors.New("quota usage not found")
	ErrUnknownQuotaType = errors.New("unknown quota type")

	// ErrConflict signals a stale optimistic version on Apply. The engine
	// re-reads, re-runs admission and retries; it never overwrites blind.
	ErrConflict = errors.New("quota usage was modified concurrently")
)

// Ledger defines the interface for quota usage storage. The storage boundary
// is the only place a reservation is allowed to await I/O; all admission
// logic runs before Apply, and nothing is observable until Apply commits.
type Ledger interface {
	Get(ctx context.Context, tenantID, quotaType string) (*Usage, error)
	// Upsert creates the usage row for a tenant/type or, if it already
	// exists, updates its allocation while preserving counters.
	Upsert(ctx context.Context, usage *Usage) error
	// Apply persists the row's counters in one atomic write iff the stored
	// version still matches expectedVersion, then bumps the version.
	// Returns ErrConflict on a stale version.
	Apply(ctx context.Context, usage *Usage, expectedVersion int64) error
	List(ctx context.Context, tenantID string) ([]*Usage, error)
	SaveSnapshot(ctx context.Context, snap *PeriodSnapshot) error
}

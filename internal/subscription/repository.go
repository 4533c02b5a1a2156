package subscription

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("subscription not found")
	ErrUnknownModule = errors.New("unknown module code")
	ErrUnknownPlan   = errors.New("unknown plan code")
	ErrCoreModule    = errors.New("core modules are always enabled and cannot be changed")

	// ErrConflict signals a stale optimistic version. Writers reload,
	// re-validate and retry; they never blindly overwrite.
	ErrConflict = errors.New("subscription was modified concurrently")
)

// Repository defines the interface for subscription storage
type Repository interface {
	Create(ctx context.Context, sub *Subscription) error
	// GetCurrent returns the tenant's single current subscription.
	GetCurrent(ctx context.Context, tenantID string) (*Subscription, error)
	// ReplaceModules persists the full module set in one atomic write iff
	// the stored version still matches expectedVersion, then bumps the
	// version. Returns ErrConflict on a stale version.
	ReplaceModules(ctx context.Context, subscriptionID string, modules []Module, expectedVersion int64) error
	UpdateStatus(ctx context.Context, subscriptionID, status string) error
	UpdatePeriod(ctx context.Context, subscriptionID string, start, end time.Time) error
	// ListDue returns current, access-granting subscriptions whose billing
	// period ended before the given instant. Used by the renewal sweep.
	ListDue(ctx context.Context, before time.Time) ([]*Subscription, error)
	// ListSuspendedDue returns current SUSPENDED subscriptions whose billing
	// period ended before the given instant. Used by the expiry sweep:
	// suspended subscriptions are not renewed, they expire.
	ListSuspendedDue(ctx context.Context, before time.Time) ([]*Subscription, error)
}

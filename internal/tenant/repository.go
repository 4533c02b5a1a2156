package tenant

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrContextMissing is returned when an operation is invoked without a
	// resolved tenant context. No I/O happens after this error.
	ErrContextMissing = errors.New("tenant context missing")

	// ErrTenantNotFound is returned both when a tenant genuinely does not
	// exist and when a caller is scoped to a different tenant. The two cases
	// are indistinguishable on purpose to prevent existence leakage.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrInvalidTransition is returned for lifecycle moves the state machine
	// does not allow.
	ErrInvalidTransition = errors.New("invalid tenant status transition")
)

// Repository defines the interface for tenant storage
type Repository interface {
	Create(ctx context.Context, tenant *Tenant) error
	GetByID(ctx context.Context, id string) (*Tenant, error)
	Update(ctx context.Context, tenant *Tenant) error
	List(ctx context.Context, limit, offset int) ([]*Tenant, error)
	// ListExpiring returns trial tenants whose trial ended before the given
	// instant. Used by the expiry sweep.
	ListExpiring(ctx context.Context, before time.Time) ([]*Tenant, error)
}

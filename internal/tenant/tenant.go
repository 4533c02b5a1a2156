package tenant

import (
	"time"
)

// Tenant represents an isolated ISP customer organization using the platform.
// Tenants are never hard-deleted; cancellation is a terminal soft state.
type Tenant struct {
	ID          string     `json:"id"`
	CompanyName string     `json:"company_name"`
	Status      string     `json:"status"`
	TrialEndsAt *time.Time `json:"trial_ends_at,omitempty"`
	SuspendedAt *time.Time `json:"suspended_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Status constants
const (
	StatusTrial     = "trial"
	StatusActive    = "active"
	StatusSuspended = "suspended"
	StatusExpired   = "expired"
	StatusCancelled = "cancelled"
)

// validTransitions encodes the lifecycle state machine. Transitions are
// one-directional except suspended<->active; cancelled is terminal.
var validTransitions = map[string][]string{
	StatusTrial:     {StatusActive, StatusExpired, StatusCancelled},
	StatusActive:    {StatusSuspended, StatusExpired, StatusCancelled},
	StatusSuspended: {StatusActive, StatusExpired, StatusCancelled},
	StatusExpired:   {},
	StatusCancelled: {},
}

// CanTransition reports whether a tenant may move from one status to another.
func CanTransition(from, to string) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

package subscription

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tenantgrid/tenantgrid/internal/tenant"
)

// Status constants. Subscription status mirrors the owning tenant's
// lifecycle; CANCELLED is terminal.
const (
	StatusTrial     = "TRIAL"
	StatusActive    = "ACTIVE"
	StatusSuspended = "SUSPENDED"
	StatusExpired   = "EXPIRED"
	StatusCancelled = "CANCELLED"
)

// Billing cycles
const (
	CycleMonthly = "monthly"
	CycleYearly  = "yearly"
)

// Subscription is a tenant's current plan subscription. TenantID is the
// owning tenant and immutable; exactly one subscription is current per
// tenant at a time.
type Subscription struct {
	ID                 string          `json:"id"`
	TenantID           string          `json:"tenant_id"`
	PlanCode           string          `json:"plan_code"`
	Status             string          `json:"status"`
	BillingCycle       string          `json:"billing_cycle"`
	MonthlyPrice       decimal.Decimal `json:"monthly_price"`
	CurrentPeriodStart time.Time       `json:"current_period_start"`
	CurrentPeriodEnd   time.Time       `json:"current_period_end"`
	Modules            []Module        `json:"modules"`
	Version            int64           `json:"-"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// Module is a module row on a subscription. Core catalog modules never
// appear here; they are implicitly enabled for every tenant.
type Module struct {
	ModuleCode string `json:"module_code"`
	Enabled    bool   `json:"enabled"`
}

// Active reports whether the subscription grants access at all.
func (s *Subscription) Active() bool {
	return s.Status == StatusActive || s.Status == StatusTrial
}

// ModuleEnabled reports whether a non-core module is enabled on this
// subscription.
func (s *Subscription) ModuleEnabled(code string) bool {
	for _, m := range s.Modules {
		if m.ModuleCode == code {
			return m.Enabled
		}
	}
	return false
}

// EnabledModules returns the codes of enabled modules in subscription order.
func (s *Subscription) EnabledModules() []string {
	var out []string
	for _, m := range s.Modules {
		if m.Enabled {
			out = append(out, m.ModuleCode)
		}
	}
	return out
}

// StatusForTenant maps a tenant lifecycle status onto the subscription
// status that mirrors it.
func StatusForTenant(tenantStatus string) string {
	switch tenantStatus {
	case tenant.StatusTrial:
		return StatusTrial
	case tenant.StatusActive:
		return StatusActive
	case tenant.StatusSuspended:
		return StatusSuspended
	case tenant.StatusExpired:
		return StatusExpired
	case tenant.StatusCancelled:
		return StatusCancelled
	}
	return ""
}

// DependencyUnmetError reports the transitive dependencies that must be
// enabled before the requested module can be.
type DependencyUnmetError struct {
	Module  string
	Missing []string
}

func (e *DependencyUnmetError) Error() string {
	return fmt.Sprintf("cannot enable %s: dependencies not enabled: %s",
		e.Module, strings.Join(e.Missing, ", "))
}

// DependencyInUseError reports the enabled modules whose dependency closure
// still includes the module being disabled.
type DependencyInUseError struct {
	Module     string
	Dependents []string
}

func (e *DependencyInUseError) Error() string {
	return fmt.Sprintf("cannot disable %s: required by enabled modules: %s",
		e.Module, strings.Join(e.Dependents, ", "))
}

package quota

import (
	"time"

	"github.com/shopspring/decimal"
)

// Usage is the per-tenant, per-quota-type ledger row. Invariants held at all
// times: CurrentUsage >= 0; OverageQuantity = max(0, CurrentUsage-Allocated);
// OverageCharges = OverageQuantity * overage rate; and if overage is
// disallowed for the type, CurrentUsage never exceeds Allocated.
type Usage struct {
	TenantID        string          `json:"tenant_id"`
	QuotaType       string          `json:"quota_type"`
	Allocated       int64           `json:"allocated_quantity"`
	CurrentUsage    int64           `json:"current_usage"`
	OverageQuantity int64           `json:"overage_quantity"`
	OverageCharges  decimal.Decimal `json:"overage_charges"`
	Version         int64           `json:"-"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Utilization returns usage as a percentage of the allocation. Values exceed
// 100 during overage; display-layer clamping is the caller's concern, never
// applied to decision logic.
func (u *Usage) Utilization() float64 {
	if u.Allocated <= 0 {
		if u.CurrentUsage == 0 {
			return 0
		}
		return 100
	}
	return float64(u.CurrentUsage) / float64(u.Allocated) * 100
}

// Remaining returns the headroom under the allocation, floored at zero.
func (u *Usage) Remaining() int64 {
	if r := u.Allocated - u.CurrentUsage; r > 0 {
		return r
	}
	return 0
}

// Exceeded reports whether usage is at or over the allocation.
func (u *Usage) Exceeded() bool {
	return u.CurrentUsage >= u.Allocated
}

// Warning levels derived from utilization. They drive notifications only and
// never block a reservation.
const (
	WarnNone     = "none"
	WarnMedium   = "medium"
	WarnHigh     = "high"
	WarnCritical = "critical"
)

// WarningLevel derives the notification level from a utilization percentage.
func WarningLevel(utilization float64) string {
	switch {
	case utilization >= 100:
		return WarnCritical
	case utilization >= 90:
		return WarnHigh
	case utilization >= 80:
		return WarnMedium
	default:
		return WarnNone
	}
}

// Reservation outcomes.
const (
	OutcomeAdmitted            = "admitted"
	OutcomeAdmittedWithOverage = "admitted_with_overage"
	OutcomeDenied              = "denied"
)

// ReasonQuotaExceeded is the denial reason when a reservation would push
// usage past a hard (overage-disallowed) allocation.
const ReasonQuotaExceeded = "QuotaExceeded"

// Admission is the tagged result of a reservation. A denial is an ordinary
// value, not an error; callers branch on Outcome.
type Admission struct {
	Outcome       string          `json:"outcome"`
	Reason        string          `json:"reason,omitempty"`
	Remaining     int64           `json:"remaining"`
	OverageCharge decimal.Decimal `json:"overage_charge"`
	Utilization   float64         `json:"utilization"`
	WarningLevel  string          `json:"warning_level"`
}

// Admitted reports whether the reservation went through.
func (a *Admission) Admitted() bool {
	return a.Outcome != OutcomeDenied
}

// SummaryRow is one quota type's standing for the summary endpoint.
type SummaryRow struct {
	QuotaType      string          `json:"quota_type"`
	Allocated      int64           `json:"allocated"`
	Used           int64           `json:"used"`
	Remaining      int64           `json:"remaining"`
	Utilization    float64         `json:"utilization"`
	WarningLevel   string          `json:"warning_level"`
	Exceeded       bool            `json:"exceeded"`
	OverageAllowed bool            `json:"overage_allowed"`
	OverageCharges decimal.Decimal `json:"overage_charges"`
}

// PeriodSnapshot freezes a quota row's overage at billing-period rollover.
// Invoicing from snapshots belongs to the billing subsystem; this package
// only records them.
type PeriodSnapshot struct {
	ID              string          `json:"id"`
	TenantID        string          `json:"tenant_id"`
	QuotaType       string          `json:"quota_type"`
	Usage           int64           `json:"usage"`
	OverageQuantity int64           `json:"overage_quantity"`
	OverageCharges  decimal.Decimal `json:"overage_charges"`
	PeriodEndedAt   time.Time       `json:"period_ended_at"`
}

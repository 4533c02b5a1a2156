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

package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Config holds metrics configuration
type Config struct {
	Enabled bool
}

// Meter wraps OpenTelemetry meter
type Meter struct {
	meter metric.Meter
}

// New creates a new meter instance
func New(ctx context.Context, cfg Config, serviceName string) (*Meter, error) {
	if !cfg.Enabled {
		return &Meter{
			meter: otel.Meter("noop"),
		}, nil
	}

	// Meter from the global provider; exporters are configured by the
	// process that owns the provider.
	return &Meter{
		meter: otel.Meter(serviceName),
	}, nil
}

// GetMeter returns the underlying meter
func (m *Meter) GetMeter() metric.Meter {
	return m.meter
}

// CreateCounter creates a new counter metric
func (m *Meter) CreateCounter(name, description string) (metric.Int64Counter, error) {
	counter, err := m.meter.Int64Counter(
		name,
		metric.WithDescription(description),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter %s: %w", name, err)
	}
	return counter, nil
}

// CreateHistogram creates a new histogram metric
func (m *Meter) CreateHistogram(name, description, unit string) (metric.Float64Histogram, error) {
	histogram, err := m.meter.Float64Histogram(
		name,
		metric.WithDescription(description),
		metric.WithUnit(unit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create histogram %s: %w", name, err)
	}
	return histogram, nil
}

// PolicyCounters bundles the counters published by the policy endpoints.
type PolicyCounters struct {
	LicenseChecks     metric.Int64Counter
	QuotaReservations metric.Int64Counter
	QuotaDenials      metric.Int64Counter
}

// NewPolicyCounters creates the counters for license and quota decisions.
func (m *Meter) NewPolicyCounters() (*PolicyCounters, error) {
	licenseChecks, err := m.CreateCounter("license_checks_total", "License access decisions evaluated")
	if err != nil {
		return nil, err
	}
	reservations, err := m.CreateCounter("quota_reservations_total", "Quota reservations admitted")
	if err != nil {
		return nil, err
	}
	denials, err := m.CreateCounter("quota_denials_total", "Quota reservations denied")
	if err != nil {
		return nil, err
	}
	return &PolicyCounters{
		LicenseChecks:     licenseChecks,
		QuotaReservations: reservations,
		QuotaDenials:      denials,
	}, nil
}

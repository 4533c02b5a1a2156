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

package http

import (
	"encoding/json"
	"net/http"

	"github.com/tenantgrid/tenantgrid/internal/license"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// CheckAccessRequest represents a license check. Exactly one of module_code
// or feature_code must be set.
type CheckAccessRequest struct {
	ModuleCode  string `json:"module_code,omitempty" example:"ADVANCED_BILLING"`
	FeatureCode string `json:"feature_code,omitempty" example:"usage_based_invoicing"`
}

// CheckAccess evaluates module or feature access for the scoped tenant
// @Summary Check Access
// @Description Evaluate a license decision; a denial is a 200 with granted=false, never an error
// @Tags License
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CheckAccessRequest true "Check Data"
// @Success 200 {object} license.Decision
// @Failure 400 {object} map[string]string
// @Router /license/check [post]
func (h *Handler) CheckAccess(w http.ResponseWriter, r *http.Request) {
	var req CheckAccessRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if (req.ModuleCode == "") == (req.FeatureCode == "") {
		respondError(w, http.StatusBadRequest, "exactly one of module_code or feature_code is required")
		return
	}

	target, reason := targetTenant(r)
	tc := GetTenantContext(r.Context())

	var decision license.Decision
	var err error
	if req.ModuleCode != "" {
		decision, err = h.licenseEngine.CheckModule(r.Context(), tc, target, req.ModuleCode, reason)
	} else {
		decision, err = h.licenseEngine.CheckFeature(r.Context(), tc, target, req.FeatureCode, reason)
	}
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	h.counters.LicenseChecks.Add(r.Context(), 1, metric.WithAttributes(
		attribute.Bool("granted", decision.Granted),
	))

	respondJSON(w, http.StatusOK, decision)
}

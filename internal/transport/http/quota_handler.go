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

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// QuotaRequest represents a quota reservation or release
type QuotaRequest struct {
	QuotaType string `json:"quota_type" binding:"required" example:"customers"`
	Quantity  int64  `json:"quantity" binding:"required" example:"1"`
}

// ReserveQuota admits quantity units against the scoped tenant's quota
// @Summary Reserve Quota
// @Description Reserve quota units; a denial is a 200 with outcome=denied, never an error
// @Tags Quota
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body QuotaRequest true "Reservation Data"
// @Success 200 {object} quota.Admission
// @Failure 400 {object} map[string]string
// @Router /quota/reserve [post]
func (h *Handler) ReserveQuota(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeQuotaRequest(w, r)
	if !ok {
		return
	}

	target, reason := targetTenant(r)
	adm, err := h.quotaEngine.Reserve(r.Context(), GetTenantContext(r.Context()), target, req.QuotaType, req.Quantity, reason)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	attrs := metric.WithAttributes(attribute.String("quota_type", req.QuotaType))
	if adm.Admitted() {
		h.counters.QuotaReservations.Add(r.Context(), req.Quantity, attrs)
	} else {
		h.counters.QuotaDenials.Add(r.Context(), 1, attrs)
	}

	respondJSON(w, http.StatusOK, adm)
}

// ReleaseQuota returns quantity units to the scoped tenant's quota
// @Summary Release Quota
// @Tags Quota
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body QuotaRequest true "Release Data"
// @Success 200 {object} quota.Admission
// @Failure 400 {object} map[string]string
// @Router /quota/release [post]
func (h *Handler) ReleaseQuota(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeQuotaRequest(w, r)
	if !ok {
		return
	}

	target, reason := targetTenant(r)
	adm, err := h.quotaEngine.Release(r.Context(), GetTenantContext(r.Context()), target, req.QuotaType, req.Quantity, reason)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, adm)
}

// QuotaSummary reports every quota type's standing for the scoped tenant
// @Summary Quota Summary
// @Tags Quota
// @Produce json
// @Security BearerAuth
// @Success 200 {array} quota.SummaryRow
// @Router /quota/summary [get]
func (h *Handler) QuotaSummary(w http.ResponseWriter, r *http.Request) {
	target, reason := targetTenant(r)
	rows, err := h.quotaEngine.Summary(r.Context(), GetTenantContext(r.Context()), target, reason)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

func decodeQuotaRequest(w http.ResponseWriter, r *http.Request) (QuotaRequest, bool) {
	var req QuotaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	if req.QuotaType == "" {
		respondError(w, http.StatusBadRequest, "quota_type is required")
		return req, false
	}
	if req.Quantity <= 0 {
		respondError(w, http.StatusBadRequest, "quantity must be positive")
		return req, false
	}
	return req, true
}

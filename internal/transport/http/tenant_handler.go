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
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/tenantgrid/tenantgrid/internal/observability/logger"
	"github.com/tenantgrid/tenantgrid/internal/subscription"
	"github.com/tenantgrid/tenantgrid/internal/tenant"
)

// SignupRequest represents tenant signup data
type SignupRequest struct {
	CompanyName string `json:"company_name" binding:"required" example:"Acme ISP"`
	PlanCode    string `json:"plan_code" example:"STARTER"`
}

// Signup handles tenant self-registration
// @Summary Sign up a new tenant
// @Description Create a tenant in trial status with a subscription on the requested plan
// @Tags Tenant
// @Accept json
// @Produce json
// @Param request body SignupRequest true "Signup Data"
// @Success 201 {object} map[string]any
// @Failure 400 {object} map[string]string
// @Router /signup [post]
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CompanyName == "" {
		respondError(w, http.StatusBadRequest, "company_name is required")
		return
	}
	planCode := req.PlanCode
	if planCode == "" {
		planCode = h.defaultPlan
	}

	t, err := h.tenantService.Signup(r.Context(), req.CompanyName)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to sign up tenant", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to create tenant")
		return
	}

	sub, err := h.subscriptionService.Activate(r.Context(), t.ID, planCode, subscription.StatusTrial)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to activate subscription",
			logger.TenantID(t.ID), logger.PlanCode(planCode), logger.Error(err))
		respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"tenant":       t,
		"subscription": sub,
	})
}

// GetTenant returns the scoped tenant
// @Summary Get Tenant
// @Description Retrieve the caller's tenant, or a target tenant for platform admins
// @Tags Tenant
// @Produce json
// @Security BearerAuth
// @Param X-Target-Tenant header string false "Cross-tenant target (platform admin only)"
// @Param X-Audit-Reason header string false "Reason, mandatory with X-Target-Tenant"
// @Success 200 {object} tenant.Tenant
// @Failure 404 {object} map[string]string
// @Router /tenant [get]
func (h *Handler) GetTenant(w http.ResponseWriter, r *http.Request) {
	target, reason := targetTenant(r)
	t, err := h.tenantService.Get(r.Context(), GetTenantContext(r.Context()), target, reason)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

// ListTenants lists tenants visible to the caller
// @Summary List Tenants
// @Description Platform admins see all tenants; everyone else gets an empty list
// @Tags Tenant
// @Produce json
// @Security BearerAuth
// @Success 200 {array} tenant.Tenant
// @Router /tenants [get]
func (h *Handler) ListTenants(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	tenants, err := h.tenantService.ListAccessible(r.Context(), GetTenantContext(r.Context()), limit, offset)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, tenants)
}

// ConvertTenant moves a trial tenant to active
// @Summary Convert Tenant
// @Tags Tenant
// @Produce json
// @Security BearerAuth
// @Success 200 {object} tenant.Tenant
// @Failure 409 {object} map[string]string
// @Router /tenant/convert [post]
func (h *Handler) ConvertTenant(w http.ResponseWriter, r *http.Request) {
	h.transitionTenant(w, r, h.tenantService.Convert)
}

// SuspendTenant suspends an active tenant
// @Summary Suspend Tenant
// @Tags Tenant
// @Produce json
// @Security BearerAuth
// @Success 200 {object} tenant.Tenant
// @Failure 409 {object} map[string]string
// @Router /tenant/suspend [post]
func (h *Handler) SuspendTenant(w http.ResponseWriter, r *http.Request) {
	h.transitionTenant(w, r, h.tenantService.Suspend)
}

// ReactivateTenant moves a suspended tenant back to active
// @Summary Reactivate Tenant
// @Tags Tenant
// @Produce json
// @Security BearerAuth
// @Success 200 {object} tenant.Tenant
// @Failure 409 {object} map[string]string
// @Router /tenant/reactivate [post]
func (h *Handler) ReactivateTenant(w http.ResponseWriter, r *http.Request) {
	h.transitionTenant(w, r, h.tenantService.Reactivate)
}

// CancelTenant cancels a tenant. Terminal.
// @Summary Cancel Tenant
// @Tags Tenant
// @Produce json
// @Security BearerAuth
// @Success 200 {object} tenant.Tenant
// @Failure 409 {object} map[string]string
// @Router /tenant/cancel [post]
func (h *Handler) CancelTenant(w http.ResponseWriter, r *http.Request) {
	h.transitionTenant(w, r, h.tenantService.Cancel)
}

func (h *Handler) transitionTenant(
	w http.ResponseWriter,
	r *http.Request,
	fn func(ctx context.Context, tc tenant.Context, targetTenantID, reason string) (*tenant.Tenant, error),
) {
	target, reason := targetTenant(r)
	t, err := fn(r.Context(), GetTenantContext(r.Context()), target, reason)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

func queryInt(r *http.Request, key string, defaultValue int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i >= 0 {
			return i
		}
	}
	return defaultValue
}

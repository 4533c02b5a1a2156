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
	"net/http"

	"github.com/go-chi/chi/v5"
)

// GetSubscription returns the scoped tenant's current subscription
// @Summary Get Subscription
// @Description Retrieve the current subscription and its module set
// @Tags Subscription
// @Produce json
// @Security BearerAuth
// @Success 200 {object} subscription.Subscription
// @Failure 404 {object} map[string]string
// @Router /subscription [get]
func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	target, reason := targetTenant(r)
	sub, err := h.subscriptionService.Current(r.Context(), GetTenantContext(r.Context()), target, reason)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sub)
}

// EnableModule enables a module on the current subscription
// @Summary Enable Module
// @Description Enable a non-core module; all transitive dependencies must already be enabled
// @Tags Subscription
// @Produce json
// @Security BearerAuth
// @Param moduleCode path string true "Module code"
// @Success 200 {object} map[string]string
// @Failure 409 {object} map[string]any
// @Failure 422 {object} map[string]string
// @Router /subscription/modules/{moduleCode}/enable [post]
func (h *Handler) EnableModule(w http.ResponseWriter, r *http.Request) {
	moduleCode := chi.URLParam(r, "moduleCode")
	target, reason := targetTenant(r)

	err := h.subscriptionService.EnableModule(r.Context(), GetTenantContext(r.Context()), target, moduleCode, reason)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"module_code": moduleCode,
		"state":       "enabled",
	})
}

// DisableModule disables a module on the current subscription
// @Summary Disable Module
// @Description Disable a non-core module unless another enabled module still depends on it
// @Tags Subscription
// @Produce json
// @Security BearerAuth
// @Param moduleCode path string true "Module code"
// @Success 200 {object} map[string]string
// @Failure 409 {object} map[string]any
// @Failure 422 {object} map[string]string
// @Router /subscription/modules/{moduleCode}/disable [post]
func (h *Handler) DisableModule(w http.ResponseWriter, r *http.Request) {
	moduleCode := chi.URLParam(r, "moduleCode")
	target, reason := targetTenant(r)

	err := h.subscriptionService.DisableModule(r.Context(), GetTenantContext(r.Context()), target, moduleCode, reason)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"module_code": moduleCode,
		"state":       "disabled",
	})
}

// @title TenantGrid API
// @version 1.0.0
// @description Multi-tenant module licensing and quota enforcement engine

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/tenantgrid/tenantgrid/internal/audit"
	"github.com/tenantgrid/tenantgrid/internal/license"
	"github.com/tenantgrid/tenantgrid/internal/observability/logger"
	"github.com/tenantgrid/tenantgrid/internal/observability/metrics"
	"github.com/tenantgrid/tenantgrid/internal/quota"
	"github.com/tenantgrid/tenantgrid/internal/subscription"
	"github.com/tenantgrid/tenantgrid/internal/tenant"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Handler holds HTTP handlers and dependencies
type Handler struct {
	tenantService       *tenant.Service
	subscriptionService *subscription.Service
	licenseEngine       *license.Engine
	quotaEngine         *quota.Engine
	auditLogger         audit.Logger
	counters            *metrics.PolicyCounters
	jwtSecret           string
	jwtIssuer           string
	defaultPlan         string
}

// NewHandler creates a new HTTP handler
func NewHandler(
	tenantService *tenant.Service,
	subscriptionService *subscription.Service,
	licenseEngine *license.Engine,
	quotaEngine *quota.Engine,
	auditLogger audit.Logger,
	counters *metrics.PolicyCounters,
	jwtSecret string,
	jwtIssuer string,
	defaultPlan string,
) *Handler {
	return &Handler{
		tenantService:       tenantService,
		subscriptionService: subscriptionService,
		licenseEngine:       licenseEngine,
		quotaEngine:         quotaEngine,
		auditLogger:         auditLogger,
		counters:            counters,
		jwtSecret:           jwtSecret,
		jwtIssuer:           jwtIssuer,
		defaultPlan:         defaultPlan,
	}
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check
	r.Get("/health", h.HealthCheck)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public signup: a new tenant has no token yet.
		r.Post("/signup", h.Signup)

		// Tenant-scoped endpoints (FAIL-CLOSED). The verified token is the
		// only source of the caller's tenant; X-Target-Tenant is an explicit
		// cross-tenant request resolved by the isolation guard.
		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)

			r.Route("/tenant", func(r chi.Router) {
				r.Get("/", h.GetTenant)
				r.Post("/convert", h.ConvertTenant)
				r.Post("/suspend", h.SuspendTenant)
				r.Post("/reactivate", h.ReactivateTenant)
				r.Post("/cancel", h.CancelTenant)
			})
			r.Get("/tenants", h.ListTenants)

			r.Route("/subscription", func(r chi.Router) {
				r.Get("/", h.GetSubscription)
				r.Post("/modules/{moduleCode}/enable", h.EnableModule)
				r.Post("/modules/{moduleCode}/disable", h.DisableModule)
			})

			r.Route("/license", func(r chi.Router) {
				r.Post("/check", h.CheckAccess)
			})

			r.Route("/quota", func(r chi.Router) {
				r.Post("/reserve", h.ReserveQuota)
				r.Post("/release", h.ReleaseQuota)
				r.Get("/summary", h.QuotaSummary)
			})
		})
	})

	return r
}

// HealthCheck returns the health status
// @Summary Health Check
// @Description Checks if the service is up and running
// @Tags System
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "tenantgrid",
	})
}

// Helper functions
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// respondDomainError maps domain errors onto HTTP responses. Isolation
// violations surface as plain 404s with no hint of the real cause; the detail
// lives in the server-side audit log only.
func respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var unmet *subscription.DependencyUnmetError
	var inUse *subscription.DependencyInUseError

	switch {
	case errors.Is(err, tenant.ErrContextMissing):
		respondError(w, http.StatusUnauthorized, "tenant context missing")
	case errors.Is(err, tenant.ErrBypassReasonRequired):
		respondError(w, http.StatusBadRequest, "X-Audit-Reason header is required for cross-tenant access")
	case errors.Is(err, tenant.ErrTenantNotFound):
		respondError(w, http.StatusNotFound, "tenant not found")
	case errors.Is(err, tenant.ErrInvalidTransition):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, subscription.ErrNotFound):
		respondError(w, http.StatusNotFound, "no current subscription")
	case errors.Is(err, subscription.ErrUnknownModule),
		errors.Is(err, subscription.ErrUnknownPlan),
		errors.Is(err, quota.ErrUnknownQuotaType):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, subscription.ErrCoreModule):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &unmet):
		respondJSON(w, http.StatusConflict, map[string]any{
			"error":                unmet.Error(),
			"module_code":          unmet.Module,
			"missing_dependencies": unmet.Missing,
		})
	case errors.As(err, &inUse):
		respondJSON(w, http.StatusConflict, map[string]any{
			"error":       inUse.Error(),
			"module_code": inUse.Module,
			"dependents":  inUse.Dependents,
		})
	case errors.Is(err, subscription.ErrConflict), errors.Is(err, quota.ErrConflict):
		respondError(w, http.StatusConflict, "resource was modified concurrently, retry")
	case errors.Is(err, quota.ErrUsageNotFound):
		respondError(w, http.StatusNotFound, "no quota allocation for this tenant")
	default:
		slog.ErrorContext(r.Context(), "unhandled domain error", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tenantgrid/tenantgrid/internal/audit"
	"github.com/tenantgrid/tenantgrid/internal/catalog"
	"github.com/tenantgrid/tenantgrid/internal/config"
	"github.com/tenantgrid/tenantgrid/internal/license"
	"github.com/tenantgrid/tenantgrid/internal/observability/logger"
	"github.com/tenantgrid/tenantgrid/internal/observability/metrics"
	"github.com/tenantgrid/tenantgrid/internal/observability/tracing"
	"github.com/tenantgrid/tenantgrid/internal/quota"
	"github.com/tenantgrid/tenantgrid/internal/store/postgres"
	"github.com/tenantgrid/tenantgrid/internal/subscription"
	"github.com/tenantgrid/tenantgrid/internal/tenant"
	transportHTTP "github.com/tenantgrid/tenantgrid/internal/transport/http"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})
	slog.Info("starting tenantgrid licensing engine")

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrate(cfg); err != nil {
			fmt.Printf("Migration failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Initialize context
	ctx := context.Background()

	// Initialize tracer
	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   1.0,
	})
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
	}
	defer tracer.Shutdown(ctx)

	// Initialize meter
	meter, err := metrics.New(ctx, metrics.Config{
		Enabled: cfg.Observability.OTELEnabled,
	}, cfg.Observability.ServiceName)
	if err != nil {
		slog.Error("failed to initialize meter", logger.Error(err))
		os.Exit(1)
	}
	counters, err := meter.NewPolicyCounters()
	if err != nil {
		slog.Error("failed to create policy counters", logger.Error(err))
		os.Exit(1)
	}

	// Load the module catalog. The catalog is immutable for the process
	// lifetime; a catalog change is a deploy.
	cat, err := catalog.Load(cfg.Licensing.CatalogPath)
	if err != nil {
		slog.Error("failed to load module catalog", logger.Error(err))
		os.Exit(1)
	}
	slog.Info("module catalog loaded",
		logger.String("path", cfg.Licensing.CatalogPath),
		slog.Int("modules", len(cat.Modules())))

	// Initialize database
	db, err := postgres.New(ctx, postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		slog.Error("failed to connect to database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to database")

	// Initialize repositories
	tenantRepo := postgres.NewTenantRepository(db)
	subscriptionRepo := postgres.NewSubscriptionRepository(db)
	quotaRepo := postgres.NewQuotaRepository(db)
	auditRepo := postgres.NewAuditRepository(db)

	// Initialize helpers
	auditLogger := audit.NewSlogLogger()
	guard := tenant.NewGuard(auditRepo, auditLogger)

	// Initialize services
	quotaEngine := quota.NewEngine(cat, quotaRepo, guard, auditLogger)
	subscriptionService := subscription.NewService(subscriptionRepo, cat, guard, auditLogger, quotaEngine)
	tenantService := tenant.NewService(tenantRepo, guard, auditLogger, cfg.Licensing.TrialPeriod)
	tenantService.SetStatusMirror(subscriptionService)
	subscriptionService.SetTenantExpirer(tenantService)
	licenseEngine := license.NewEngine(cat, subscriptionRepo, guard)

	// Rate Limiter
	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)

	// Initialize HTTP handler
	handler := transportHTTP.NewHandler(
		tenantService,
		subscriptionService,
		licenseEngine,
		quotaEngine,
		auditLogger,
		counters,
		cfg.Auth.JWTSecret,
		cfg.Auth.Issuer,
		cfg.Licensing.DefaultPlan,
	)

	// Create router
	router := transportHTTP.NewRouter(handler, rateLimiter)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start lifecycle expiry sweep goroutine
	go func() {
		ticker := time.NewTicker(cfg.Licensing.SweepInterval)
		defer ticker.Stop()
		for range ticker.C {
			now := time.Now()
			expired, err := tenantService.ExpireOverdue(ctx, now)
			if err != nil {
				slog.ErrorContext(ctx, "trial expiry sweep failed", logger.Error(err))
				continue
			}
			if expired > 0 {
				slog.InfoContext(ctx, "trial expiry sweep completed", slog.Int("expired", expired))
			}

			lapsed, err := subscriptionService.ExpireDue(ctx, now)
			if err != nil {
				slog.ErrorContext(ctx, "subscription expiry sweep failed", logger.Error(err))
				continue
			}
			if lapsed > 0 {
				slog.InfoContext(ctx, "subscription expiry sweep completed", slog.Int("expired", lapsed))
			}
		}
	}()

	// Start server
	go func() {
		slog.Info("starting http server", logger.Component("server"), logger.Operation("listen"))
		slog.Info(fmt.Sprintf("listening on %s", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", logger.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", logger.Error(err))
	}

	slog.Info("server stopped")
}

func runMigrate(cfg *config.Config) error {
	ctx := context.Background()
	db, err := postgres.New(ctx, postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Println("Applying initial schema...")
	if err := db.Migrate(ctx, postgres.InitialSchema); err != nil {
		return err
	}
	fmt.Println("Migration successful.")
	return nil
}

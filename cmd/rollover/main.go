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

// rollover is the one-shot billing maintenance job: it expires overdue
// trials, renews every subscription whose billing period has ended, and
// expires suspended subscriptions whose paid-up period lapsed without
// reactivation, snapshotting and resetting the quota ledger as it goes.
// Run it from cron or as a scheduled container.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/tenantgrid/tenantgrid/internal/audit"
	"github.com/tenantgrid/tenantgrid/internal/catalog"
	"github.com/tenantgrid/tenantgrid/internal/config"
	"github.com/tenantgrid/tenantgrid/internal/observability/logger"
	"github.com/tenantgrid/tenantgrid/internal/quota"
	"github.com/tenantgrid/tenantgrid/internal/store/postgres"
	"github.com/tenantgrid/tenantgrid/internal/subscription"
	"github.com/tenantgrid/tenantgrid/internal/tenant"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName + "-rollover",
	})

	ctx := context.Background()

	cat, err := catalog.Load(cfg.Licensing.CatalogPath)
	if err != nil {
		slog.Error("failed to load module catalog", logger.Error(err))
		os.Exit(1)
	}

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

	tenantRepo := postgres.NewTenantRepository(db)
	subscriptionRepo := postgres.NewSubscriptionRepository(db)
	quotaRepo := postgres.NewQuotaRepository(db)
	auditRepo := postgres.NewAuditRepository(db)

	auditLogger := audit.NewSlogLogger()
	guard := tenant.NewGuard(auditRepo, auditLogger)

	quotaEngine := quota.NewEngine(cat, quotaRepo, guard, auditLogger)
	subscriptionService := subscription.NewService(subscriptionRepo, cat, guard, auditLogger, quotaEngine)
	tenantService := tenant.NewService(tenantRepo, guard, auditLogger, cfg.Licensing.TrialPeriod)
	tenantService.SetStatusMirror(subscriptionService)
	subscriptionService.SetTenantExpirer(tenantService)

	now := time.Now()

	expired, err := tenantService.ExpireOverdue(ctx, now)
	if err != nil {
		slog.Error("trial expiry sweep failed", logger.Error(err))
		os.Exit(1)
	}

	renewed, err := subscriptionService.RenewDue(ctx, now)
	if err != nil {
		slog.Error("subscription renewal sweep failed", logger.Error(err))
		os.Exit(1)
	}

	lapsed, err := subscriptionService.ExpireDue(ctx, now)
	if err != nil {
		slog.Error("subscription expiry sweep failed", logger.Error(err))
		os.Exit(1)
	}

	slog.Info("rollover completed",
		slog.Int("expired_trials", expired),
		slog.Int("renewed_subscriptions", renewed),
		slog.Int("expired_subscriptions", lapsed))
}

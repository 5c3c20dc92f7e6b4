// Copyright (c) 2026 John Earle
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

// Intake service
//
// Entry point for the email intake service. It:
//  1. Loads configuration from .env, config/intake.yaml and the environment
//  2. Opens the ledger (Pebble on disk, or PostgreSQL)
//  3. Builds the extraction engine, export destinations and notifiers
//  4. Optionally consumes inbound messages from a Redis queue
//  5. Serves the intake HTTP API with health and metrics endpoints
//  6. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/bcem/intake/internal/api"
	"github.com/bcem/intake/internal/config"
	"github.com/bcem/intake/internal/dedup"
	"github.com/bcem/intake/internal/export"
	"github.com/bcem/intake/internal/extract"
	"github.com/bcem/intake/internal/intake"
	"github.com/bcem/intake/internal/ledger"
	"github.com/bcem/intake/internal/metrics"
	"github.com/bcem/intake/internal/notify"
	"github.com/bcem/intake/internal/queue"
)

func main() {
	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting intake service",
		"ledger", cfg.LedgerDriver,
		"threshold", cfg.ConfidenceThreshold,
		"redis", cfg.RedisURL != "",
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("intake service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("intake service stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	checks := make(map[string]api.HealthCheck)

	// --- Ledger ---
	lg, err := openLedger(ctx, cfg, checks)
	if err != nil {
		return err
	}
	defer lg.Close()

	// --- Extraction Engine ---
	var schema []byte
	if cfg.SchemaPath != "" {
		schema, err = os.ReadFile(cfg.SchemaPath)
		if err != nil {
			return fmt.Errorf("read schema %s: %w", cfg.SchemaPath, err)
		}
	}
	engine, err := extract.NewEngine(schema)
	if err != nil {
		return err
	}

	// --- Export Destinations ---
	destinations := []export.Destination{
		export.NewCSVFile(cfg.SheetsCSVPath),
		export.NewJSONLFile(cfg.CRMJSONLPath),
	}

	// --- Connect to Redis (optional) ---
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb = redis.NewClient(opt)
		defer rdb.Close()

		publisher := queue.NewPublisher(rdb, cfg.ExportsQueue)
		if err := publisher.Ping(ctx); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		slog.Info("connected to Redis", "exports_queue", cfg.ExportsQueue)

		destinations = append(destinations, publisher)
		checks["redis"] = publisher.Ping
	}

	// --- Metrics ---
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	svc := intake.New(intake.Config{
		Engine:       engine,
		Ledger:       lg,
		Destinations: destinations,
		Notifier:     buildNotifier(ctx, cfg),
		Metrics:      m,
		Threshold:    &cfg.ConfidenceThreshold,
	})

	// --- Inbound Queue Consumer (optional) ---
	consumerDone := make(chan struct{})
	if cfg.InboundQueue != "" {
		consumer := queue.NewConsumer(rdb, cfg.InboundQueue, svc, dedup.NewFilter(rdb, cfg.DedupTTL))
		go func() {
			defer close(consumerDone)
			if err := consumer.Run(ctx); err != nil {
				slog.Error("inbound consumer stopped", "error", err)
			}
		}()
	} else {
		close(consumerDone)
	}

	// --- HTTP API ---
	handler := api.NewHandler(svc, checks, reg)
	ready, done, err := api.Serve(ctx, cfg.Port, handler.Routes())
	if err != nil {
		return err
	}
	<-ready
	slog.Info("intake service listening", "port", cfg.Port)

	<-ctx.Done()
	slog.Info("received shutdown signal")
	<-done
	<-consumerDone
	return nil
}

// openLedger opens the configured ledger and registers its health check.
func openLedger(ctx context.Context, cfg *config.Config, checks map[string]api.HealthCheck) (ledger.Ledger, error) {
	switch cfg.LedgerDriver {
	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("create postgres pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		slog.Info("connected to PostgreSQL")

		lg, err := ledger.NewPostgres(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		checks["ledger"] = pool.Ping
		return lg, nil

	default:
		lg, err := ledger.OpenPebble(cfg.PebblePath, nil)
		if err != nil {
			return nil, err
		}
		return lg, nil
	}
}

// buildNotifier fans approvals out to every configured channel. With no
// channel configured the summary is only logged.
func buildNotifier(ctx context.Context, cfg *config.Config) notify.Notifier {
	var out notify.Multi

	if cfg.SlackWebhookURL != "" {
		var client *http.Client
		if cfg.OAuthEnabled() {
			client = notify.OAuthClient(ctx, cfg.NotifyTokenURL, cfg.NotifyClientID, cfg.NotifyClientSecret)
		}
		out = append(out, notify.NewWebhook(cfg.SlackWebhookURL, client))
	}
	if cfg.SendGridAPIKey != "" {
		out = append(out, notify.NewEmail(cfg.SendGridAPIKey, cfg.SendGridFrom, cfg.SendGridTo))
	}

	if len(out) == 0 {
		return notify.Log{}
	}
	return out
}

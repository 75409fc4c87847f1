package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/karatlane/karat/pkg/audit"
	"github.com/karatlane/karat/pkg/observability"
	"github.com/karatlane/karat/pkg/storage/postgres"
	"github.com/karatlane/karat/pkg/stores"
)

var (
	dbURL             = flag.String("db-url", getEnv("DATABASE_URL", "postgres://localhost/karat?sslmode=disable"), "PostgreSQL connection URL")
	retentionSchedule = flag.String("retention-schedule", "30 1 * * *", "Cron schedule for the audit retention sweep (default: 01:30 UTC)")
	refreshSchedule   = flag.String("refresh-schedule", "0 * * * *", "Cron schedule for the store cache refresh (default: every hour)")
	retentionDays     = flag.Int("retention-days", getEnvInt("KARAT_AUDIT_RETENTION_DAYS", 90), "Days of audit events to keep")
	archiveEnabled    = flag.Bool("archive", getEnvBool("KARAT_AUDIT_ARCHIVE_ENABLED", true), "Archive expired events before deletion")
	archivePath       = flag.String("archive-path", getEnv("KARAT_AUDIT_ARCHIVE_PATH", "/var/karat/audit-archive"), "Directory for archived audit events")
	runOnce           = flag.Bool("run-once", false, "Run both jobs once and exit (for testing)")
	logLevel          = flag.String("log-level", getEnv("KARAT_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
)

func main() {
	flag.Parse()

	logger := logrus.New()
	if level, err := logrus.ParseLevel(*logLevel); err == nil {
		logger.SetLevel(level)
	}

	db, err := sql.Open("postgres", *dbURL)
	if err != nil {
		logger.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}

	policy := audit.RetentionPolicy{
		RetentionDays:  *retentionDays,
		ArchiveEnabled: *archiveEnabled,
		ArchivePath:    *archivePath,
	}

	dbLogger, err := audit.NewDBLogger(db)
	if err != nil {
		logger.Fatalf("Failed to prepare audit store: %v", err)
	}
	auditStore := audit.NewDBStore(dbLogger)

	storeCtx := stores.NewContext(postgres.NewCRMStore(db), stores.NewMemoryPreferences(),
		stores.WithLogger(observability.NewLogger(observability.ParseLogLevel(*logLevel), os.Stdout)))

	if *runOnce {
		ctx := context.Background()
		removed, err := auditStore.Cleanup(ctx, policy)
		if err != nil {
			logger.Fatalf("Retention sweep failed: %v", err)
		}
		logger.Infof("Retention sweep removed %d events", removed)

		if err := storeCtx.Refresh(ctx); err != nil {
			logger.Fatalf("Store cache refresh failed: %v", err)
		}
		logger.Infof("Store cache refreshed: %d stores", len(storeCtx.Stores()))
		return
	}

	c := cron.New()

	_, err = c.AddFunc(*retentionSchedule, func() {
		logger.WithField("retention_days", policy.RetentionDays).Info("Starting audit retention sweep")

		removed, err := auditStore.Cleanup(context.Background(), policy)
		if err != nil {
			logger.Errorf("Retention sweep failed: %v", err)
			return
		}
		logger.Infof("Retention sweep removed %d events", removed)
	})
	if err != nil {
		logger.Fatalf("Failed to schedule retention sweep: %v", err)
	}

	_, err = c.AddFunc(*refreshSchedule, func() {
		if err := storeCtx.Refresh(context.Background()); err != nil {
			logger.Errorf("Store cache refresh failed: %v", err)
			return
		}
		logger.Infof("Store cache refreshed: %d stores", len(storeCtx.Stores()))
	})
	if err != nil {
		logger.Fatalf("Failed to schedule store cache refresh: %v", err)
	}

	storeCtx.Load(context.Background(), "janitor")

	c.Start()
	logger.Info("Karat janitor started")
	logger.Infof("Retention sweep schedule: %s", *retentionSchedule)
	logger.Infof("Store cache refresh schedule: %s", *refreshSchedule)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutting down gracefully...")

	stopCtx := c.Stop()
	<-stopCtx.Done()

	logger.Info("Janitor stopped")
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

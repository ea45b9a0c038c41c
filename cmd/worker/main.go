// Package main is the entry point for the bot factory's background worker:
// it runs the scheduled maintenance jobs that the HTTP daemon (cmd/bot)
// does not run inline — funnel event retention and handler mirror sync.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/botforge/telegram-bot-factory/config"
	"github.com/botforge/telegram-bot-factory/internal/infrastructure/artifactstore"
	"github.com/botforge/telegram-bot-factory/internal/infrastructure/external/artifact"
	"github.com/botforge/telegram-bot-factory/internal/infrastructure/handlercache"
	"github.com/botforge/telegram-bot-factory/internal/infrastructure/handlerruntime"
	"github.com/botforge/telegram-bot-factory/internal/infrastructure/persistence/postgres"
	"github.com/botforge/telegram-bot-factory/internal/infrastructure/scheduler"
	"github.com/botforge/telegram-bot-factory/internal/infrastructure/scheduler/jobs"
	"github.com/botforge/telegram-bot-factory/pkg/logger"
)

// syncInterval controls how often the in-memory handler cache is reconciled
// against the local artifact mirror; independent of the cron-scheduled
// retention sweep.
const syncInterval = 5 * time.Minute

// cleanupCron runs funnel event retention once a day, off-peak.
const cleanupCron = "0 3 * * *"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	log := logger.New(opts)
	log.Info("starting telegram bot factory worker",
		logger.String("environment", string(cfg.App.Environment)),
	)

	slogLog := slog.Default()

	dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbConn.Close()

	if err := dbConn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	migrator := postgres.NewMigrator(dbConn)
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	registryRepo := postgres.NewRegistryRepository(dbConn)
	eventRepo := postgres.NewEventRepository(dbConn)
	stateRepo := postgres.NewStateRepository(dbConn)

	mirror, err := artifactstore.NewLocalMirror(filepath.Join(os.TempDir(), "handler-mirror"))
	if err != nil {
		return fmt.Errorf("failed to open local artifact mirror: %w", err)
	}

	artifactClient := artifact.NewClient(artifact.Config{
		Token:   cfg.Artifact.Token,
		Owner:   cfg.Artifact.Owner,
		Repo:    cfg.Artifact.Repo,
		Branch:  cfg.Artifact.Branch,
		Timeout: cfg.Artifact.Timeout,
	})

	securityGate := handlerruntime.NewStaticSecurityGate()

	handlerCache := handlercache.New(
		registryRepo,
		mirror,
		artifactClient,
		securityGate,
		stateRepo,
		handlercache.NewInMemoryCache(),
		log,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// Interval-based jobs
	// ─────────────────────────────────────────────────────────────────────────
	intervalScheduler := scheduler.NewScheduler(scheduler.DefaultSchedulerConfig())
	syncJob := jobs.NewSyncArtifactDirectory(handlerCache)
	if err := intervalScheduler.Register(syncJob, scheduler.NewIntervalSchedule(syncInterval)); err != nil {
		return fmt.Errorf("failed to register %s: %w", syncJob.Name(), err)
	}
	if err := intervalScheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start interval scheduler: %w", err)
	}
	defer intervalScheduler.Stop()

	// ─────────────────────────────────────────────────────────────────────────
	// Cron-based jobs
	// ─────────────────────────────────────────────────────────────────────────
	cronScheduler := scheduler.NewCronScheduler(scheduler.WithCronLogger(slogLog))
	cleanupJob := jobs.NewCleanupFunnelEvents(eventRepo, log)
	if err := cronScheduler.AddJob(cleanupJob.Name(), cleanupCron, cleanupJob); err != nil {
		return fmt.Errorf("failed to register %s: %w", cleanupJob.Name(), err)
	}
	if err := cronScheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start cron scheduler: %w", err)
	}
	defer cronScheduler.Stop()

	log.Info("worker running",
		logger.String("sync_interval", syncInterval.String()),
		logger.String("cleanup_cron", cleanupCron),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	sig := <-sigCh
	log.Info("received shutdown signal", logger.String("signal", sig.String()))
	log.Info("shutdown complete")
	return nil
}

// Package main is the entry point for the bot factory's HTTP daemon: it
// owns the primary Telegram bot's webhook, the creation flow, the handler
// cache, and the admin-gated funnel analytics API. The worker process
// (cmd/worker) runs the background maintenance jobs separately.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/botforge/telegram-bot-factory/config"
	"github.com/botforge/telegram-bot-factory/internal/application/analytics"
	"github.com/botforge/telegram-bot-factory/internal/application/creation"
	creationplugin "github.com/botforge/telegram-bot-factory/internal/interface/botplugins/creation"
	httpserver "github.com/botforge/telegram-bot-factory/internal/interface/http"
	"github.com/botforge/telegram-bot-factory/internal/interface/http/handlers"

	"github.com/botforge/telegram-bot-factory/internal/infrastructure/artifactstore"
	"github.com/botforge/telegram-bot-factory/internal/infrastructure/external/artifact"
	"github.com/botforge/telegram-bot-factory/internal/infrastructure/external/llm"
	"github.com/botforge/telegram-bot-factory/internal/infrastructure/external/telegram"
	"github.com/botforge/telegram-bot-factory/internal/infrastructure/handlercache"
	"github.com/botforge/telegram-bot-factory/internal/infrastructure/handlerruntime"
	"github.com/botforge/telegram-bot-factory/internal/infrastructure/persistence/postgres"
	"github.com/botforge/telegram-bot-factory/internal/infrastructure/persistence/redis"

	"github.com/botforge/telegram-bot-factory/pkg/logger"
)

// primaryHandlerName is the registry key the creation flow plugin is
// mounted under in the in-memory handler cache.
const primaryHandlerName = "bot_create"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// Configuration & logging
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	log := logger.New(opts)
	log.Info("starting telegram bot factory",
		logger.String("environment", string(cfg.App.Environment)),
		logger.Bool("debug", cfg.App.Debug),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// Database
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database...")
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
	log.Info("database ready")

	flowRepo := postgres.NewFlowRepository(dbConn)
	registryRepo := postgres.NewRegistryRepository(dbConn)
	eventRepo := postgres.NewEventRepository(dbConn)
	actionRepo := postgres.NewActionRepository(dbConn)
	stateRepo := postgres.NewStateRepository(dbConn)

	// ─────────────────────────────────────────────────────────────────────────
	// Redis
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to redis...")
	redisCfg := redis.Config{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	}
	redisCache, err := redis.NewCache(redisCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer redisCache.Close()

	conversationStore := redis.NewConversationStore(redisCache)
	inProgressMarker := redis.NewInProgressMarker(redisCache)
	analyticsCache := redis.NewAnalyticsCache(redisCache)

	// ─────────────────────────────────────────────────────────────────────────
	// Handler artifacts: mirror, remote store, security gate, synthesiser
	// ─────────────────────────────────────────────────────────────────────────
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

	llmClient := llm.NewClient(llm.Config{
		APIKey:     cfg.LLM.APIKey,
		Model:      cfg.LLM.Model,
		Timeout:    cfg.LLM.Timeout,
		MaxRetries: cfg.LLM.MaxRetries,
	}, securityGate)

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
	// Telegram clients
	// ─────────────────────────────────────────────────────────────────────────
	primaryClient := telegram.NewClient(telegram.DefaultClientConfig(cfg.Telegram.Token))
	messenger := telegram.NewMessenger(primaryClient)

	// ─────────────────────────────────────────────────────────────────────────
	// Creation flow (C7) and its built-in handler plugin
	// ─────────────────────────────────────────────────────────────────────────
	creationService := creation.New(creation.Deps{
		Flows:          flowRepo,
		Registry:       registryRepo,
		Events:         eventRepo,
		Conversations:  conversationStore,
		InProgress:     inProgressMarker,
		Synthesiser:    llmClient,
		Artifacts:      artifactClient,
		Messenger:      messenger,
		AdminChatID:    cfg.Admin.ChatID,
		WebhookBaseURL: cfg.App.ExternalURL,
		Log:            log,
	})

	handlerCache.Register(primaryHandlerName, creationplugin.New(creationService))

	// ─────────────────────────────────────────────────────────────────────────
	// Funnel analytics (C8)
	// ─────────────────────────────────────────────────────────────────────────
	analyticsService := analytics.New(flowRepo, eventRepo, analyticsCache, log)

	// ─────────────────────────────────────────────────────────────────────────
	// Webhook dispatcher (C6)
	// ─────────────────────────────────────────────────────────────────────────
	dispatcher := handlers.NewDispatcher(handlers.DispatcherDeps{
		PrimaryToken:  cfg.Telegram.Token,
		Handlers:      handlerCache,
		Registry:      registryRepo,
		Activation:    creationService,
		Actions:       actionRepo,
		State:         stateRepo,
		PrimaryClient: primaryClient,
		Log:           log,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// HTTP server
	// ─────────────────────────────────────────────────────────────────────────
	httpConfig := httpserver.DefaultConfig()
	httpConfig.Host = "0.0.0.0"
	httpConfig.Port = cfg.App.Port

	httpDeps := httpserver.Dependencies{
		Analytics:      analyticsService,
		Logger:         log,
		HealthChecker:  buildHealthChecker(cfg, dbConn, redisCache),
		WebhookHandler: dispatcher,
		AdminTokenHash: cfg.Admin.TokenHash,
		DevOpenAdmin:   cfg.Features != nil && cfg.Features.IsDevOpenAdmin(),
	}

	httpServer := httpserver.NewServer(httpConfig, httpDeps)

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting http server", logger.String("address", httpServer.Address()))
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	if cfg.App.ExternalURL != "" {
		webhookURL := cfg.App.ExternalURL + "/" + cfg.Telegram.Token
		if err := primaryClient.InstallWebhook(ctx, webhookURL, []string{"message", "callback_query"}); err != nil {
			log.Warn("failed to install primary bot webhook", logger.Err(err))
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Graceful shutdown
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("service error", logger.Err(err))
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop http server gracefully", logger.Err(err))
		return err
	}

	log.Info("shutdown complete")
	return nil
}

func buildHealthChecker(cfg *config.Config, db *postgres.Connection, cache *redis.Cache) handlers.HealthChecker {
	checker := handlers.NewCompositeHealthChecker(cfg.App.Version)
	checker.AddCheck("database", handlers.NewDatabaseCheck(db))
	checker.AddCheck("redis", handlers.NewCacheCheck(cache))
	return checker
}

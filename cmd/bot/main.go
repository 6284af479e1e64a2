// Package main is the entry point of the session webhook bot.
//
// The process serves three HTTP surfaces: the Telegram webhook, a
// health check, and an authenticated cron trigger for maintenance
// jobs. The lifecycle manager brackets the server: it initializes the
// settings layer and registers the webhook before traffic is accepted,
// and removes the webhook on shutdown.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/session-hub/session-webhook-bot/config"
	"github.com/session-hub/session-webhook-bot/internal/dispatch"
	"github.com/session-hub/session-webhook-bot/internal/handlers"
	"github.com/session-hub/session-webhook-bot/internal/infrastructure/external/telegram"
	"github.com/session-hub/session-webhook-bot/internal/infrastructure/persistence/postgres"
	"github.com/session-hub/session-webhook-bot/internal/infrastructure/persistence/redis"
	httpserver "github.com/session-hub/session-webhook-bot/internal/interface/http"
	"github.com/session-hub/session-webhook-bot/internal/jobs"
	"github.com/session-hub/session-webhook-bot/internal/lifecycle"
	"github.com/session-hub/session-webhook-bot/internal/login"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

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
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────

	// .env is a development convenience; production injects real env vars.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting session webhook bot",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. DATABASE
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database...")

	poolOpts := postgres.PoolOptions{
		MaxConns:        int32(cfg.Database.MaxOpenConns),
		MinConns:        int32(cfg.Database.MinIdleConns),
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
	}
	dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL, poolOpts)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection...")
		dbConn.Close()
	}()

	store := postgres.NewStore(dbConn, postgres.DefaultStoreOptions())

	// ─────────────────────────────────────────────────────────────────────────
	// 4. CONVERSATION STATE (Redis optional)
	// ─────────────────────────────────────────────────────────────────────────
	var conversations dispatch.ConversationStore
	if cfg.Redis.Disabled {
		conversations = dispatch.NewMemoryConversationStore()
		log.Info("conversation state kept in memory")
	} else {
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
		redisCfg.DialTimeout = cfg.Redis.DialTimeout
		redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
		redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

		redisStore, err := redis.NewConversationStore(ctx, redisCfg)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer func() {
			log.Info("closing redis connection...")
			_ = redisStore.Close()
		}()

		conversations = redisStore
		log.Info("conversation state backed by redis", "addr", redisCfg.Addr())
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. TELEGRAM CLIENT
	// ─────────────────────────────────────────────────────────────────────────
	clientCfg := telegram.DefaultClientConfig(cfg.Telegram.Token)
	clientCfg.Logger = log
	clientCfg.Debug = cfg.App.Debug
	client := telegram.NewClient(clientCfg)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. LIFECYCLE STARTUP
	// ─────────────────────────────────────────────────────────────────────────
	botData := dispatch.NewBotData()
	manager := lifecycle.NewManager(cfg, store, client, botData, log)

	if err := manager.Startup(ctx); err != nil {
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. DISPATCH CORE AND HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	registry := dispatch.NewRegistry(conversations, log)
	handlers.RegisterAll(registry, handlers.Deps{
		Client:        client,
		Store:         store,
		BotData:       botData,
		Conversations: conversations,
		Logger:        log,
	})
	dispatcher := dispatch.NewDispatcher(registry, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 8. MAINTENANCE JOBS
	// ─────────────────────────────────────────────────────────────────────────
	processor := login.NewService(store, client, log)
	jobRunner := jobs.NewRunner(store, processor, botData.SchedulerFile(), log)

	// ─────────────────────────────────────────────────────────────────────────
	// 9. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	httpCfg := httpserver.DefaultConfig()
	httpCfg.Host = cfg.HTTP.Host
	httpCfg.Port = cfg.HTTP.Port
	httpCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	httpCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	httpCfg.IdleTimeout = cfg.HTTP.IdleTimeout

	server := httpserver.NewServer(httpCfg, httpserver.Dependencies{
		Dispatcher: dispatcher,
		Jobs:       jobRunner,
		CronSecret: cfg.Cron.Secret,
		Logger:     log,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
		close(errCh)
	}()

	log.Info("session webhook bot is running", "address", server.Address())

	// ─────────────────────────────────────────────────────────────────────────
	// 10. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			log.Error("service error", "error", err)
			teardown(server, manager, cfg.App.ShutdownTimeout, log)
			return err
		}
	}

	teardown(server, manager, cfg.App.ShutdownTimeout, log)

	log.Info("shutdown complete")
	return nil
}

// teardown stops accepting requests and removes the webhook. It runs
// on every exit path once the webhook is registered, including a
// server failure: the platform must never keep delivering to a
// process that is down.
func teardown(server *httpserver.Server, manager *lifecycle.Manager, timeout time.Duration, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("failed to stop HTTP server gracefully", "error", err)
	}

	manager.Shutdown(ctx)
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupLogger configures structured logging: JSON in production for
// log aggregators, text in development for readability.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.IsProduction() {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)

	return log
}

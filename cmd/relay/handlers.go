// handlers.go implements the command logic: configuration loading,
// service wiring and graceful shutdown.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/relay/internal/auth"
	"github.com/haasonsaas/relay/internal/config"
	"github.com/haasonsaas/relay/internal/ephemeral"
	"github.com/haasonsaas/relay/internal/fanout"
	"github.com/haasonsaas/relay/internal/gateway"
	"github.com/haasonsaas/relay/internal/ingest"
	"github.com/haasonsaas/relay/internal/liveness"
	"github.com/haasonsaas/relay/internal/membership"
	"github.com/haasonsaas/relay/internal/observability"
	"github.com/haasonsaas/relay/internal/presence"
	"github.com/haasonsaas/relay/internal/ratelimit"
	"github.com/haasonsaas/relay/internal/registry"
	"github.com/haasonsaas/relay/internal/storage"
	"github.com/haasonsaas/relay/internal/typing"
)

// loadConfig reads the config file when a path is given and falls back
// to built-in defaults otherwise.
func loadConfig(configPath string) (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

// runServe implements the serve command: it wires every component and
// blocks until a shutdown signal or a fatal server error.
func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if debug {
		cfg.Logging.Level = "debug"
	}
	logger := observability.NewLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting relay",
		"version", version,
		"commit", commit,
		"config", configPath,
		"database_backend", cfg.Database.Backend,
		"ephemeral_backend", cfg.EphemeralBackend(),
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	metrics, promReg := observability.NewMetrics()

	tracer, shutdownTracing, err := observability.NewTracer(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	var stores storage.StoreSet
	switch cfg.Database.Backend {
	case "postgres":
		stores, err = storage.NewPostgresStores(cfg.Database.URL, &storage.PostgresConfig{
			MaxOpenConns:    cfg.Database.MaxConnections,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
	default:
		stores, _ = storage.NewMemoryStores()
		logger.Warn("using in-memory message store; data is lost on restart")
	}
	defer func() {
		if err := stores.Close(); err != nil {
			logger.Warn("store close failed", "error", err)
		}
	}()

	var ephStore ephemeral.Store
	if cfg.EphemeralBackend() == "redis" {
		ephStore, err = ephemeral.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
	} else {
		ephStore = ephemeral.NewMemory()
		logger.Warn("using in-memory ephemeral store; rate limits and typing state are per-process")
	}
	defer func() {
		if err := ephStore.Close(); err != nil {
			logger.Warn("ephemeral store close failed", "error", err)
		}
	}()

	reg := registry.New()
	members := membership.NewResolver(stores.Participants)
	broadcast := fanout.New(reg, members, metrics, logger)
	presenceMgr := presence.NewManager(stores.Presence, members, broadcast, metrics, logger)

	// A previous process may have died without marking its users
	// offline. Clear those rows before accepting connections.
	if err := presenceMgr.Reconcile(ctx); err != nil {
		return fmt.Errorf("presence reconciliation failed: %w", err)
	}

	typingSvc := typing.NewService(ephStore, members, broadcast, cfg.Typing, metrics, logger)
	go typingSvc.RunSweeper(ctx)

	monitor := liveness.NewMonitor(reg, cfg.Liveness, metrics, logger)
	go monitor.Run(ctx)

	dispatcher := gateway.NewDispatcher(gateway.DispatcherDeps{
		Limiter:   ratelimit.NewLimiter(ephStore, cfg.Limits, metrics, logger),
		Ingest:    ingest.NewService(stores, members, broadcast, metrics, logger),
		Typing:    typingSvc,
		Members:   members,
		Registry:  reg,
		Broadcast: broadcast,
		Stores:    stores,
		Metrics:   metrics,
		Tracer:    tracer,
		Logger:    logger,
	})

	server := gateway.NewServer(cfg, gateway.Deps{
		Auth:            auth.NewService(cfg.Auth),
		Registry:        reg,
		Presence:        presenceMgr,
		Dispatcher:      dispatcher,
		Metrics:         metrics,
		MetricsRegistry: promReg,
		Logger:          logger,
	})

	if err := server.Start(ctx); err != nil {
		return err
	}

	logger.Info("relay started",
		"ws_addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		"metrics_addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort),
	)

	<-ctx.Done()
	logger.Info("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	logger.Info("relay stopped gracefully")
	return nil
}

// runToken implements the token command.
func runToken(cmd *cobra.Command, configPath, userID, name, email string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = os.Getenv("RELAY_JWT_SECRET")
	}

	token, err := auth.NewService(cfg.Auth).Issue(auth.Identity{
		UserID: userID,
		Name:   name,
		Email:  email,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

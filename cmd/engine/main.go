package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"glooo/internal/config"
	"glooo/internal/database"
	"glooo/internal/engine"
	"glooo/internal/handlers"
	"glooo/internal/middleware"
	"glooo/internal/utils"
	"glooo/internal/websocket"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/lmittmann/tint"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// newLogger builds the process logger: tint for humans, JSON for collectors.
func newLogger(cfg *config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}

// openStore connects the configured backend.
func openStore(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger) (database.Store, error) {
	switch cfg.Type {
	case config.DBTypeMemory:
		logger.Warn("using in-memory store, data is lost on exit")
		return database.NewMemoryStore(), nil
	case config.DBTypeMongo:
		mongodb, err := database.NewMongoDB(ctx, cfg.URI, cfg.Name, cfg.Timeout, logger)
		if err != nil {
			return nil, fmt.Errorf("connecting to MongoDB: %w", err)
		}
		return mongodb, nil
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.Type)
	}
}

// app is everything a running server owns.
type app struct {
	system   *actor.ActorSystem
	engine   *engine.Engine
	registry *websocket.Registry
	server   *handlers.Server
}

func newApp(cfg *config.Config, store database.Store, metrics *utils.MetricsCollector, logger *slog.Logger, opts engine.Options) *app {
	system := actor.NewActorSystem()
	eng := engine.NewEngine(system, store, metrics, logger, opts)

	registry := websocket.NewRegistry(metrics, logger)
	router := websocket.NewRouter(store, registry, metrics, logger)
	tokens := middleware.NewTokenManager(cfg.Auth.Secret, cfg.Auth.TokenTTL, logger)

	server := handlers.NewServer(system.Root, eng, registry, router, tokens, metrics, logger)
	server.RequestTimeout = cfg.Server.RequestTimeout
	server.CORS = middleware.DefaultCORSConfig(cfg.AllowedOrigins)
	server.OutboxSize = cfg.Websocket.OutboxSize
	server.MaxMessageSize = cfg.Websocket.MaxMessageSize
	server.SecureCookies = !cfg.IsDevelopment()
	if !cfg.Server.MetricsEnabled {
		server.Metrics = nil
	}

	return &app{system: system, engine: eng, registry: registry, server: server}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, err := openStore(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			logger.Error("closing store", "error", err)
		}
	}()

	metrics := utils.NewMetricsCollector()
	a := newApp(cfg, store, metrics, logger, engine.Options{})
	defer a.engine.Stop()

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           a.server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			"addr", httpServer.Addr,
			"env", cfg.Env,
			"db", cfg.Database.Type,
			"metrics", cfg.Server.MetricsEnabled)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down", "online_users", a.registry.Count())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Shutdown does not wait for hijacked websocket connections
	return httpServer.Shutdown(shutdownCtx)
}

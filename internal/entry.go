// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/shepelt/davmark/internal/api"
	"github.com/shepelt/davmark/internal/localstore"
	"github.com/shepelt/davmark/internal/mcpserver"
	"github.com/shepelt/davmark/internal/preview"
	"github.com/shepelt/davmark/internal/refrewrite"
	"github.com/shepelt/davmark/internal/remote"
	"github.com/shepelt/davmark/internal/session"
	"github.com/shepelt/davmark/internal/sse"
	"github.com/shepelt/davmark/internal/tree"
	pkgconfig "github.com/shepelt/davmark/pkg/config"
)

// Run starts the gateway with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Structured JSON logger with a swappable level so the config watcher
	// can adjust verbosity without a restart.
	level := new(slog.LevelVar)
	level.Set(cfg.App.LogLevel)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("remote_url", cfg.Remote.URL),
		slog.String("store_path", cfg.Store.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	rc, err := remoteClient(cfg)
	if err != nil {
		return fmt.Errorf("init remote: %w", err)
	}

	store, err := localstore.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("init local store: %w", err)
	}
	defer store.Close()

	// SSE broker, bridged into the session's notify hook.
	broker := sse.NewBroker(500 * time.Millisecond)
	defer broker.Close()

	svc := session.New(rc, store, tree.New(), preview.NewRenderer(),
		refrewrite.Options{ProxyRoot: "/proxy", AuthToken: proxyToken(cfg)},
		logger, broker.PublishChange)

	apiRouter := api.NewRouter(svc, store, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)
	proxyRouter := api.NewProxyRouter(api.NewProxyHandler(rc), cfg.Auth.AuthEnabled(), cfg.Auth.Token)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)
	r.Mount("/proxy", proxyRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Watch the config file for log level changes.
	if app.configPath != "" {
		g.Go(func() error {
			watchConfig(gCtx, app.configPath, level, logger)
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP starts the MCP stdio server with the given options. Logs go to
// stderr so stdout stays clean for the protocol stream.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	rc, err := remoteClient(cfg)
	if err != nil {
		return fmt.Errorf("init remote: %w", err)
	}

	store, err := localstore.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("init local store: %w", err)
	}
	defer store.Close()

	svc := session.New(rc, store, tree.New(), preview.NewRenderer(),
		refrewrite.Options{ProxyRoot: "/proxy"}, logger, nil)

	logger.Info("MCP server starting on stdio", slog.String("remote_url", cfg.Remote.URL))
	return mcpserver.New(rc, svc).ServeStdio()
}

func remoteClient(cfg *Config) (remote.Client, error) {
	return remote.NewDAV(cfg.Remote.URL, cfg.Remote.Username, cfg.Remote.Password)
}

// proxyToken returns the token the rewriter should append to proxy URLs,
// empty when auth is disabled.
func proxyToken(cfg *Config) string {
	if cfg.Auth.AuthEnabled() {
		return cfg.Auth.Token
	}
	return ""
}

// watchConfig watches the config file and applies log level changes in
// place. Other fields require a restart; only verbosity is hot-swapped.
func watchConfig(ctx context.Context, path string, level *slog.LevelVar, logger *slog.Logger) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("config watcher unavailable", slog.String("error", err.Error()))
		return
	}
	defer watcher.Close()

	// Watch the directory: editors typically replace the file, which drops
	// a watch registered on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		logger.Warn("config watcher unavailable", slog.String("error", err.Error()))
		return
	}
	target := filepath.Clean(path)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cfg := NewDefaultConfig()
			if err := pkgconfig.Load(path, cfg); err != nil {
				logger.Warn("config reload failed", slog.String("error", err.Error()))
				continue
			}
			if cfg.App.LogLevel != level.Level() {
				logger.Info("log level changed",
					slog.String("from", level.Level().String()),
					slog.String("to", cfg.App.LogLevel.String()))
				level.Set(cfg.App.LogLevel)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("config watcher error", slog.String("error", err.Error()))
		}
	}
}

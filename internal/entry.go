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
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/muninn/internal/api"
	"github.com/starford/muninn/internal/audit"
	"github.com/starford/muninn/internal/auth"
	"github.com/starford/muninn/internal/cache"
	"github.com/starford/muninn/internal/mcpserver"
	"github.com/starford/muninn/internal/repo"
	"github.com/starford/muninn/internal/search"
	"github.com/starford/muninn/internal/store"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Structured JSON logger on stderr; stdout belongs to the MCP
	// stdio transport. The LevelVar lets the config watcher adjust
	// verbosity at runtime.
	logLevel := new(slog.LevelVar)
	logLevel.Set(cfg.App.LogLevel)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("auth_mode", cfg.Auth.Mode),
		slog.Bool("fts", store.FTSEnabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Initialize SQLite store.
	db, err := store.Open(cfg.SQLite.Path, store.Options{
		MaxOpenConns:  cfg.SQLite.MaxOpenConns,
		MaxIdleConns:  cfg.SQLite.MaxIdleConns,
		BusyTimeoutMS: cfg.SQLite.BusyTimeoutMS,
	}, logger)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	// Audit recorder. Data-change entries are written inside business
	// transactions; the recorder drains everything else asynchronously.
	recorder := audit.NewRecorder(db, cfg.Audit.QueueSize, logger)
	defer recorder.Close()

	// Read cache for hot item lookups.
	var itemCache cache.Cache = cache.Disabled{}
	if cfg.Cache.Enabled {
		itemCache = cache.NewMemory(time.Duration(cfg.Cache.TTLSeconds)*time.Second, cfg.Cache.MaxEntries)
	}

	authSvc := auth.New(db, recorder, logger)
	repository := repo.New(db, itemCache, recorder, logger)
	engine := search.New(db, recorder, logger)

	if cfg.Auth.AuthEnabled() {
		b := cfg.Auth.Bootstrap
		if err := authSvc.EnsureBootstrapUser(ctx, b.Username, b.Email, b.Password, b.APIKey); err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
	}

	if cfg.Cache.Enabled {
		repository.WarmCache(ctx, cfg.Cache.MaxEntries/4)
	}

	mcpSrv := mcpserver.New(mcpserver.Deps{
		Store:    db,
		Repo:     repository,
		Search:   engine,
		Auth:     authSvc,
		Recorder: recorder,
		Cache:    itemCache,
	}, mcpserver.Options{
		AuthEnabled:    cfg.Auth.AuthEnabled(),
		APIKey:         cfg.Auth.APIKey,
		AuditToolCalls: cfg.Audit.ToolCalls,
	}, logger)

	// Build chi router for the operational surface.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := db.Ping(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", api.NewRouter(db, itemCache, recorder, cfg.Auth.AuthEnabled(), cfg.Auth.APIKey))

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	// Shutdown signals cancel the group context, which unblocks the
	// stdio listener and the background loops.
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	// Serve MCP tools on stdio.
	g.Go(func() error {
		if err := mcpSrv.ServeStdio(gCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("mcp server error: %w", err)
		}
		return nil
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Watch the config file for log level changes.
	if app.configPath != "" {
		g.Go(func() error {
			if err := watchConfig(gCtx, app.configPath, logLevel, logger); err != nil {
				logger.Warn("config watcher failed", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Daily audit retention pass.
	if cfg.Audit.RetentionDays > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(24 * time.Hour)
			defer ticker.Stop()
			for {
				removed, err := recorder.CleanupOldLogs(gCtx, cfg.Audit.RetentionDays)
				if err != nil {
					logger.Warn("audit cleanup failed", slog.String("error", err.Error()))
				} else if removed > 0 {
					logger.Info("audit cleanup", slog.Int64("removed", removed))
				}
				select {
				case <-gCtx.Done():
					return nil
				case <-ticker.C:
				}
			}
		})
	}

	// Handle shutdown.
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

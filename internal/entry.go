// Package internal provides the main application initialization and runtime logic.
package internal

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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/almanac/internal/api"
	"github.com/starford/almanac/internal/autosave"
	"github.com/starford/almanac/internal/mcpserver"
	"github.com/starford/almanac/internal/memoservice"
	"github.com/starford/almanac/internal/sqlstore"
	"github.com/starford/almanac/internal/sse"
	"github.com/starford/almanac/internal/storage"
	"github.com/starford/almanac/internal/supastore"
	"github.com/starford/almanac/internal/watcher"
)

var errConfigRequired = errors.New("config is required")

// OpenBackend opens the storage driver selected by cfg.Store.Driver.
func OpenBackend(cfg *Config) (storage.Backend, error) {
	switch cfg.Store.Driver {
	case DriverFS:
		if err := os.MkdirAll(cfg.Store.Vault.Path, 0o755); err != nil {
			return nil, fmt.Errorf("create vault dir: %w", err)
		}
		return storage.NewFS(cfg.Store.Vault.Path)
	case DriverSupabase:
		return supastore.New(supastore.Config{
			URL:         cfg.Store.Supabase.URL,
			Key:         cfg.Store.Supabase.Key,
			UserID:      cfg.App.UserID,
			AccessToken: cfg.Store.Supabase.AccessToken,
		})
	default:
		return sqlstore.Open(cfg.Store.SQLite.Path, cfg.App.UserID)
	}
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stdout)}, opts...))
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger()

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("store_driver", cfg.Store.Driver),
		slog.Duration("quiet_period", cfg.Autosave.QuietPeriod),
		slog.String("log_level", cfg.App.LogLevel.String()))

	backend, err := OpenBackend(cfg)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	defer backend.Close()

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	svc := memoservice.New(backend, memoservice.WithLogger(logger))
	sessions := api.NewSessions(ctx, svc, broker.SaveFailed, logger,
		autosave.WithQuietPeriod(cfg.Autosave.QuietPeriod),
		autosave.WithFlushTimeout(cfg.Autosave.FlushTimeout),
	)
	notify := memoservice.Notifiers{broker, sessions}
	svc.SetNotifier(notify)

	apiRouter := api.NewRouter(svc, sessions, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := backend.ListWindows(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Outside edits to the vault reach sessions and SSE clients through the watcher.
	if vault, ok := backend.(*storage.FS); ok {
		g.Go(func() error {
			return watcher.Watch(gCtx, vault.Root(), watcher.DefaultDebounce, logger, notify)
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		flushCtx, cancelFlush := context.WithTimeout(context.Background(), cfg.Autosave.FlushTimeout)
		defer cancelFlush()
		sessions.CloseAll(flushCtx)
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown stops the errgroup so the watcher exits with the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools on stdin/stdout.
func RunMCP(_ context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	logger := app.logger()

	backend, err := OpenBackend(app.config)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	defer backend.Close()

	svc := memoservice.New(backend, memoservice.WithLogger(logger))
	logger.Info("MCP server starting", slog.String("store_driver", app.config.Store.Driver))
	return mcpserver.New(svc, app.version).ServeStdio()
}

// ExportMemos writes the combined memo document of year to w.
func ExportMemos(ctx context.Context, year int, w io.Writer, opts ...Option) error {
	return withService(opts, func(svc *memoservice.Service) error {
		text, err := svc.Combined(ctx, year)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, text+"\n")
		return err
	})
}

// ImportMemos reads a combined memo document from r and saves every window
// of year.
func ImportMemos(ctx context.Context, year int, r io.Reader, opts ...Option) error {
	return withService(opts, func(svc *memoservice.Service) error {
		data, err := io.ReadAll(r)
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		return svc.SaveCombined(ctx, year, string(data))
	})
}

func withService(opts []Option, fn func(*memoservice.Service) error) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	logger := app.logger()

	backend, err := OpenBackend(app.config)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	defer backend.Close()

	return fn(memoservice.New(backend, memoservice.WithLogger(logger)))
}

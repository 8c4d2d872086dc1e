package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/GalM111/csv-service/internal/config"
	"github.com/GalM111/csv-service/internal/db"
	"github.com/GalM111/csv-service/internal/importer"
	"github.com/GalM111/csv-service/internal/logging"
	"github.com/GalM111/csv-service/internal/store"
	"github.com/GalM111/csv-service/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"progress_interval", cfg.Import.ProgressInterval,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	}

	if err := db.Migrate(cfg.Database.URL); err != nil {
		slog.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	service := importer.NewService(
		store.NewJobStore(pool),
		store.NewCustomerStore(pool),
		importer.ServiceConfig{
			ProgressInterval:  cfg.Import.ProgressInterval,
			MaxRetainedErrors: cfg.Import.MaxRetainedErrors,
			JobTimeout:        cfg.Import.JobTimeout,
		},
	)

	// The worker context outlives HTTP shutdown so the in-flight import can
	// finish before the process exits.
	workerCtx, stopWorker := context.WithCancel(context.Background())
	service.Start(workerCtx)

	server := web.NewServer(service, pool, cfg)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		// Stop the worker, then wait for the in-flight run to finish.
		stopWorker()
		select {
		case <-service.Drained():
			slog.Info("import worker drained")
		case <-shutdownCtx.Done():
			slog.Warn("import worker did not drain in time")
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}

	// Give the shutdown goroutine time to finish draining.
	<-service.Drained()
	slog.Info("server stopped")
}

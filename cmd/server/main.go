package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"finance-ledger/internal/app"
	"finance-ledger/internal/config"
	"finance-ledger/internal/database"
	"finance-ledger/internal/handlers"
	"finance-ledger/internal/server"
	"finance-ledger/internal/workers"
)

func main() {
	// Load configuration (.env first, then LEDGER_* variables and config files)
	cfg, err := config.LoadServerConfigWithEnvFile("")
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	db, err := database.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		logger.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	logger.Info("Database initialized", "driver", cfg.DBDriver)

	pipeline, err := app.NewPipeline(context.Background(), cfg, db, false, logger)
	if err != nil {
		logger.Error("Failed to build ingestion pipeline", "error", err)
		os.Exit(1)
	}
	defer pipeline.Close()

	scheduler := workers.NewScheduler(app.SchedulerConfig(cfg), pipeline.Ingestor, pipeline.Reextractor, logger)
	scheduler.Start()

	ingest := handlers.NewIngestHandler(pipeline.Ingestor, pipeline.Reextractor, logger)
	ingest.SetRunTimeout(cfg.IngestRunTimeout)

	h := server.Handlers{
		Health:     handlers.NewHealthHandler(db),
		Categories: handlers.NewCategoryHandler(db, logger),
		Sources:    handlers.NewSourceHandler(db, logger),
		Ledger:     handlers.NewLedgerHandler(db, logger),
		Ingest:     ingest,
		Admin:      handlers.NewAdminHandler(scheduler, logger),
	}
	if pipeline.OAuth != nil {
		h.Auth = handlers.NewAuthHandler(db, pipeline.OAuth, pipeline.Refresher, logger)
	}

	if !cfg.DisableAdminAuth && cfg.AdminAPIKey == "" {
		logger.Warn("No admin API key configured, admin routes will reject every request")
	}

	router := server.NewRouter(h, server.RouterConfig{
		AdminAPIKey:      cfg.AdminAPIKey,
		DisableAdminAuth: cfg.DisableAdminAuth,
	}, logger)

	srv := &http.Server{
		Addr:    cfg.Address(),
		Handler: router,

		// Timeouts
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	shutdownTimeout := 30 * time.Second
	if err := server.HandleSignals(srv, shutdownTimeout, logger, scheduler.Stop); err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
}

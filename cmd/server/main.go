package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blackmichael/profile-sync/internal/config"
	"github.com/blackmichael/profile-sync/internal/domain"
	"github.com/blackmichael/profile-sync/internal/ensemble"
	"github.com/blackmichael/profile-sync/internal/httpserver"
	"github.com/blackmichael/profile-sync/internal/metrics"
	"github.com/blackmichael/profile-sync/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Set up repository (implements both RecordStore and CursorRepository)
	repo, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer repo.Close()
	logger.Info("connected to database")

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewRecorder(registry)

	var cursors domain.CursorRepository
	if cfg.StatePersist {
		if err := repo.EnsureCursorTable(ctx); err != nil {
			return err
		}
		cursors = repo
	}

	state := domain.NewChangeState()
	pipeline := domain.NewPipeline(
		ensemble.NewClient(cfg.EnsembleURL, cfg.EnsembleToken, cfg.FetchTimeout),
		domain.NewClassifier(cfg.Keywords),
		&domain.Formatter{CreatorID: cfg.CreatorID, DefaultVenueID: cfg.DefaultVenueID},
		domain.NewSynchronizer(repo, cfg.DBTimeout, recorder, logger),
		state,
		cursors,
		logger,
	)
	if err := pipeline.LoadState(ctx); err != nil {
		return err
	}

	hub := httpserver.NewHub()
	scheduler := domain.NewScheduler(pipeline, cfg.ProfileDelay, logger, hub, recorder)

	// Start the polling loop in the background
	pollDone := make(chan struct{})
	if len(cfg.Profiles) > 0 {
		go func() {
			defer close(pollDone)
			scheduler.Run(ctx, cfg.Profiles, cfg.PollInterval)
		}()
	} else {
		close(pollDone)
		logger.Warn("no profiles configured, polling disabled")
	}

	// Start the HTTP server
	server := httpserver.NewServer(cfg.Port, scheduler, hub, state, registry, logger)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server exited with error", "error", err)
		}
	}()

	logger.Info("server started", "port", cfg.Port, "profiles", len(cfg.Profiles), "poll_interval", cfg.PollInterval)

	// Wait for shutdown signal
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down http server", "error", err)
	}

	// The store is closed on return; let an in-flight upsert finish first.
	<-pollDone
	logger.Info("polling stopped")

	return nil
}

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/blackmichael/profile-sync/internal/domain"
	"github.com/blackmichael/profile-sync/internal/ensemble"
	"github.com/blackmichael/profile-sync/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		handles     string
		token       string
		apiURL      string
		databaseURL string
		delay       time.Duration
		dryRun      bool
	)

	flag.StringVar(&handles, "handles", envOrDefault("PROFILES", ""), "Comma-separated profile handles to scrape")
	flag.StringVar(&token, "token", envOrDefault("ENSEMBLE_API_TOKEN", ""), "EnsembleData API token")
	flag.StringVar(&apiURL, "api-url", envOrDefault("ENSEMBLE_API_URL", ""), "EnsembleData API root")
	flag.StringVar(&databaseURL, "db", envOrDefault("DATABASE_URL", ""), "Database URL (postgres://... or sqlite://path)")
	flag.DurationVar(&delay, "delay", 500*time.Millisecond, "Minimum delay between profiles")
	flag.BoolVar(&dryRun, "dry-run", false, "Classify and format only; do not write to the database")
	flag.Parse()

	if token == "" {
		return fmt.Errorf("--token is required (or set ENSEMBLE_API_TOKEN)")
	}
	list := strings.Split(handles, ",")
	if strings.TrimSpace(handles) == "" {
		return fmt.Errorf("--handles is required (or set PROFILES)")
	}
	if delay <= 0 {
		return fmt.Errorf("--delay must be positive")
	}
	if !dryRun && databaseURL == "" {
		return fmt.Errorf("--db is required unless --dry-run is set (or set DATABASE_URL)")
	}

	// Reports go to stdout, logs to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx := context.Background()
	client := ensemble.NewClient(apiURL, token, 0)
	classifier := domain.NewClassifier(nil)
	formatter := &domain.Formatter{}

	var processor domain.ProfileProcessor
	if dryRun {
		pipeline := domain.NewPipeline(client, classifier, formatter, nil, domain.NewChangeState(), nil, logger)
		processor = previewer{pipeline}
	} else {
		repo, err := store.Open(ctx, databaseURL)
		if err != nil {
			return err
		}
		defer repo.Close()

		processor = domain.NewPipeline(client, classifier, formatter,
			domain.NewSynchronizer(repo, 0, nil, logger), domain.NewChangeState(), nil, logger)
	}

	reports := domain.NewScheduler(processor, delay, logger).RunCycle(ctx, list)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(reports); err != nil {
		return fmt.Errorf("encode reports: %w", err)
	}

	for _, r := range reports {
		if r.Failed() {
			return fmt.Errorf("one or more profiles failed")
		}
	}
	return nil
}

// previewer adapts Pipeline.Preview to the scheduler.
type previewer struct {
	pipeline *domain.Pipeline
}

func (p previewer) ProcessProfile(ctx context.Context, handle string) domain.Report {
	return p.pipeline.Preview(ctx, handle)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

package domain

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// ProfileProcessor handles one profile per call.
type ProfileProcessor interface {
	ProcessProfile(ctx context.Context, handle string) Report
}

// Scheduler drives the pipeline over a list of handles, one at a time, with
// a minimum delay between consecutive upstream requests.
type Scheduler struct {
	processor ProfileProcessor
	limiter   *rate.Limiter
	sinks     []ReportSink
	logger    *slog.Logger
}

// NewScheduler creates a Scheduler that waits at least profileDelay between
// profiles. The limiter is shared by every cycle run through this
// Scheduler, including ones started concurrently.
func NewScheduler(processor ProfileProcessor, profileDelay time.Duration, logger *slog.Logger, sinks ...ReportSink) *Scheduler {
	limit := rate.Inf
	if profileDelay > 0 {
		limit = rate.Every(profileDelay)
	}
	return &Scheduler{
		processor: processor,
		limiter:   rate.NewLimiter(limit, 1),
		sinks:     sinks,
		logger:    logger,
	}
}

// RunCycle processes each non-blank handle in order and returns their
// reports. A failing profile never stops the cycle; cancelling ctx stops it
// before the next profile starts.
func (s *Scheduler) RunCycle(ctx context.Context, handles []string) []Report {
	runID := uuid.NewString()
	logger := s.logger.With("run_id", runID)
	logger.Info("starting scrape cycle", "profiles", len(handles))

	start := time.Now()
	reports := make([]Report, 0, len(handles))
	var failed int
	for _, handle := range handles {
		handle = strings.TrimSpace(handle)
		if handle == "" {
			continue
		}

		if err := s.limiter.Wait(ctx); err != nil {
			logger.Info("scrape cycle interrupted", "error", err, "processed", len(reports))
			return reports
		}

		report := s.processor.ProcessProfile(ctx, handle)
		if report.Failed() {
			failed++
		}
		for _, sink := range s.sinks {
			sink.Publish(report)
		}
		reports = append(reports, report)
	}

	logger.Info("scrape cycle complete",
		"processed", len(reports),
		"failed", failed,
		"duration", time.Since(start),
	)
	return reports
}

// Run repeats RunCycle over handles, pausing interval between cycles, until
// ctx is cancelled. It runs the first cycle immediately.
func (s *Scheduler) Run(ctx context.Context, handles []string, interval time.Duration) {
	for {
		s.RunCycle(ctx, handles)

		s.logger.Info("waiting for next cycle", "interval", interval)
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

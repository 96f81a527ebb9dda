package domain

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const defaultUpsertTimeout = 10 * time.Second

// SyncOutcome is the result of a single upsert.
type SyncOutcome struct {
	Success bool
	Message string
}

// Synchronizer writes canonical records to their tables.
type Synchronizer struct {
	store    RecordStore
	timeout  time.Duration
	observer UpsertObserver
	logger   *slog.Logger
}

// NewSynchronizer creates a Synchronizer. A non-positive timeout falls back
// to ten seconds; observer may be nil.
func NewSynchronizer(store RecordStore, timeout time.Duration, observer UpsertObserver, logger *slog.Logger) *Synchronizer {
	if timeout <= 0 {
		timeout = defaultUpsertTimeout
	}
	return &Synchronizer{
		store:    store,
		timeout:  timeout,
		observer: observer,
		logger:   logger,
	}
}

// Upsert inserts rec or updates the existing row with the same id. Failures
// are reported in the outcome, never returned as errors.
func (s *Synchronizer) Upsert(ctx context.Context, rec Record) SyncOutcome {
	table := tableFor(rec.Kind())
	name := rec.DisplayName()

	s.logger.Info("upserting record", "name", name, "table", table)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	err := s.store.Upsert(ctx, table, rec.Columns())
	if s.observer != nil {
		s.observer.ObserveUpsert(table, time.Since(start), err == nil)
	}

	if err != nil {
		s.logger.Error("database upsert failed",
			"name", name,
			"table", table,
			"error", err,
		)
		return SyncOutcome{
			Success: false,
			Message: fmt.Sprintf("Database error for '%s': %v", name, err),
		}
	}

	return SyncOutcome{
		Success: true,
		Message: fmt.Sprintf("Successfully upserted '%s' to '%s'.", name, table),
	}
}

func tableFor(kind RecordKind) string {
	if kind == RecordKindEvent {
		return EventsTable
	}
	return VenuesTable
}

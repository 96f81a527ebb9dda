package domain

import (
	"context"
	"time"
)

// ProfileFetcher retrieves the raw upstream document for a handle.
type ProfileFetcher interface {
	// FetchProfile returns the JSON document for handle. Implementations
	// must bound the call with a timeout.
	FetchProfile(ctx context.Context, handle string) ([]byte, error)
}

// RecordStore defines the single persistence operation the synchronizer
// needs.
type RecordStore interface {
	// Upsert inserts the columns into table, or on an id conflict updates
	// every non-id column, as one atomic statement.
	Upsert(ctx context.Context, table string, columns []Column) error
}

// CursorRepository persists the change state across restarts.
type CursorRepository interface {
	// GetCursors returns the last persisted post id for every handle.
	GetCursors(ctx context.Context) (map[string]string, error)

	// UpdateCursor stores postID as the latest post processed for handle.
	UpdateCursor(ctx context.Context, handle, postID string) error
}

// ReportSink receives every report produced by the scheduler.
type ReportSink interface {
	Publish(report Report)
}

// UpsertObserver is notified of every upsert attempt.
type UpsertObserver interface {
	ObserveUpsert(table string, elapsed time.Duration, success bool)
}

package domain

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Status is the terminal state of one pipeline invocation.
type Status string

const (
	StatusFetchError     Status = "fetch_error"
	StatusStructureError Status = "structure_error"
	StatusSkipped        Status = "skipped"
	StatusPersisted      Status = "persisted"
	StatusPersistFailed  Status = "persist_failed"
	StatusPreviewed      Status = "previewed"
)

// Report is the per-profile outcome handed to schedulers and UIs.
type Report struct {
	ProfileHandle      string     `json:"profileHandle"`
	RecordType         RecordKind `json:"recordType"`
	Record             Record     `json:"record,omitempty"`
	ErrorMessage       string     `json:"errorMessage,omitempty"`
	PersistenceSuccess bool       `json:"persistenceSuccess"`
	PersistenceMessage string     `json:"persistenceMessage"`
	Status             Status     `json:"status"`
	LatestPostID       *string    `json:"latestPostId,omitempty"`
	ProcessedAt        time.Time  `json:"processedAt"`
}

// Failed reports whether the invocation ended in an error state.
func (r Report) Failed() bool {
	switch r.Status {
	case StatusFetchError, StatusStructureError, StatusPersistFailed:
		return true
	}
	return false
}

// Pipeline runs fetch, classify, format, change-gate and synchronize for a
// single profile handle.
type Pipeline struct {
	fetcher    ProfileFetcher
	classifier *Classifier
	formatter  *Formatter
	sync       *Synchronizer
	state      *ChangeState
	cursors    CursorRepository // nil disables persisted change state
	logger     *slog.Logger
}

// NewPipeline creates a Pipeline. cursors may be nil.
func NewPipeline(
	fetcher ProfileFetcher,
	classifier *Classifier,
	formatter *Formatter,
	sync *Synchronizer,
	state *ChangeState,
	cursors CursorRepository,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		fetcher:    fetcher,
		classifier: classifier,
		formatter:  formatter,
		sync:       sync,
		state:      state,
		cursors:    cursors,
		logger:     logger,
	}
}

// LoadState seeds the change state from the cursor repository, if any.
func (p *Pipeline) LoadState(ctx context.Context) error {
	if p.cursors == nil {
		return nil
	}
	ids, err := p.cursors.GetCursors(ctx)
	if err != nil {
		return fmt.Errorf("load cursors: %w", err)
	}
	p.state.Seed(ids)
	p.logger.Info("change state loaded", "handles", len(ids))
	return nil
}

// ProcessProfile runs the full pipeline for handle. Every failure mode is
// folded into the returned report. The handle is normalized first, so
// differently cased spellings share one change-gate entry.
func (p *Pipeline) ProcessProfile(ctx context.Context, handle string) Report {
	handle = NormalizeHandle(handle)
	unlock := p.state.Lock(handle)
	defer unlock()

	profile, report, ok := p.load(ctx, handle)
	if !ok {
		return report
	}

	c := p.classifier.Classify(profile)
	report.RecordType = c.Kind()
	report.LatestPostID = c.LatestPostID
	p.logger.Info("profile classified", "handle", handle, "type", c.Kind())

	if ShouldSkip(handle, c, p.state) {
		p.logger.Info("no new posts, skipping", "handle", handle, "latest_post_id", *c.LatestPostID)
		report.Status = StatusSkipped
		report.PersistenceMessage = fmt.Sprintf("No new posts found for %s. Skipping.", handle)
		return report
	}

	rec := p.formatter.Format(handle, profile, c)
	report.Record = rec

	outcome := p.sync.Upsert(ctx, rec)
	report.PersistenceSuccess = outcome.Success
	report.PersistenceMessage = outcome.Message
	if !outcome.Success {
		report.Status = StatusPersistFailed
		return report
	}
	report.Status = StatusPersisted

	if c.LatestPostID != nil {
		p.advance(ctx, handle, *c.LatestPostID)
	}
	return report
}

// Preview fetches, classifies and formats handle without consulting the
// change state or touching the store.
func (p *Pipeline) Preview(ctx context.Context, handle string) Report {
	handle = NormalizeHandle(handle)
	profile, report, ok := p.load(ctx, handle)
	if !ok {
		return report
	}

	c := p.classifier.Classify(profile)
	report.RecordType = c.Kind()
	report.LatestPostID = c.LatestPostID
	report.Record = p.formatter.Format(handle, profile, c)
	report.Status = StatusPreviewed
	return report
}

// load fetches and parses handle. When ok is false the returned report is
// terminal.
func (p *Pipeline) load(ctx context.Context, handle string) (*Profile, Report, bool) {
	report := Report{
		ProfileHandle: handle,
		ProcessedAt:   time.Now().UTC(),
	}

	p.logger.Info("fetching profile", "handle", handle)
	doc, err := p.fetcher.FetchProfile(ctx, handle)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrFetch, err)
		p.logger.Error("profile fetch failed", "handle", handle, "error", err)
		return nil, errorReport(report, StatusFetchError,
			fmt.Sprintf("API request failed for %s: %v", handle, err)), false
	}

	profile, err := ParseProfile(doc)
	if err != nil {
		p.logger.Error("invalid profile document", "handle", handle, "error", err)
		return nil, errorReport(report, StatusStructureError, "Invalid data structure from API."), false
	}
	return profile, report, true
}

func (p *Pipeline) advance(ctx context.Context, handle, postID string) {
	p.state.Remember(handle, postID)
	if p.cursors == nil {
		return
	}
	if err := p.cursors.UpdateCursor(ctx, handle, postID); err != nil {
		p.logger.Warn("failed to persist cursor", "handle", handle, "error", err)
	}
}

func errorReport(report Report, status Status, msg string) Report {
	report.RecordType = RecordKindError
	report.Status = status
	report.ErrorMessage = msg
	report.PersistenceMessage = msg
	return report
}

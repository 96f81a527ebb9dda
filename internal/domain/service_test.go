package domain_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/blackmichael/profile-sync/internal/domain"
	"github.com/stretchr/testify/require"
)

var discardLogger = slog.New(slog.DiscardHandler)

type fakeFetcher struct {
	mu    sync.Mutex
	docs  map[string][]byte
	errs  map[string]error
	calls []string
}

func (f *fakeFetcher) FetchProfile(_ context.Context, handle string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, handle)
	if err, ok := f.errs[handle]; ok {
		return nil, err
	}
	return f.docs[handle], nil
}

type upsertCall struct {
	table   string
	columns []domain.Column
}

type fakeStore struct {
	mu    sync.Mutex
	err   error
	calls []upsertCall
}

func (s *fakeStore) Upsert(_ context.Context, table string, columns []domain.Column) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, upsertCall{table: table, columns: columns})
	return s.err
}

type fakeCursors struct {
	seed    map[string]string
	updated map[string]string
	err     error
}

func (c *fakeCursors) GetCursors(context.Context) (map[string]string, error) {
	return c.seed, c.err
}

func (c *fakeCursors) UpdateCursor(_ context.Context, handle, postID string) error {
	if c.updated == nil {
		c.updated = make(map[string]string)
	}
	c.updated[handle] = postID
	return nil
}

type pipelineFixture struct {
	fetcher  *fakeFetcher
	store    *fakeStore
	state    *domain.ChangeState
	pipeline *domain.Pipeline
}

func newPipelineFixture(t *testing.T, cursors domain.CursorRepository) *pipelineFixture {
	t.Helper()
	fx := &pipelineFixture{
		fetcher: &fakeFetcher{docs: map[string][]byte{}, errs: map[string]error{}},
		store:   &fakeStore{},
		state:   domain.NewChangeState(),
	}
	fx.pipeline = domain.NewPipeline(
		fx.fetcher,
		domain.NewClassifier(nil),
		&domain.Formatter{Now: fixedClock},
		domain.NewSynchronizer(fx.store, time.Second, nil, discardLogger),
		fx.state,
		cursors,
		discardLogger,
	)
	return fx
}

func TestProcessProfile_UpcomingEventPersisted(t *testing.T) {
	fx := newPipelineFixture(t, nil)
	fx.fetcher.docs["launch"] = profileDoc(t, map[string]any{
		"full_name": "Launch Co",
		"biography": "we make things",
	}, node{id: "p1", upcoming: true, display: "http://x/img.jpg", caption: "Join us for the launch party"})

	report := fx.pipeline.ProcessProfile(context.Background(), "launch")

	require.Equal(t, domain.StatusPersisted, report.Status)
	require.Equal(t, domain.RecordKindEvent, report.RecordType)
	require.True(t, report.PersistenceSuccess)
	require.Equal(t, "Successfully upserted 'Launch Co' to 'events'.", report.PersistenceMessage)
	require.False(t, report.Failed())

	event, ok := report.Record.(*domain.EventRecord)
	require.True(t, ok)
	require.Equal(t, "http://x/img.jpg", event.PosterURL)
	require.Equal(t, domain.EventStatusUnpublished, event.EventStatus)
	require.Equal(t, "Join us for the launch party", event.Description)

	require.Len(t, fx.store.calls, 1)
	require.Equal(t, domain.EventsTable, fx.store.calls[0].table)

	id, ok := fx.state.LastPostID("launch")
	require.True(t, ok)
	require.Equal(t, "p1", id)
}

func TestProcessProfile_VenueWithoutPosts(t *testing.T) {
	fx := newPipelineFixture(t, nil)
	fx.fetcher.docs["rooftop"] = profileDoc(t, map[string]any{
		"full_name": "Rooftop",
		"biography": "Best rooftop bar in town",
	})

	report := fx.pipeline.ProcessProfile(context.Background(), "rooftop")

	require.Equal(t, domain.StatusPersisted, report.Status)
	require.Equal(t, domain.RecordKindVenue, report.RecordType)
	venue := report.Record.(*domain.VenueRecord)
	require.Equal(t, "Best rooftop bar in town", venue.Description)
	require.Equal(t, domain.VenuesTable, fx.store.calls[0].table)

	// No post id, so nothing to remember.
	_, ok := fx.state.LastPostID("rooftop")
	require.False(t, ok)
}

func TestProcessProfile_UnchangedLatestPostSkips(t *testing.T) {
	cursors := &fakeCursors{}
	fx := newPipelineFixture(t, cursors)
	fx.fetcher.docs["bar"] = profileDoc(t, map[string]any{"biography": "cocktails"}, node{id: "p9"})

	first := fx.pipeline.ProcessProfile(context.Background(), "bar")
	require.Equal(t, domain.StatusPersisted, first.Status)
	require.Equal(t, map[string]string{"bar": "p9"}, cursors.updated)

	second := fx.pipeline.ProcessProfile(context.Background(), "bar")
	require.Equal(t, domain.StatusSkipped, second.Status)
	require.Nil(t, second.Record)
	require.False(t, second.Failed())
	require.Equal(t, "No new posts found for bar. Skipping.", second.PersistenceMessage)
	require.Len(t, fx.store.calls, 1)
	require.Equal(t, map[string]string{"bar": "p9"}, fx.state.Snapshot())
}

func TestProcessProfile_HandleCaseSharesGate(t *testing.T) {
	fx := newPipelineFixture(t, nil)
	fx.fetcher.docs["kalamatake"] = profileDoc(t, map[string]any{"full_name": "Kalamatake"}, node{id: "p1"})

	first := fx.pipeline.ProcessProfile(context.Background(), "Kalamatake")
	second := fx.pipeline.ProcessProfile(context.Background(), " kalamatake ")

	require.Equal(t, domain.StatusPersisted, first.Status)
	require.Equal(t, "kalamatake", first.ProfileHandle)
	require.Equal(t, domain.StatusSkipped, second.Status)
	require.Len(t, fx.store.calls, 1)
	require.Equal(t, map[string]string{"kalamatake": "p1"}, fx.state.Snapshot())
}

func TestProcessProfile_NewPostProceeds(t *testing.T) {
	fx := newPipelineFixture(t, nil)
	fx.state.Remember("bar", "p1")
	fx.fetcher.docs["bar"] = profileDoc(t, nil, node{id: "p2"}, node{id: "p1"})

	report := fx.pipeline.ProcessProfile(context.Background(), "bar")

	require.Equal(t, domain.StatusPersisted, report.Status)
	id, _ := fx.state.LastPostID("bar")
	require.Equal(t, "p2", id)
}

func TestProcessProfile_PersistenceFailureKeepsState(t *testing.T) {
	cursors := &fakeCursors{}
	fx := newPipelineFixture(t, cursors)
	fx.store.err = errors.New("connection refused")
	fx.fetcher.docs["bar"] = profileDoc(t, map[string]any{"full_name": "The Bar"}, node{id: "p1"})

	report := fx.pipeline.ProcessProfile(context.Background(), "bar")

	require.Equal(t, domain.StatusPersistFailed, report.Status)
	require.False(t, report.PersistenceSuccess)
	require.True(t, report.Failed())
	require.Equal(t, "Database error for 'The Bar': connection refused", report.PersistenceMessage)
	require.NotNil(t, report.Record)

	_, ok := fx.state.LastPostID("bar")
	require.False(t, ok)
	require.Empty(t, cursors.updated)

	// The next cycle retries the same post.
	fx.store.err = nil
	retry := fx.pipeline.ProcessProfile(context.Background(), "bar")
	require.Equal(t, domain.StatusPersisted, retry.Status)
}

func TestProcessProfile_FetchError(t *testing.T) {
	fx := newPipelineFixture(t, nil)
	fx.fetcher.errs["gone"] = context.DeadlineExceeded

	report := fx.pipeline.ProcessProfile(context.Background(), "gone")

	require.Equal(t, domain.StatusFetchError, report.Status)
	require.Equal(t, domain.RecordKindError, report.RecordType)
	require.Contains(t, report.ErrorMessage, "API request failed for gone")
	require.Contains(t, report.ErrorMessage, context.DeadlineExceeded.Error())
	require.True(t, report.Failed())
	require.Empty(t, fx.store.calls)
}

func TestProcessProfile_StructureError(t *testing.T) {
	fx := newPipelineFixture(t, nil)
	fx.fetcher.docs["weird"] = []byte(`{"detail": "user not found"}`)

	report := fx.pipeline.ProcessProfile(context.Background(), "weird")

	require.Equal(t, domain.StatusStructureError, report.Status)
	require.Equal(t, domain.RecordKindError, report.RecordType)
	require.Equal(t, "Invalid data structure from API.", report.ErrorMessage)
	require.Empty(t, fx.store.calls)
}

func TestPreview_DoesNotPersist(t *testing.T) {
	fx := newPipelineFixture(t, nil)
	fx.state.Remember("bar", "p1")
	fx.fetcher.docs["bar"] = profileDoc(t, nil, node{id: "p1", upcoming: true})

	report := fx.pipeline.Preview(context.Background(), "bar")

	require.Equal(t, domain.StatusPreviewed, report.Status)
	require.Equal(t, domain.RecordKindEvent, report.RecordType)
	require.NotNil(t, report.Record)
	require.Empty(t, fx.store.calls)
}

func TestLoadState_SeedsFromCursors(t *testing.T) {
	cursors := &fakeCursors{seed: map[string]string{"bar": "p1"}}
	fx := newPipelineFixture(t, cursors)

	require.NoError(t, fx.pipeline.LoadState(context.Background()))

	fx.fetcher.docs["bar"] = profileDoc(t, nil, node{id: "p1"})
	report := fx.pipeline.ProcessProfile(context.Background(), "bar")
	require.Equal(t, domain.StatusSkipped, report.Status)
}

func TestLoadState_Error(t *testing.T) {
	fx := newPipelineFixture(t, &fakeCursors{err: errors.New("no table")})

	require.Error(t, fx.pipeline.LoadState(context.Background()))
}

func TestLoadState_NoCursors(t *testing.T) {
	fx := newPipelineFixture(t, nil)

	require.NoError(t, fx.pipeline.LoadState(context.Background()))
}

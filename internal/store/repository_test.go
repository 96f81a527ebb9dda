package store_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/blackmichael/profile-sync/internal/domain"
	"github.com/blackmichael/profile-sync/internal/store"
	"github.com/stretchr/testify/require"
)

const sqliteSchema = `
CREATE TABLE events (
	"id" INTEGER PRIMARY KEY,
	"performerId" INTEGER,
	"eventName" TEXT NOT NULL,
	"description" TEXT,
	"minAmount" REAL,
	"eventDate" TEXT,
	"posterUrl" TEXT,
	"createdBy" INTEGER,
	"deletedAt" TEXT,
	"createdAt" TEXT NOT NULL,
	"updatedAt" TEXT NOT NULL,
	"isPaid" INTEGER,
	"ticketingURL" TEXT,
	"eventQRCode" TEXT,
	"eventStatus" TEXT,
	"previousEventDate" TEXT,
	"previousStartTime" TEXT,
	"previousEndTime" TEXT,
	"startTime" TEXT,
	"endTime" TEXT,
	"venueId" INTEGER
);
CREATE TABLE venues (
	"id" INTEGER PRIMARY KEY,
	"userId" INTEGER,
	"venueName" TEXT NOT NULL,
	"email" TEXT,
	"phoneNumber" TEXT,
	"address" TEXT,
	"openHours" TEXT,
	"closingHours" TEXT,
	"latitude" REAL,
	"longitude" REAL,
	"capacity" INTEGER,
	"description" TEXT,
	"website" TEXT,
	"profileImageUrl" TEXT,
	"coverImageUrl" TEXT,
	"allowsDirectBookings" INTEGER,
	"createdAt" TEXT NOT NULL,
	"updatedAt" TEXT NOT NULL,
	"deletedAt" TEXT
);
`

func newSQLiteRepo(t *testing.T) *store.Repository {
	t.Helper()

	path := filepath.Join(t.TempDir(), "sync.db")
	repo, err := store.Open(context.Background(), "sqlite://"+path)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	_, err = repo.DB().Exec(sqliteSchema)
	require.NoError(t, err)
	require.NoError(t, repo.EnsureCursorTable(context.Background()))
	return repo
}

func dollar(n int) string { return fmt.Sprintf("$%d", n) }

func TestBuildUpsert(t *testing.T) {
	query, err := store.BuildUpsert("venues", []string{"id", "venueName", "address"}, dollar)
	require.NoError(t, err)
	require.Equal(t,
		`INSERT INTO "venues" ("id", "venueName", "address") VALUES ($1, $2, $3) `+
			`ON CONFLICT ("id") DO UPDATE SET "venueName" = EXCLUDED."venueName", "address" = EXCLUDED."address"`,
		query,
	)
}

func TestBuildUpsert_OnlyID(t *testing.T) {
	query, err := store.BuildUpsert("events", []string{"id"}, dollar)
	require.NoError(t, err)
	require.Equal(t, `INSERT INTO "events" ("id") VALUES ($1) ON CONFLICT ("id") DO NOTHING`, query)
}

func TestBuildUpsert_QuotesIdentifiers(t *testing.T) {
	query, err := store.BuildUpsert("events", []string{"id", `bad"name`}, dollar)
	require.NoError(t, err)
	require.Contains(t, query, `"bad""name" = EXCLUDED."bad""name"`)
}

func TestBuildUpsert_Errors(t *testing.T) {
	_, err := store.BuildUpsert("", []string{"id"}, dollar)
	require.Error(t, err)

	_, err = store.BuildUpsert("events", nil, dollar)
	require.Error(t, err)

	_, err = store.BuildUpsert("events", []string{"eventName"}, dollar)
	require.ErrorContains(t, err, "id column is required")
}

func TestUpsert_IsIdempotent(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)
	f := &domain.Formatter{Now: func() time.Time { return now }}

	rec := f.FormatEvent("launch", &domain.Profile{FullName: "Launch", Biography: "first"}, nil)
	require.NoError(t, repo.Upsert(ctx, rec.Table(), rec.Columns()))
	require.NoError(t, repo.Upsert(ctx, rec.Table(), rec.Columns()))

	var (
		count       int
		name, desc  string
		status      string
		deletedNull bool
	)
	require.NoError(t, repo.DB().QueryRow(`SELECT COUNT(*) FROM events`).Scan(&count))
	require.Equal(t, 1, count)

	require.NoError(t, repo.DB().QueryRow(
		`SELECT "eventName", "description", "eventStatus", "deletedAt" IS NULL FROM events WHERE "id" = ?`, rec.ID,
	).Scan(&name, &desc, &status, &deletedNull))
	require.Equal(t, "Launch", name)
	require.Equal(t, "first", desc)
	require.Equal(t, "UNPUBLISHED", status)
	require.True(t, deletedNull)
}

func TestUpsert_UpdatesNonIDColumns(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()
	f := &domain.Formatter{}

	first := f.FormatVenue("rooftop", &domain.Profile{FullName: "Rooftop", Biography: "old"})
	require.NoError(t, repo.Upsert(ctx, first.Table(), first.Columns()))

	blob := `{"street_address": "123 Main St"}`
	second := f.FormatVenue("rooftop", &domain.Profile{FullName: "Rooftop Bar", Biography: "new", BusinessAddressJSON: &blob})
	require.Equal(t, first.ID, second.ID)
	require.NoError(t, repo.Upsert(ctx, second.Table(), second.Columns()))

	var count int
	require.NoError(t, repo.DB().QueryRow(`SELECT COUNT(*) FROM venues`).Scan(&count))
	require.Equal(t, 1, count)

	var name, desc, address string
	require.NoError(t, repo.DB().QueryRow(
		`SELECT "venueName", "description", "address" FROM venues WHERE "id" = ?`, first.ID,
	).Scan(&name, &desc, &address))
	require.Equal(t, "Rooftop Bar", name)
	require.Equal(t, "new", desc)
	require.Equal(t, "123 Main St", address)
}

func TestUpsert_ErrorWrapsTable(t *testing.T) {
	repo := newSQLiteRepo(t)

	err := repo.Upsert(context.Background(), "missing_table", []domain.Column{{Name: "id", Value: 1}})
	require.ErrorContains(t, err, "upsert into missing_table")
}

func TestCursors_RoundTrip(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()

	// Creating the table again is a no-op.
	require.NoError(t, repo.EnsureCursorTable(ctx))

	cursors, err := repo.GetCursors(ctx)
	require.NoError(t, err)
	require.Empty(t, cursors)

	require.NoError(t, repo.UpdateCursor(ctx, "bar", "p1"))
	require.NoError(t, repo.UpdateCursor(ctx, "bar", "p2"))
	require.NoError(t, repo.UpdateCursor(ctx, "club", "c1"))

	cursors, err = repo.GetCursors(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string]string{"bar": "p2", "club": "c1"}, cursors)
}

func TestPipeline_AgainstSQLite(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()

	fetcher := staticFetcher(`{"data": {
		"full_name": "Kalamatake",
		"biography": "Best rooftop bar in town",
		"edge_owner_to_timeline_media": {"edges": [{"node": {"id": "p1"}}]}
	}}`)
	state := domain.NewChangeState()
	logger := discardLogger()
	pipeline := domain.NewPipeline(
		fetcher,
		domain.NewClassifier(nil),
		&domain.Formatter{},
		domain.NewSynchronizer(repo, time.Second, nil, logger),
		state,
		repo,
		logger,
	)

	first := pipeline.ProcessProfile(ctx, "kalamatake")
	require.Equal(t, domain.StatusPersisted, first.Status, first.PersistenceMessage)
	second := pipeline.ProcessProfile(ctx, "kalamatake")
	require.Equal(t, domain.StatusSkipped, second.Status)

	// A restarted process with fresh state resumes from the persisted cursor.
	restarted := domain.NewPipeline(fetcher, domain.NewClassifier(nil), &domain.Formatter{},
		domain.NewSynchronizer(repo, time.Second, nil, logger), domain.NewChangeState(), repo, logger)
	require.NoError(t, restarted.LoadState(ctx))
	require.Equal(t, domain.StatusSkipped, restarted.ProcessProfile(ctx, "kalamatake").Status)

	var count int
	require.NoError(t, repo.DB().QueryRow(`SELECT COUNT(*) FROM venues`).Scan(&count))
	require.Equal(t, 1, count)
}

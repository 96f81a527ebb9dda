package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/blackmichael/profile-sync/internal/domain"
	"github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	driverPostgres = "postgres"
	driverSQLite   = "sqlite"

	sqlitePrefix = "sqlite://"
)

// Repository implements domain.RecordStore and domain.CursorRepository on
// top of database/sql. Postgres is the production backend; SQLite serves
// local runs and tests.
type Repository struct {
	db          *sql.DB
	driver      string
	placeholder func(n int) string
}

// Open connects to the database at databaseURL, verifies the connection,
// and returns a new Repository. URLs starting with sqlite:// open a SQLite
// database at the remaining path; anything else is handed to the Postgres
// driver. The caller should call Close when the repository is no longer
// needed.
func Open(ctx context.Context, databaseURL string) (*Repository, error) {
	driver, dsn := driverPostgres, databaseURL
	if rest, ok := strings.CutPrefix(databaseURL, sqlitePrefix); ok {
		driver, dsn = driverSQLite, rest
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return NewRepository(db, driver), nil
}

// NewRepository wraps an open database handle. driver selects the
// placeholder syntax ("postgres" or "sqlite").
func NewRepository(db *sql.DB, driver string) *Repository {
	r := &Repository{db: db, driver: driver}
	if driver == driverSQLite {
		// A SQLite connection pool would give every connection its own
		// in-memory database.
		db.SetMaxOpenConns(1)
		r.placeholder = func(int) string { return "?" }
	} else {
		r.placeholder = func(n int) string { return fmt.Sprintf("$%d", n) }
	}
	return r
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// DB exposes the underlying handle.
func (r *Repository) DB() *sql.DB {
	return r.db
}

// Upsert inserts columns into table, updating every non-id column when a
// row with the same id already exists.
func (r *Repository) Upsert(ctx context.Context, table string, columns []domain.Column) error {
	names := make([]string, len(columns))
	values := make([]any, len(columns))
	for i, c := range columns {
		names[i] = c.Name
		values[i] = c.Value
	}

	query, err := BuildUpsert(table, names, r.placeholder)
	if err != nil {
		return err
	}

	if _, err := r.db.ExecContext(ctx, query, values...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			return fmt.Errorf("upsert into %s (sqlstate %s): %w", table, pqErr.Code, err)
		}
		return fmt.Errorf("upsert into %s: %w", table, err)
	}
	return nil
}

// BuildUpsert renders an INSERT ... ON CONFLICT ("id") DO UPDATE statement
// for the given table and columns. All identifiers are quoted; columns must
// include "id".
func BuildUpsert(table string, columns []string, placeholder func(n int) string) (string, error) {
	if table == "" {
		return "", errors.New("upsert: table name is required")
	}
	if len(columns) == 0 {
		return "", fmt.Errorf("upsert into %s: no columns", table)
	}

	var (
		quoted       = make([]string, len(columns))
		placeholders = make([]string, len(columns))
		updates      = make([]string, 0, len(columns)-1)
		hasID        bool
	)
	for i, name := range columns {
		q := quoteIdent(name)
		quoted[i] = q
		placeholders[i] = placeholder(i + 1)
		if name == "id" {
			hasID = true
			continue
		}
		updates = append(updates, q+" = EXCLUDED."+q)
	}
	if !hasID {
		return "", fmt.Errorf("upsert into %s: id column is required", table)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (\"id\") ",
		quoteIdent(table),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
	)
	if len(updates) == 0 {
		return query + "DO NOTHING", nil
	}
	return query + "DO UPDATE SET " + strings.Join(updates, ", "), nil
}

// EnsureCursorTable creates the profile_cursors table when it is missing.
func (r *Repository) EnsureCursorTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS profile_cursors (
			handle     TEXT PRIMARY KEY,
			post_id    TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("create cursor table: %w", err)
	}
	return nil
}

// GetCursors returns the last processed post id for every handle.
func (r *Repository) GetCursors(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT handle, post_id FROM profile_cursors`)
	if err != nil {
		return nil, fmt.Errorf("query cursors: %w", err)
	}
	defer rows.Close()

	cursors := make(map[string]string)
	for rows.Next() {
		var handle, postID string
		if err := rows.Scan(&handle, &postID); err != nil {
			return nil, fmt.Errorf("scan cursor: %w", err)
		}
		cursors[handle] = postID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cursors: %w", err)
	}
	return cursors, nil
}

// UpdateCursor upserts the last processed post id for a handle.
func (r *Repository) UpdateCursor(ctx context.Context, handle, postID string) error {
	query := fmt.Sprintf(`
		INSERT INTO profile_cursors (handle, post_id, updated_at)
		VALUES (%s, %s, %s)
		ON CONFLICT (handle) DO UPDATE SET post_id = EXCLUDED.post_id, updated_at = EXCLUDED.updated_at`,
		r.placeholder(1), r.placeholder(2), r.placeholder(3),
	)
	_, err := r.db.ExecContext(ctx, query, handle, postID, time.Now().UTC())
	return err
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

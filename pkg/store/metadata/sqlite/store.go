// Package sqlite implements metadata.MetadataStore on an embedded SQLite
// database through the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/marmos91/fragments/pkg/errs"
	"github.com/marmos91/fragments/pkg/store/keys"
	"github.com/marmos91/fragments/pkg/store/metadata"

	_ "modernc.org/sqlite"
)

// schema creates the single records table.
//
// seq is an AUTOINCREMENT rowid, so it never reuses a value and ordering by it
// yields first-write order. Upserts go through ON CONFLICT DO UPDATE, which
// keeps the original row (and seq) in place.
const schema = `
CREATE TABLE IF NOT EXISTS fragments (
	seq      INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_id TEXT NOT NULL,
	id       TEXT NOT NULL,
	created  TEXT NOT NULL,
	updated  TEXT NOT NULL,
	type     TEXT NOT NULL,
	size     INTEGER NOT NULL,
	UNIQUE (owner_id, id)
);
CREATE INDEX IF NOT EXISTS fragments_owner_seq ON fragments (owner_id, seq);
`

// SQLiteMetadataStoreConfig configures the SQLite metadata store.
type SQLiteMetadataStoreConfig struct {
	// Path is the database file; ":memory:" keeps everything in RAM
	Path string `mapstructure:"path"`
}

// SQLiteMetadataStore implements metadata.MetadataStore on SQLite.
//
// The pool is limited to one connection: SQLite serialises writers anyway,
// and a single connection keeps ":memory:" databases shared across calls.
type SQLiteMetadataStore struct {
	db *sql.DB
}

// NewSQLiteMetadataStore opens the database and applies the schema.
func NewSQLiteMetadataStore(ctx context.Context, config SQLiteMetadataStoreConfig) (*SQLiteMetadataStore, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("sqlite metadata store: path is required")
	}

	if config.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteMetadataStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteMetadataStore) Close() error {
	return s.db.Close()
}

// Healthcheck pings the database.
func (s *SQLiteMetadataStore) Healthcheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return errs.Storage("sqlite.Healthcheck", err)
	}
	return nil
}

// WriteMetadata upserts a record.
func (s *SQLiteMetadataStore) WriteMetadata(ctx context.Context, rec *metadata.Record) error {
	const op = "sqlite.WriteMetadata"

	if rec == nil {
		return errs.Validation(op, "record is required")
	}
	if err := keys.Validate(op, rec.OwnerID, rec.ID); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fragments (owner_id, id, created, updated, type, size)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (owner_id, id) DO UPDATE SET
			created = excluded.created,
			updated = excluded.updated,
			type    = excluded.type,
			size    = excluded.size`,
		rec.OwnerID, rec.ID, formatTime(rec.Created), formatTime(rec.Updated), rec.Type, rec.Size,
	)
	if err != nil {
		return errs.Storage(op, err)
	}
	return nil
}

// ReadMetadata loads a record.
func (s *SQLiteMetadataStore) ReadMetadata(ctx context.Context, ownerID, id string) (*metadata.Record, bool, error) {
	const op = "sqlite.ReadMetadata"

	if err := keys.Validate(op, ownerID, id); err != nil {
		return nil, false, err
	}

	var (
		created, updated string
		rec              = metadata.Record{ID: id, OwnerID: ownerID}
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT created, updated, type, size FROM fragments WHERE owner_id = ? AND id = ?`,
		ownerID, id,
	).Scan(&created, &updated, &rec.Type, &rec.Size)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errs.Storage(op, err)
	}

	if rec.Created, err = parseTime(created); err != nil {
		return nil, false, errs.Storage(op, err)
	}
	if rec.Updated, err = parseTime(updated); err != nil {
		return nil, false, errs.Storage(op, err)
	}
	return &rec, true, nil
}

// ListIDs returns the owner's ids ordered by first write.
func (s *SQLiteMetadataStore) ListIDs(ctx context.Context, ownerID string) ([]string, error) {
	const op = "sqlite.ListIDs"

	if err := keys.ValidateOwner(op, ownerID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM fragments WHERE owner_id = ? ORDER BY seq`, ownerID)
	if err != nil {
		return nil, errs.Storage(op, err)
	}
	defer func() { _ = rows.Close() }()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errs.Storage(op, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Storage(op, err)
	}
	return ids, nil
}

// DeleteMetadata removes a record and reports whether a row was deleted.
func (s *SQLiteMetadataStore) DeleteMetadata(ctx context.Context, ownerID, id string) (bool, error) {
	const op = "sqlite.DeleteMetadata"

	if err := keys.Validate(op, ownerID, id); err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM fragments WHERE owner_id = ? AND id = ?`, ownerID, id)
	if err != nil {
		return false, errs.Storage(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errs.Storage(op, err)
	}
	return n > 0, nil
}

// ListAllKeys implements metadata.Enumerator.
func (s *SQLiteMetadataStore) ListAllKeys(ctx context.Context) ([]keys.Key, error) {
	const op = "sqlite.ListAllKeys"

	rows, err := s.db.QueryContext(ctx, `SELECT owner_id, id FROM fragments ORDER BY seq`)
	if err != nil {
		return nil, errs.Storage(op, err)
	}
	defer func() { _ = rows.Close() }()

	var all []keys.Key
	for rows.Next() {
		var k keys.Key
		if err := rows.Scan(&k.OwnerID, &k.ID); err != nil {
			return nil, errs.Storage(op, err)
		}
		all = append(all, k)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Storage(op, err)
	}
	return all, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

// Package sqlite persists tag records to a single-file SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/srg/tagscan/internal/storage"
	"github.com/srg/tagscan/internal/tag"
)

var _ storage.Store = (*Store)(nil)

// DefaultPath is used when no database path is configured.
const DefaultPath = "tagscan.db"

const schema = `CREATE TABLE IF NOT EXISTS tags (
	epc        TEXT PRIMARY KEY,
	rssi       INTEGER,
	seen_count INTEGER NOT NULL,
	first_seen INTEGER NOT NULL,
	last_seen  INTEGER NOT NULL
)`

const upsert = `INSERT INTO tags (epc, rssi, seen_count, first_seen, last_seen)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(epc) DO UPDATE SET
	rssi = excluded.rssi,
	seen_count = excluded.seen_count,
	first_seen = excluded.first_seen,
	last_seen = excluded.last_seen`

// Store is a SQLite-backed tag store. Timestamps are stored as unix nanoseconds.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (creating if needed) the database at path and ensures the schema.
func NewStore(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single writer avoids SQLITE_BUSY under concurrent saves.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tags table: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

func (s *Store) Save(ctx context.Context, rec tag.Record) error {
	if err := tag.ValidateEPC(rec.EPC); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	var rssi sql.NullInt64
	if rec.RSSI != nil {
		rssi = sql.NullInt64{Int64: int64(*rec.RSSI), Valid: true}
	}
	if _, err := s.db.ExecContext(ctx, upsert,
		rec.EPC, rssi, rec.SeenCount, rec.FirstSeen.UnixNano(), rec.LastSeen.UnixNano(),
	); err != nil {
		return fmt.Errorf("save tag %s: %w", rec.EPC, err)
	}
	return nil
}

func (s *Store) LoadAll(ctx context.Context) ([]tag.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT epc, rssi, seen_count, first_seen, last_seen FROM tags ORDER BY last_seen DESC, epc ASC`)
	if err != nil {
		return nil, fmt.Errorf("select tags: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []tag.Record
	for rows.Next() {
		var (
			rec         tag.Record
			rssi        sql.NullInt64
			first, last int64
		)
		if err := rows.Scan(&rec.EPC, &rssi, &rec.SeenCount, &first, &last); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if rssi.Valid {
			rec.RSSI = tag.RSSI(int(rssi.Int64))
		}
		rec.FirstSeen = time.Unix(0, first).UTC()
		rec.LastSeen = time.Unix(0, last).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	return out, nil
}

func (s *Store) DeleteAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tags`); err != nil {
		return fmt.Errorf("delete tags: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Package postgres persists tag records to PostgreSQL through the pgx driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"github.com/srg/tagscan/internal/storage"
	"github.com/srg/tagscan/internal/tag"
)

var _ storage.Store = (*Store)(nil)

const (
	defaultDriver = "pgx"
	// DefaultDSN is used when no DSN is configured.
	DefaultDSN = "postgres://localhost/tagscan?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Timestamps are unix nanoseconds; TIMESTAMPTZ would round to microseconds.
const schema = `CREATE TABLE IF NOT EXISTS tags (
	epc        TEXT PRIMARY KEY,
	rssi       INTEGER,
	seen_count INTEGER NOT NULL,
	first_seen BIGINT NOT NULL,
	last_seen  BIGINT NOT NULL
)`

const upsert = `INSERT INTO tags (epc, rssi, seen_count, first_seen, last_seen)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (epc) DO UPDATE SET
	rssi = EXCLUDED.rssi,
	seen_count = EXCLUDED.seen_count,
	first_seen = EXCLUDED.first_seen,
	last_seen = EXCLUDED.last_seen`

// Store is a Postgres-backed tag store.
type Store struct {
	db *sql.DB
}

// NewStore connects using dsn (DefaultDSN when empty), pings and ensures the schema.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure tags table: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Save(ctx context.Context, rec tag.Record) error {
	if err := tag.ValidateEPC(rec.EPC); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	var rssi sql.NullInt32
	if rec.RSSI != nil {
		rssi = sql.NullInt32{Int32: int32(*rec.RSSI), Valid: true}
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
			rssi        sql.NullInt32
			first, last int64
		)
		if err := rows.Scan(&rec.EPC, &rssi, &rec.SeenCount, &first, &last); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if rssi.Valid {
			rec.RSSI = tag.RSSI(int(rssi.Int32))
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

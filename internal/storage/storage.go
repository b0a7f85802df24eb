package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a row addressed by tenant and id does not
// exist. Rows owned by another tenant are reported the same way.
var ErrNotFound = errors.New("not found")

// Store is the SQLite-backed persistence layer for the pipeline.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at dbPath and applies the schema.
func Open(dbPath string) (*Store, error) {
	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serializes writers; the pipeline's suspension
	// points are network calls, never long transactions.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	// Migrations for existing databases.
	migrations := []string{
		"ALTER TABLE posted_content ADD COLUMN content_type TEXT NOT NULL DEFAULT ''",
		"ALTER TABLE content_queue ADD COLUMN last_error TEXT",
	}
	for _, m := range migrations {
		db.Exec(m) // ignore "duplicate column" errors
	}

	return &Store{db: db, now: time.Now}, nil
}

// NewWithDB wraps an existing connection without touching the schema.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// SetClock replaces the store's time source.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) nowMillis() int64 {
	return s.now().UTC().UnixMilli()
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullableMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func encodeStrings(v []string) string {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func decodeStrings(raw string) []string {
	var out []string
	if raw == "" {
		return []string{}
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil || out == nil {
		return []string{}
	}
	return out
}

func encodeMap(m map[string]string) string {
	if m == nil {
		return "{}"
	}
	b, _ := json.Marshal(m)
	return string(b)
}

func decodeMap(raw string) map[string]string {
	out := map[string]string{}
	if raw == "" {
		return out
	}
	json.Unmarshal([]byte(raw), &out)
	return out
}

type scanner interface {
	Scan(dest ...any) error
}

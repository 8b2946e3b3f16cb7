package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a run does not exist
var ErrNotFound = errors.New("not found")

type dialect int

const (
	sqlite dialect = iota
	postgres
)

// Store persists runs, stage events, errors and artifact values
type Store struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

// Open connects to dsn: a postgres:// or postgresql:// URL uses pgx,
// anything else is a sqlite file path. Tables are created if missing.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("database dsn is required")
	}
	driver, d := "sqlite3", sqlite
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver, d = "pgx", postgres
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if d == sqlite {
		// one writer; sqlite serializes anyway and this avoids SQLITE_BUSY
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	s := &Store{db: db, dialect: d, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping reports whether the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	timestamp, serial := "DATETIME", "INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.dialect == postgres {
		timestamp, serial = "TIMESTAMPTZ", "BIGSERIAL PRIMARY KEY"
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			stages TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			created_at ` + timestamp + ` NOT NULL,
			updated_at ` + timestamp + ` NOT NULL,
			ended_at ` + timestamp + `
		)`,
		`CREATE TABLE IF NOT EXISTS stage_events (
			run_id TEXT NOT NULL,
			stage_index INTEGER NOT NULL,
			stage TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at ` + timestamp + ` NOT NULL,
			ended_at ` + timestamp + `,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (run_id, stage_index)
		)`,
		`CREATE TABLE IF NOT EXISTS run_errors (
			id ` + serial + `,
			run_id TEXT NOT NULL,
			stage TEXT NOT NULL,
			kind TEXT NOT NULL,
			message TEXT NOT NULL,
			created_at ` + timestamp + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS artifacts (
			run_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			stage TEXT NOT NULL,
			seq INTEGER NOT NULL,
			vals TEXT NOT NULL,
			created_at ` + timestamp + ` NOT NULL,
			PRIMARY KEY (run_id, kind)
		)`,
		`CREATE INDEX IF NOT EXISTS runs_created_idx ON runs (created_at)`,
		`CREATE INDEX IF NOT EXISTS run_errors_run_idx ON run_errors (run_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for postgres
func (s *Store) rebind(query string) string {
	if s.dialect != postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	_, err := s.db.ExecContext(ctx, s.rebind(query), args...)
	return err
}

// Package sqlstore implements the signal, alert and user stores on top of
// sqlx. The same queries run against Postgres (lib/pq) in production and
// SQLite (go-sqlite3) for local runs and tests; placeholders are rebound per
// driver and timestamps are stored as unix milliseconds.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("sqlstore: not found")

// Store is the shared handle behind SignalStore, AlertStore and UserStore.
type Store struct {
	db     *sqlx.DB
	driver string
}

// DriverFor infers the database/sql driver name and its data source from a
// DATABASE_URL style DSN.
func DriverFor(dsn string) (driver, source string, err error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "postgres", dsn, nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return "sqlite3", sqliteSource(strings.TrimPrefix(dsn, "sqlite://")), nil
	case strings.HasPrefix(dsn, "file:"), dsn == ":memory:":
		return "sqlite3", sqliteSource(dsn), nil
	}
	return "", "", fmt.Errorf("sqlstore: unsupported DATABASE_URL scheme in %q", redact(dsn))
}

func sqliteSource(path string) string {
	if path == ":memory:" || strings.Contains(path, "mode=memory") {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
}

// redact hides the password of a URL-style DSN for log output.
func redact(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return dsn
	}
	creds := dsn[scheme+3 : at]
	if i := strings.Index(creds, ":"); i >= 0 {
		creds = creds[:i] + ":***"
	}
	return dsn[:scheme+3] + creds + dsn[at:]
}

// Open connects, verifies the connection and applies the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	driver, source, err := DriverFor(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sqlx.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", driver, err)
	}

	if driver == "sqlite3" {
		// A single connection serialises writers and keeps :memory: databases alive.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
		db.SetConnMaxIdleTime(10 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: ping %s: %w", driver, err)
	}

	s := &Store{db: db, driver: driver}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	log.Printf("[sqlstore] connected (%s) %s", driver, redact(dsn))
	return s, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id               TEXT PRIMARY KEY,
		telegram_chat_id TEXT,
		webhook_url      TEXT,
		created_at       BIGINT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_chat ON users(telegram_chat_id)`,
	`CREATE TABLE IF NOT EXISTS signals (
		asset       TEXT   NOT NULL,
		timeframe   TEXT   NOT NULL,
		signal_type TEXT   NOT NULL,
		detected_at BIGINT NOT NULL,
		PRIMARY KEY (asset, timeframe, signal_type)
	)`,
	`CREATE TABLE IF NOT EXISTS alerts (
		id                TEXT PRIMARY KEY,
		user_id           TEXT NOT NULL,
		asset             TEXT NOT NULL,
		timeframe         TEXT,
		alert_type        TEXT NOT NULL,
		target_price      DOUBLE PRECISION,
		operator          TEXT,
		is_recurring      BOOLEAN NOT NULL DEFAULT FALSE,
		last_triggered_at BIGINT,
		status            TEXT NOT NULL DEFAULT 'ACTIVE',
		condition_text    TEXT,
		created_at        BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_user ON alerts(user_id, status)`,
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlstore: migrate: %w", err)
		}
	}
	return nil
}

// Ping checks connectivity for health reporting.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Driver returns the database/sql driver name in use.
func (s *Store) Driver() string { return s.driver }

// Close closes the pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) q(query string) string {
	return s.db.Rebind(query)
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullMillis(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := toMillis(*t)
	return &ms
}

func nullTime(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := fromMillis(*ms)
	return &t
}

// Package store persists abandoned carts, submission history, offline
// Shopify sessions and the wilaya/commune table. Without a database it keeps
// everything in memory behind one mutex.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"cod-order-service/internal/config"
	"cod-order-service/internal/modal"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidCursor = errors.New("invalid cursor")
)

type cartKey struct{ shop, session string }

// DefaultHistoryRetention bounds how long the in-memory store keeps
// submissions around for counting.
const DefaultHistoryRetention = 24 * time.Hour

type Store struct {
	db        *sql.DB
	now       func() time.Time
	retention time.Duration

	mu        sync.Mutex
	carts     map[cartKey]*modal.AbandonedCartRecord
	subs      []modal.Submission
	tokens    map[string]string
	locations []modal.Location
}

// Open connects to Postgres through the pgx stdlib driver and pings it.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, errors.New("database url is empty")
	}
	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// New returns a Store backed by db, or an in-memory Store when db is nil.
func New(db *sql.DB) *Store {
	return &Store{
		db:        db,
		now:       func() time.Time { return time.Now().UTC() },
		retention: DefaultHistoryRetention,
		carts:     make(map[cartKey]*modal.AbandonedCartRecord),
		tokens:    make(map[string]string),
	}
}

// SetHistoryRetention changes how far back in-memory submissions are kept.
// Postgres rows are not affected.
func (s *Store) SetHistoryRetention(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	s.retention = d
	s.mu.Unlock()
}

func (s *Store) Mode() string {
	if s.db == nil {
		return "memory"
	}
	return "postgres"
}

func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS abandoned_carts (
			id TEXT PRIMARY KEY,
			shop TEXT NOT NULL,
			session_id TEXT NOT NULL,
			customer_email TEXT,
			customer_phone TEXT,
			customer_name TEXT,
			cart_data JSONB,
			form_data JSONB,
			is_recovered BOOLEAN NOT NULL DEFAULT FALSE,
			draft_order_id TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			UNIQUE (shop, session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_abandoned_carts_shop_updated ON abandoned_carts (shop, updated_at DESC, id DESC)`,
		`CREATE TABLE IF NOT EXISTS cod_submissions (
			id TEXT PRIMARY KEY,
			shop TEXT NOT NULL,
			session_id TEXT NOT NULL,
			phone TEXT,
			client_ip TEXT,
			score INTEGER NOT NULL,
			decision TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cod_submissions_phone ON cod_submissions (shop, phone, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_cod_submissions_session ON cod_submissions (shop, session_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS shopify_sessions (
			id TEXT PRIMARY KEY,
			shop TEXT NOT NULL,
			access_token TEXT NOT NULL,
			scope TEXT,
			is_online BOOLEAN NOT NULL DEFAULT FALSE,
			expires TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS locations (
			wilaya_code TEXT NOT NULL,
			wilaya_name TEXT NOT NULL,
			commune TEXT NOT NULL,
			PRIMARY KEY (wilaya_code, commune)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nilIfEmptyJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

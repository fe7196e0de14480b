// Package store provides the local, offline-first database for stockbook.
//
// The store is an embedded SQLite database (ncruces/go-sqlite3, WAL mode)
// holding the authoritative working copy of items, sales and workers. Every
// row carries a synced flag and a revision counter:
//
//   - writes set synced = 0 and bump rev
//   - only the sync engine sets synced = 1, and only for the revision it pushed
//
// Architecture:
//   - Database file: ~/.stockbook/stockbook.db (configurable)
//   - Tables: items, sales, users, sync_runs
//   - All writes are durable before the call returns
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/stockbook/stockbook/internal/schema"
)

// Errors returned by store operations. Check them with errors.Is.
var (
	// ErrNotFound is returned when a row addressed by id or key does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientStock is returned by AdjustQuantity when the decrement
	// would take quantity below zero. Nothing is written in that case.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrDuplicateUsername is returned when a worker username is taken.
	ErrDuplicateUsername = errors.New("username already exists")

	// ErrUnknownEntity is returned for an entity the store does not hold.
	ErrUnknownEntity = errors.New("unknown entity")
)

// execer is the subset of *sql.DB and *sql.Tx the queries need.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries holds every read and write; Store and Tx both embed it.
type queries struct {
	q   execer
	now func() time.Time
}

// Store wraps the SQLite connection. Construct one with Open at startup and
// pass it to every consumer.
type Store struct {
	queries
	conn *sql.DB
	path string
}

// Tx is a store bound to an open transaction. See Store.WithTx.
type Tx struct {
	queries
}

// Open creates or opens the database at path.
//
// The caller MUST call Close() when done.
//
// Example:
//
//	st, err := store.Open("/home/me/.stockbook/stockbook.db")
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
//	if err := st.InitSchema(ctx); err != nil {
//	    return err
//	}
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Per-connection pragmas go in the DSN so every pooled connection gets them.
	params := url.Values{}
	params.Add("_pragma", "busy_timeout(5000)")
	params.Add("_pragma", "foreign_keys(1)")
	params.Add("_pragma", "synchronous(normal)")
	params.Set("_txlock", "immediate")
	connStr := "file:" + path + "?" + params.Encode()

	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	// WAL persists in the file, so once is enough.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{
		queries: queries{
			q:   conn,
			now: func() time.Time { return time.Now().UTC() },
		},
		conn: conn,
		path: path,
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close checkpoints the WAL and closes the connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.conn = nil
	return nil
}

// InitSchema creates tables and indexes if they don't exist. Idempotent.
func (s *Store) InitSchema(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		quantity REAL NOT NULL DEFAULT 0 CHECK (quantity >= 0),
		alias TEXT NOT NULL DEFAULT '',
		mp REAL NOT NULL DEFAULT 0,
		sp REAL NOT NULL DEFAULT 0,
		unit TEXT NOT NULL DEFAULT '',
		target REAL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		synced INTEGER NOT NULL DEFAULT 0,
		rev INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS sales (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		mp REAL NOT NULL DEFAULT 0,
		sp REAL NOT NULL DEFAULT 0,
		qty REAL NOT NULL,
		subtotal REAL NOT NULL,
		created_at TEXT NOT NULL,
		synced INTEGER NOT NULL DEFAULT 0,
		rev INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		full_name TEXT NOT NULL,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		password TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'client',
		synced INTEGER NOT NULL DEFAULT 0,
		rev INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS sync_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		online INTEGER NOT NULL DEFAULT 0,
		items_pushed INTEGER NOT NULL DEFAULT 0,
		sales_pushed INTEGER NOT NULL DEFAULT 0,
		workers_pushed INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_items_name ON items(name);
	CREATE INDEX IF NOT EXISTS idx_items_synced ON items(synced);
	CREATE INDEX IF NOT EXISTS idx_sales_synced ON sales(synced);
	CREATE INDEX IF NOT EXISTS idx_sales_created ON sales(created_at);
	CREATE INDEX IF NOT EXISTS idx_users_synced ON users(synced);
	`

	if _, err := s.conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// WithTx runs fn inside a write transaction. If fn returns an error the
// transaction is rolled back and the error returned unchanged.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	tx := &Tx{queries: queries{q: sqlTx, now: s.now}}
	if err := fn(tx); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// table maps an entity to its local table, rejecting anything else so the
// name can be interpolated into SQL.
func table(e schema.Entity) (string, error) {
	if !e.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownEntity, string(e))
	}
	return string(e), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil || *p == 0 {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func nullFloatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid || n.Float64 == 0 {
		return nil
	}
	v := n.Float64
	return &v
}

func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n, nil
}

package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"nator/internal/config"
)

// Store manages job persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Option customises a Store at open time.
type Option func(*Store)

// WithClock replaces the wall clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// retryOnBusy reruns op with exponential backoff while SQLite reports the
// database as locked by another connection.
func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := range busyRetryAttempts {
		if lastErr = op(); lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay = min(delay*2, busyRetryMaxBackoff)
	}
	return lastErr
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var res sql.Result
	err := retryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	})
	return res, err
}

// withTx runs fn inside a transaction, retrying the whole unit on SQLITE_BUSY.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()
		if err := fn(tx); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// Open initializes or connects to the database under cfg.Paths.DataDir.
func Open(cfg *config.Config, opts ...Option) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.DatabasePath(), opts...)
}

// OpenPath opens the database at dbPath, creating the schema when absent.
func OpenPath(dbPath string, opts ...Option) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single connection serialises writers and keeps pragmas in effect.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath, now: time.Now}
	for _, opt := range opts {
		opt(store)
	}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) timestamp() string {
	return formatTime(s.now())
}

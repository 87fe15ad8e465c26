package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Options controls how a database is opened.
type Options struct {
	// ReadOnly opens the file with mode=ro; the schema is verified but never
	// created. Read-only handles need a database written with a rollback
	// journal (Journal "DELETE").
	ReadOnly bool
	// Journal selects the journal mode for writable handles (default WAL).
	Journal string
	// Schema is the DDL applied to a fresh database.
	Schema string
	// Version is the expected schema_version.
	Version int
	// ResetHint is appended to schema mismatch errors.
	ResetHint string
}

// DB is an open SQLite database.
type DB struct {
	*sql.DB
	path string
}

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Open connects to the database at path, applying pragmas and checking (or
// creating) the schema.
func Open(ctx context.Context, path string, opts Options) (*DB, error) {
	ctx = ensureContext(ctx)
	dsn := "file:" + (&url.URL{Path: path}).EscapedPath() + "?_pragma=busy_timeout(5000)"
	if opts.ReadOnly {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("open sqlite db: %w", err)
		}
		dsn += "&mode=ro"
	} else if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if !opts.ReadOnly {
		journal := strings.TrimSpace(opts.Journal)
		if journal == "" {
			journal = "WAL"
		}
		pragma := "PRAGMA journal_mode=" + journal
		if execErr := RetryOnBusy(ctx, func() error {
			_, err := sqlDB.ExecContext(ctx, pragma)
			return err
		}); execErr != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	db := &DB{DB: sqlDB, path: path}
	if err := db.initSchema(ctx, opts); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	if db == nil || db.DB == nil {
		return nil
	}
	return db.DB.Close()
}

// ExecRetry runs a statement, retrying while the database is busy.
func (db *DB) ExecRetry(ctx context.Context, query string, args ...any) error {
	ctx = ensureContext(ctx)
	return RetryOnBusy(ctx, func() error {
		_, err := db.ExecContext(ctx, query, args...)
		return err
	})
}

// Tx runs fn in a transaction, retrying the whole transaction while the
// database is busy.
func (db *DB) Tx(ctx context.Context, fn func(*sql.Tx) error) error {
	ctx = ensureContext(ctx)
	return RetryOnBusy(ctx, func() error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

// IsBusy reports whether err is SQLITE_BUSY.
func IsBusy(err error) bool {
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

// RetryOnBusy runs op, backing off and retrying while it fails with
// SQLITE_BUSY.
func RetryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !IsBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

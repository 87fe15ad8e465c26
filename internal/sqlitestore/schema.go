package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
)

func (db *DB) initSchema(ctx context.Context, opts Options) error {
	if opts.Schema == "" {
		return nil
	}

	var tableExists int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		if opts.ReadOnly {
			return fmt.Errorf("%w: %s has no schema", ErrSchemaMismatch, db.path)
		}
		return db.createSchema(ctx, opts)
	}

	var version int
	if err := db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != opts.Version {
		msg := fmt.Errorf("%w: %s has version %d, expected %d", ErrSchemaMismatch, db.path, version, opts.Version)
		if opts.ResetHint != "" {
			return fmt.Errorf("%w (%s)", msg, opts.ResetHint)
		}
		return msg
	}
	return nil
}

// createSchema expects DDL written with IF NOT EXISTS so that processes
// opening a fresh database at the same time all succeed.
func (db *DB) createSchema(ctx context.Context, opts Options) error {
	return db.Tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, opts.Schema); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) SELECT ? WHERE NOT EXISTS (SELECT 1 FROM schema_version)", opts.Version); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return nil
	})
}

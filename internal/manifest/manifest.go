// Package manifest persists everything a worker process needs to join a
// run: the run parameters, the object store index and the ticket-ordered
// job table.
//
// The coordinator writes the manifest once, before the first worker starts;
// workers open it read-only. Keeping the index and job table on disk lets
// the coordinator hand N processes an identical, immutable view without
// re-deriving either.
package manifest

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"bundleeval/internal/jobs"
	"bundleeval/internal/objectstore"
	"bundleeval/internal/sqlitestore"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 1

// FileName is the manifest's name inside the run directory.
const FileName = "manifest.db"

// ErrJobNotFound reports a ticket outside the job table.
var ErrJobNotFound = errors.New("job not found")

// Run describes one coordinator invocation.
type Run struct {
	ID                string
	CreatedAt         time.Time
	Archive           string
	Output            string
	Strategy          string
	Endpoint          string
	RequiresSourceMap bool
	Workers           int
	TotalJobs         int64
}

// Manifest is an open run manifest.
type Manifest struct {
	db *sqlitestore.DB
}

// PathIn returns the manifest path inside runDir.
func PathIn(runDir string) string {
	return filepath.Join(runDir, FileName)
}

// Create writes a fresh manifest at path, replacing any previous one. Jobs
// are stored in slice order; the job at position i is ticket i.
func Create(ctx context.Context, path string, run Run, index objectstore.Index, list []jobs.Job) (*Manifest, error) {
	for _, suffix := range []string{"", "-journal", "-wal", "-shm"} {
		if err := os.Remove(path + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale manifest: %w", err)
		}
	}
	db, err := sqlitestore.Open(ctx, path, sqlitestore.Options{Journal: "DELETE", Schema: schemaSQL, Version: schemaVersion})
	if err != nil {
		return nil, err
	}

	run.TotalJobs = int64(len(list))
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	err = db.Tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run (id, created_at, archive, output, strategy, endpoint, requires_source_map, workers, total_jobs)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, run.CreatedAt.Format(time.RFC3339Nano), run.Archive, run.Output, run.Strategy, run.Endpoint,
			boolToInt(run.RequiresSourceMap), run.Workers, run.TotalJobs,
		); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		objStmt, err := tx.PrepareContext(ctx, "INSERT INTO objects (key, data_offset, size) VALUES (?, ?, ?)")
		if err != nil {
			return fmt.Errorf("prepare objects insert: %w", err)
		}
		defer objStmt.Close()
		for key, entry := range index {
			if _, err := objStmt.ExecContext(ctx, key, entry.Offset, entry.Size); err != nil {
				return fmt.Errorf("insert object %s: %w", key, err)
			}
		}

		jobStmt, err := tx.PrepareContext(ctx, "INSERT INTO jobs (ticket, source_key, map_key, domain) VALUES (?, ?, ?, ?)")
		if err != nil {
			return fmt.Errorf("prepare jobs insert: %w", err)
		}
		defer jobStmt.Close()
		for ticket, job := range list {
			if _, err := jobStmt.ExecContext(ctx, ticket, job.SourceKey, job.SourceMapKey, job.Domain); err != nil {
				return fmt.Errorf("insert job %s: %w", job.ID(), err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Manifest{db: db}, nil
}

// Open attaches read-only to an existing manifest.
func Open(ctx context.Context, path string) (*Manifest, error) {
	db, err := sqlitestore.Open(ctx, path, sqlitestore.Options{
		ReadOnly:  true,
		Schema:    schemaSQL,
		Version:   schemaVersion,
		ResetHint: "rerun the coordinator to rebuild it",
	})
	if err != nil {
		return nil, err
	}
	return &Manifest{db: db}, nil
}

// Close closes the database.
func (m *Manifest) Close() error {
	if m == nil {
		return nil
	}
	return m.db.Close()
}

// Run returns the run parameters.
func (m *Manifest) Run(ctx context.Context) (Run, error) {
	var (
		run         Run
		created     string
		requiresMap int
	)
	err := m.db.QueryRowContext(ctx,
		`SELECT id, created_at, archive, output, strategy, endpoint, requires_source_map, workers, total_jobs FROM run LIMIT 1`,
	).Scan(&run.ID, &created, &run.Archive, &run.Output, &run.Strategy, &run.Endpoint, &requiresMap, &run.Workers, &run.TotalJobs)
	if err != nil {
		return Run{}, fmt.Errorf("read run: %w", err)
	}
	run.RequiresSourceMap = requiresMap != 0
	if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
		run.CreatedAt = ts
	}
	return run, nil
}

// Job returns the job assigned to ticket.
func (m *Manifest) Job(ctx context.Context, ticket int64) (jobs.Job, error) {
	var job jobs.Job
	err := m.db.QueryRowContext(ctx,
		"SELECT source_key, map_key, domain FROM jobs WHERE ticket = ?", ticket,
	).Scan(&job.SourceKey, &job.SourceMapKey, &job.Domain)
	if errors.Is(err, sql.ErrNoRows) {
		return jobs.Job{}, fmt.Errorf("%w: ticket %d", ErrJobNotFound, ticket)
	}
	if err != nil {
		return jobs.Job{}, fmt.Errorf("read job %d: %w", ticket, err)
	}
	return job, nil
}

// Index loads the object store index.
func (m *Manifest) Index(ctx context.Context) (objectstore.Index, error) {
	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM objects").Scan(&count); err != nil {
		return nil, fmt.Errorf("count objects: %w", err)
	}
	rows, err := m.db.QueryContext(ctx, "SELECT key, data_offset, size FROM objects")
	if err != nil {
		return nil, fmt.Errorf("query objects: %w", err)
	}
	defer rows.Close()

	index := make(objectstore.Index, count)
	for rows.Next() {
		var (
			key   string
			entry objectstore.Entry
		)
		if err := rows.Scan(&key, &entry.Offset, &entry.Size); err != nil {
			return nil, fmt.Errorf("scan object: %w", err)
		}
		index[key] = entry
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate objects: %w", err)
	}
	return index, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

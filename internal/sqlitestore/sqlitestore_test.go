package sqlitestore_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"bundleeval/internal/sqlitestore"
)

const testSchema = `
CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL);
CREATE TABLE IF NOT EXISTS kv (k TEXT PRIMARY KEY, v TEXT NOT NULL);
`

func TestOpenCreatesAndVerifiesSchema(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "test.db")

	db, err := sqlitestore.Open(ctx, path, sqlitestore.Options{Journal: "DELETE", Schema: testSchema, Version: 1})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := db.ExecRetry(ctx, "INSERT INTO kv (k, v) VALUES (?, ?)", "a", "1"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	ro, err := sqlitestore.Open(ctx, path, sqlitestore.Options{ReadOnly: true, Schema: testSchema, Version: 1})
	if err != nil {
		t.Fatalf("read-only Open: %v", err)
	}
	defer ro.Close()
	var v string
	if err := ro.QueryRowContext(ctx, "SELECT v FROM kv WHERE k = ?", "a").Scan(&v); err != nil || v != "1" {
		t.Fatalf("read back %q, %v", v, err)
	}
	if err := ro.ExecRetry(ctx, "INSERT INTO kv (k, v) VALUES ('b', '2')"); err == nil {
		t.Fatal("expected write to read-only handle to fail")
	}
}

func TestOpenRejectsVersionMismatch(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := sqlitestore.Open(ctx, path, sqlitestore.Options{Schema: testSchema, Version: 1})
	if err != nil {
		t.Fatal(err)
	}
	db.Close()

	_, err = sqlitestore.Open(ctx, path, sqlitestore.Options{Schema: testSchema, Version: 2, ResetHint: "delete it"})
	if !errors.Is(err, sqlitestore.ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}

func TestReadOnlyMissingFile(t *testing.T) {
	_, err := sqlitestore.Open(context.Background(), filepath.Join(t.TempDir(), "none.db"), sqlitestore.Options{ReadOnly: true})
	if err == nil {
		t.Fatal("expected error for missing database")
	}
}

func TestRetryOnBusy(t *testing.T) {
	attempts := 0
	err := sqlitestore.RetryOnBusy(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return fmt.Errorf("exec: database is locked")
		}
		return nil
	})
	if err != nil || attempts != 3 {
		t.Fatalf("expected success after 3 attempts, got %d, %v", attempts, err)
	}

	attempts = 0
	boom := errors.New("boom")
	if err := sqlitestore.RetryOnBusy(context.Background(), func() error {
		attempts++
		return boom
	}); !errors.Is(err, boom) || attempts != 1 {
		t.Fatalf("expected single attempt for non-busy error, got %d, %v", attempts, err)
	}
}

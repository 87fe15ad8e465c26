// Package reqcache stores identification responses keyed by a hash of the
// request, so a rerun with the same endpoint, headers and content skips the
// service call. The cache is a SQLite file shared by every worker process.
package reqcache

import (
	"context"
	"crypto/sha1"
	"database/sql"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bundleeval/internal/sqlitestore"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// Request identifies one service call.
type Request struct {
	Endpoint string
	Headers  map[string]string
	Source   string
	Map      *string
}

// Key returns the hex SHA-1 of the JSON object
// {"endpoint", "headers", "source", "map"}. encoding/json writes map keys in
// sorted order, so equal requests hash equally. Keys are not interchangeable
// with caches written by other tools.
func (r Request) Key() string {
	headers := r.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	body, _ := json.Marshal(struct {
		Endpoint string            `json:"endpoint"`
		Headers  map[string]string `json:"headers"`
		Source   string            `json:"source"`
		Map      *string           `json:"map"`
	}{r.Endpoint, headers, r.Source, r.Map})
	sum := sha1.Sum(body)
	return hex.EncodeToString(sum[:])
}

// Cache is an open request cache.
type Cache struct {
	db       *sqlitestore.DB
	minBytes int
}

// Open opens or creates the cache at path. Payloads shorter than minBytes
// are never stored.
func Open(ctx context.Context, path string, minBytes int) (*Cache, error) {
	db, err := sqlitestore.Open(ctx, path, sqlitestore.Options{
		Schema:    schemaSQL,
		Version:   schemaVersion,
		ResetHint: "delete the request cache file",
	})
	if err != nil {
		return nil, fmt.Errorf("open request cache: %w", err)
	}
	return &Cache{db: db, minBytes: minBytes}, nil
}

// Close closes the database.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.db.Close()
}

// Get returns the cached payload for key.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var payload []byte
	err := sqlitestore.RetryOnBusy(ctx, func() error {
		return c.db.QueryRowContext(ctx, "SELECT payload FROM responses WHERE key = ?", key).Scan(&payload)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cached response: %w", err)
	}
	return payload, true, nil
}

// Put stores payload under key when it meets the size threshold. It reports
// whether the payload was stored.
func (c *Cache) Put(ctx context.Context, key, endpoint string, payload []byte) (bool, error) {
	if len(payload) < c.minBytes {
		return false, nil
	}
	err := c.db.ExecRetry(ctx,
		"INSERT OR REPLACE INTO responses (key, endpoint, payload, created_at) VALUES (?, ?, ?, ?)",
		key, endpoint, payload, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return false, fmt.Errorf("store response: %w", err)
	}
	return true, nil
}

// Len returns the number of cached responses.
func (c *Cache) Len(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM responses").Scan(&n); err != nil {
		return 0, fmt.Errorf("count responses: %w", err)
	}
	return n, nil
}

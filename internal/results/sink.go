package results

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"go.mongodb.org/mongo-driver/bson"
)

const lockRetryDelay = 5 * time.Millisecond

// Sink appends records to the output file. It is safe for concurrent use by
// goroutines and, through the sibling ".lock" file, by processes.
type Sink struct {
	path string
	mu   sync.Mutex
	lock *flock.Flock
}

// NewSink returns a Sink writing to path.
func NewSink(path string) *Sink {
	return &Sink{path: path, lock: flock.New(LockPath(path))}
}

// LockPath returns the lock file guarding the output file at path.
func LockPath(path string) string {
	return path + ".lock"
}

// Path returns the output file.
func (s *Sink) Path() string {
	return s.path
}

// Append serializes rec and writes it with a single write call while holding
// the exclusive lock.
func (s *Sink) Append(ctx context.Context, rec Record) error {
	data, err := bson.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", rec.ID, err)
	}
	return s.AppendRaw(ctx, data)
}

// AppendRaw writes one pre-encoded BSON record.
func (s *Sink) AppendRaw(ctx context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("lock %s: %w", s.lock.Path(), err)
	}
	if !locked {
		return fmt.Errorf("lock %s: not acquired", s.lock.Path())
	}
	defer func() { _ = s.lock.Unlock() }()

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return fmt.Errorf("append record: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	return nil
}

// WithLock runs fn while holding the output lock. The coordinator uses it to
// repair a truncated tail without racing a late writer.
func (s *Sink) WithLock(ctx context.Context, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("lock %s: %w", s.lock.Path(), err)
	}
	if !locked {
		return fmt.Errorf("lock %s: not acquired", s.lock.Path())
	}
	defer func() { _ = s.lock.Unlock() }()
	return fn()
}

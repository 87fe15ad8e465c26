// Package dispenser hands out job tickets across worker processes.
//
// The counter lives in an 8-byte file next to a ".lock" sibling; Claim takes
// an exclusive flock, reads the counter, and writes it back incremented.
// Tickets therefore cover [0, total) exactly once no matter how many
// processes claim concurrently.
package dispenser

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const (
	counterSize    = 8
	lockRetryDelay = 2 * time.Millisecond
)

// Dispenser is a cross-process monotonic ticket counter.
type Dispenser struct {
	path  string
	total int64
	mu    sync.Mutex
	lock  *flock.Flock
}

// Create initializes the counter file at path with zero and returns a
// dispenser for total tickets.
func Create(path string, total int64) (*Dispenser, error) {
	if total < 0 {
		return nil, fmt.Errorf("dispenser: negative total %d", total)
	}
	d := Open(path, total)
	if err := d.withLock(context.Background(), func(f *os.File) error {
		return writeCounter(f, 0)
	}); err != nil {
		return nil, err
	}
	return d, nil
}

// Open attaches to an existing counter file.
func Open(path string, total int64) *Dispenser {
	return &Dispenser{path: path, total: total, lock: flock.New(path + ".lock")}
}

// Total returns the number of tickets.
func (d *Dispenser) Total() int64 {
	return d.total
}

// Claim returns the next ticket. ok is false once every ticket has been
// handed out; the counter is not advanced past total.
func (d *Dispenser) Claim(ctx context.Context) (ticket int64, ok bool, err error) {
	err = d.withLock(ctx, func(f *os.File) error {
		current, err := readCounter(f)
		if err != nil {
			return err
		}
		if current >= d.total {
			return nil
		}
		if err := writeCounter(f, current+1); err != nil {
			return err
		}
		ticket, ok = current, true
		return nil
	})
	return ticket, ok, err
}

// Claimed returns how many tickets have been handed out.
func (d *Dispenser) Claimed(ctx context.Context) (int64, error) {
	var current int64
	err := d.withLock(ctx, func(f *os.File) error {
		var err error
		current, err = readCounter(f)
		return err
	})
	if current > d.total {
		current = d.total
	}
	return current, err
}

func (d *Dispenser) withLock(ctx context.Context, fn func(*os.File) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	locked, err := d.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("dispenser lock: %w", err)
	}
	if !locked {
		return errors.New("dispenser lock: not acquired")
	}
	defer func() { _ = d.lock.Unlock() }()

	f, err := os.OpenFile(d.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("open counter: %w", err)
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func readCounter(f *os.File) (int64, error) {
	var buf [counterSize]byte
	n, err := f.ReadAt(buf[:], 0)
	if errors.Is(err, io.EOF) && n == 0 {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read counter: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(buf[:])), nil
}

func writeCounter(f *os.File, value int64) error {
	var buf [counterSize]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(value))
	if _, err := f.WriteAt(buf[:], 0); err != nil {
		return fmt.Errorf("write counter: %w", err)
	}
	return nil
}

package results

import (
	"errors"
	"fmt"
	"io"
	"os"

	"go.mongodb.org/mongo-driver/bson"

	"bundleeval/internal/dataset"
	"bundleeval/internal/fileutil"
	"bundleeval/internal/jobs"
)

// ScanStats describes one pass over an output file.
type ScanStats struct {
	Records int
	// Valid is the byte length of the complete records at the head of the
	// file.
	Valid int64
	// Truncated is the number of trailing bytes that do not form a complete
	// record.
	Truncated int64
}

// Scan calls fn for every complete record in the output file at path. A
// missing or empty file yields no records. A damaged tail ends the scan
// without error and is reported in ScanStats.Truncated. The raw record is
// only valid during the callback.
func Scan(path string, fn func(raw bson.Raw) error) (ScanStats, error) {
	mapping, err := fileutil.Map(path)
	if errors.Is(err, os.ErrNotExist) {
		return ScanStats{}, nil
	}
	if err != nil {
		return ScanStats{}, err
	}
	defer mapping.Close()

	buf := mapping.Bytes()
	reader := dataset.NewReader(buf)
	var stats ScanStats
	for {
		raw, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err == nil {
			err = raw.Validate()
		}
		if err != nil {
			stats.Truncated = int64(len(buf) - reader.Offset())
			if raw != nil {
				stats.Truncated += int64(len(raw))
			}
			break
		}
		stats.Records++
		stats.Valid = int64(reader.Offset())
		if err := fn(raw); err != nil {
			return stats, err
		}
	}
	if stats.Truncated == 0 {
		stats.Valid = int64(len(buf))
	}
	return stats, nil
}

// ReconcileStats summarizes a ledger reconciliation.
type ReconcileStats struct {
	ScanStats
	Done int
}

// Reconcile removes from set every job that already has a record in the
// output file at path. It is idempotent.
func Reconcile(set *jobs.Set, path string) (ReconcileStats, error) {
	var done int
	scan, err := Scan(path, func(raw bson.Raw) error {
		if id, ok := raw.Lookup("id").StringValueOK(); ok && set.Remove(id) {
			done++
		}
		return nil
	})
	if err != nil {
		return ReconcileStats{}, fmt.Errorf("reconcile %s: %w", path, err)
	}
	return ReconcileStats{ScanStats: scan, Done: done}, nil
}

// TruncateTail drops everything after the first valid bytes of the file.
func TruncateTail(path string, valid int64) error {
	if err := os.Truncate(path, valid); err != nil {
		return fmt.Errorf("truncate %s: %w", path, err)
	}
	return nil
}

// Load returns a copy of every record in the file keyed by job id. When an
// id occurs more than once, the last record wins.
func Load(path string) (map[string]bson.Raw, ScanStats, error) {
	out := make(map[string]bson.Raw)
	stats, err := Scan(path, func(raw bson.Raw) error {
		id, ok := raw.Lookup("id").StringValueOK()
		if !ok {
			return nil
		}
		out[id] = append(bson.Raw(nil), raw...)
		return nil
	})
	if err != nil {
		return nil, stats, err
	}
	return out, stats, nil
}

// Counts tallies records by status.
type Counts struct {
	Total   int
	Success int
	Error   int
	Ignored int
	Cached  int
	// Duplicates counts records whose id was already seen.
	Duplicates int
}

// Count scans the output file and tallies outcomes.
func Count(path string) (Counts, ScanStats, error) {
	var counts Counts
	seen := make(map[string]struct{})
	stats, err := Scan(path, func(raw bson.Raw) error {
		counts.Total++
		if id, ok := raw.Lookup("id").StringValueOK(); ok {
			if _, dup := seen[id]; dup {
				counts.Duplicates++
			}
			seen[id] = struct{}{}
		}
		switch StatusOf(raw) {
		case StatusSuccess:
			counts.Success++
		case StatusError:
			counts.Error++
		case StatusIgnored:
			counts.Ignored++
		}
		if cached, ok := raw.Lookup("cached").BooleanOK(); ok && cached {
			counts.Cached++
		}
		return nil
	})
	return counts, stats, err
}

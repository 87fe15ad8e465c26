// Package recovery joins a results file back to the dataset documents that
// produced its jobs and writes the result as JSON with domain provenance.
//
// By default every distinct (domain, job) pair across all dataset files is
// restored once, in first-appearance order over the files sorted by path.
// With RestoreOrder the output holds one array per dataset file, each in
// that file's document order; no ordering across files is implied.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"bundleeval/internal/fileutil"
	"bundleeval/internal/jobs"
	"bundleeval/internal/logging"
	"bundleeval/internal/results"
)

// Options configures a recovery pass.
type Options struct {
	Datasets     []string
	Results      string
	Output       string
	RestoreOrder bool
	Filter       jobs.Filter
	Parallelism  int
}

// Stats summarizes a recovery pass.
type Stats struct {
	Files       int
	Occurrences int
	Restored    int
	// Missing counts occurrences without a record in the results file.
	Missing int
	Records int
}

// Recover writes the JSON recovery file described by opts.
func Recover(ctx context.Context, opts Options, logger *slog.Logger) (Stats, error) {
	logger = logging.NewComponentLogger(logger, "recover")
	started := time.Now()

	extractor := jobs.NewExtractor(opts.Filter, opts.Parallelism, logger)
	files, lists, err := extractor.OccurrencesByFile(ctx, opts.Datasets)
	if err != nil {
		return Stats{}, fmt.Errorf("build job lists: %w", err)
	}
	stats := Stats{Files: len(files)}
	if !opts.RestoreOrder {
		lists = [][]jobs.Occurrence{flatten(lists)}
	}
	for _, list := range lists {
		stats.Occurrences += len(list)
	}

	records, scan, err := results.Load(opts.Results)
	if err != nil {
		return stats, fmt.Errorf("read results: %w", err)
	}
	stats.Records = len(records)
	if scan.Truncated > 0 {
		logging.WarnWithContext(logger, "results file ends in a partial record", "results_truncated",
			logging.Int64("dropped_bytes", scan.Truncated),
			logging.String(logging.FieldImpact, "the partial record is not restored"),
		)
	}

	var buf []byte
	if opts.RestoreOrder {
		buf, err = encodeNested(lists, records, &stats)
	} else {
		buf, err = encodeFlat(lists[0], records, &stats)
	}
	if err != nil {
		return stats, err
	}
	if dir := filepath.Dir(opts.Output); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return stats, fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := fileutil.WriteFileAtomic(opts.Output, buf, 0o644); err != nil {
		return stats, fmt.Errorf("write %s: %w", opts.Output, err)
	}

	logger.Info("results recovered",
		logging.Int("files", stats.Files),
		logging.Int("occurrences", stats.Occurrences),
		logging.Int("restored", stats.Restored),
		logging.Int("missing", stats.Missing),
		logging.Bool("restore_order", opts.RestoreOrder),
		logging.Duration("elapsed", time.Since(started)),
		logging.String(logging.FieldEventType, "recover_complete"),
	)
	return stats, nil
}

// flatten merges per-file lists, keeping the first appearance of each pair.
func flatten(lists [][]jobs.Occurrence) []jobs.Occurrence {
	seen := make(map[jobs.Occurrence]struct{})
	var out []jobs.Occurrence
	for _, list := range lists {
		for _, occ := range list {
			if _, ok := seen[occ]; ok {
				continue
			}
			seen[occ] = struct{}{}
			out = append(out, occ)
		}
	}
	return out
}

func encodeFlat(list []jobs.Occurrence, records map[string]bson.Raw, stats *Stats) ([]byte, error) {
	var w jsonArray
	for _, occ := range list {
		if err := w.appendRecord(occ, records, stats); err != nil {
			return nil, err
		}
	}
	return w.close(), nil
}

func encodeNested(lists [][]jobs.Occurrence, records map[string]bson.Raw, stats *Stats) ([]byte, error) {
	var outer jsonArray
	for _, list := range lists {
		var inner jsonArray
		for _, occ := range list {
			if err := inner.appendRecord(occ, records, stats); err != nil {
				return nil, err
			}
		}
		outer.appendRaw(inner.close())
	}
	return outer.close(), nil
}

type jsonArray struct {
	buf []byte
	n   int
}

func (a *jsonArray) appendRaw(elem []byte) {
	if a.n == 0 {
		a.buf = append(a.buf, '[')
	} else {
		a.buf = append(a.buf, ',')
	}
	a.buf = append(a.buf, elem...)
	a.n++
}

func (a *jsonArray) appendRecord(occ jobs.Occurrence, records map[string]bson.Raw, stats *Stats) error {
	raw, ok := records[occ.JobID]
	if !ok {
		stats.Missing++
		return nil
	}
	elem, err := withDomain(raw, occ.Domain)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", occ.JobID, err)
	}
	a.appendRaw(elem)
	stats.Restored++
	return nil
}

func (a *jsonArray) close() []byte {
	if a.n == 0 {
		return []byte("[]")
	}
	return append(a.buf, ']')
}

// withDomain renders a record as relaxed extended JSON with domain set to
// the occurrence's domain.
func withDomain(raw bson.Raw, domain string) ([]byte, error) {
	var doc bson.D
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	out := make(bson.D, 0, len(doc)+1)
	out = append(out, bson.E{Key: "domain", Value: domain})
	for _, e := range doc {
		if e.Key != "domain" {
			out = append(out, e)
		}
	}
	return bson.MarshalExtJSON(out, false, false)
}

package jobs

import (
	"context"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"bundleeval/internal/dataset"
	"bundleeval/internal/logging"
)

// Stats summarizes an extraction pass.
type Stats struct {
	Files       int
	Documents   int
	Failed      int
	ParseErrors int
	Eligible    int
}

func (s *Stats) add(other Stats) {
	s.Files += other.Files
	s.Documents += other.Documents
	s.Failed += other.Failed
	s.ParseErrors += other.ParseErrors
	s.Eligible += other.Eligible
}

// Extractor builds job sets from dataset files.
type Extractor struct {
	Filter      Filter
	Parallelism int
	Logger      *slog.Logger
}

// NewExtractor returns an Extractor with the given filter.
func NewExtractor(filter Filter, parallelism int, logger *slog.Logger) *Extractor {
	return &Extractor{
		Filter:      filter,
		Parallelism: parallelism,
		Logger:      logging.NewComponentLogger(logger, "extract"),
	}
}

// Extract scans every file in parallel and returns the union of their jobs.
func (e *Extractor) Extract(ctx context.Context, paths []string) (*Set, Stats, error) {
	sets := make([]*Set, len(paths))
	stats := make([]Stats, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	if e.Parallelism > 0 {
		g.SetLimit(e.Parallelism)
	}
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			set, st, err := e.ExtractFile(path)
			if err != nil {
				return err
			}
			sets[i], stats[i] = set, st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Stats{}, err
	}

	total := NewSet()
	var sum Stats
	for i := range paths {
		total.Union(sets[i])
		sum.add(stats[i])
	}
	return total, sum, nil
}

// ExtractFile scans one dataset file.
func (e *Extractor) ExtractFile(path string) (*Set, Stats, error) {
	set := NewSet()
	stats := Stats{Files: 1}

	err := e.walk(path, &stats, func(doc dataset.Document, entry dataset.Entry) {
		set.Add(JobFor(doc.Domain, entry))
	})
	if err != nil {
		return nil, Stats{}, err
	}
	e.log().Info("jobs extracted",
		logging.String("file", path),
		logging.Int("documents", stats.Documents),
		logging.Int("jobs", set.Len()),
		logging.Int("parse_errors", stats.ParseErrors),
	)
	return set, stats, nil
}

// Occurrence is one (domain, job) pair in dataset order.
type Occurrence struct {
	Domain string
	JobID  string
}

// FileOccurrences lists the distinct (domain, job) pairs of one file in the
// order they first appear.
func (e *Extractor) FileOccurrences(path string) ([]Occurrence, error) {
	seen := make(map[Occurrence]struct{})
	var out []Occurrence
	var stats Stats
	err := e.walk(path, &stats, func(doc dataset.Document, entry dataset.Entry) {
		occ := Occurrence{Domain: doc.Domain, JobID: JobFor(doc.Domain, entry).ID()}
		if _, ok := seen[occ]; ok {
			return
		}
		seen[occ] = struct{}{}
		out = append(out, occ)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// OccurrencesByFile runs FileOccurrences over paths in sorted path order,
// in parallel, and returns one list per file in that order.
func (e *Extractor) OccurrencesByFile(ctx context.Context, paths []string) ([]string, [][]Occurrence, error) {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)
	lists := make([][]Occurrence, len(sorted))

	g, ctx := errgroup.WithContext(ctx)
	if e.Parallelism > 0 {
		g.SetLimit(e.Parallelism)
	}
	for i, path := range sorted {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			list, err := e.FileOccurrences(path)
			if err != nil {
				return err
			}
			lists[i] = list
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return sorted, lists, nil
}

func (e *Extractor) walk(path string, stats *Stats, emit func(dataset.Document, dataset.Entry)) error {
	file, err := dataset.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return file.Walk(dataset.Visitor{
		OnDocument: func(_ int, doc dataset.Document) error {
			stats.Documents++
			if doc.Failed() {
				stats.Failed++
				return nil
			}
			for _, entry := range doc.Entries {
				if !e.Filter.Eligible(entry) {
					continue
				}
				stats.Eligible++
				emit(doc, entry)
			}
			return nil
		},
		OnError: func(index int, err error) error {
			stats.ParseErrors++
			e.log().Warn("document skipped",
				logging.String("file", path),
				logging.Int("index", index),
				logging.Error(err),
				logging.String(logging.FieldEventType, "document_parse_error"),
			)
			return nil
		},
	})
}

func (e *Extractor) log() *slog.Logger {
	if e.Logger == nil {
		return logging.NewNop()
	}
	return e.Logger
}

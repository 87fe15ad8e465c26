package coordinator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"bundleeval/internal/dispenser"
	"bundleeval/internal/fileutil"
	"bundleeval/internal/jobs"
	"bundleeval/internal/logging"
	"bundleeval/internal/manifest"
	"bundleeval/internal/objectstore"
	"bundleeval/internal/preflight"
	"bundleeval/internal/reqcache"
	"bundleeval/internal/results"
	"bundleeval/internal/rundir"
	"bundleeval/internal/services"
	"bundleeval/internal/strategy"
)

// prepared is everything setup produced for the supervision phase.
type prepared struct {
	runID     string
	layout    rundir.Layout
	lock      *flock.Flock
	archive   *fileutil.Mapping
	strategy  strategy.Resolved
	extract   jobs.Stats
	extracted int
	done      int
	pending   int
	repaired  int64
}

func (p *prepared) release() {
	if p.archive != nil {
		_ = p.archive.Close()
	}
	if p.lock != nil {
		_ = p.lock.Unlock()
	}
}

func (c *Coordinator) setup(ctx context.Context) (*prepared, error) {
	cfg := c.cfg
	layout := rundir.New(cfg.Paths.RunDir)
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, services.Wrap(services.ErrSetup, "coordinator", "create directories", "", err)
	}
	if err := layout.Ensure(); err != nil {
		return nil, services.Wrap(services.ErrSetup, "coordinator", "create run directory", layout.Dir, err)
	}
	if dir := filepath.Dir(c.opts.Output); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, services.Wrap(services.ErrSetup, "coordinator", "create output directory", dir, err)
		}
	}

	checks := preflight.RunAll(cfg, preflight.Inputs{Datasets: c.opts.Datasets, Archive: c.opts.Archive})
	for _, check := range checks {
		if !check.Passed {
			c.logger.Error("preflight check failed",
				logging.String("check", check.Name),
				logging.String("detail", check.Detail),
				logging.String(logging.FieldEventType, "preflight_failed"),
			)
		}
	}
	if err := preflight.Err(checks); err != nil {
		return nil, err
	}

	p := &prepared{layout: layout, lock: flock.New(layout.Lock())}
	locked, err := p.lock.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrSetup, "coordinator", "lock run directory", layout.Lock(), err)
	}
	if !locked {
		return nil, services.Wrap(services.ErrSetup, "coordinator", "lock run directory",
			fmt.Sprintf("another run holds %s", layout.Lock()), nil)
	}
	ok := false
	defer func() {
		if !ok {
			p.release()
		}
	}()

	resolved, err := strategy.Resolve(cfg.Harness.Strategy, cfg.Harness.Endpoint, cfg.Harness.RequiresSourceMap)
	if err != nil {
		return nil, services.Wrap(services.ErrSetup, "coordinator", "resolve strategy", cfg.Harness.Strategy, err)
	}
	p.strategy = resolved

	index, err := c.indexArchive(p)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	extractor := jobs.NewExtractor(jobs.FilterFromConfig(cfg, resolved.RequiresSourceMap()), cfg.Harness.Workers, c.logger)
	set, stats, err := extractor.Extract(ctx, c.opts.Datasets)
	if err != nil {
		return nil, services.Wrap(services.ErrSetup, "coordinator", "extract jobs", "", err)
	}
	p.extract = stats
	p.extracted = set.Len()
	c.logger.Info("jobs extracted",
		logging.Int("files", stats.Files),
		logging.Int("documents", stats.Documents),
		logging.Int("failed_documents", stats.Failed),
		logging.Int("parse_errors", stats.ParseErrors),
		logging.Int("eligible_entries", stats.Eligible),
		logging.Int("jobs", set.Len()),
		logging.Duration("elapsed", time.Since(started)),
		logging.String(logging.FieldEventType, "jobs_extracted"),
	)

	if err := c.reconcile(ctx, p, set); err != nil {
		return nil, err
	}

	pending := set.Sorted()
	if err := validateJobs(index, pending); err != nil {
		return nil, err
	}
	p.pending = len(pending)

	p.runID = uuid.NewString()
	run := manifest.Run{
		ID:                p.runID,
		CreatedAt:         time.Now().UTC(),
		Archive:           c.opts.Archive,
		Output:            c.opts.Output,
		Strategy:          resolved.Name(),
		Endpoint:          resolved.Endpoint(),
		RequiresSourceMap: resolved.RequiresSourceMap(),
		Workers:           c.workerCount(p.pending),
		TotalJobs:         int64(p.pending),
	}
	m, err := manifest.Create(ctx, layout.Manifest(), run, index, pending)
	if err != nil {
		return nil, services.Wrap(services.ErrSetup, "coordinator", "write manifest", layout.Manifest(), err)
	}
	if err := m.Close(); err != nil {
		return nil, services.Wrap(services.ErrSetup, "coordinator", "close manifest", layout.Manifest(), err)
	}
	if _, err := dispenser.Create(layout.Counter(), run.TotalJobs); err != nil {
		return nil, services.Wrap(services.ErrSetup, "coordinator", "create ticket counter", layout.Counter(), err)
	}
	if err := cfg.Save(layout.Config()); err != nil {
		return nil, services.Wrap(services.ErrSetup, "coordinator", "snapshot config", layout.Config(), err)
	}
	if cfg.Harness.RequestCache {
		cache, err := reqcache.Open(ctx, cfg.RequestCachePath(), cfg.RequestCache.MinBytes)
		if err != nil {
			return nil, services.Wrap(services.ErrSetup, "coordinator", "open request cache", cfg.RequestCachePath(), err)
		}
		if err := cache.Close(); err != nil {
			return nil, services.Wrap(services.ErrSetup, "coordinator", "close request cache", cfg.RequestCachePath(), err)
		}
	}

	ok = true
	return p, nil
}

func (c *Coordinator) indexArchive(p *prepared) (objectstore.Index, error) {
	started := time.Now()
	mapping, err := fileutil.Map(c.opts.Archive)
	if err != nil {
		return nil, services.Wrap(services.ErrSetup, "coordinator", "map archive", c.opts.Archive, err)
	}
	p.archive = mapping
	index, err := objectstore.BuildIndex(mapping.Bytes())
	if err != nil {
		return nil, services.Wrap(services.ErrSetup, "coordinator", "index archive", c.opts.Archive, err)
	}
	c.logger.Info("archive indexed",
		logging.String("archive", c.opts.Archive),
		logging.String("size", humanize.IBytes(uint64(mapping.Len()))),
		logging.Int("objects", len(index)),
		logging.Duration("elapsed", time.Since(started)),
		logging.String(logging.FieldEventType, "archive_indexed"),
	)
	return index, nil
}

// reconcile drops jobs already in the output file and cuts off a record
// left half-written by a killed run.
func (c *Coordinator) reconcile(ctx context.Context, p *prepared, set *jobs.Set) error {
	sink := results.NewSink(c.opts.Output)
	return sink.WithLock(ctx, func() error {
		stats, err := results.Reconcile(set, c.opts.Output)
		if err != nil {
			return services.Wrap(services.ErrSetup, "coordinator", "reconcile output", c.opts.Output, err)
		}
		p.done = stats.Done
		if stats.Truncated > 0 {
			logging.WarnWithContext(c.logger, "output ends in a partial record; truncating", "output_repaired",
				logging.Int64("valid_bytes", stats.Valid),
				logging.Int64("dropped_bytes", stats.Truncated),
				logging.String(logging.FieldImpact, "the interrupted job is redone"),
				logging.String(logging.FieldErrorHint, "expected after a killed run"),
			)
			if err := results.TruncateTail(c.opts.Output, stats.Valid); err != nil {
				return services.Wrap(services.ErrSetup, "coordinator", "repair output", c.opts.Output, err)
			}
			p.repaired = stats.Truncated
		}
		c.logger.Info("output reconciled",
			logging.String("output", c.opts.Output),
			logging.Int("records", stats.Records),
			logging.Int("already_done", stats.Done),
			logging.Int("remaining", set.Len()),
			logging.String(logging.FieldEventType, "ledger_reconciled"),
		)
		return nil
	})
}

// validateJobs checks that every job's objects are in the index.
func validateJobs(index objectstore.Index, list []jobs.Job) error {
	var missing []string
	for _, job := range list {
		if !index.Has(job.SourceKey) {
			missing = append(missing, job.SourceKey)
		}
		if job.HasSourceMap() && !index.Has(job.SourceMapKey) {
			missing = append(missing, job.SourceMapKey)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sample := missing
	if len(sample) > 5 {
		sample = sample[:5]
	}
	return services.Wrap(services.ErrJobResolution, "coordinator", "validate jobs",
		fmt.Sprintf("%d objects missing from archive (first: %s)", len(missing), strings.Join(sample, ", ")),
		objectstore.ErrNotFound)
}

func (c *Coordinator) workerCount(pending int) int {
	n := c.cfg.Harness.Workers
	if n > pending {
		n = pending
	}
	return n
}

package worker

import (
	"context"
	"fmt"
	"log/slog"

	"bundleeval/internal/config"
	"bundleeval/internal/dispenser"
	"bundleeval/internal/fileutil"
	"bundleeval/internal/logging"
	"bundleeval/internal/manifest"
	"bundleeval/internal/objectstore"
	"bundleeval/internal/reqcache"
	"bundleeval/internal/results"
	"bundleeval/internal/rundir"
	"bundleeval/internal/services"
	"bundleeval/internal/services/identify"
	"bundleeval/internal/strategy"
)

// Serve joins the run prepared in runDir as worker index and processes
// tickets until none remain. It is the body of the hidden worker command.
func Serve(ctx context.Context, cfg *config.Config, runDir string, index int, logger *slog.Logger) (Stats, error) {
	layout := rundir.New(runDir)

	m, err := manifest.Open(ctx, layout.Manifest())
	if err != nil {
		return Stats{}, services.Wrap(services.ErrSetup, "worker", "open manifest", layout.Manifest(), err)
	}
	defer m.Close()

	run, err := m.Run(ctx)
	if err != nil {
		return Stats{}, services.Wrap(services.ErrSetup, "worker", "read run", "", err)
	}
	ctx = services.WithRunID(ctx, run.ID)
	scoped := logging.WithContext(services.WithWorker(ctx, index), logger)

	idx, err := m.Index(ctx)
	if err != nil {
		return Stats{}, services.Wrap(services.ErrSetup, "worker", "read index", "", err)
	}
	mapping, err := fileutil.Map(run.Archive)
	if err != nil {
		return Stats{}, services.Wrap(services.ErrSetup, "worker", "map archive", run.Archive, err)
	}
	defer mapping.Close()
	if err := mapping.AdviseRandom(); err != nil {
		scoped.Debug("madvise failed", logging.Error(err))
	}
	store := objectstore.New(mapping.Bytes(), idx, cfg.BlobCacheBytes())

	resolved, err := strategy.Resolve(run.Strategy, run.Endpoint, run.RequiresSourceMap)
	if err != nil {
		return Stats{}, services.Wrap(services.ErrSetup, "worker", "resolve strategy", run.Strategy, err)
	}

	var cache *reqcache.Cache
	if cfg.Harness.RequestCache {
		cache, err = reqcache.Open(ctx, cfg.RequestCachePath(), cfg.RequestCache.MinBytes)
		if err != nil {
			return Stats{}, services.Wrap(services.ErrSetup, "worker", "open request cache", cfg.RequestCachePath(), err)
		}
		defer cache.Close()
	}

	handle := identify.NewHandle(identify.OptionsFromConfig(cfg, index), scoped)
	w, err := New(Options{
		Index:     index,
		Dispenser: dispenser.Open(layout.Counter(), run.TotalJobs),
		Jobs:      m,
		Store:     store,
		Sink:      results.NewSink(run.Output),
		Cache:     cache,
		Strategy:  resolved,
		Headers:   cfg.Service.Headers,
		Service:   handle,
		Logger:    logger,
	})
	if err != nil {
		return Stats{}, services.Wrap(services.ErrSetup, "worker", "init", "", err)
	}

	stats, err := w.Run(ctx)
	if err != nil {
		return stats, fmt.Errorf("worker %d: %w", index, err)
	}
	return stats, nil
}

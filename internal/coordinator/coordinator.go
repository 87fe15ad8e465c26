package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"bundleeval/internal/config"
	"bundleeval/internal/dispenser"
	"bundleeval/internal/jobs"
	"bundleeval/internal/logging"
	"bundleeval/internal/progress"
	"bundleeval/internal/results"
	"bundleeval/internal/services"
)

// Options names a run's inputs and how workers are started.
type Options struct {
	Datasets []string
	Archive  string
	Output   string
	Launcher Launcher
	// Interactive draws a progress bar on ProgressOut instead of logging.
	Interactive bool
	ProgressOut io.Writer
	// KeepRunFiles leaves the manifest and counter in place after a
	// complete run.
	KeepRunFiles bool
}

// WorkerResult is how one worker ended.
type WorkerResult struct {
	Index int
	Err   error
}

// Summary describes a finished run.
type Summary struct {
	RunID     string
	Strategy  string
	Endpoint  string
	Extract   jobs.Stats
	Extracted int
	// AlreadyDone counts jobs skipped because the output already had them.
	AlreadyDone int
	Dispatched  int
	Claimed     int64
	Workers     []WorkerResult
	// Output tallies the whole output file after the run.
	Output        results.Counts
	RepairedBytes int64
	Elapsed       time.Duration
}

// Failed returns the workers that ended with an error.
func (s Summary) Failed() []WorkerResult {
	var out []WorkerResult
	for _, w := range s.Workers {
		if w.Err != nil {
			out = append(out, w)
		}
	}
	return out
}

// Complete reports whether every dispatched job was claimed.
func (s Summary) Complete() bool {
	return s.Claimed >= int64(s.Dispatched)
}

// Coordinator runs one evaluation.
type Coordinator struct {
	cfg    *config.Config
	opts   Options
	logger *slog.Logger
}

// New returns a coordinator for cfg.
func New(cfg *config.Config, opts Options, logger *slog.Logger) (*Coordinator, error) {
	if cfg == nil {
		return nil, errors.New("coordinator: config is required")
	}
	if opts.Launcher == nil {
		return nil, errors.New("coordinator: launcher is required")
	}
	var err error
	if opts.Archive, err = config.ExpandPath(opts.Archive); err != nil {
		return nil, services.Wrap(services.ErrSetup, "coordinator", "archive path", "", err)
	}
	if opts.Output, err = config.ExpandPath(opts.Output); err != nil {
		return nil, services.Wrap(services.ErrSetup, "coordinator", "output path", "", err)
	}
	if opts.Output == "" {
		return nil, services.Wrap(services.ErrSetup, "coordinator", "output path", "not set", nil)
	}
	datasets := make([]string, 0, len(opts.Datasets))
	for _, path := range opts.Datasets {
		expanded, err := config.ExpandPath(path)
		if err != nil {
			return nil, services.Wrap(services.ErrSetup, "coordinator", "dataset path", path, err)
		}
		datasets = append(datasets, expanded)
	}
	opts.Datasets = datasets
	if opts.ProgressOut == nil {
		opts.ProgressOut = os.Stderr
	}
	return &Coordinator{
		cfg:    cfg,
		opts:   opts,
		logger: logging.NewComponentLogger(logger, "coordinator"),
	}, nil
}

// Run prepares the run and supervises workers until they all exit. The
// returned error is non-nil only for failures that leave the output
// untrustworthy or the run unable to start: setup, job resolution, and
// every worker failing while tickets remain.
func (c *Coordinator) Run(ctx context.Context) (Summary, error) {
	started := time.Now()
	p, err := c.setup(ctx)
	if err != nil {
		return Summary{}, err
	}
	defer p.release()

	summary := Summary{
		RunID:         p.runID,
		Strategy:      p.strategy.Name(),
		Endpoint:      p.strategy.Endpoint(),
		Extract:       p.extract,
		Extracted:     p.extracted,
		AlreadyDone:   p.done,
		Dispatched:    p.pending,
		RepairedBytes: p.repaired,
	}
	ctx = services.WithRunID(ctx, p.runID)
	logger := logging.WithContext(ctx, c.logger)

	var runErr error
	if p.pending == 0 {
		logger.Info("nothing to do; every job already has a record",
			logging.Int("jobs", p.extracted),
			logging.String(logging.FieldEventType, "run_noop"),
		)
	} else {
		summary.Workers, summary.Claimed, runErr = c.supervise(ctx, p, logger)
	}

	counts, _, err := results.Count(c.opts.Output)
	if err != nil {
		logging.WarnWithContext(logger, "could not tally output", "output_count_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "summary omits output totals"),
		)
	}
	summary.Output = counts
	summary.Elapsed = time.Since(started)

	if runErr == nil && summary.Complete() && len(summary.Failed()) == 0 && !c.opts.KeepRunFiles {
		p.layout.CleanCompleted(logger)
	}
	logger.Info("run finished",
		logging.Int("dispatched", summary.Dispatched),
		logging.Int64("claimed", summary.Claimed),
		logging.Int("failed_workers", len(summary.Failed())),
		logging.Int("records", counts.Total),
		logging.Duration("elapsed", summary.Elapsed),
		logging.String(logging.FieldEventType, "run_complete"),
	)
	return summary, runErr
}

func (c *Coordinator) supervise(ctx context.Context, p *prepared, logger *slog.Logger) ([]WorkerResult, int64, error) {
	n := c.workerCount(p.pending)
	counter := dispenser.Open(p.layout.Counter(), int64(p.pending))

	procs := make([]Process, 0, n)
	resultsByIndex := make([]WorkerResult, n)
	for i := 0; i < n; i++ {
		spec := WorkerSpec{Index: i, RunDir: p.layout.Dir, ConfigPath: p.layout.Config()}
		proc, err := c.opts.Launcher.Launch(ctx, spec)
		if err != nil {
			for _, started := range procs {
				started.Stop()
				_ = started.Wait()
			}
			return nil, 0, services.Wrap(services.ErrSetup, "coordinator", "launch workers", "", err)
		}
		procs = append(procs, proc)
		resultsByIndex[i] = WorkerResult{Index: i}
	}
	logger.Info("workers launched",
		logging.Int("workers", n),
		logging.Int("jobs", p.pending),
		logging.String("strategy", p.strategy.Name()),
		logging.String(logging.FieldEventType, "workers_launched"),
	)

	workersDone := make(chan struct{})
	var stopOnce sync.Once
	stopAll := func() {
		stopOnce.Do(func() {
			for _, proc := range procs {
				proc.Stop()
			}
		})
	}

	var g errgroup.Group
	var wg sync.WaitGroup
	for i, proc := range procs {
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			err := proc.Wait()
			resultsByIndex[i].Err = err
			if err != nil && !errors.Is(err, context.Canceled) {
				logging.ErrorWithContext(logger, "worker failed", "worker_failed",
					logging.Int(logging.FieldWorker, i),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "see the worker's log lines above"),
				)
			}
			if errors.Is(err, services.ErrJobResolution) {
				logging.WarnWithContext(logger, "object missing from archive; stopping all workers", "run_aborted",
					logging.Alert("job_resolution"),
					logging.String(logging.FieldImpact, "remaining tickets stay unclaimed until the archive is fixed"),
				)
				stopAll()
			}
			return nil
		})
	}
	go func() {
		wg.Wait()
		close(workersDone)
	}()
	go func() {
		select {
		case <-ctx.Done():
			logging.WarnWithContext(logger, "interrupted; stopping workers", "run_interrupted",
				logging.String(logging.FieldImpact, "in-flight jobs are redone on the next run"),
				logging.String(logging.FieldErrorHint, "rerun the same command to resume"),
			)
			stopAll()
		case <-workersDone:
		}
	}()

	monitor := progress.New(counter, progress.Options{
		Interval:    c.cfg.ProgressInterval(),
		Out:         c.opts.ProgressOut,
		Interactive: c.opts.Interactive,
		Logger:      logger,
	})
	g.Go(func() error {
		monitor.Run(ctx, workersDone)
		return nil
	})
	_ = g.Wait()

	claimed, err := counter.Claimed(context.Background())
	if err != nil {
		logger.Debug("read final ticket count", logging.Error(err))
	}
	if claimed > int64(p.pending) {
		claimed = int64(p.pending)
	}
	return resultsByIndex, claimed, c.outcome(ctx, resultsByIndex, claimed, int64(p.pending))
}

// outcome decides whether worker failures fail the run.
func (c *Coordinator) outcome(ctx context.Context, workers []WorkerResult, claimed, total int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	failed := 0
	for _, w := range workers {
		if errors.Is(w.Err, services.ErrJobResolution) {
			return w.Err
		}
		if w.Err != nil {
			failed++
		}
	}
	if failed == len(workers) && claimed < total {
		return services.Wrap(services.ErrServiceUnavailable, "coordinator", "run",
			fmt.Sprintf("all %d workers failed with %d of %d jobs unclaimed", failed, total-claimed, total), workers[0].Err)
	}
	return nil
}

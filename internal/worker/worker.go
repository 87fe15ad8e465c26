package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bundleeval/internal/dispenser"
	"bundleeval/internal/jobs"
	"bundleeval/internal/logging"
	"bundleeval/internal/objectstore"
	"bundleeval/internal/reqcache"
	"bundleeval/internal/results"
	"bundleeval/internal/services"
	"bundleeval/internal/services/identify"
	"bundleeval/internal/strategy"
)

// Service is the identification service a worker drives.
type Service interface {
	Start(ctx context.Context) error
	Identify(ctx context.Context, endpoint string, body identify.Request) (identify.Outcome, error)
	Terminate()
}

// JobSource resolves tickets to jobs.
type JobSource interface {
	Job(ctx context.Context, ticket int64) (jobs.Job, error)
}

// Options wires a worker to the run's shared state.
type Options struct {
	Index     int
	Dispenser *dispenser.Dispenser
	Jobs      JobSource
	Store     *objectstore.Store
	Sink      *results.Sink
	// Cache is optional; nil disables the request cache.
	Cache    *reqcache.Cache
	Strategy strategy.Resolved
	Headers  map[string]string
	Service  Service
	Logger   *slog.Logger
}

// Stats counts what one worker recorded.
type Stats struct {
	Processed int64
	Success   int64
	Errors    int64
	Ignored   int64
	Cached    int64
}

func (s *Stats) observe(rec results.Record) {
	s.Processed++
	switch rec.Status {
	case results.StatusSuccess:
		s.Success++
	case results.StatusError:
		s.Errors++
	case results.StatusIgnored:
		s.Ignored++
	}
	if rec.Cached {
		s.Cached++
	}
}

// Worker processes tickets until the dispenser runs dry.
type Worker struct {
	opts   Options
	logger *slog.Logger
}

// New validates opts and returns a worker.
func New(opts Options) (*Worker, error) {
	switch {
	case opts.Dispenser == nil:
		return nil, errors.New("worker: dispenser is required")
	case opts.Jobs == nil:
		return nil, errors.New("worker: job source is required")
	case opts.Store == nil:
		return nil, errors.New("worker: object store is required")
	case opts.Sink == nil:
		return nil, errors.New("worker: result sink is required")
	case opts.Service == nil:
		return nil, errors.New("worker: service is required")
	case opts.Strategy.Strategy == nil:
		return nil, errors.New("worker: strategy is required")
	}
	return &Worker{
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "worker"),
	}, nil
}

// Run starts the service, drains the dispenser and terminates the service.
// It returns nil once no tickets remain.
func (w *Worker) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	ctx = services.WithWorker(ctx, w.opts.Index)
	logger := logging.WithContext(ctx, w.logger)

	if err := w.opts.Service.Start(ctx); err != nil {
		logging.ErrorWithContext(logger, "service did not become ready", "service_unavailable",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check service.command and service.base_port"),
		)
		return stats, err
	}
	defer w.opts.Service.Terminate()

	logger.Info("worker started",
		logging.String("strategy", w.opts.Strategy.Name()),
		logging.String("endpoint", w.opts.Strategy.Endpoint()),
		logging.Bool("request_cache", w.cacheEnabled()),
		logging.String(logging.FieldEventType, "worker_start"),
	)

	started := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		ticket, ok, err := w.opts.Dispenser.Claim(ctx)
		if err != nil {
			return stats, fmt.Errorf("claim ticket: %w", err)
		}
		if !ok {
			break
		}

		rec, err := w.handleTicket(ctx, ticket)
		if rec != nil {
			if appendErr := w.opts.Sink.Append(ctx, *rec); appendErr != nil {
				return stats, fmt.Errorf("append record %s: %w", rec.ID, appendErr)
			}
			stats.observe(*rec)
		}
		if err != nil {
			return stats, err
		}
	}

	logger.Info("worker finished",
		logging.Int64("processed", stats.Processed),
		logging.Int64("success", stats.Success),
		logging.Int64("errors", stats.Errors),
		logging.Int64("ignored", stats.Ignored),
		logging.Int64("cached", stats.Cached),
		logging.Duration("elapsed", time.Since(started)),
		logging.String(logging.FieldEventType, "worker_complete"),
	)
	return stats, nil
}

func (w *Worker) handleTicket(ctx context.Context, ticket int64) (*results.Record, error) {
	ctx = services.WithTicket(ctx, ticket)
	job, err := w.opts.Jobs.Job(ctx, ticket)
	if err != nil {
		return nil, services.Wrap(services.ErrJobResolution, "worker", "load job",
			fmt.Sprintf("ticket %d", ticket), err)
	}
	ctx = services.WithJobID(ctx, job.ID())

	started := time.Now()
	rec, err := w.process(ctx, job)
	if rec != nil {
		rec.Worker = w.opts.Index
		rec.ElapsedMS = time.Since(started).Milliseconds()
		w.logRecord(ctx, *rec)
	}
	return rec, err
}

func (w *Worker) cacheEnabled() bool {
	return w.opts.Cache != nil && w.opts.Strategy.Cacheable()
}

func (w *Worker) logRecord(ctx context.Context, rec results.Record) {
	logger := logging.WithContext(ctx, w.logger)
	switch rec.Status {
	case results.StatusError:
		logging.WarnWithContext(logger, "job failed", "job_error",
			logging.String("message", rec.Error),
			logging.String(logging.FieldImpact, "job recorded as error"),
			logging.String(logging.FieldErrorHint, "inspect the service log for this job"),
		)
	case results.StatusIgnored:
		logger.Debug("job ignored",
			logging.String("reason", rec.Reason),
			logging.String(logging.FieldEventType, "job_ignored"),
		)
	default:
		logger.Debug("job completed",
			logging.Bool("cached", rec.Cached),
			logging.Int64("elapsed_ms", rec.ElapsedMS),
			logging.String(logging.FieldEventType, "job_complete"),
		)
	}
}
